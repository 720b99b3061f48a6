package convert

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func segment(t *testing.T, name, body string) []*RawChunk {
	t.Helper()
	res, err := NewMarkdownConverter().Convert(context.Background(), Source{
		Name: name,
		Data: []byte(body),
	}, nil)
	require.NoError(t, err)
	defer res.Stream.Close()
	require.Nil(t, res.PageCount)
	return drain(t, res.Stream)
}

func TestMarkdownConverterHeadingSections(t *testing.T) {
	chunks := segment(t, "notes.md", `# Intro

Opening paragraph.

# Details

Detail paragraph one.

Detail paragraph two.
`)
	require.Len(t, chunks, 2)
	require.True(t, strings.HasPrefix(chunks[0].Text, "Heading: Intro\n"))
	require.Contains(t, chunks[0].Text, "Opening paragraph.")
	require.True(t, strings.HasPrefix(chunks[1].Text, "Heading: Details\n"))
	require.Contains(t, chunks[1].Text, "Detail paragraph one.")
	require.Contains(t, chunks[1].Text, "Detail paragraph two.")
	for _, chunk := range chunks {
		require.Equal(t, 0, chunk.PageIndex)
		require.Nil(t, chunk.BBox)
	}
}

func TestMarkdownConverterSmallCodeMerges(t *testing.T) {
	chunks := segment(t, "howto.md", `# Setup

Run the installer.

`+"```bash\nmake install\n```"+`
`)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].Text, "Run the installer.")
	require.Contains(t, chunks[0].Text, "```bash")
}

func TestMarkdownConverterLongSectionSplits(t *testing.T) {
	paragraph := strings.Repeat("word ", 300)
	chunks := segment(t, "long.md", "# Big\n\n"+paragraph+"\n\n"+paragraph+"\n")
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		require.True(t, strings.HasPrefix(chunk.Text, "Heading: Big\n"))
	}
}

func TestMarkdownConverterEmptyInput(t *testing.T) {
	require.Empty(t, segment(t, "empty.md", ""))
}

func TestMarkdownConverterCanHandle(t *testing.T) {
	conv := NewMarkdownConverter()
	require.True(t, conv.CanHandle("text/markdown", ""))
	require.True(t, conv.CanHandle("text/plain; charset=utf-8", ""))
	require.True(t, conv.CanHandle("application/octet-stream", "README.md"))
	require.True(t, conv.CanHandle("", "notes.TXT"))
	require.False(t, conv.CanHandle("application/pdf", "paper.pdf"))
}
