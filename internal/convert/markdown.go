package convert

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/model"
)

const (
	segmentTokenBudget = 400
	codeMergeBudget    = 400
)

// MarkdownConverter segments markdown and plain text locally, without a
// round trip to the conversion engine. Sections are grouped under their
// nearest level-1/2 heading up to a token budget; fenced code blocks small
// enough ride along with the surrounding text, larger ones stand alone.
type MarkdownConverter struct{}

func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

// CanHandle reports whether the source is a format this converter covers.
func (m *MarkdownConverter) CanHandle(contentType, name string) bool {
	ct := strings.ToLower(contentType)
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	ct = strings.TrimSpace(ct)
	switch ct {
	case "text/markdown", "text/x-markdown", "text/plain":
		return true
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown") || strings.HasSuffix(lower, ".txt")
}

func (m *MarkdownConverter) Convert(ctx context.Context, src Source, _ *model.ConvertOptions) (*Result, error) {
	logger := logutil.GetLogger(ctx)
	md := goldmark.New()
	reader := text.NewReader(src.Data)
	doc := md.Parser().Parse(reader)

	var chunks []*RawChunk
	var current []string
	var currentTokens int
	var currentHeading string

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n\n")
		if currentHeading != "" {
			content = "Heading: " + currentHeading + "\n" + content
		}
		chunks = append(chunks, &RawChunk{Text: content})
		current = nil
		currentTokens = 0
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 1 || n.Level == 2 {
				flush()
				currentHeading = string(n.Text(reader.Source()))
			} else {
				txt := string(n.Text(reader.Source()))
				current = append(current, txt)
				currentTokens += estimateTokens(txt)
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(reader.Source()))
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			fenced := "```" + lang + "\n" + code.String() + "\n```"
			tokens := estimateTokens(code.String())
			if currentTokens > 0 && currentTokens+tokens <= codeMergeBudget {
				current = append(current, fenced)
				currentTokens += tokens
			} else {
				flush()
				current = append(current, fenced)
				currentTokens = tokens
				flush()
			}
		default:
			txt := extractText(n, reader.Source())
			if txt == "" {
				continue
			}
			tokens := estimateTokens(txt)
			if currentTokens+tokens > segmentTokenBudget {
				flush()
			}
			current = append(current, txt)
			currentTokens += tokens
		}
	}
	flush()

	logger.Debug("segmented markdown locally",
		zap.String("name", src.Name), zap.Int("chunks", len(chunks)))
	return &Result{Stream: newSliceStream(chunks)}, nil
}

// estimateTokens counts words for ASCII text and characters for the rest,
// which tracks embedding-model tokenizers closely enough for budgeting.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock || node.Type() == ast.TypeInline {
			if node.Kind() == ast.KindText {
				sb.Write(node.(*ast.Text).Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
