package convert

import (
	"context"
	"io"

	"github.com/kbworks/docingest/internal/model"
)

// RawChunk is one segment of converted document content. PageIndex is
// zero-based; BBox is nil when the source format carries no layout.
type RawChunk struct {
	Text      string
	PageIndex int
	BBox      *[4]float64
}

// ChunkStream is a single-pass iterator over converted chunks. Next returns
// io.EOF after the last chunk; Close must be called regardless of how far
// the stream was consumed.
type ChunkStream interface {
	Next() (*RawChunk, error)
	Close() error
}

// Result of a conversion. PageCount is nil for formats without pages.
type Result struct {
	Stream    ChunkStream
	PageCount *int
}

// Source is the document to convert.
type Source struct {
	Name        string
	ContentType string
	Data        []byte
}

type Converter interface {
	Convert(ctx context.Context, src Source, opts *model.ConvertOptions) (*Result, error)
}

type sliceStream struct {
	chunks []*RawChunk
	pos    int
}

func newSliceStream(chunks []*RawChunk) *sliceStream {
	return &sliceStream{chunks: chunks}
}

func (s *sliceStream) Next() (*RawChunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error {
	return nil
}
