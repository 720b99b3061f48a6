package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/convert"
	"github.com/kbworks/docingest/internal/embed"
	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

// ChunkStore is the slice of the persistence layer the uploader needs.
type ChunkStore interface {
	CourseName(ctx context.Context, courseID string) (string, error)
	CreateFileWithChunks(ctx context.Context, file *model.File, chunks []*model.Chunk) error
	AppendChunks(ctx context.Context, chunks []*model.Chunk) error
	DeleteFileData(ctx context.Context, fileID string) error
}

type pendingChunk struct {
	text       string
	pageIndex  int
	pageNumber int
	bbox       *[4]float64
}

// BatchUploader accumulates converted chunks and persists them in batches:
// each flush embeds the buffered texts in order and writes one chunk row per
// text. The first flush also creates the file row, in the same transaction,
// so a file without chunks can never exist.
type BatchUploader struct {
	store      ChunkStore
	embedder   embed.Embedder
	file       *model.File
	courseID   string
	courseName string
	fileName   string
	offset     int

	batchSize int
	buffer    []pendingChunk
	index     int
	total     int
	created   bool
}

type UploaderParams struct {
	File             *model.File
	PageNumberOffset int
	BatchSize        int
}

func NewBatchUploader(store ChunkStore, embedder embed.Embedder, params UploaderParams) (*BatchUploader, error) {
	if params.BatchSize <= 0 || params.BatchSize > embed.MaxBatchSize {
		return nil, errs.Newf(errs.ErrConfiguration, "batch size %d out of range (1..%d)", params.BatchSize, embed.MaxBatchSize)
	}
	return &BatchUploader{
		store:     store,
		embedder:  embedder,
		file:      params.File,
		courseID:  params.File.CourseID,
		fileName:  params.File.Name,
		offset:    params.PageNumberOffset,
		batchSize: params.BatchSize,
		buffer:    make([]pendingChunk, 0, params.BatchSize),
	}, nil
}

// Add buffers one chunk, flushing when the buffer reaches the batch size.
func (u *BatchUploader) Add(ctx context.Context, chunk *convert.RawChunk) error {
	u.buffer = append(u.buffer, pendingChunk{
		text:       chunk.Text,
		pageIndex:  chunk.PageIndex,
		pageNumber: pageNumber(chunk.PageIndex, u.offset),
		bbox:       chunk.BBox,
	})
	if len(u.buffer) < u.batchSize {
		return nil
	}
	return u.flush(ctx)
}

// Finish flushes the remainder. A run that produced no chunks at all is an
// empty document, which is an error: the task must not finish as if content
// had been ingested.
func (u *BatchUploader) Finish(ctx context.Context) (int, error) {
	if len(u.buffer) > 0 {
		if err := u.flush(ctx); err != nil {
			return u.total, err
		}
	}
	if u.total == 0 {
		return 0, errs.New(errs.ErrEmptyDocument, "document produced no content chunks")
	}
	return u.total, nil
}

// Created reports whether the file row exists, which decides whether the
// compensation path has database rows to remove.
func (u *BatchUploader) Created() bool {
	return u.created
}

func (u *BatchUploader) flush(ctx context.Context) error {
	batch := u.buffer
	u.buffer = u.buffer[:0]

	texts := make([]string, 0, len(batch))
	for _, chunk := range batch {
		texts = append(texts, chunk.text)
	}
	vectors, err := u.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	if u.courseName == "" {
		name, err := u.store.CourseName(ctx, u.courseID)
		if err != nil {
			return err
		}
		u.courseName = name
	}
	rows := make([]*model.Chunk, 0, len(batch))
	for i, chunk := range batch {
		rows = append(rows, &model.Chunk{
			ID:         uuid.NewString(),
			FileID:     u.file.ID,
			FileName:   u.fileName,
			CourseID:   u.courseID,
			CourseName: u.courseName,
			Embedding:  vectors[i],
			Content:    chunk.text,
			Index:      u.index + i,
			PageIndex:  chunk.pageIndex,
			PageNumber: chunk.pageNumber,
			BBox:       chunk.bbox,
		})
	}

	if !u.created {
		if err := u.store.CreateFileWithChunks(ctx, u.file, rows); err != nil {
			return err
		}
		u.created = true
	} else {
		if err := u.store.AppendChunks(ctx, rows); err != nil {
			return err
		}
	}
	u.index += len(rows)
	u.total += len(rows)
	logutil.GetLogger(ctx).Debug("flushed chunk batch",
		zap.String("file_id", u.file.ID), zap.Int("batch", len(rows)), zap.Int("total", u.total))
	return nil
}

// pageNumber converts the 0-based page index to the user-facing page number,
// correcting for unnumbered front matter and clamping at zero.
func pageNumber(pageIndex int, offset int) int {
	n := pageIndex + 1 - offset
	if n < 0 {
		return 0
	}
	return n
}
