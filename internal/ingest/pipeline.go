package ingest

import (
	"context"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/convert"
	"github.com/kbworks/docingest/internal/embed"
	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

// TaskStore is the slice of the persistence layer that tracks task state.
type TaskStore interface {
	MarkProcessing(ctx context.Context, taskID string) error
	MarkFinished(ctx context.Context, taskID string) error
	MarkFailed(ctx context.Context, taskID string, bucketID string, errMsg string) error
}

// ObjectStore fetches and deletes uploaded source objects.
type ObjectStore interface {
	FetchObject(ctx context.Context, bucket string, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket string, key string) error
}

type Pipeline struct {
	tasks    TaskStore
	store    ChunkStore
	objects  ObjectStore
	engine   convert.Converter
	markdown *convert.MarkdownConverter
	embedder embed.Embedder

	bucket    string
	batchSize int
}

type PipelineParams struct {
	Tasks    TaskStore
	Store    ChunkStore
	Objects  ObjectStore
	Engine   convert.Converter
	Embedder embed.Embedder

	Bucket    string
	BatchSize int
}

func NewPipeline(params PipelineParams) *Pipeline {
	return &Pipeline{
		tasks:     params.Tasks,
		store:     params.Store,
		objects:   params.Objects,
		engine:    params.Engine,
		markdown:  convert.NewMarkdownConverter(),
		embedder:  params.Embedder,
		bucket:    params.Bucket,
		batchSize: params.BatchSize,
	}
}

// Run executes one ingestion task end to end. On any failure after the task
// entered processing, the source object is deleted and the task marked
// failed; both compensation steps run regardless of each other's outcome and
// never replace the original error.
func (p *Pipeline) Run(ctx context.Context, job model.IngestJob) (*model.JobResult, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("task_id", job.TaskID), zap.String("object_key", job.ObjectKey))

	if err := p.tasks.MarkProcessing(ctx, job.TaskID); err != nil {
		return nil, err
	}
	logger.Info("task processing started", zap.Int64("size", job.FileSize))

	result, err := p.process(ctx, job)
	if err != nil {
		logger.Error("ingestion failed, compensating", zap.Error(err))
		p.compensate(ctx, job, err)
		return nil, err
	}
	if err := p.tasks.MarkFinished(ctx, job.TaskID); err != nil {
		logger.Error("chunks persisted but task not finished", zap.Error(err))
		return nil, err
	}
	logger.Info("task finished", zap.Int("chunks", result.ChunksProcessed))
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, job model.IngestJob) (*model.JobResult, error) {
	courseID, fileName := job.SplitKey()
	if courseID == "" || fileName == "" {
		return nil, errs.Newf(errs.ErrConfiguration, "object key %q is not course_id/filename", job.ObjectKey)
	}

	data, err := p.objects.FetchObject(ctx, p.bucket, job.ObjectKey)
	if err != nil {
		return nil, err
	}

	src := convert.Source{Name: fileName, ContentType: job.ContentType, Data: data}
	converter := convert.Converter(p.engine)
	if p.markdown.CanHandle(job.ContentType, fileName) {
		converter = p.markdown
	}
	res, err := converter.Convert(ctx, src, job.Options)
	if err != nil {
		return nil, err
	}
	defer res.Stream.Close()

	uploader, err := NewBatchUploader(p.store, p.embedder, UploaderParams{
		File: &model.File{
			ID:        job.TaskID,
			CourseID:  courseID,
			Name:      fileName,
			Size:      job.FileSize,
			PageCount: res.PageCount,
		},
		PageNumberOffset: job.PageNumberOffset,
		BatchSize:        p.batchSize,
	})
	if err != nil {
		return nil, err
	}

	for {
		chunk, err := res.Stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapWithCleanup(ctx, p.store, uploader, err)
		}
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}
		if err := uploader.Add(ctx, chunk); err != nil {
			return nil, wrapWithCleanup(ctx, p.store, uploader, err)
		}
	}
	total, err := uploader.Finish(ctx)
	if err != nil {
		return nil, wrapWithCleanup(ctx, p.store, uploader, err)
	}
	return &model.JobResult{Success: true, Message: "ok", ChunksProcessed: total}, nil
}

// wrapWithCleanup removes any rows a partially completed upload left behind.
// The original error always wins; a cleanup failure is only logged. Cleanup
// runs detached from the caller's cancellation: the failure being cleaned up
// may itself be a cancelled context, and the rows must still go.
func wrapWithCleanup(ctx context.Context, store ChunkStore, uploader *BatchUploader, cause error) error {
	if !uploader.Created() {
		return cause
	}
	ctx = context.WithoutCancel(ctx)
	if err := store.DeleteFileData(ctx, uploader.file.ID); err != nil {
		logutil.GetLogger(ctx).Error("failed to remove partial file data",
			zap.String("file_id", uploader.file.ID), zap.Error(err))
	}
	return cause
}

func (p *Pipeline) compensate(ctx context.Context, job model.IngestJob, cause error) {
	// A disconnecting client or a SIGTERM cancels the run's context; the
	// compensation writes still have to land, so they run detached from it.
	ctx = context.WithoutCancel(ctx)
	logger := logutil.GetLogger(ctx)
	if err := p.objects.DeleteObject(ctx, p.bucket, job.ObjectKey); err != nil && !errs.IsNotFound(err) {
		logger.Error("compensation: delete source object failed", zap.Error(err))
	} else {
		logger.Info("compensation: source object deleted")
	}
	if err := p.tasks.MarkFailed(ctx, job.TaskID, job.BucketID, errs.Message(cause)); err != nil {
		logger.Error("compensation: mark failed did not apply", zap.Error(err))
	}
}
