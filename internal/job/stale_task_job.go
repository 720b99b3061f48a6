package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/repo"
)

const staleTaskBatch = 100

// StaleTaskJob fails tasks stuck in processing, e.g. after a worker died
// mid-run. Failing them releases their reserved bucket quota so the owner
// can upload again.
type StaleTaskJob struct {
	tasks  *repo.TaskRepo
	maxAge time.Duration
}

func NewStaleTaskJob(tasks *repo.TaskRepo, maxAgeMinutes int) *StaleTaskJob {
	if maxAgeMinutes <= 0 {
		maxAgeMinutes = 120
	}
	return &StaleTaskJob{tasks: tasks, maxAge: time.Duration(maxAgeMinutes) * time.Minute}
}

func (j *StaleTaskJob) Name() string {
	return "stale_task_janitor"
}

func (j *StaleTaskJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	cutoff := time.Now().Add(-j.maxAge)
	stale, err := j.tasks.StaleProcessing(ctx, cutoff, staleTaskBatch)
	if err != nil {
		return err
	}
	for _, task := range stale {
		if err := j.tasks.MarkFailed(ctx, task.ID, task.BucketID, "processing timed out"); err != nil {
			logger.Error("failed to expire stale task", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		logger.Info("expired stale task",
			zap.String("task_id", task.ID),
			zap.Int64("stuck_since", task.Mtime))
	}
	return nil
}
