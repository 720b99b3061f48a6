package repo_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/errs"
	"github.com/kbworks/docingest/internal/repo"
	"github.com/kbworks/docingest/test/testutil"
)

func newTestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func seedTask(t *testing.T, db *sql.DB, taskID, bucketID string, fileSize int64, status string, mtime int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO tasks (id, status, bucket_id, file_size, mtime) VALUES ($1, $2, $3, $4, $5)`,
		taskID, status, bucketID, fileSize, mtime)
	require.NoError(t, err)
}

func seedBucket(t *testing.T, db *sql.DB, bucketID string, size int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO buckets (id, size) VALUES ($1, $2)`, bucketID, size)
	require.NoError(t, err)
}

func TestTaskLifecycle(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tasks := repo.NewTaskRepo(db)

	taskID := newTestID()
	seedTask(t, db, taskID, newTestID(), 1024, model.TaskStatusPending, 0)

	require.NoError(t, tasks.MarkProcessing(ctx, taskID))
	task, err := tasks.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusProcessing, task.Status)
	require.NotZero(t, task.Mtime)

	require.NoError(t, tasks.MarkFinished(ctx, taskID))
	task, err = tasks.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusFinished, task.Status)
}

func TestTaskMarkFailedReleasesQuota(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tasks := repo.NewTaskRepo(db)

	taskID := newTestID()
	bucketID := newTestID()
	seedBucket(t, db, bucketID, 5000)
	seedTask(t, db, taskID, bucketID, 2048, model.TaskStatusProcessing, time.Now().Unix())

	require.NoError(t, tasks.MarkFailed(ctx, taskID, bucketID, "conversion engine crashed"))

	task, err := tasks.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusFailed, task.Status)
	require.Equal(t, "conversion engine crashed", task.ErrorMessage)

	var size int64
	require.NoError(t, db.QueryRow(`SELECT size FROM buckets WHERE id = $1`, bucketID).Scan(&size))
	require.Equal(t, int64(5000-2048), size)
}

func TestTaskMarkFailedClampsQuotaAtZero(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tasks := repo.NewTaskRepo(db)

	taskID := newTestID()
	bucketID := newTestID()
	seedBucket(t, db, bucketID, 100)
	seedTask(t, db, taskID, bucketID, 2048, model.TaskStatusProcessing, time.Now().Unix())

	require.NoError(t, tasks.MarkFailed(ctx, taskID, bucketID, "x"))

	var size int64
	require.NoError(t, db.QueryRow(`SELECT size FROM buckets WHERE id = $1`, bucketID).Scan(&size))
	require.Zero(t, size)
}

func TestTaskMarkFailedIsIdempotent(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tasks := repo.NewTaskRepo(db)

	taskID := newTestID()
	bucketID := newTestID()
	seedBucket(t, db, bucketID, 5000)
	seedTask(t, db, taskID, bucketID, 1000, model.TaskStatusProcessing, time.Now().Unix())

	require.NoError(t, tasks.MarkFailed(ctx, taskID, bucketID, "first"))
	require.NoError(t, tasks.MarkFailed(ctx, taskID, bucketID, "second"))

	var size int64
	require.NoError(t, db.QueryRow(`SELECT size FROM buckets WHERE id = $1`, bucketID).Scan(&size))
	require.Equal(t, int64(4000), size)

	task, err := tasks.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, "first", task.ErrorMessage)
}

func TestTaskMarkFinishedRequiresProcessing(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tasks := repo.NewTaskRepo(db)

	taskID := newTestID()
	bucketID := newTestID()
	seedBucket(t, db, bucketID, 5000)
	seedTask(t, db, taskID, bucketID, 1000, model.TaskStatusProcessing, time.Now().Unix())

	// The janitor expires the task first; the worker's late finish must not
	// flip it back.
	require.NoError(t, tasks.MarkFailed(ctx, taskID, bucketID, "processing timed out"))
	err := tasks.MarkFinished(ctx, taskID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	task, err := tasks.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusFailed, task.Status)

	var size int64
	require.NoError(t, db.QueryRow(`SELECT size FROM buckets WHERE id = $1`, bucketID).Scan(&size))
	require.Equal(t, int64(4000), size)
}

func TestTaskStatusNotFound(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	tasks := repo.NewTaskRepo(db)

	err := tasks.MarkProcessing(context.Background(), newTestID())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStaleProcessing(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tasks := repo.NewTaskRepo(db)

	staleID := newTestID()
	freshID := newTestID()
	finishedID := newTestID()
	old := time.Now().Add(-3 * time.Hour).Unix()
	seedTask(t, db, staleID, newTestID(), 1, model.TaskStatusProcessing, old)
	seedTask(t, db, freshID, newTestID(), 1, model.TaskStatusProcessing, time.Now().Unix())
	seedTask(t, db, finishedID, newTestID(), 1, model.TaskStatusFinished, old)

	stale, err := tasks.StaleProcessing(ctx, time.Now().Add(-2*time.Hour), 100)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, task := range stale {
		ids[task.ID] = true
	}
	require.True(t, ids[staleID])
	require.False(t, ids[freshID])
	require.False(t, ids[finishedID])
}
