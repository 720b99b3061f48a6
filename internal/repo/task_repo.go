package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/dbutil"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

type TaskRepo struct {
	db *sql.DB
}

func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) MarkProcessing(ctx context.Context, taskID string) error {
	return r.setStatus(ctx, taskID, model.TaskStatusProcessing, "")
}

// MarkFinished only applies to a task still in processing. A task the
// janitor already expired stays failed; flipping it back would count an
// ingestion as successful after its quota was released.
func (r *TaskRepo) MarkFinished(ctx context.Context, taskID string) error {
	return r.setStatus(ctx, taskID, model.TaskStatusFinished, model.TaskStatusProcessing)
}

func (r *TaskRepo) setStatus(ctx context.Context, taskID string, status string, fromStatus string) error {
	where := map[string]interface{}{"id": taskID}
	if fromStatus != "" {
		where["status"] = fromStatus
	}
	update := map[string]interface{}{
		"status": status,
		"mtime":  time.Now().Unix(),
	}
	sqlStr, args, err := builder.BuildUpdate("tasks", where, update)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "build task update")
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "update task status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "read affected rows")
	}
	if affected == 0 {
		if fromStatus != "" {
			return errs.Newf(errs.ErrNotFound, "task %s not found or not in %s state", taskID, fromStatus)
		}
		return errs.Newf(errs.ErrNotFound, "task not found: %s", taskID)
	}
	return nil
}

// MarkFailed records the failure and releases the task's reserved quota
// from its bucket. Both writes happen in one transaction so quota can not
// drift from task state. The quota is released only when the status row
// actually transitions, so a repeated call never decrements twice.
func (r *TaskRepo) MarkFailed(ctx context.Context, taskID string, bucketID string, errMsg string) error {
	const updateTask = `
		UPDATE tasks SET status = $1, error_message = $2, mtime = $3
		WHERE id = $4 AND status <> $1
	`
	const releaseQuota = `
		UPDATE buckets
		SET size = GREATEST(size - (SELECT file_size FROM tasks WHERE id = $1), 0)
		WHERE id = $2
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "begin tx")
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, updateTask, model.TaskStatusFailed, errMsg, time.Now().Unix(), taskID)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "mark task failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "read affected rows")
	}
	if affected > 0 {
		if _, err := tx.ExecContext(ctx, releaseQuota, taskID, bucketID); err != nil {
			return errs.Wrap(errs.ErrDatabase, err, "release bucket quota")
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "commit tx")
	}
	return nil
}

// StaleProcessing lists tasks that entered processing before the cutoff and
// never reached a terminal state, oldest first.
func (r *TaskRepo) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]model.Task, error) {
	where := map[string]interface{}{
		"status":   model.TaskStatusProcessing,
		"mtime <":  cutoff.Unix(),
		"_orderby": "mtime asc",
		"_limit":   []uint{uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("tasks",
		where, []string{"id", "status", "error_message", "bucket_id", "file_size", "mtime"})
	if err != nil {
		return nil, errs.Wrap(errs.ErrDatabase, err, "build stale task query")
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDatabase, err, "list stale tasks")
	}
	defer rows.Close()
	var tasks []model.Task
	for rows.Next() {
		var task model.Task
		var errMsg sql.NullString
		if err := rows.Scan(&task.ID, &task.Status, &errMsg, &task.BucketID, &task.FileSize, &task.Mtime); err != nil {
			return nil, errs.Wrap(errs.ErrDatabase, err, "scan stale task")
		}
		task.ErrorMessage = errMsg.String
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrDatabase, err, "iterate stale tasks")
	}
	return tasks, nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*model.Task, error) {
	where := map[string]interface{}{"id": taskID}
	sqlStr, args, err := builder.BuildSelect("tasks",
		where, []string{"id", "status", "error_message", "bucket_id", "file_size", "mtime"})
	if err != nil {
		return nil, errs.Wrap(errs.ErrDatabase, err, "build task query")
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var task model.Task
	var errMsg sql.NullString
	err = r.db.QueryRowContext(ctx, sqlStr, args...).
		Scan(&task.ID, &task.Status, &errMsg, &task.BucketID, &task.FileSize, &task.Mtime)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.ErrNotFound, "task not found: %s", taskID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrDatabase, err, "query task")
	}
	task.ErrorMessage = errMsg.String
	return &task, nil
}
