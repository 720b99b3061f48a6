package model

// Task status lifecycle: pending -> processing -> finished | failed.
// The transition is monotonic; a task never re-enters processing once it
// reaches a terminal state.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusFinished   = "finished"
	TaskStatusFailed     = "failed"
)

type Task struct {
	ID           string
	Status       string
	ErrorMessage string
	BucketID     string
	FileSize     int64
	Mtime        int64
}
