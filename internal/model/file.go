package model

// File is the parent record of a successfully started ingestion. Its ID is
// the task ID; the row is inserted together with the first chunk batch and
// never before it.
type File struct {
	ID        string
	CourseID  string
	Name      string
	Size      int64
	PageCount *int
}
