package model

// Chunk is one embedded unit of converted document content. Index is the
// 0-based position in the overall chunk stream and is strictly increasing
// within a file. PageIndex is 0-based (0 for non-paginated sources);
// PageNumber is the 1-based, offset-corrected page shown to users.
type Chunk struct {
	ID         string
	FileID     string
	FileName   string
	CourseID   string
	CourseName string
	Embedding  []float32
	Content    string
	Index      int
	PageIndex  int
	PageNumber int
	BBox       *[4]float64
}
