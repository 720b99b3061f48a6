package model

import "strings"

// ConvertOptions override the conversion engine's pipeline features. The
// fields are forwarded opaquely; their semantics live in the engine.
type ConvertOptions struct {
	OCR                bool `json:"do_ocr"`
	TableStructure     bool `json:"do_table_structure"`
	FormulaEnrichment  bool `json:"do_formula_enrichment"`
	CodeEnrichment     bool `json:"do_code_enrichment"`
	PictureDescription bool `json:"do_picture_description"`
}

// IngestJob describes one ingestion task. ObjectKey follows the
// "<course-id>/<filename>" convention.
type IngestJob struct {
	TaskID           string          `json:"taskId"`
	BucketID         string          `json:"bucketId"`
	ObjectKey        string          `json:"name"`
	FileSize         int64           `json:"size"`
	ContentType      string          `json:"contentType"`
	PageNumberOffset int             `json:"pageNumberOffset"`
	Options          *ConvertOptions `json:"pipelineOptions,omitempty"`
}

// SplitKey recovers the course ID and display name from ObjectKey. The
// second value is empty when the key carries no slash.
func (j IngestJob) SplitKey() (courseID, fileName string) {
	courseID, fileName, _ = strings.Cut(j.ObjectKey, "/")
	return courseID, fileName
}

// JobResult is surfaced back to whatever invoked the pipeline.
type JobResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	ChunksProcessed int    `json:"chunks_processed"`
}
