package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbworks/docingest/internal/ingest"
	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/response"
)

type IngestHandler struct {
	pipeline *ingest.Pipeline
}

func NewIngestHandler(pipeline *ingest.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// Process runs one ingestion task synchronously. The caller already created
// the task row and uploaded the object; this endpoint only drives the
// pipeline.
func (h *IngestHandler) Process(c *gin.Context) {
	var job model.IngestJob
	if err := c.ShouldBindJSON(&job); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid job descriptor: "+err.Error())
		return
	}
	if job.TaskID == "" || job.BucketID == "" || job.ObjectKey == "" {
		response.Error(c, http.StatusBadRequest, "taskId, bucketId and name are required")
		return
	}
	result, err := h.pipeline.Run(c.Request.Context(), job)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *IngestHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
