package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Ingest *IngestHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Ingest.Health)
	api.POST("/internal/ingest", deps.Ingest.Process)
}
