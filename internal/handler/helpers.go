package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/pkg/errs"
	"github.com/kbworks/docingest/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errs.IsNotFound(err):
		response.Error(c, http.StatusNotFound, err.Error())
	case errs.IsConfiguration(err), errs.IsEmptyDocument(err):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrConversion):
		response.Error(c, http.StatusUnprocessableEntity, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "internal error")
	}
}
