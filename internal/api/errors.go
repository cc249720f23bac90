package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/logger"
)

var log = logger.New("api")

// statusClientClosedRequest is reported when the caller went away mid-request
const statusClientClosedRequest = 499

func respondError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.JSON(statusClientClosedRequest, gin.H{"error": "Request cancelled"})
		return
	}

	status := apperr.StatusOf(err)
	body := gin.H{"error": apperr.MessageOf(err)}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		body["code"] = appErr.Code
	}

	switch {
	case status == http.StatusBadGateway:
		log.Warn("%s %s upstream failure: %v", c.Request.Method, c.FullPath(), err)
	case status >= http.StatusInternalServerError:
		log.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}

	c.JSON(status, body)
}
