package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// statusOf maps service errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrDestinationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSource), errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoItems):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrJobFinished), errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error. Internal errors are logged and
// their detail is not exposed.
func respondError(c *gin.Context, log *logger.Logger, msg string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error(msg, slog.Any("error", err), slog.String("path", c.Request.URL.Path))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
