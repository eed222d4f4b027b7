package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

const (
	serviceName  = "catalog-migrator-api"
	checkTimeout = 2 * time.Second
)

// HealthHandler reports the API and its backing services
type HealthHandler struct {
	logger *logger.Logger
	checks map[string]HealthCheck
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger: deps.Logger.Component("health-handler"),
		checks: deps.HealthChecks,
	}
}

// Health handles GET /health. Any failing check turns the answer into 503.
func (h *HealthHandler) Health(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "healthy", http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			h.logger.Warn("Health check failed", slog.String("check", name), slog.Any("error", err))
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": serviceName,
		"checks":  results,
	})
}
