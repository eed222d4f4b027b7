package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// Tick handles POST|GET /api/v1/runner and /api/v1/runner/:source
func (h *RunnerHandler) Tick(c *gin.Context) {
	var sources []domain.Source
	if raw := c.Param("source"); raw != "" {
		src, err := domain.ParseSource(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sources = append(sources, src)
	}

	report, err := h.runner.Tick(c.Request.Context(), sources...)
	if err != nil {
		respondError(c, h.logger, "Runner tick failed", err)
		return
	}

	h.logger.Debug("Runner tick served",
		slog.Int("processed", report.Processed),
		slog.Bool("ok", report.OK),
	)
	c.JSON(http.StatusOK, report)
}

// QueueStats handles GET /api/v1/queue/stats
func (h *RunnerHandler) QueueStats(c *gin.Context) {
	stats, err := h.runner.Stats(c.Request.Context(), c.Query("request_id"))
	if err != nil {
		respondError(c, h.logger, "Failed to read queue stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
