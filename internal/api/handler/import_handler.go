package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/catalog-migrator/internal/api/dto"
	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/enqueue"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
)

// CreateImport handles POST /api/v1/imports
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var req dto.CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	src, err := domain.ParseSource(req.Source)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := enqueue.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode == "" {
		mode = enqueue.ModeAll
		if len(req.Links) > 0 {
			mode = enqueue.ModeLinks
		}
	}

	job, err := h.enqueuer.Enqueue(c.Request.Context(), enqueue.Request{
		UserID:     userID(c),
		Source:     src,
		Mode:       mode,
		BaseURL:    strings.TrimSpace(req.BaseURL),
		Links:      req.Links,
		Cap:        req.Cap,
		Categories: req.Categories,
		Tags:       req.Tags,
		Priority:   req.Priority,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to enqueue import", err)
		return
	}

	h.logger.Info("Import enqueued",
		slog.String("request_id", job.RequestID),
		slog.String("user_id", job.UserID),
		slog.Int("total", job.Total),
	)
	c.JSON(http.StatusAccepted, dto.ImportResponse{Job: job})
}

// DiscoverImport handles POST /api/v1/imports/discover
func (h *ImportHandler) DiscoverImport(c *gin.Context) {
	var req dto.DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	src, err := domain.ParseSource(req.Source)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	links, err := h.enqueuer.Preview(c.Request.Context(), enqueue.Request{
		UserID:  userID(c),
		Source:  src,
		BaseURL: strings.TrimSpace(req.BaseURL),
		Cap:     req.Cap,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to discover items", err)
		return
	}
	if links == nil {
		links = []string{}
	}
	c.JSON(http.StatusOK, dto.DiscoverResponse{Source: src.String(), Count: len(links), Links: links})
}

// ListImports handles GET /api/v1/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	var req dto.ListImportsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	size := pageSize(req.PageSize)

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:   userID(c),
		Status:   domain.JobStatus(req.Status),
		PageSize: size,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list imports", err)
		return
	}

	resp := dto.ListImportsResponse{Imports: jobs}
	if len(jobs) > size {
		resp.Imports = jobs[:size]
		last := resp.Imports[size-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, RequestID: last.RequestID})
	}
	if resp.Imports == nil {
		resp.Imports = []domain.Job{}
	}
	c.JSON(http.StatusOK, resp)
}

// GetImport handles GET /api/v1/imports/:request_id
func (h *ImportHandler) GetImport(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	counts, err := h.store.CountResults(c.Request.Context(), job.RequestID)
	if err != nil {
		respondError(c, h.logger, "Failed to count results", err)
		return
	}
	c.JSON(http.StatusOK, dto.ImportResponse{Job: job, Counts: &counts})
}

// ListLogs handles GET /api/v1/imports/:request_id/logs
func (h *ImportHandler) ListLogs(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	var req dto.ListLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	logs, err := h.store.ListLogs(c.Request.Context(), job.RequestID, pageSize(req.Limit))
	if err != nil {
		respondError(c, h.logger, "Failed to list logs", err)
		return
	}
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	c.JSON(http.StatusOK, dto.ListLogsResponse{Logs: logs})
}

// ListResults handles GET /api/v1/imports/:request_id/results
func (h *ImportHandler) ListResults(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	var req dto.ListResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	status := domain.ResultStatus(req.Status)
	switch status {
	case "", domain.ResultSuccess, domain.ResultError, domain.ResultPending:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of success, error, pending"})
		return
	}

	cursor, err := DecodeResultCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	size := pageSize(req.PageSize)
	results, err := h.store.ListResults(c.Request.Context(), storage.ResultFilter{
		RequestID: job.RequestID,
		Status:    status,
		PageSize:  size,
		Cursor:    cursor,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list results", err)
		return
	}

	resp := dto.ListResultsResponse{Results: results}
	if len(results) > size {
		resp.Results = results[:size]
		last := resp.Results[size-1]
		resp.NextCursor = EncodeResultCursor(&storage.ResultCursor{UpdatedAt: last.UpdatedAt, ItemKey: last.ItemKey})
	}
	if resp.Results == nil {
		resp.Results = []domain.Result{}
	}
	c.JSON(http.StatusOK, resp)
}

// CancelImport handles POST /api/v1/imports/:request_id/cancel
func (h *ImportHandler) CancelImport(c *gin.Context) {
	requestID, ok := requestIDParam(c)
	if !ok {
		return
	}

	job, err := h.runner.Cancel(c.Request.Context(), userID(c), requestID)
	if err != nil {
		respondError(c, h.logger, "Failed to cancel import", err)
		return
	}
	c.JSON(http.StatusOK, dto.ImportResponse{Job: job})
}

// ownedJob loads the job named in the path. Jobs of other tenants are
// reported as not found.
func (h *ImportHandler) ownedJob(c *gin.Context) (*domain.Job, bool) {
	requestID, ok := requestIDParam(c)
	if !ok {
		return nil, false
	}

	job, err := h.store.GetJob(c.Request.Context(), requestID)
	if err == nil && job.UserID != userID(c) {
		err = domain.ErrJobNotFound
	}
	if err != nil {
		respondError(c, h.logger, "Failed to get import", err)
		return nil, false
	}
	return job, true
}

func requestIDParam(c *gin.Context) (string, bool) {
	requestID := c.Param("request_id")
	if _, err := uuid.Parse(requestID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_id must be a valid UUID"})
		return "", false
	}
	return requestID, true
}
