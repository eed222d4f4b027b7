package dto

import "github.com/cuongbtq/catalog-migrator/internal/domain"

type CreateImportRequest struct {
	Source     string   `json:"source" binding:"required"`
	Mode       string   `json:"mode"`
	BaseURL    string   `json:"base_url"`
	Links      []string `json:"links"`
	Cap        int      `json:"cap" binding:"gte=0"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	Priority   bool     `json:"priority"`
}

type DiscoverRequest struct {
	Source  string `json:"source" binding:"required"`
	BaseURL string `json:"base_url" binding:"required"`
	Cap     int    `json:"cap" binding:"gte=0"`
}

type DiscoverResponse struct {
	Source string   `json:"source"`
	Count  int      `json:"count"`
	Links  []string `json:"links"`
}

type ListImportsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListImportsResponse struct {
	Imports    []domain.Job `json:"imports"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type ImportResponse struct {
	Job    *domain.Job          `json:"job"`
	Counts *domain.ResultCounts `json:"counts,omitempty"`
}

type ListLogsRequest struct {
	Limit int `form:"limit"`
}

type ListLogsResponse struct {
	Logs []domain.LogEntry `json:"logs"`
}

type ListResultsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListResultsResponse struct {
	Results    []domain.Result `json:"results"`
	NextCursor string          `json:"next_cursor,omitempty"`
}
