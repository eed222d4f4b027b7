// Package woo is a client for the destination store's WooCommerce REST API.
package woo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

const (
	AuthQuery = "query"
	AuthBasic = "basic"
)

// Config controls transport behaviour shared by every tenant client
type Config struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	AuthMode   string
	APIPrefix  string
	UserAgent  string
}

// Factory builds per-tenant clients with shared settings
type Factory struct {
	cfg    Config
	logger *logger.Logger
}

// NewFactory creates a client factory
func NewFactory(cfg Config, log *logger.Logger) *Factory {
	return &Factory{cfg: cfg, logger: log.Component("woo")}
}

// For returns a client authenticated as the tenant's destination
func (f *Factory) For(dst *domain.Destination) *Client {
	return New(f.cfg, dst, f.logger)
}

// Client talks to one destination store
type Client struct {
	http   *resty.Client
	logger *logger.Logger
}

type noRetryKey struct{}

// WithoutRetry marks requests made with ctx as non-retryable at the HTTP layer
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func retryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// New creates a client for dst
func New(cfg Config, dst *domain.Destination, log *logger.Logger) *Client {
	prefix := strings.Trim(cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "wp-json/wc/v3"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(dst.StoreURL, "/") + "/" + prefix).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait * time.Duration(cfg.RetryCount+1)).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			attempt := 1
			if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
				attempt = resp.Request.Attempt
			}
			return cfg.RetryWait * time.Duration(attempt), nil
		}).
		AddRetryCondition(shouldRetry)

	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	if cfg.AuthMode == AuthBasic {
		client.SetBasicAuth(dst.ConsumerKey, dst.ConsumerSecret)
	} else {
		client.SetQueryParams(map[string]string{
			"consumer_key":    dst.ConsumerKey,
			"consumer_secret": dst.ConsumerSecret,
		})
	}

	return &Client{
		http:   client,
		logger: log.With(slog.String("store", dst.StoreURL)),
	}
}

func shouldRetry(resp *resty.Response, err error) bool {
	if resp != nil && resp.Request != nil && retryDisabled(resp.Request.Context()) {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// APIError is a non-2xx response from the destination
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	ResourceID int64
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("destination returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("destination returned %d", e.StatusCode)
}

// Conflict reports whether the error is a duplicate SKU or slug rejection
func (e *APIError) Conflict() (domain.Reason, bool) {
	code := strings.ToLower(e.Code)
	switch {
	case strings.Contains(code, "sku"):
		return domain.ReasonInvalidSKU, true
	case strings.Contains(code, "slug"):
		return domain.ReasonInvalidSlug, true
	default:
		return "", false
	}
}

// Unauthorized reports whether the credentials were rejected
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		ResourceID int64 `json:"resource_id"`
	} `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		var eb errorBody
		if json.Unmarshal(resp.Body(), &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
			apiErr.ResourceID = eb.Data.ResourceID
		}
		c.logger.Debug("Destination request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", apiErr.StatusCode),
			slog.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
