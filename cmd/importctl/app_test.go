package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/api/dto"
	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/runner"
)

type recorded struct {
	method string
	path   string
	query  string
	user   string
	auth   string
	body   []byte
}

func newTestServer(t *testing.T, status int, resp interface{}) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.user = r.Header.Get(userHeader)
		rec.auth = r.Header.Get("Authorization")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		rec.body = buf.Bytes()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MIGRATOR_RUNNER_TOKEN", "")
	t.Setenv("RUNNER_TOKEN", "")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{"importctl"}, args...))
	return out.String(), err
}

func sampleJob() *domain.Job {
	return &domain.Job{
		RequestID:    "6f1c2a7e-0000-4000-8000-000000000001",
		UserID:       "tenant-a",
		Source:       domain.SourceShopify,
		Total:        3,
		Processed:    2,
		SuccessCount: 1,
		ErrorCount:   1,
		Status:       domain.JobStatusRunning,
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueSendsRequest(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusAccepted, dto.ImportResponse{Job: sampleJob()})

	out, err := runApp(t, "--server", srv.URL, "--user", "tenant-a",
		"enqueue", "--source", "shopify", "--link", "https://a.example/products/x",
		"--link", "https://a.example/products/y", "--cap", "5", "--tag", "sale", "--priority")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/imports", rec.path)
	assert.Equal(t, "tenant-a", rec.user)

	var sent dto.CreateImportRequest
	require.NoError(t, json.Unmarshal(rec.body, &sent))
	assert.Equal(t, "shopify", sent.Source)
	assert.Equal(t, []string{"https://a.example/products/x", "https://a.example/products/y"}, sent.Links)
	assert.Equal(t, 5, sent.Cap)
	assert.Equal(t, []string{"sale"}, sent.Tags)
	assert.True(t, sent.Priority)

	assert.Contains(t, out, "6f1c2a7e-0000-4000-8000-000000000001")
	assert.Contains(t, out, "2/3")
}

func TestTenantCommandsRequireUser(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, dto.ListImportsResponse{})
	t.Setenv("MIGRATOR_USER_ID", "")

	_, err := runApp(t, "--server", srv.URL, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}

func TestListPassesPagination(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, dto.ListImportsResponse{
		Imports:    []domain.Job{*sampleJob()},
		NextCursor: "next-page",
	})

	out, err := runApp(t, "--server", srv.URL, "--user", "tenant-a",
		"list", "--status", "running", "--page-size", "5")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/imports", rec.path)
	assert.Contains(t, rec.query, "status=running")
	assert.Contains(t, rec.query, "page_size=5")
	assert.NotContains(t, rec.query, "cursor=")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "next cursor: next-page")
}

func TestAPIErrorIsReported(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusConflict, map[string]string{"error": "job already finished"})

	_, err := runApp(t, "--server", srv.URL, "--user", "tenant-a",
		"cancel", "--request-id", "6f1c2a7e-0000-4000-8000-000000000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "job already finished")
}

func TestTickUsesRunnerToken(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, runner.Report{
		OK:        true,
		Processed: 1,
		Details: []runner.Detail{{
			Source:    domain.SourceWix,
			Queue:     "import_wix",
			MessageID: 7,
			Attempt:   1,
			Item:      "https://w.example/product-page/a",
			Status:    runner.StatusSuccess,
		}},
	})

	_, err := runApp(t, "--server", srv.URL, "tick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--token")

	out, err := runApp(t, "--server", srv.URL, "--token", "secret", "tick", "--source", "wix")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/runner/wix", rec.path)
	assert.Equal(t, "Bearer secret", rec.auth)
	assert.Contains(t, out, "ok=true processed=1")

	_, err = runApp(t, "--server", srv.URL, "--token", "secret", "tick", "--source", "magento")
	require.Error(t, err)
}

func TestStatsJSON(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, runner.Stats{
		Lanes:   []runner.LaneStats{{Source: domain.SourceShopify, Queue: "import_shopify", Ready: 4, Total: 4}},
		Backlog: 4,
		Request: &domain.ResultCounts{Success: 1, Pending: 3},
	})

	out, err := runApp(t, "--server", srv.URL, "--token", "secret", "--json",
		"stats", "--request-id", "6f1c2a7e-0000-4000-8000-000000000001")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/queue/stats", rec.path)
	assert.Contains(t, rec.query, "request_id=6f1c2a7e-0000-4000-8000-000000000001")

	var got runner.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, int64(4), got.Backlog)
	require.NotNil(t, got.Request)
	assert.Equal(t, 3, got.Request.Pending)
}

func TestDestinationSet(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, dto.DestinationResponse{
		StoreURL:       "https://shop.example",
		ConsumerKey:    "ck_1",
		ConsumerSecret: "****cdef",
	})

	out, err := runApp(t, "--server", srv.URL, "--user", "tenant-a",
		"destination", "set", "--store-url", "https://shop.example",
		"--consumer-key", "ck_1", "--consumer-secret", "cs_0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/api/v1/destination", rec.path)

	var sent dto.PutDestinationRequest
	require.NoError(t, json.Unmarshal(rec.body, &sent))
	assert.Equal(t, "cs_0123456789abcdef", sent.ConsumerSecret)
	assert.Contains(t, out, "****cdef")
	assert.NotContains(t, out, "cs_0123456789abcdef")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
