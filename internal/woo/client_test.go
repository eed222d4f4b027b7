package woo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

func testConfig() Config {
	return Config{
		Timeout:    5 * time.Second,
		RetryCount: 2,
		RetryWait:  time.Millisecond,
		AuthMode:   AuthQuery,
	}
}

func newTestClient(t *testing.T, cfg Config, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dst := &domain.Destination{UserID: "tenant-1", StoreURL: srv.URL + "/", ConsumerKey: "ck_1", ConsumerSecret: "cs_1"}
	return NewFactory(cfg, logger.NewDiscard()).For(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_QueryAuthAndPrefix(t *testing.T) {
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		assert.Equal(t, "ck_1", r.URL.Query().Get("consumer_key"))
		assert.Equal(t, "cs_1", r.URL.Query().Get("consumer_secret"))
		assert.Equal(t, "SKU-1", r.URL.Query().Get("sku"))
		writeJSON(w, http.StatusOK, []Product{{ID: 7, SKU: "SKU-1"}})
	})

	p, err := client.FindProductBySKU(context.Background(), "SKU-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(7), p.ID)
}

func TestClient_BasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.AuthMode = AuthBasic
	client := newTestClient(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck_1", user)
		assert.Equal(t, "cs_1", pass)
		assert.Empty(t, r.URL.Query().Get("consumer_key"))
		writeJSON(w, http.StatusOK, []Product{})
	})

	p, err := client.FindProductBySlug(context.Background(), "blue-mug")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestClient_ReadsRetryOnServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, []Term{{ID: 3, Name: "Mugs &amp; Cups"}})
	})

	term, err := client.FindTerm(context.Background(), Categories, "mugs & cups")
	require.NoError(t, err)
	require.NotNil(t, term)
	assert.Equal(t, int64(3), term.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ReadsGiveUpAfterRetryCount(t *testing.T) {
	var calls int32
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FindProductBySKU(context.Background(), "SKU-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_CreateIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CreateProduct(context.Background(), &ProductPayload{Name: "Mug", Type: "simple"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CreateVariationIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateVariation(context.Background(), 7, &VariationPayload{RegularPrice: "12.00"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ConflictCarriesResourceID(t *testing.T) {
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":    "product_invalid_sku",
			"message": "Invalid or duplicated SKU.",
			"data":    map[string]interface{}{"status": 400, "resource_id": 99},
		})
	})

	_, err := client.CreateProduct(context.Background(), &ProductPayload{Name: "Mug", SKU: "SKU-1", Type: "simple"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int64(99), apiErr.ResourceID)

	reason, ok := apiErr.Conflict()
	assert.True(t, ok)
	assert.Equal(t, domain.ReasonInvalidSKU, reason)
	assert.False(t, apiErr.Unauthorized())
}

func TestAPIError_Conflict(t *testing.T) {
	tests := []struct {
		code   string
		reason domain.Reason
		ok     bool
	}{
		{"product_invalid_sku", domain.ReasonInvalidSKU, true},
		{"woocommerce_rest_product_not_created_duplicate_sku", domain.ReasonInvalidSKU, true},
		{"product_invalid_slug", domain.ReasonInvalidSlug, true},
		{"woocommerce_rest_cannot_create", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			reason, ok := (&APIError{StatusCode: 400, Code: tt.code}).Conflict()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestClient_EnsureTerms(t *testing.T) {
	var created []string
	client := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("search") == "Kitchen":
			writeJSON(w, http.StatusOK, []Term{{ID: 1, Name: "kitchen"}})
		case r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, []Term{})
		case r.Method == http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			created = append(created, body["name"])
			if body["name"] == "Sale" {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"code": "term_exists",
					"data": map[string]interface{}{"resource_id": 8},
				})
				return
			}
			writeJSON(w, http.StatusCreated, Term{ID: 5, Name: body["name"]})
		}
	})

	refs, err := client.EnsureTerms(context.Background(), Tags, []string{"Kitchen", "Gifts", "gifts", " ", "Sale"})
	require.NoError(t, err)
	assert.Equal(t, []TermRef{{ID: 1}, {ID: 5}, {ID: 8}}, refs)
	assert.Equal(t, []string{"Gifts", "Sale"}, created)
}
