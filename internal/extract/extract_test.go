package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	err   error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string][]byte), calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return page, nil
}

type countingExtractor struct {
	Shopify
	normalized int
}

func (c *countingExtractor) Normalize(msg domain.ItemMessage, raw []byte) (*domain.Product, error) {
	c.normalized++
	return c.Shopify.Normalize(msg, raw)
}

const mugJSON = `{"product":{"title":"Blue Mug","handle":"blue-mug","body_html":"<p>Mug</p>","product_type":"Kitchen","tags":"ceramic, blue","options":[{"name":"Title","values":["Default Title"]}],"variants":[{"sku":"MUG-1","price":"12.00","compare_at_price":null,"option1":"Default Title"}],"images":[{"src":"https://cdn.shopify.com/mug.jpg?v=1"}]}}`

func shopifyMsg() domain.ItemMessage {
	return domain.ItemMessage{
		UserID:    "tenant-1",
		RequestID: "req-1",
		Source:    domain.SourceShopify,
		ItemRef:   "blue-mug",
		BaseURL:   "https://shop.example.com",
	}
}

type serviceFixture struct {
	svc     *Service
	fetcher *fakeFetcher
	ext     *countingExtractor
	cache   *storage.Memory
	now     time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		fetcher: newFakeFetcher(),
		ext:     &countingExtractor{},
		cache:   storage.NewMemory(),
		now:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.fetcher, f.cache, 24*time.Hour, logger.NewDiscard())
	f.svc.extractors[domain.SourceShopify] = f.ext
	f.svc.now = func() time.Time { return f.now }
	f.fetcher.pages["https://shop.example.com/products/blue-mug.json"] = []byte(mugJSON)
	return f
}

func TestService_FetchAndNormalize(t *testing.T) {
	f := newServiceFixture(t)

	p, err := f.svc.FetchAndNormalize(context.Background(), shopifyMsg())
	require.NoError(t, err)
	assert.Equal(t, "Blue Mug", p.Name)
	assert.Equal(t, "MUG-1", p.SKU)
	assert.Equal(t, 1, f.ext.normalized)

	entry, err := f.cache.GetCache(context.Background(), "https://shop.example.com/products/blue-mug.json")
	require.NoError(t, err)
	assert.Equal(t, contentHash([]byte(mugJSON)), entry.ContentHash)
}

func TestService_FreshCacheSkipsFetch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	p, err := f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)
	assert.Equal(t, "Blue Mug", p.Name)
	assert.Equal(t, 1, f.fetcher.calls["https://shop.example.com/products/blue-mug.json"])
	assert.Equal(t, 1, f.ext.normalized)
}

func TestService_StaleCacheWithSameHashSkipsNormalize(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	_, err = f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)

	assert.Equal(t, 2, f.fetcher.calls["https://shop.example.com/products/blue-mug.json"])
	assert.Equal(t, 1, f.ext.normalized)

	entry, err := f.cache.GetCache(ctx, "https://shop.example.com/products/blue-mug.json")
	require.NoError(t, err)
	assert.Equal(t, f.now, entry.UpdatedAt)
}

func TestService_StaleCacheWithNewContentRenormalizes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	f.fetcher.pages["https://shop.example.com/products/blue-mug.json"] = []byte(`{"product":{"title":"Blue Mug v2","handle":"blue-mug","variants":[{"sku":"MUG-1","price":"14.00"}]}}`)

	p, err := f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)
	assert.Equal(t, "Blue Mug v2", p.Name)
	assert.Equal(t, 2, f.ext.normalized)
}

func TestService_FailuresAreFetchFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *serviceFixture)
		msg   domain.ItemMessage
	}{
		{
			name:  "fetch error",
			setup: func(f *serviceFixture) { f.fetcher.err = errors.New("connection refused") },
			msg:   shopifyMsg(),
		},
		{
			name: "unparseable document",
			setup: func(f *serviceFixture) {
				f.fetcher.pages["https://shop.example.com/products/blue-mug.json"] = []byte("<html>")
			},
			msg: shopifyMsg(),
		},
		{
			name:  "missing store url",
			setup: func(*serviceFixture) {},
			msg: func() domain.ItemMessage {
				m := shopifyMsg()
				m.BaseURL = ""
				return m
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			tt.setup(f)

			_, err := f.svc.FetchAndNormalize(context.Background(), tt.msg)
			require.Error(t, err)
			assert.Equal(t, domain.ReasonFetchFailed, domain.ReasonOf(err))
		})
	}
}

func TestService_SweepCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.FetchAndNormalize(ctx, shopifyMsg())
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)
	n, err := f.svc.SweepCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.cache.GetCache(ctx, "https://shop.example.com/products/blue-mug.json")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}
