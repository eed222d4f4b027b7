package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

func newSite(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(page, "{{base}}", srv.URL)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDiscoverer() *Discoverer {
	return New(5*time.Second, "test-agent", 5, logger.NewDiscard())
}

func TestDiscover_ShopifySitemapIndex(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>{{base}}/sitemap_pages_1.xml</loc></sitemap>
  <sitemap><loc>{{base}}/sitemap_products_1.xml</loc></sitemap>
</sitemapindex>`,
		"/sitemap_products_1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>{{base}}/products/blue-mug</loc></url>
  <url><loc>{{base}}/products/red-mug</loc></url>
  <url><loc>{{base}}/pages/about</loc></url>
</urlset>`,
		"/sitemap_pages_1.xml": `<?xml version="1.0"?><urlset><url><loc>{{base}}/pages/contact</loc></url></urlset>`,
		"/collections/all": `<html><body>
<a href="/products/blue-mug">Blue</a>
<a href="/collections/all/products/green-mug?variant=3">Green</a>
<a href="https://elsewhere.example.com/products/foreign">Foreign</a>
</body></html>`,
	})

	refs, err := newDiscoverer().Discover(context.Background(), domain.SourceShopify, srv.URL, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"blue-mug", "red-mug", "green-mug"}, refs)
}

func TestDiscover_WordPressShopPagination(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/shop/": `<html><head><link rel="next" href="{{base}}/shop/page/2/"></head><body>
<a href="{{base}}/product/linen-shirt/">Shirt</a>
<a href="{{base}}/category/clothing/">Clothing</a>
</body></html>`,
		"/shop/page/2/": `<html><body>
<a href="/product/wool-hat/?ref=list">Hat</a>
<a href="/product/linen-shirt/">Shirt again</a>
</body></html>`,
	})

	refs, err := newDiscoverer().Discover(context.Background(), domain.SourceWordPress, srv.URL, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/product/linen-shirt/",
		srv.URL + "/product/wool-hat/",
	}, refs)
}

func TestDiscover_RespectsLimit(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/sitemap.xml": `<urlset>
<url><loc>{{base}}/product-page/a</loc></url>
<url><loc>{{base}}/product-page/b</loc></url>
<url><loc>{{base}}/product-page/c</loc></url>
</urlset>`,
		"/store": `<html><body><a href="/product-page/d">D</a></body></html>`,
	})

	refs, err := newDiscoverer().Discover(context.Background(), domain.SourceWix, srv.URL, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/product-page/a", srv.URL + "/product-page/b"}, refs)
}

func TestDiscover_InvalidInput(t *testing.T) {
	d := newDiscoverer()

	_, err := d.Discover(context.Background(), domain.Source("etsy"), "https://shop.example.com", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidSource)

	_, err = d.Discover(context.Background(), domain.SourceWix, "not a url", 10)
	assert.Error(t, err)
}

func TestItemRef(t *testing.T) {
	tests := []struct {
		name   string
		src    domain.Source
		base   string
		raw    string
		want   string
		wantOK bool
	}{
		{"shopify url", domain.SourceShopify, "", "https://s.example.com/products/mug?v=1", "mug", true},
		{"shopify handle", domain.SourceShopify, "", "mug", "mug", true},
		{"absolute", domain.SourceWordPress, "", "https://wp.example.com/product/a/?x=1#top", "https://wp.example.com/product/a/", true},
		{"relative", domain.SourceWix, "https://wix.example.com", "/product-page/b", "https://wix.example.com/product-page/b", true},
		{"relative without base", domain.SourceWix, "", "/product-page/b", "", false},
		{"empty", domain.SourceWordPress, "", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ItemRef(tt.src, tt.base, tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsProductPath(t *testing.T) {
	assert.True(t, IsProductPath(domain.SourceShopify, "/products/mug"))
	assert.False(t, IsProductPath(domain.SourceShopify, "/product/mug"))
	assert.True(t, IsProductPath(domain.SourceWordPress, "/product/mug/"))
	assert.True(t, IsProductPath(domain.SourceWix, "/product-page/mug"))
	assert.True(t, IsProductPath(domain.SourceWix, "/store/products/mug"))
	assert.False(t, IsProductPath(domain.SourceWix, "/blog/mug"))
}
