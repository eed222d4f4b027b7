// Package discovery enumerates product references on a source storefront
// from its sitemaps and listing pages.
package discovery

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/extract"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// candidates are the pages searched for product links, in order
var candidates = map[domain.Source][]string{
	domain.SourceShopify:   {"/sitemap.xml", "/sitemap_index.xml", "/collections/all", "/products"},
	domain.SourceWordPress: {"/sitemap_index.xml", "/product-sitemap.xml", "/sitemap.xml", "/shop/"},
	domain.SourceWix:       {"/sitemap.xml", "/sitemap-index.xml", "/store", "/shop", "/products"},
}

// IsProductPath reports whether path looks like a product page of src
func IsProductPath(src domain.Source, path string) bool {
	path = strings.ToLower(path)
	switch src {
	case domain.SourceShopify:
		return strings.Contains(path, "/products/")
	case domain.SourceWordPress:
		return strings.Contains(path, "/product/")
	case domain.SourceWix:
		return strings.Contains(path, "/product-page/") ||
			strings.Contains(path, "/store/products/") ||
			strings.Contains(path, "/product/")
	default:
		return false
	}
}

// ItemRef normalizes a user supplied link into the item reference stored on
// a queue message. Shopify items are referenced by handle, other sources by
// absolute URL without query or fragment.
func ItemRef(src domain.Source, baseURL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if src == domain.SourceShopify {
		h := extract.ShopifyHandle(raw)
		return h, h != ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		base, err := url.Parse(baseURL)
		if err != nil || !base.IsAbs() {
			return "", false
		}
		ref = base.ResolveReference(ref)
	}
	ref.RawQuery = ""
	ref.Fragment = ""
	return ref.String(), true
}

// Discoverer crawls storefront sitemaps and listing pages
type Discoverer struct {
	http     *resty.Client
	maxPages int
	logger   *logger.Logger
}

// New creates a discoverer. maxPages bounds the sitemap children and
// paginated listing pages visited per candidate.
func New(timeout time.Duration, userAgent string, maxPages int, log *logger.Logger) *Discoverer {
	client := resty.New().SetTimeout(timeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	if maxPages <= 0 {
		maxPages = 20
	}
	return &Discoverer{http: client, maxPages: maxPages, logger: log.Component("discovery")}
}

// Discover returns up to limit distinct item references found on the store
// at baseURL. Unreachable candidates are skipped.
func (d *Discoverer) Discover(ctx context.Context, src domain.Source, baseURL string, limit int) ([]string, error) {
	paths, ok := candidates[src]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSource, src)
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	c := &collector{src: src, limit: limit, seen: make(map[string]bool)}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.full() {
			break
		}
		d.visit(ctx, c, base.ResolveReference(&url.URL{Path: p}).String())
	}

	d.logger.Info("Discovery finished",
		slog.String("source", src.String()),
		slog.String("base_url", baseURL),
		slog.Int("found", len(c.refs)),
	)
	return c.refs, nil
}

func (d *Discoverer) visit(ctx context.Context, c *collector, pageURL string) {
	body, err := d.fetch(ctx, pageURL)
	if err != nil {
		d.logger.Debug("Skipping discovery candidate", slog.String("url", pageURL), slog.Any("error", err))
		return
	}

	if isXML(body) {
		d.visitSitemap(ctx, c, body)
		return
	}

	// listing pages may paginate through rel="next"
	for i := 0; i < d.maxPages && !c.full(); i++ {
		next := c.addLinks(pageURL, body)
		if next == "" {
			return
		}
		pageURL = next
		if body, err = d.fetch(ctx, pageURL); err != nil {
			return
		}
	}
}

func (d *Discoverer) visitSitemap(ctx context.Context, c *collector, body []byte) {
	sm, err := parseSitemap(body)
	if err != nil {
		d.logger.Debug("Invalid sitemap", slog.Any("error", err))
		return
	}
	c.addLocs(sm.locs())

	for i, child := range sm.children() {
		if i >= d.maxPages || c.full() {
			return
		}
		childBody, err := d.fetch(ctx, child)
		if err != nil {
			continue
		}
		if nested, err := parseSitemap(childBody); err == nil {
			c.addLocs(nested.locs())
		}
	}
}

func (d *Discoverer) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	resp, err := d.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// collector dedupes references and stops at the limit
type collector struct {
	src   domain.Source
	limit int
	seen  map[string]bool
	refs  []string
}

func (c *collector) full() bool {
	return c.limit > 0 && len(c.refs) >= c.limit
}

func (c *collector) add(link string) {
	u, err := url.Parse(link)
	if err != nil || !IsProductPath(c.src, u.Path) {
		return
	}
	ref, ok := ItemRef(c.src, "", link)
	if !ok || c.full() {
		return
	}
	key := domain.ItemMessage{Source: c.src, ItemRef: ref}.ItemKey()
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.refs = append(c.refs, ref)
}

func (c *collector) addLocs(locs []string) {
	for _, loc := range locs {
		c.add(loc)
	}
}

// addLinks collects product anchors of an HTML page and returns the
// absolute URL of its next page, if any.
func (c *collector) addLinks(pageURL string, body []byte) string {
	page, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var next string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.A || n.DataAtom == atom.Link) {
			href, rel := attr(n, "href"), attr(n, "rel")
			if ref, err := page.Parse(strings.TrimSpace(href)); err == nil && href != "" {
				if strings.EqualFold(rel, "next") && next == "" {
					next = ref.String()
				} else if n.DataAtom == atom.A && ref.Host == page.Host {
					c.add(ref.String())
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if next == pageURL {
		return ""
	}
	return next
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// sitemap covers both <urlset> and <sitemapindex> documents
type sitemap struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

func parseSitemap(body []byte) (*sitemap, error) {
	var sm sitemap
	if err := xml.Unmarshal(body, &sm); err != nil {
		return nil, fmt.Errorf("decode sitemap: %w", err)
	}
	return &sm, nil
}

func (s *sitemap) locs() []string {
	out := make([]string, 0, len(s.URLs))
	for _, u := range s.URLs {
		out = append(out, strings.TrimSpace(u.Loc))
	}
	return out
}

// children returns nested sitemaps, product sitemaps first
func (s *sitemap) children() []string {
	var products, rest []string
	for _, sm := range s.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		if strings.Contains(strings.ToLower(loc), "product") {
			products = append(products, loc)
		} else {
			rest = append(rest, loc)
		}
	}
	return append(products, rest...)
}

func isXML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("<?xml")) ||
		bytes.HasPrefix(trimmed, []byte("<urlset")) ||
		bytes.HasPrefix(trimmed, []byte("<sitemapindex"))
}
