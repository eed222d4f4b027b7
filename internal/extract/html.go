package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// WordPress reads WooCommerce-powered storefront pages
type WordPress struct{}

func (WordPress) SourceURL(msg domain.ItemMessage) (string, error) {
	return absoluteURL(msg)
}

func (WordPress) Normalize(msg domain.ItemMessage, raw []byte) (*domain.Product, error) {
	return normalizePage(msg, raw)
}

// Wix reads Wix Stores product pages
type Wix struct{}

func (Wix) SourceURL(msg domain.ItemMessage) (string, error) {
	return absoluteURL(msg)
}

func (Wix) Normalize(msg domain.ItemMessage, raw []byte) (*domain.Product, error) {
	p, err := normalizePage(msg, raw)
	if err != nil {
		return nil, err
	}
	// Wix serves scaled image variants under /v1/fill/...; the original file
	// is the path prefix before it.
	for i, src := range p.Images {
		if j := strings.Index(src, "/v1/"); j > 0 && strings.Contains(src, "static.wixstatic.com") {
			p.Images[i] = src[:j]
		}
	}
	return p, nil
}

func absoluteURL(msg domain.ItemMessage) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(msg.ItemRef))
	if err != nil {
		return "", fmt.Errorf("invalid item url %q: %w", msg.ItemRef, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(msg.BaseURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("item %q is relative and has no valid store url", msg.ItemRef)
	}
	return base.ResolveReference(ref).String(), nil
}

// pageData collects product hints found while walking a page
type pageData struct {
	ldProducts []map[string]any
	meta       map[string]string
	canonical  string
	h1         string
}

func normalizePage(msg domain.ItemMessage, raw []byte) (*domain.Product, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	data := &pageData{meta: make(map[string]string)}
	data.walk(doc)

	p := &domain.Product{}
	if len(data.ldProducts) > 0 {
		applyLD(p, data.ldProducts[0])
	}

	if p.Name == "" {
		p.Name = firstNonEmpty(data.meta["og:title"], data.h1)
	}
	if p.Description == "" {
		p.Description = data.meta["og:description"]
	}
	if len(p.Images) == 0 && data.meta["og:image"] != "" {
		p.Images = []string{data.meta["og:image"]}
	}
	if p.RegularPrice == "" {
		price := firstNonEmpty(data.meta["product:price:amount"], data.meta["og:price:amount"])
		if _, ok := parsePrice(price); ok {
			p.RegularPrice = price
		}
	}
	if tag := data.meta["article:tag"]; tag != "" {
		p.Tags = append(p.Tags, tag)
	}

	p.Slug = slugFromURL(firstNonEmpty(data.canonical, msg.ItemRef))
	return p, nil
}

func (d *pageData) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script:
			if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
				d.addLD(n.FirstChild.Data)
			}
		case atom.Meta:
			key := firstNonEmpty(attr(n, "property"), attr(n, "name"))
			if key != "" {
				if _, seen := d.meta[key]; !seen {
					d.meta[key] = attr(n, "content")
				}
			}
		case atom.Link:
			if strings.EqualFold(attr(n, "rel"), "canonical") {
				d.canonical = attr(n, "href")
			}
		case atom.H1:
			if d.h1 == "" {
				d.h1 = strings.TrimSpace(textContent(n))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.walk(c)
	}
}

func (d *pageData) addLD(text string) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return
	}
	d.collectProducts(v)
}

func (d *pageData) collectProducts(v any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			d.collectProducts(item)
		}
	case map[string]any:
		if isProductType(t["@type"]) {
			d.ldProducts = append(d.ldProducts, t)
		}
		if graph, ok := t["@graph"]; ok {
			d.collectProducts(graph)
		}
	}
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Product" || t == "ProductGroup"
	case []any:
		for _, item := range t {
			if isProductType(item) {
				return true
			}
		}
	}
	return false
}

func applyLD(p *domain.Product, ld map[string]any) {
	p.Name = strings.TrimSpace(str(ld["name"]))
	p.SKU = strings.TrimSpace(str(ld["sku"]))
	p.Description = str(ld["description"])
	p.Images = images(ld["image"])

	if cat := str(ld["category"]); cat != "" {
		for _, part := range strings.Split(cat, ">") {
			if part = strings.TrimSpace(part); part != "" {
				p.Categories = append(p.Categories, part)
			}
		}
	}

	offer := ld["offers"]
	if list, ok := offer.([]any); ok && len(list) > 0 {
		offer = list[0]
	}
	if o, ok := offer.(map[string]any); ok {
		price := firstNonEmpty(str(o["price"]), str(o["lowPrice"]))
		if _, ok := parsePrice(price); ok {
			p.RegularPrice = strings.TrimSpace(price)
		}
	}
}

func images(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		out = append(out, t)
	case []any:
		for _, item := range t {
			out = append(out, images(item)...)
		}
	case map[string]any:
		if u := firstNonEmpty(str(t["url"]), str(t["contentUrl"])); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatPrice(t)
	default:
		return ""
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

func slugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
