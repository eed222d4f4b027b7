package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

var shopifyHandlePattern = regexp.MustCompile(`/products/([^/?#]+)`)

// ShopifyHandle extracts the product handle from a product URL or returns
// the trimmed input when it already is a handle.
func ShopifyHandle(ref string) string {
	ref = strings.TrimSpace(ref)
	if m := shopifyHandlePattern.FindStringSubmatch(ref); m != nil {
		if h, err := url.PathUnescape(m[1]); err == nil {
			return strings.TrimSuffix(h, ".json")
		}
		return m[1]
	}
	return strings.Trim(ref, "/")
}

// Shopify reads the storefront's public product JSON
type Shopify struct{}

func (Shopify) SourceURL(msg domain.ItemMessage) (string, error) {
	if msg.BaseURL == "" {
		return "", fmt.Errorf("shopify item %q has no store url", msg.ItemRef)
	}
	handle := ShopifyHandle(msg.ItemRef)
	if handle == "" {
		return "", fmt.Errorf("shopify item %q has no handle", msg.ItemRef)
	}
	return strings.TrimRight(msg.BaseURL, "/") + "/products/" + url.PathEscape(handle) + ".json", nil
}

type shopifyDocument struct {
	Product *shopifyProduct `json:"product"`
}

type shopifyProduct struct {
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	BodyHTML    string `json:"body_html"`
	ProductType string `json:"product_type"`
	Tags        any    `json:"tags"`
	Options     []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"options"`
	Variants []shopifyVariant `json:"variants"`
	Images   []struct {
		Src string `json:"src"`
	} `json:"images"`
}

type shopifyVariant struct {
	SKU            string `json:"sku"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compare_at_price"`
	Option1        string `json:"option1"`
	Option2        string `json:"option2"`
	Option3        string `json:"option3"`
	FeaturedImage  *struct {
		Src string `json:"src"`
	} `json:"featured_image"`
}

func (v shopifyVariant) options() []string {
	return []string{v.Option1, v.Option2, v.Option3}
}

func (Shopify) Normalize(msg domain.ItemMessage, raw []byte) (*domain.Product, error) {
	var doc shopifyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode shopify product: %w", err)
	}
	if doc.Product == nil {
		return nil, fmt.Errorf("shopify document has no product")
	}
	sp := doc.Product

	p := &domain.Product{
		Name:        strings.TrimSpace(sp.Title),
		Slug:        sp.Handle,
		Description: sp.BodyHTML,
		Tags:        shopifyTags(sp.Tags),
	}
	if p.Slug == "" {
		p.Slug = ShopifyHandle(msg.ItemRef)
	}
	if sp.ProductType != "" {
		p.Categories = []string{sp.ProductType}
	}

	for _, im := range sp.Images {
		if src := cleanImageURL(im.Src); src != "" {
			p.Images = append(p.Images, src)
		}
	}

	// Shopify models option-less products as a single "Title" option
	var optionNames []string
	for _, opt := range sp.Options {
		name := strings.TrimSpace(opt.Name)
		if name == "" || (name == "Title" && len(opt.Values) == 1 && opt.Values[0] == "Default Title") {
			optionNames = append(optionNames, "")
			continue
		}
		var values []string
		for _, v := range opt.Values {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		optionNames = append(optionNames, name)
		p.Attributes = append(p.Attributes, domain.Attribute{Name: name, Options: values, Variation: true})
	}

	for _, v := range sp.Variants {
		regular, sale := shopifyPrices(v)
		variation := domain.Variation{
			SKU:          v.SKU,
			RegularPrice: regular,
			SalePrice:    sale,
			Attributes:   map[string]string{},
		}
		if v.FeaturedImage != nil {
			variation.Image = cleanImageURL(v.FeaturedImage.Src)
		}
		for i, val := range v.options() {
			if i < len(optionNames) && optionNames[i] != "" && val != "" {
				variation.Attributes[optionNames[i]] = val
			}
		}
		p.Variations = append(p.Variations, variation)
	}

	if len(p.Variations) == 0 {
		return p, nil
	}
	if p.Variable() {
		if first := p.Variations[0]; len(first.Attributes) > 0 {
			p.DefaultAttributes = first.Attributes
		}
		return p, nil
	}

	first := p.Variations[0]
	p.SKU = first.SKU
	p.RegularPrice = first.RegularPrice
	p.SalePrice = first.SalePrice
	p.Variations = nil
	for i := range p.Attributes {
		p.Attributes[i].Variation = false
	}
	return p, nil
}

// shopifyPrices maps a variant's price pair. A compare-at price above the
// price marks the variant as on sale.
func shopifyPrices(v shopifyVariant) (regular, sale string) {
	price, okPrice := parsePrice(v.Price)
	compare, okCompare := parsePrice(v.CompareAtPrice)
	if !okPrice {
		return "", ""
	}
	if okCompare && compare > price {
		return strings.TrimSpace(v.CompareAtPrice), strings.TrimSpace(v.Price)
	}
	return strings.TrimSpace(v.Price), ""
}

func shopifyTags(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	var tags []string
	for _, tag := range raw {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

func formatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func cleanImageURL(src string) string {
	src = strings.TrimSpace(src)
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	return src
}
