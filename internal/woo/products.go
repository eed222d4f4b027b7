package woo

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Product is the subset of a destination product the migrator reads back
type Product struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	SKU  string `json:"sku"`
	Type string `json:"type"`
}

type Image struct {
	Src string `json:"src"`
}

type TermRef struct {
	ID int64 `json:"id"`
}

type Attribute struct {
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	Visible   bool     `json:"visible"`
	Variation bool     `json:"variation"`
}

type AttributeValue struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

// ProductPayload is the create/update body of a product
type ProductPayload struct {
	Name              string           `json:"name"`
	Slug              string           `json:"slug,omitempty"`
	SKU               string           `json:"sku,omitempty"`
	Type              string           `json:"type"`
	Status            string           `json:"status,omitempty"`
	RegularPrice      string           `json:"regular_price,omitempty"`
	SalePrice         string           `json:"sale_price,omitempty"`
	Description       string           `json:"description,omitempty"`
	ShortDescription  string           `json:"short_description,omitempty"`
	Images            []Image          `json:"images,omitempty"`
	Categories        []TermRef        `json:"categories,omitempty"`
	Tags              []TermRef        `json:"tags,omitempty"`
	Attributes        []Attribute      `json:"attributes,omitempty"`
	DefaultAttributes []AttributeValue `json:"default_attributes,omitempty"`
}

// VariationPayload is the create body of a product variation
type VariationPayload struct {
	SKU          string           `json:"sku,omitempty"`
	RegularPrice string           `json:"regular_price,omitempty"`
	SalePrice    string           `json:"sale_price,omitempty"`
	Image        *Image           `json:"image,omitempty"`
	Attributes   []AttributeValue `json:"attributes,omitempty"`
}

// FindProductBySKU returns the product with the exact SKU, or nil
func (c *Client) FindProductBySKU(ctx context.Context, sku string) (*Product, error) {
	if sku == "" {
		return nil, nil
	}
	var found []Product
	if err := c.do(ctx, http.MethodGet, "/products", map[string]string{"sku": sku}, nil, &found); err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].SKU == sku {
			return &found[i], nil
		}
	}
	return nil, nil
}

// FindProductBySlug returns the product with the slug, or nil
func (c *Client) FindProductBySlug(ctx context.Context, slug string) (*Product, error) {
	if slug == "" {
		return nil, nil
	}
	var found []Product
	if err := c.do(ctx, http.MethodGet, "/products", map[string]string{"slug": slug}, nil, &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// CreateProduct creates a product. It is never retried at the HTTP layer.
func (c *Client) CreateProduct(ctx context.Context, p *ProductPayload) (*Product, error) {
	var out Product
	if err := c.do(WithoutRetry(ctx), http.MethodPost, "/products", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProduct replaces the fields of product id. It is never retried at the HTTP layer.
func (c *Client) UpdateProduct(ctx context.Context, id int64, p *ProductPayload) (*Product, error) {
	var out Product
	path := "/products/" + strconv.FormatInt(id, 10)
	if err := c.do(WithoutRetry(ctx), http.MethodPut, path, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateVariation adds a variation to a variable product. It is never retried at the HTTP layer.
func (c *Client) CreateVariation(ctx context.Context, productID int64, v *VariationPayload) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	path := fmt.Sprintf("/products/%d/variations", productID)
	if err := c.do(WithoutRetry(ctx), http.MethodPost, path, nil, v, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}
