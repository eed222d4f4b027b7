package domain

// Product is the canonical, platform independent form of a source item
type Product struct {
	Name              string            `json:"name"`
	Slug              string            `json:"slug,omitempty"`
	SKU               string            `json:"sku,omitempty"`
	RegularPrice      string            `json:"regular_price,omitempty"`
	SalePrice         string            `json:"sale_price,omitempty"`
	Description       string            `json:"description,omitempty"`
	ShortDescription  string            `json:"short_description,omitempty"`
	Images            []string          `json:"images,omitempty"`
	Categories        []string          `json:"categories,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Attributes        []Attribute       `json:"attributes,omitempty"`
	DefaultAttributes map[string]string `json:"default_attributes,omitempty"`
	Variations        []Variation       `json:"variations,omitempty"`
}

// Attribute is a product option such as size or color
type Attribute struct {
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	Variation bool     `json:"variation"`
}

// Variation is one purchasable variant of a variable product
type Variation struct {
	SKU          string            `json:"sku,omitempty"`
	RegularPrice string            `json:"regular_price,omitempty"`
	SalePrice    string            `json:"sale_price,omitempty"`
	Image        string            `json:"image,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Variable reports whether the product has more than one variant
func (p *Product) Variable() bool {
	return len(p.Attributes) > 0 && len(p.Variations) > 1
}
