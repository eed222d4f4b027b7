package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

const wooPage = `<!doctype html>
<html><head>
<title>Linen Shirt</title>
<link rel="canonical" href="https://wp.example.com/product/linen-shirt/">
<meta property="og:title" content="Linen Shirt - Shop">
<meta property="article:tag" content="summer">
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
 {"@type":"WebPage","name":"Linen Shirt - Shop"},
 {"@type":"Product","name":"Linen Shirt","sku":"LS-1","description":"Breathable",
  "image":[{"@type":"ImageObject","url":"https://wp.example.com/wp-content/uploads/shirt.jpg"}],
  "category":"Clothing > Shirts",
  "offers":[{"@type":"Offer","price":"39.90","priceCurrency":"USD"}]}
]}
</script>
</head><body><h1>Linen Shirt</h1></body></html>`

const wixPage = `<html><head>
<meta property="og:title" content="Clay Vase">
<meta property="og:image" content="https://static.wixstatic.com/media/abc.jpg/v1/fill/w_500,h_500/abc.jpg">
<meta property="product:price:amount" content="55">
</head><body><h1>Clay Vase</h1></body></html>`

func TestWordPress_NormalizeJSONLD(t *testing.T) {
	msg := domain.ItemMessage{Source: domain.SourceWordPress, ItemRef: "https://wp.example.com/product/linen-shirt/?ref=x"}

	p, err := WordPress{}.Normalize(msg, []byte(wooPage))
	require.NoError(t, err)

	assert.Equal(t, "Linen Shirt", p.Name)
	assert.Equal(t, "linen-shirt", p.Slug)
	assert.Equal(t, "LS-1", p.SKU)
	assert.Equal(t, "39.90", p.RegularPrice)
	assert.Equal(t, "Breathable", p.Description)
	assert.Equal(t, []string{"https://wp.example.com/wp-content/uploads/shirt.jpg"}, p.Images)
	assert.Equal(t, []string{"Clothing", "Shirts"}, p.Categories)
	assert.Equal(t, []string{"summer"}, p.Tags)
}

func TestWix_NormalizeOpenGraphFallback(t *testing.T) {
	msg := domain.ItemMessage{Source: domain.SourceWix, ItemRef: "https://wix.example.com/product-page/clay-vase"}

	p, err := Wix{}.Normalize(msg, []byte(wixPage))
	require.NoError(t, err)

	assert.Equal(t, "Clay Vase", p.Name)
	assert.Equal(t, "clay-vase", p.Slug)
	assert.Equal(t, "55", p.RegularPrice)
	assert.Equal(t, []string{"https://static.wixstatic.com/media/abc.jpg"}, p.Images)
}

func TestHTML_SourceURL(t *testing.T) {
	tests := []struct {
		name    string
		msg     domain.ItemMessage
		want    string
		wantErr bool
	}{
		{
			name: "absolute",
			msg:  domain.ItemMessage{ItemRef: "https://wp.example.com/product/a/"},
			want: "https://wp.example.com/product/a/",
		},
		{
			name: "relative to base",
			msg:  domain.ItemMessage{ItemRef: "/product-page/vase", BaseURL: "https://wix.example.com"},
			want: "https://wix.example.com/product-page/vase",
		},
		{
			name:    "relative without base",
			msg:     domain.ItemMessage{ItemRef: "/product/a"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WordPress{}.SourceURL(tt.msg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
