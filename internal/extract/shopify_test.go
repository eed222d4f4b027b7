package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

func TestShopifyHandle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"blue-mug", "blue-mug"},
		{"https://shop.example.com/products/blue-mug", "blue-mug"},
		{"https://shop.example.com/collections/all/products/blue-mug?variant=1", "blue-mug"},
		{"/products/blue-mug.json", "blue-mug"},
		{"  /blue-mug/ ", "blue-mug"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ShopifyHandle(tt.in))
		})
	}
}

func TestShopify_SourceURL(t *testing.T) {
	url, err := Shopify{}.SourceURL(domain.ItemMessage{
		ItemRef: "https://shop.example.com/products/blue-mug",
		BaseURL: "https://shop.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/products/blue-mug.json", url)
}

func TestShopify_NormalizeSimple(t *testing.T) {
	p, err := Shopify{}.Normalize(shopifyMsg(), []byte(mugJSON))
	require.NoError(t, err)

	assert.Equal(t, "Blue Mug", p.Name)
	assert.Equal(t, "blue-mug", p.Slug)
	assert.Equal(t, "MUG-1", p.SKU)
	assert.Equal(t, "12.00", p.RegularPrice)
	assert.Empty(t, p.SalePrice)
	assert.Equal(t, []string{"Kitchen"}, p.Categories)
	assert.Equal(t, []string{"ceramic", "blue"}, p.Tags)
	assert.Equal(t, []string{"https://cdn.shopify.com/mug.jpg"}, p.Images)
	assert.False(t, p.Variable())
	assert.Empty(t, p.Variations)
	assert.Empty(t, p.Attributes)
	assert.Empty(t, p.DefaultAttributes)
}

func TestShopify_NormalizeVariable(t *testing.T) {
	raw := `{"product":{
		"title":"Tee","handle":"tee","tags":["cotton"],
		"options":[{"name":"Size","values":["S","M"]},{"name":"Color","values":["Red"]}],
		"variants":[
			{"sku":"TEE-S","price":"10.00","compare_at_price":"15.00","option1":"S","option2":"Red","featured_image":{"src":"//cdn.shopify.com/s.jpg?v=2"}},
			{"sku":"TEE-M","price":"10.00","compare_at_price":"8.00","option1":"M","option2":"Red"}
		]}}`

	p, err := Shopify{}.Normalize(shopifyMsg(), []byte(raw))
	require.NoError(t, err)

	require.True(t, p.Variable())
	assert.Empty(t, p.SKU)
	assert.Equal(t, []string{"cotton"}, p.Tags)
	require.Len(t, p.Attributes, 2)
	assert.Equal(t, "Size", p.Attributes[0].Name)
	assert.Equal(t, []string{"S", "M"}, p.Attributes[0].Options)
	assert.Equal(t, map[string]string{"Size": "S", "Color": "Red"}, p.DefaultAttributes)

	require.Len(t, p.Variations, 2)
	assert.Equal(t, "15.00", p.Variations[0].RegularPrice)
	assert.Equal(t, "10.00", p.Variations[0].SalePrice)
	assert.Equal(t, "https://cdn.shopify.com/s.jpg", p.Variations[0].Image)
	assert.Equal(t, "10.00", p.Variations[1].RegularPrice)
	assert.Empty(t, p.Variations[1].SalePrice)
}

func TestShopify_NormalizeRejectsMissingProduct(t *testing.T) {
	_, err := Shopify{}.Normalize(shopifyMsg(), []byte(`{"products":[]}`))
	assert.Error(t, err)
}
