package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemMessage_ItemKey(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{
			name: "shopify handle",
			ref:  "  Classic-Mug ",
			want: "classic-mug",
		},
		{
			name: "url host is case-insensitive",
			ref:  "HTTPS://Shop.Example.COM/product/mug/",
			want: "https://shop.example.com/product/mug/",
		},
		{
			name: "url path keeps its case",
			ref:  "https://wp.example.com/?p=12&Variant=Blue",
			want: "https://wp.example.com/?p=12&Variant=Blue",
		},
		{
			name: "wix product page",
			ref:  "https://Store.Wixsite.com/shop/product-page/Red-Mug",
			want: "https://store.wixsite.com/shop/product-page/Red-Mug",
		},
		{
			name: "bare host",
			ref:  "HTTPS://Example.com",
			want: "https://example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ItemMessage{ItemRef: tt.ref}.ItemKey())
		})
	}
}

func TestItemMessage_ItemKeyDistinguishesPathCase(t *testing.T) {
	upper := ItemMessage{ItemRef: "https://shop.example/products/Mug"}
	lower := ItemMessage{ItemRef: "https://shop.example/products/mug"}
	assert.NotEqual(t, upper.ItemKey(), lower.ItemKey())
}
