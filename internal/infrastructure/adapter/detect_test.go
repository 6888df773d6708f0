package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winemarket/backend/internal/domain"
)

func TestDetectFromHTML(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"shopify cdn", `<link href="//cdn.shopify.com/s/files/theme.css">`, domain.AdapterShopify},
		{"shopify section", `<div id="shopify-section-header">`, domain.AdapterShopify},
		{"woocommerce plugin", `<link href="/wp-content/plugins/woocommerce/assets/style.css">`, domain.AdapterWooCommerce},
		{"woocommerce generator", `<meta name="generator" content="WooCommerce 8.2">`, domain.AdapterWooCommerce},
		{"woocommerce blocks", `<div class="wc-block-grid">`, domain.AdapterWooCommerce},
		{"plain site", `<html><body>Hello</body></html>`, domain.AdapterUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectFromHTML(tt.body))
		})
	}
}

func TestDetectPlatform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<script>Shopify.theme = {"name":"Dawn"};</script>`))
	}))
	defer srv.Close()

	got, err := DetectPlatform(context.Background(), newTestFetcher(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, domain.AdapterShopify, got)

	srv.Close()
	got, err = DetectPlatform(context.Background(), newTestFetcher(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, domain.AdapterUnknown, got)
}
