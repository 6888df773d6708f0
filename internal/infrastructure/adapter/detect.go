package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/fetch"
)

var platformSignatures = []struct {
	adapterType string
	markers     []string
}{
	{domain.AdapterShopify, []string{"cdn.shopify.com", "shopify.theme", "shopify-section", "myshopify.com"}},
	{domain.AdapterWooCommerce, []string{"wp-content/plugins/woocommerce", `content="woocommerce`, "woocommerce", "wc-block-"}},
}

// DetectPlatform fetches the home page once and guesses the adapter type from
// well known markup signatures. Unrecognised sites report AdapterUnknown.
func DetectPlatform(ctx context.Context, fetcher Fetcher, baseURL string) (string, error) {
	resp, err := fetcher.Fetch(ctx, baseURL, fetch.Options{})
	if err != nil {
		return domain.AdapterUnknown, fmt.Errorf("detect %s: %w", baseURL, err)
	}
	return detectFromHTML(resp.Text), nil
}

func detectFromHTML(body string) string {
	lower := strings.ToLower(body)
	for _, sig := range platformSignatures {
		for _, marker := range sig.markers {
			if strings.Contains(lower, marker) {
				return sig.adapterType
			}
		}
	}
	return domain.AdapterUnknown
}
