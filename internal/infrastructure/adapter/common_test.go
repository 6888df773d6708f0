package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/fetch"
)

func newTestFetcher() *fetch.Client {
	return fetch.NewClient(fetch.Config{
		MaxRetries:  0,
		Timeout:     2 * time.Second,
		BackoffBase: time.Millisecond,
		BackoffMax:  time.Millisecond,
	})
}

func leflaive() *domain.WineForMatch {
	return &domain.WineForMatch{
		ID:       "wine-1",
		Producer: "Domaine Leflaive",
		Name:     "Puligny-Montrachet 1er Cru",
		Vintage:  "2020",
	}
}

func TestRegistry(t *testing.T) {
	reg := NewDefaultRegistry(newTestFetcher(), Config{})

	shopify, err := reg.Resolve("Shopify")
	require.NoError(t, err)
	assert.IsType(t, &ShopifyAdapter{}, shopify)

	woo, err := reg.Resolve(" woocommerce ")
	require.NoError(t, err)
	assert.IsType(t, &WooCommerceAdapter{}, woo)

	_, err = reg.Resolve("magento")
	assert.True(t, errors.Is(err, domain.ErrUnknownAdapter))

	assert.Equal(t, []string{"shopify", "woocommerce"}, reg.Types())
	reg.ClearCache()
}

type closingAdapter struct {
	domain.SourceAdapter
	closed int
}

func (c *closingAdapter) Close() { c.closed++ }

func TestRegistry_Close(t *testing.T) {
	reg := NewDefaultRegistry(newTestFetcher(), Config{})
	custom := &closingAdapter{}
	reg.Register("custom", custom)

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	assert.Equal(t, 2, custom.closed)

	// a closed storefront adapter still serves cached lookups
	shopify, err := reg.Resolve(domain.AdapterShopify)
	require.NoError(t, err)
	_, ok := shopify.(*ShopifyAdapter).offers.Get("missing")
	assert.False(t, ok)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"899", 899},
		{"899.00", 899},
		{"899,00", 899},
		{"1 299,00 kr", 1299},
		{"1.299,00", 1299},
		{"$1,299.00", 1299},
		{"1.299", 1299},
		{"899,-", 899},
		{"EUR 24,95", 24.95},
		{"1,299,000", 1299000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parsePrice(tt.in)
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 0.001)
		})
	}

	assert.Nil(t, parsePrice(""))
	assert.Nil(t, parsePrice("sold out"))
}

func TestPriceFromAny(t *testing.T) {
	require.NotNil(t, priceFromAny(899.0))
	assert.Equal(t, 899.0, *priceFromAny(899.0))
	assert.Equal(t, 12.5, *priceFromAny("12.50"))
	assert.Nil(t, priceFromAny(nil))
	assert.Nil(t, priceFromAny(true))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Leflaive & Co", cleanText("<b>Leflaive</b> &amp; Co"))
	assert.Equal(t, "Puligny 2020", cleanText("  Puligny \n\t 2020 "))
	assert.Equal(t, "", cleanText(""))
}

func TestSniffCurrency(t *testing.T) {
	assert.Equal(t, "EUR", sniffCurrency("EUR 24,95"))
	assert.Equal(t, "SEK", sniffCurrency("249 sek"))
	assert.Equal(t, "GBP", sniffCurrency("£19.99"))
	assert.Equal(t, "", sniffCurrency("249 kr"))
	assert.Equal(t, "", sniffCurrency("euros"))
}

func TestCandidateSet(t *testing.T) {
	set := newCandidateSet(2)

	assert.True(t, set.add("https://shop.test/products/a?_pos=1#top"))
	assert.False(t, set.add("https://shop.test/products/a?_pos=2"))
	assert.False(t, set.add("not a url"))
	assert.True(t, set.add("https://shop.test/products/b"))
	assert.False(t, set.add("https://shop.test/products/c"))

	assert.True(t, set.full())
	assert.Equal(t, []string{"https://shop.test/products/a", "https://shop.test/products/b"}, set.urls)
}

func TestRelevance(t *testing.T) {
	wine := leflaive()
	assert.Equal(t, 1.0, relevance(wine, "Domaine Leflaive Puligny-Montrachet 1er Cru 2020"))
	assert.Greater(t, relevance(wine, "leflaive puligny"), 0.0)
	assert.Equal(t, 0.0, relevance(wine, "Vietti Barolo"))
}

func TestPacerWaitsBeforeFirstFetch(t *testing.T) {
	source := &domain.PriceSource{ID: "s", RateLimitDelayMs: 60}
	p := newPacer(source)

	start := time.Now()
	require.NoError(t, p.wait(context.Background()))
	require.NoError(t, p.wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	none := newPacer(&domain.PriceSource{})
	start = time.Now()
	require.NoError(t, none.wait(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}
