package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winemarket/backend/internal/domain"
)

func wooSource(base string) *domain.PriceSource {
	return &domain.PriceSource{
		ID:          "src-woo",
		Name:        "Test Vinhandel",
		BaseURL:     base,
		AdapterType: domain.AdapterWooCommerce,
		IsActive:    true,
		Config:      map[string]any{"currency": "NOK"},
	}
}

const wooProductPage = `<html><body><div class="product"><div class="summary entry-summary">
<h1 class="product_title entry-title">Domaine Leflaive Puligny-Montrachet 1er Cru 2020</h1>
<p class="price"><del><span class="woocommerce-Price-amount amount"><bdi>1&nbsp;099,00&nbsp;<span class="woocommerce-Price-currencySymbol">kr</span></bdi></span></del>
<ins><span class="woocommerce-Price-amount amount"><bdi>899,00&nbsp;<span class="woocommerce-Price-currencySymbol">kr</span></bdi></span></ins></p>
<p class="stock in-stock">12 på lager</p>
</div>
<table class="woocommerce-product-attributes shop_attributes"><tr><th>Volum</th><td>75 cl</td></tr></table>
</div></body></html>`

func TestWooCommerceAdapter_SearchCandidates(t *testing.T) {
	var mu sync.Mutex
	var queries []string

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("s"))
		mu.Unlock()
		assert.Equal(t, "product", r.URL.Query().Get("post_type"))
		fmt.Fprintf(w, `<html><body><ul class="products">
<li class="product"><a href="/product/leflaive-puligny-montrachet-2020/?ref=search" class="woocommerce-LoopProduct-link">A</a></li>
<li class="product"><a href="%s/product/leflaive-bourgogne-blanc/">B</a></li>
<li class="product"><a href="https://elsewhere.test/product/x/">C</a></li>
</ul><a href="/product-category/hvitvin/">White</a></body></html>`, srv.URL)
	}))
	defer srv.Close()

	a := NewWooCommerceAdapter(newTestFetcher(), Config{})
	got, err := a.SearchCandidates(context.Background(), leflaive(), wooSource(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/product/leflaive-puligny-montrachet-2020/",
		srv.URL + "/product/leflaive-bourgogne-blanc/",
	}, got)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Domaine Leflaive Puligny-Montrachet 1er Cru 2020"}, queries, "stops after the first productive query")
}

func TestWooCommerceAdapter_SearchRedirectToProduct(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") != "" {
			http.Redirect(w, r, "/product/leflaive-puligny/", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(wooProductPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewWooCommerceAdapter(newTestFetcher(), Config{})
	got, err := a.SearchCandidates(context.Background(), leflaive(), wooSource(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/product/leflaive-puligny/"}, got)
}

func TestWooCommerceAdapter_SearchURLTemplate(t *testing.T) {
	var mu sync.Mutex
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if seen == "" {
			seen = r.URL.Path + "?" + r.URL.RawQuery
		}
		mu.Unlock()
		_, _ = w.Write([]byte(`<a href="/vin/leflaive-puligny">x</a>`))
	}))
	defer srv.Close()

	source := wooSource(srv.URL)
	source.SearchURLTemplate = srv.URL + "/sok?q={query}"
	source.Config["productPathPrefix"] = "vin"

	a := NewWooCommerceAdapter(newTestFetcher(), Config{})
	got, err := a.SearchCandidates(context.Background(), &domain.WineForMatch{Name: "Rocalhas & Co"}, source)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/vin/leflaive-puligny"}, got)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/sok?q=Rocalhas+%26+Co", seen)
}

func TestWooCommerceAdapter_SitemapFallback(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Ingen produkter funnet</p></body></html>`))
	})
	mux.HandleFunc("/product-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset>
<url><loc>%[1]s/product/vietti-barolo-castiglione/</loc></url>
<url><loc>%[1]s/product/leflaive-bourgogne-blanc/</loc></url>
<url><loc>%[1]s/product/domaine-leflaive-puligny-montrachet-1er-cru-2020/</loc></url>
</urlset>`, srv.URL)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	a := NewWooCommerceAdapter(newTestFetcher(), Config{})
	got, err := a.SearchCandidates(context.Background(), leflaive(), wooSource(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/product/domaine-leflaive-puligny-montrachet-1er-cru-2020/",
		srv.URL + "/product/leflaive-bourgogne-blanc/",
	}, got)
}

func TestWooCommerceAdapter_FetchOffer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/product/leflaive/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(wooProductPage))
	})
	mux.HandleFunc("/product/eur/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="summary"><h1 class="product_title">Vietti Barolo 2019</h1>
<p class="price"><span class="woocommerce-Price-amount amount">EUR 45,00</span></p>
<p class="stock out-of-stock">Utsolgt</p></div>`))
	})
	mux.HandleFunc("/product/jsonld/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<script type="application/ld+json">{"@type":"Product","name":"Rocalhas 2021",
"offers":{"price":"210","availability":"https://schema.org/InStock"}}</script>
<h1 class="product_title">Ignored</h1><p class="price"><span class="woocommerce-Price-amount">210,00 SEK</span></p>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewWooCommerceAdapter(newTestFetcher(), Config{})
	source := wooSource(srv.URL)

	t.Run("markup with sale price", func(t *testing.T) {
		offer, err := a.FetchOffer(context.Background(), srv.URL+"/product/leflaive/", source)
		require.NoError(t, err)
		require.NotNil(t, offer)
		assert.Equal(t, "Domaine Leflaive Puligny-Montrachet 1er Cru 2020", offer.Title)
		require.NotNil(t, offer.Price)
		assert.Equal(t, 899.0, *offer.Price)
		assert.Equal(t, "NOK", offer.Currency)
		assert.True(t, offer.Available)
		assert.Equal(t, "75cl", offer.Size)
	})

	t.Run("currency sniffed from price text", func(t *testing.T) {
		offer, err := a.FetchOffer(context.Background(), srv.URL+"/product/eur/", source)
		require.NoError(t, err)
		require.NotNil(t, offer)
		assert.Equal(t, "EUR", offer.Currency)
		assert.Equal(t, 45.0, *offer.Price)
		assert.False(t, offer.Available)
	})

	t.Run("json-ld wins and sniffs missing currency", func(t *testing.T) {
		offer, err := a.FetchOffer(context.Background(), srv.URL+"/product/jsonld/", source)
		require.NoError(t, err)
		require.NotNil(t, offer)
		assert.Equal(t, "Rocalhas 2021", offer.Title)
		assert.Equal(t, "SEK", offer.Currency)
		assert.True(t, offer.Available)
	})

	t.Run("missing page", func(t *testing.T) {
		offer, err := a.FetchOffer(context.Background(), srv.URL+"/product/gone/", source)
		require.NoError(t, err)
		assert.Nil(t, offer)
	})
}

func TestWooCommerceAdapter_FetchOfferHonorsDelay(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	source := wooSource(srv.URL)
	source.RateLimitDelayMs = 80

	a := NewWooCommerceAdapter(newTestFetcher(), Config{})
	start := time.Now()
	_, err := a.FetchOffer(context.Background(), srv.URL+"/product/x/", source)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestIsProductPath(t *testing.T) {
	prefixes := defaultProductPathPrefixes
	assert.True(t, isProductPath("https://shop.test/product/barolo/", prefixes))
	assert.True(t, isProductPath("https://shop.test/en/produkt/barolo", prefixes))
	assert.False(t, isProductPath("https://shop.test/product/", prefixes))
	assert.False(t, isProductPath("https://shop.test/product-category/red/", prefixes))
	assert.False(t, isProductPath("https://shop.test/?s=barolo", prefixes))
}

func TestBuildSearchURL(t *testing.T) {
	source := &domain.PriceSource{BaseURL: "https://shop.test/"}
	assert.Equal(t, "https://shop.test/?s=Vietti+Barolo&post_type=product", buildSearchURL(source, "Vietti Barolo"))
}
