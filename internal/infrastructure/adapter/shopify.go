package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/cache"
	"github.com/winemarket/backend/internal/infrastructure/fetch"
	"github.com/winemarket/backend/internal/textmatch"
)

const (
	shopifyMaxCandidates     = 30
	shopifySuggestLimit      = 10
	shopifySitemapMaxURLs    = 200
	shopifySitemapMaxSitemap = 5
)

var _ domain.SourceAdapter = (*ShopifyAdapter)(nil)

// ShopifyAdapter discovers products through the storefront predictive search
// endpoint and reads offers from the product JSON document.
type ShopifyAdapter struct {
	fetcher Fetcher
	cfg     Config
	offers  *cache.MemoryCache[*domain.NormalizedOffer]
	sitemap *sitemapCrawler
	logger  *zap.Logger
}

// NewShopifyAdapter creates the storefront strategy
func NewShopifyAdapter(fetcher Fetcher, cfg Config) *ShopifyAdapter {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.Named("adapter").With(zap.String("adapter", domain.AdapterShopify))
	return &ShopifyAdapter{
		fetcher: fetcher,
		cfg:     cfg,
		offers:  cache.NewMemoryCache[*domain.NormalizedOffer](cfg.OfferCacheTTL),
		sitemap: &sitemapCrawler{fetcher: fetcher, cfg: cfg, logger: logger},
		logger:  logger,
	}
}

type suggestResponse struct {
	Resources struct {
		Results struct {
			Products []struct {
				URL    string `json:"url"`
				Handle string `json:"handle"`
				Title  string `json:"title"`
			} `json:"products"`
		} `json:"results"`
	} `json:"resources"`
}

type productDocument struct {
	Product struct {
		Title    string `json:"title"`
		Vendor   string `json:"vendor"`
		Variants []struct {
			Title     string `json:"title"`
			Option1   string `json:"option1"`
			Price     any    `json:"price"`
			Available *bool  `json:"available"`
		} `json:"variants"`
	} `json:"product"`
}

// SearchCandidates runs the query pack against predictive search and falls
// back to the sitemap when nothing is found.
func (a *ShopifyAdapter) SearchCandidates(ctx context.Context, wine *domain.WineForMatch, source *domain.PriceSource) ([]string, error) {
	base := strings.TrimRight(source.BaseURL, "/")
	found := newCandidateSet(shopifyMaxCandidates)

	var lastErr error
	for _, query := range textmatch.QueryPack(wine) {
		if found.full() {
			break
		}
		if err := sleepCtx(ctx, a.cfg.SearchDelay); err != nil {
			return found.urls, err
		}

		resp, err := a.fetcher.Fetch(ctx, suggestURL(base, query), fetch.Options{})
		if err != nil {
			if ctx.Err() != nil {
				return found.urls, ctx.Err()
			}
			a.logger.Warn("search request failed", zap.String("source", source.Name), zap.String("query", query), zap.Error(err))
			lastErr = err
			continue
		}
		if !resp.OK {
			a.logger.Debug("search returned non-ok status", zap.String("source", source.Name), zap.Int("status", resp.Status))
			continue
		}

		var parsed suggestResponse
		if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
			a.logger.Debug("search response is not json", zap.String("source", source.Name), zap.Error(err))
			continue
		}
		for _, p := range parsed.Resources.Results.Products {
			href := p.URL
			if href == "" && p.Handle != "" {
				href = "/products/" + p.Handle
			}
			if href == "" {
				continue
			}
			if abs, err := resolveURL(base+"/", href); err == nil {
				found.add(abs)
			}
		}
	}

	if found.len() > 0 {
		return found.urls, nil
	}

	urls, err := a.sitemapCandidates(ctx, wine, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lastErr != nil {
			return nil, fmt.Errorf("search %s: %w", source.Name, lastErr)
		}
		a.logger.Info("sitemap fallback unavailable", zap.String("source", source.Name), zap.Error(err))
		return nil, nil
	}
	return urls, nil
}

// FetchOffer serves primed offers from the per-source cache, otherwise extracts
// the offer from the product page, waiting the source delay before each request.
func (a *ShopifyAdapter) FetchOffer(ctx context.Context, pdpURL string, source *domain.PriceSource) (*domain.NormalizedOffer, error) {
	key := offerCacheKey(source, pdpURL)
	if offer, ok := a.offers.Get(key); ok {
		return offer, nil
	}

	offer, err := a.fetchOfferLive(ctx, pdpURL, source, newPacer(source))
	if err != nil {
		return nil, err
	}
	if offer != nil {
		a.offers.Set(key, offer, 0)
	}
	return offer, nil
}

// ClearCache drops primed offers
func (a *ShopifyAdapter) ClearCache() {
	a.offers.Clear()
}

// Close stops the offer cache sweep
func (a *ShopifyAdapter) Close() {
	a.offers.Close()
}

// fetchOfferLive tries the product JSON, then the HTML page. pace runs before
// each of the two requests.
func (a *ShopifyAdapter) fetchOfferLive(ctx context.Context, pdpURL string, source *domain.PriceSource, pace *pacer) (*domain.NormalizedOffer, error) {
	canonical, ok := canonicalURL(pdpURL)
	if !ok {
		return nil, fmt.Errorf("invalid product url %q", pdpURL)
	}
	currency := a.cfg.currencyFor(source)

	if err := pace.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := a.fetcher.FetchCached(ctx, strings.TrimRight(canonical, "/")+".json", fetch.Options{})
	if err == nil && resp.OK {
		if offer := parseProductDocument(resp.Text, canonical, currency); offer != nil {
			return offer, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err := pace.wait(ctx); err != nil {
		return nil, err
	}
	page, err := a.fetcher.FetchCached(ctx, canonical, fetch.Options{})
	if err != nil {
		return nil, err
	}
	if !page.OK {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Text))
	if err != nil {
		return nil, nil
	}
	if p, ok := extractJSONLDProduct(doc); ok {
		return p.toOffer(canonical, currency), nil
	}
	if p, ok := extractMetaProduct(doc); ok {
		return p.toOffer(canonical, currency), nil
	}
	return nil, nil
}

// sitemapCandidates collects product URLs from the sitemap, primes the offer
// cache for each and orders them by how well the primed title fits the wine.
func (a *ShopifyAdapter) sitemapCandidates(ctx context.Context, wine *domain.WineForMatch, source *domain.PriceSource) ([]string, error) {
	sitemapURL := source.SitemapURL
	if sitemapURL == "" {
		sitemapURL = strings.TrimRight(source.BaseURL, "/") + "/sitemap.xml"
	}

	urls, err := a.sitemap.crawl(ctx, sitemapURL, isStorefrontProductURL, sitemapLimits{
		maxURLs:     shopifySitemapMaxURLs,
		maxChildren: shopifySitemapMaxSitemap,
	})
	if err != nil {
		return nil, err
	}

	titles := a.prime(ctx, urls, source)
	scores := make(map[string]float64, len(urls))
	for _, u := range urls {
		scores[u] = relevance(wine, titles[u])
	}
	sort.SliceStable(urls, func(i, j int) bool { return scores[urls[i]] > scores[urls[j]] })

	a.logger.Info("sitemap fallback",
		zap.String("source", source.Name),
		zap.Int("urls", len(urls)),
		zap.Int("primed", len(titles)),
	)
	return urls, nil
}

// prime fetches every URL once, pacing by the source delay, and caches the offers
func (a *ShopifyAdapter) prime(ctx context.Context, urls []string, source *domain.PriceSource) map[string]string {
	titles := make(map[string]string, len(urls))
	pace := newPacer(source)

	for _, u := range urls {
		key := offerCacheKey(source, u)
		if offer, ok := a.offers.Get(key); ok {
			titles[u] = offer.Title
			continue
		}
		offer, err := a.fetchOfferLive(ctx, u, source, pace)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			a.logger.Debug("priming failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if offer == nil {
			continue
		}
		a.offers.Set(key, offer, 0)
		titles[u] = offer.Title
	}
	return titles
}

func suggestURL(base, query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("resources[type]", "product")
	params.Set("resources[limit]", fmt.Sprint(shopifySuggestLimit))
	return base + "/search/suggest.json?" + params.Encode()
}

func isStorefrontProductURL(u string) bool {
	return strings.Contains(u, "/products/")
}

func offerCacheKey(source *domain.PriceSource, pdpURL string) string {
	if canonical, ok := canonicalURL(pdpURL); ok {
		pdpURL = canonical
	}
	return source.ID + "|" + pdpURL
}

// parseProductDocument reads the storefront product JSON. The first variant
// that is not explicitly unavailable supplies price, availability and size;
// documents that omit availability are treated as purchasable.
func parseProductDocument(body, pdpURL, currency string) *domain.NormalizedOffer {
	var doc productDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil
	}
	title := cleanText(doc.Product.Title)
	if title == "" {
		return nil
	}

	offer := &domain.NormalizedOffer{
		Currency: currency,
		Title:    title,
		PDPURL:   pdpURL,
		Vendor:   cleanText(doc.Product.Vendor),
		Size:     textmatch.ExtractSize(title),
	}
	if len(doc.Product.Variants) == 0 {
		return offer
	}

	chosen := doc.Product.Variants[0]
	for _, v := range doc.Product.Variants {
		if v.Available == nil || *v.Available {
			chosen = v
			break
		}
	}
	offer.Price = priceFromAny(chosen.Price)
	offer.Available = chosen.Available == nil || *chosen.Available
	if size := textmatch.ExtractSize(chosen.Title + " " + chosen.Option1); size != "" {
		offer.Size = size
	}
	return offer
}
