package adapter

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/fetch"
	"github.com/winemarket/backend/internal/textmatch"
)

const (
	wooMaxCandidates     = 12
	wooSitemapMaxURLs    = 500
	wooSitemapMaxSitemap = 5
	wooTimeout           = 12 * time.Second
	queryPlaceholder     = "{query}"
	defaultSearchPath    = "/?s={query}&post_type=product"
)

var defaultProductPathPrefixes = []string{"/product/", "/produkt/", "/produit/", "/prodotto/", "/producto/"}

var _ domain.SourceAdapter = (*WooCommerceAdapter)(nil)

// WooCommerceAdapter discovers products through the site search page and reads
// offers from structured data or the shop's HTML markup.
type WooCommerceAdapter struct {
	fetcher Fetcher
	cfg     Config
	sitemap *sitemapCrawler
	logger  *zap.Logger
}

// NewWooCommerceAdapter creates the generic CMS strategy
func NewWooCommerceAdapter(fetcher Fetcher, cfg Config) *WooCommerceAdapter {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.Named("adapter").With(zap.String("adapter", domain.AdapterWooCommerce))
	return &WooCommerceAdapter{
		fetcher: fetcher,
		cfg:     cfg,
		sitemap: &sitemapCrawler{fetcher: fetcher, cfg: cfg, logger: logger},
		logger:  logger,
	}
}

// SearchCandidates stops after the first query that yields product links.
// A search that redirects straight to a product page counts as a single hit.
func (a *WooCommerceAdapter) SearchCandidates(ctx context.Context, wine *domain.WineForMatch, source *domain.PriceSource) ([]string, error) {
	prefixes := productPathPrefixes(source)

	var lastErr error
	for _, query := range textmatch.QueryPack(wine) {
		if err := sleepCtx(ctx, a.cfg.SearchDelay); err != nil {
			return nil, err
		}

		searchURL := buildSearchURL(source, query)
		resp, err := a.fetcher.Fetch(ctx, searchURL, fetch.Options{Timeout: wooTimeout})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("search request failed", zap.String("source", source.Name), zap.String("query", query), zap.Error(err))
			lastErr = err
			continue
		}
		if !resp.OK {
			a.logger.Debug("search returned non-ok status", zap.String("source", source.Name), zap.Int("status", resp.Status))
			continue
		}

		if isProductPath(resp.URL, prefixes) && sameHost(resp.URL, source.BaseURL) {
			if canonical, ok := canonicalURL(resp.URL); ok {
				return []string{canonical}, nil
			}
		}

		found := a.resultLinks(resp, source, prefixes)
		if len(found) > 0 {
			return found, nil
		}
	}

	urls, err := a.sitemapCandidates(ctx, wine, source, prefixes)
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

// FetchOffer waits the source delay, then reads JSON-LD or falls back to markup
func (a *WooCommerceAdapter) FetchOffer(ctx context.Context, pdpURL string, source *domain.PriceSource) (*domain.NormalizedOffer, error) {
	if err := newPacer(source).wait(ctx); err != nil {
		return nil, err
	}

	canonical, ok := canonicalURL(pdpURL)
	if !ok {
		return nil, fmt.Errorf("invalid product url %q", pdpURL)
	}

	resp, err := a.fetcher.FetchCached(ctx, canonical, fetch.Options{Timeout: wooTimeout})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return nil, nil
	}

	currency := a.cfg.currencyFor(source)
	if p, ok := extractJSONLDProduct(doc); ok {
		if p.Currency == "" {
			if sniffed := sniffCurrency(priceText(doc)); sniffed != "" {
				p.Currency = sniffed
			}
		}
		return p.toOffer(canonical, currency), nil
	}

	if p, ok := extractWooMarkup(doc); ok {
		return p.toOffer(canonical, currency), nil
	}
	if p, ok := extractMetaProduct(doc); ok {
		return p.toOffer(canonical, currency), nil
	}
	return nil, nil
}

func (a *WooCommerceAdapter) resultLinks(resp *fetch.Response, source *domain.PriceSource, prefixes []string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return nil
	}

	found := newCandidateSet(wooMaxCandidates)
	add := func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		abs, err := resolveURL(resp.URL, href)
		if err != nil || !sameHost(abs, source.BaseURL) || !isProductPath(abs, prefixes) {
			return
		}
		found.add(abs)
	}

	doc.Find("ul.products li.product a[href], .products .product a.woocommerce-LoopProduct-link").Each(add)
	if found.len() == 0 {
		doc.Find("main a[href], #content a[href], body a[href]").Each(add)
	}
	return found.urls
}

// sitemapCandidates ranks product URLs by overlap between slug tokens and the wine
func (a *WooCommerceAdapter) sitemapCandidates(ctx context.Context, wine *domain.WineForMatch, source *domain.PriceSource, prefixes []string) ([]string, error) {
	keep := func(u string) bool { return isProductPath(u, prefixes) }
	limits := sitemapLimits{maxURLs: wooSitemapMaxURLs, maxChildren: wooSitemapMaxSitemap}

	var urls []string
	var err error
	for _, sitemapURL := range wooSitemapURLs(source) {
		urls, err = a.sitemap.crawl(ctx, sitemapURL, keep, limits)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	type scored struct {
		url   string
		score float64
	}
	ranked := make([]scored, 0, len(urls))
	for _, u := range urls {
		if s := relevance(wine, slugText(u)); s > 0 {
			ranked = append(ranked, scored{url: u, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, 0, wooMaxCandidates)
	for _, r := range ranked {
		if len(out) == wooMaxCandidates {
			break
		}
		out = append(out, r.url)
	}
	return out, nil
}

func wooSitemapURLs(source *domain.PriceSource) []string {
	if source.SitemapURL != "" {
		return []string{source.SitemapURL}
	}
	base := strings.TrimRight(source.BaseURL, "/")
	return []string{base + "/product-sitemap.xml", base + "/sitemap_index.xml", base + "/sitemap.xml"}
}

func buildSearchURL(source *domain.PriceSource, query string) string {
	tmpl := source.SearchURLTemplate
	if tmpl == "" {
		tmpl = strings.TrimRight(source.BaseURL, "/") + defaultSearchPath
	}
	return strings.ReplaceAll(tmpl, queryPlaceholder, url.QueryEscape(query))
}

func productPathPrefixes(source *domain.PriceSource) []string {
	if custom := source.ConfigString(configKeyProductPrefix); custom != "" {
		return []string{"/" + strings.Trim(custom, "/") + "/"}
	}
	return defaultProductPathPrefixes
}

func isProductPath(raw string, prefixes []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, prefix := range prefixes {
		// the bare listing path itself is not a product
		if strings.Contains(p, prefix) && !strings.HasSuffix(p, prefix) {
			return true
		}
	}
	return false
}

func slugText(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.NewReplacer("-", " ", "_", " ").Replace(path.Base(strings.TrimRight(u.Path, "/")))
}

func priceText(doc *goquery.Document) string {
	return doc.Find(".summary .price, p.price, span.price").First().Text()
}

// extractWooMarkup reads the standard single-product template. A sale price in
// <ins> wins over the regular price.
func extractWooMarkup(doc *goquery.Document) (*productData, bool) {
	p := &productData{}

	p.Title = cleanText(doc.Find("h1.product_title, .product_title").First().Text())
	if p.Title == "" {
		return nil, false
	}

	priceBlock := doc.Find(".summary .price, p.price, span.price").First()
	amount := priceBlock.Find("ins .woocommerce-Price-amount, ins .amount").First()
	if amount.Length() == 0 {
		amount = priceBlock.Find(".woocommerce-Price-amount, .amount").First()
	}
	if amount.Length() == 0 {
		amount = doc.Find(".woocommerce-Price-amount").First()
	}
	text := amount.Text()
	p.Price = parsePrice(strings.ReplaceAll(text, amount.Find(".woocommerce-Price-currencySymbol").Text(), ""))
	if p.Price == nil {
		return nil, false
	}
	p.Currency = sniffCurrency(priceBlock.Text())

	switch {
	case doc.Find(".stock.out-of-stock, .outofstock").Length() > 0:
		p.HasAvailability, p.Available = true, false
	case doc.Find(".stock.in-stock, button.single_add_to_cart_button, form.cart").Length() > 0:
		p.HasAvailability, p.Available = true, true
	}

	p.Size = textmatch.ExtractSize(doc.Find(".woocommerce-product-attributes, .shop_attributes").Text())
	return p, true
}
