// Package adapter implements the per-platform strategies that discover candidate
// product pages on third-party shops and extract offers from them.
package adapter

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/fetch"
	"github.com/winemarket/backend/internal/textmatch"
)

const (
	DefaultSearchDelay     = 250 * time.Millisecond
	DefaultSitemapTimeout  = 15 * time.Second
	DefaultOfferCacheTTL   = 30 * time.Minute
	DefaultCurrency        = "EUR"
	configKeyCurrency      = "currency"
	configKeyProductPrefix = "productPathPrefix"
)

// Fetcher is the subset of the fetch client adapters depend on
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
	FetchCached(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// Config holds settings shared by all adapters
type Config struct {
	SearchDelay     time.Duration // fixed pause before each search request
	SitemapTimeout  time.Duration
	OfferCacheTTL   time.Duration
	DefaultCurrency string
	Logger          *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.SearchDelay < 0 {
		c.SearchDelay = 0
	}
	if c.SitemapTimeout <= 0 {
		c.SitemapTimeout = DefaultSitemapTimeout
	}
	if c.OfferCacheTTL <= 0 {
		c.OfferCacheTTL = DefaultOfferCacheTTL
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = DefaultCurrency
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// pacer spaces product page fetches by the source delay. The limiter starts
// with its token spent, so the first fetch waits too.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(source *domain.PriceSource) *pacer {
	delay := source.RateLimitDelay()
	if delay <= 0 {
		return &pacer{}
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	limiter.Allow()
	return &pacer{limiter: limiter}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips markup and entities and collapses whitespace
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(out), " ")
}

var priceCharsRegex = regexp.MustCompile(`[^0-9.,\-]`)

// parsePrice reads prices like "899", "1 299,00 kr", "1.299,00", "$1,299.00" and "899,-"
func parsePrice(raw string) *float64 {
	s := priceCharsRegex.ReplaceAllString(raw, "")
	s = strings.Trim(s, "-.,")
	if s == "" {
		return nil
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	sep := lastDot
	if lastComma > sep {
		sep = lastComma
	}

	if sep >= 0 {
		decimals := s[sep+1:]
		mixed := lastDot >= 0 && lastComma >= 0
		repeated := strings.Count(s, string(s[sep])) > 1
		if !mixed && (repeated || len(decimals) == 3) {
			// only thousands separators
			s = strings.NewReplacer(".", "", ",", "").Replace(s)
		} else {
			intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:sep])
			s = intPart + "." + decimals
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil
	}
	return &f
}

// priceFromAny accepts JSON numbers and strings
func priceFromAny(v any) *float64 {
	switch p := v.(type) {
	case float64:
		return &p
	case string:
		return parsePrice(p)
	case fmt.Stringer:
		return parsePrice(p.String())
	}
	return nil
}

var currencyCodeRegex = regexp.MustCompile(`\b(EUR|USD|GBP|NOK|SEK|DKK|CHF)\b`)

var currencySymbols = map[string]string{"€": "EUR", "$": "USD", "£": "GBP"}

// sniffCurrency finds an ISO code or unambiguous symbol in free text
func sniffCurrency(text string) string {
	if code := currencyCodeRegex.FindString(strings.ToUpper(text)); code != "" {
		return code
	}
	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			return code
		}
	}
	return ""
}

func (c Config) currencyFor(source *domain.PriceSource) string {
	if cur := source.ConfigString(configKeyCurrency); cur != "" {
		return strings.ToUpper(cur)
	}
	return c.DefaultCurrency
}

// resolveURL makes href absolute against base
func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(h).String(), nil
}

// canonicalURL drops query and fragment, keeping origin+path
func canonicalURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.Scheme + "://" + u.Host + u.EscapedPath(), true
}

// candidateSet keeps insertion order and dedupes by origin+path
type candidateSet struct {
	urls []string
	seen map[string]bool
	max  int
}

func newCandidateSet(max int) *candidateSet {
	return &candidateSet{seen: map[string]bool{}, max: max}
}

func (s *candidateSet) add(raw string) bool {
	if s.full() {
		return false
	}
	key, ok := canonicalURL(raw)
	if !ok || s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.urls = append(s.urls, key)
	return true
}

func (s *candidateSet) full() bool { return s.max > 0 && len(s.urls) >= s.max }

func (s *candidateSet) len() int { return len(s.urls) }

func sameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimPrefix(strings.ToLower(ua.Host), "www.") == strings.TrimPrefix(strings.ToLower(ub.Host), "www.")
}

// relevance is the share of the wine's producer and name tokens present in text
func relevance(wine *domain.WineForMatch, text string) float64 {
	wanted := textmatch.Tokens(textmatch.NormalizeWineName(wine.Producer + " " + wine.Name))
	if len(wanted) == 0 {
		return 0
	}
	have := map[string]bool{}
	for _, t := range textmatch.Tokens(textmatch.NormalizeForMatch(text)) {
		have[t] = true
	}
	hits := 0
	for _, t := range wanted {
		if have[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(wanted))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
