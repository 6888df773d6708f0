package domain

import (
	"strconv"
	"strings"
	"time"
)

// Adapter type tags stored in price_sources.adapter_type
const (
	AdapterShopify     = "shopify"     // storefront-API style: predictive search + product JSON
	AdapterWooCommerce = "woocommerce" // generic CMS style: site search page + HTML markup
	AdapterUnknown     = "unknown"
)

// WineForMatch is the read-only catalog projection used for matching
type WineForMatch struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Vintage  string   `json:"vintage,omitempty" yaml:"vintage"`
	Producer string   `json:"producer,omitempty" yaml:"producer"`
	Grapes   []string `json:"grapes,omitempty" yaml:"grapes"`
	Color    string   `json:"color,omitempty" yaml:"color"`
}

// PriceSource describes one third-party site to crawl
type PriceSource struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	Slug              string         `json:"slug" yaml:"slug"`
	BaseURL           string         `json:"baseUrl" yaml:"base_url"`
	SearchURLTemplate string         `json:"searchUrlTemplate,omitempty" yaml:"search_url_template"`
	SitemapURL        string         `json:"sitemapUrl,omitempty" yaml:"sitemap_url"`
	AdapterType       string         `json:"adapterType" yaml:"adapter_type"`
	IsActive          bool           `json:"isActive" yaml:"is_active"`
	RateLimitDelayMs  int            `json:"rateLimitDelayMs" yaml:"rate_limit_delay_ms"`
	LastCrawledAt     *time.Time     `json:"lastCrawledAt,omitempty" yaml:"-"`
	Config            map[string]any `json:"config,omitempty" yaml:"config"`
	CreatedAt         time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time      `json:"updatedAt" yaml:"-"`
}

// RateLimitDelay returns the configured pause before each product page fetch
func (s *PriceSource) RateLimitDelay() time.Duration {
	if s == nil || s.RateLimitDelayMs <= 0 {
		return 0
	}
	return time.Duration(s.RateLimitDelayMs) * time.Millisecond
}

// MatchThreshold returns the per-source threshold override from config.matchThreshold
func (s *PriceSource) MatchThreshold() (float64, bool) {
	return s.ConfigFloat("matchThreshold")
}

// ConfigFloat reads a numeric config value. Values stored as JSON strings are accepted too.
func (s *PriceSource) ConfigFloat(key string) (float64, bool) {
	if s == nil || s.Config == nil {
		return 0, false
	}
	switch v := s.Config[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ConfigString reads a string config value
func (s *PriceSource) ConfigString(key string) string {
	if s == nil || s.Config == nil {
		return ""
	}
	if v, ok := s.Config[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
