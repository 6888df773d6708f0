package adapter

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/infrastructure/fetch"
)

// sitemapDoc decodes both <urlset> and <sitemapindex> documents
type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type sitemapLimits struct {
	maxURLs     int
	maxChildren int
}

type sitemapCrawler struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
}

// crawl returns page URLs accepted by keep, following one level of sitemap index.
// Child sitemaps whose URL mentions "product" are visited first.
func (c *sitemapCrawler) crawl(ctx context.Context, sitemapURL string, keep func(string) bool, limits sitemapLimits) ([]string, error) {
	root, err := c.load(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	urls := newCandidateSet(limits.maxURLs)
	collect := func(doc *sitemapDoc) {
		for _, u := range doc.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc != "" && keep(loc) {
				urls.add(loc)
			}
		}
	}
	collect(root)

	children := make([]string, 0, len(root.Sitemaps))
	for _, s := range root.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			children = append(children, loc)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return isProductSitemap(children[i]) && !isProductSitemap(children[j])
	})
	if len(children) > limits.maxChildren {
		children = children[:limits.maxChildren]
	}

	for _, child := range children {
		if urls.full() {
			break
		}
		doc, err := c.load(ctx, child)
		if err != nil {
			if ctx.Err() != nil {
				return urls.urls, ctx.Err()
			}
			c.logger.Warn("child sitemap failed", zap.String("url", child), zap.Error(err))
			continue
		}
		collect(doc)
	}

	return urls.urls, nil
}

func (c *sitemapCrawler) load(ctx context.Context, sitemapURL string) (*sitemapDoc, error) {
	resp, err := c.fetcher.FetchCached(ctx, sitemapURL, fetch.Options{Timeout: c.cfg.SitemapTimeout})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("sitemap %s: status %d", sitemapURL, resp.Status)
	}

	var doc sitemapDoc
	if err := xml.Unmarshal([]byte(resp.Text), &doc); err != nil {
		return nil, fmt.Errorf("sitemap %s: %w", sitemapURL, err)
	}
	return &doc, nil
}

func isProductSitemap(u string) bool {
	return strings.Contains(strings.ToLower(u), "product")
}
