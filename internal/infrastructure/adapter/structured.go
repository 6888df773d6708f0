package adapter

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/textmatch"
)

// productData is what structured markup yields before it becomes an offer
type productData struct {
	Title           string
	Brand           string
	Price           *float64
	Currency        string
	Available       bool
	HasAvailability bool
	Size            string
}

func (p *productData) toOffer(pdpURL, fallbackCurrency string) *domain.NormalizedOffer {
	currency := p.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	available := p.Available
	if !p.HasAvailability {
		available = p.Price != nil
	}
	size := p.Size
	if size == "" {
		size = textmatch.ExtractSize(p.Title)
	}
	return &domain.NormalizedOffer{
		Price:     p.Price,
		Currency:  strings.ToUpper(currency),
		Available: available,
		Title:     p.Title,
		PDPURL:    pdpURL,
		Vendor:    p.Brand,
		Size:      size,
	}
}

// extractJSONLDProduct finds the first schema.org Product in ld+json scripts.
// Top-level arrays, @graph containers and mainEntity are searched.
func extractJSONLDProduct(doc *goquery.Document) (*productData, bool) {
	var found map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var node any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &node); err != nil {
			return true
		}
		found = findProductNode(node, 0)
		return found == nil
	})
	if found == nil {
		return nil, false
	}

	p := &productData{
		Title: cleanText(stringField(found["name"])),
		Brand: cleanText(nameOf(found["brand"])),
		Size:  textmatch.ExtractSize(stringField(found["size"])),
	}
	if p.Title == "" {
		return nil, false
	}
	if p.Brand == "" {
		p.Brand = cleanText(nameOf(found["manufacturer"]))
	}

	if offer := firstOffer(found["offers"]); offer != nil {
		p.Price = priceFromAny(offer["price"])
		if p.Price == nil {
			p.Price = priceFromAny(offer["lowPrice"])
		}
		p.Currency = stringField(offer["priceCurrency"])
		if priceSpec, ok := offer["priceSpecification"].(map[string]any); ok {
			if p.Price == nil {
				p.Price = priceFromAny(priceSpec["price"])
			}
			if p.Currency == "" {
				p.Currency = stringField(priceSpec["priceCurrency"])
			}
		}
		if avail := stringField(offer["availability"]); avail != "" {
			p.HasAvailability = true
			p.Available = availabilityInStock(avail)
		}
	}
	return p, true
}

const maxJSONLDDepth = 6

func findProductNode(node any, depth int) map[string]any {
	if depth > maxJSONLDDepth {
		return nil
	}
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if m := findProductNode(item, depth+1); m != nil {
				return m
			}
		}
	case map[string]any:
		if typeIs(v["@type"], "Product") || typeIs(v["@type"], "ProductGroup") {
			return v
		}
		for _, key := range []string{"@graph", "mainEntity", "itemListElement"} {
			if child, ok := v[key]; ok {
				if m := findProductNode(child, depth+1); m != nil {
					return m
				}
			}
		}
	}
	return nil
}

func typeIs(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, want) || strings.EqualFold(t, "http://schema.org/"+want) ||
			strings.EqualFold(t, "https://schema.org/"+want)
	case []any:
		for _, item := range t {
			if typeIs(item, want) {
				return true
			}
		}
	}
	return false
}

func firstOffer(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		if inner, ok := o["offers"]; ok && typeIs(o["@type"], "AggregateOffer") {
			if first := firstOffer(inner); first != nil && first["price"] != nil {
				return first
			}
		}
		return o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func stringField(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case []any:
		if len(s) > 0 {
			return stringField(s[0])
		}
	}
	return ""
}

func nameOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		return stringField(m["name"])
	}
	return stringField(v)
}

func availabilityInStock(v string) bool {
	v = strings.ToLower(v)
	for _, marker := range []string{"instock", "in stock", "in_stock", "limitedavailability", "onlineonly", "presale", "preorder"} {
		if strings.Contains(v, marker) {
			return true
		}
	}
	return false
}

// extractMetaProduct reads OpenGraph product tags and itemprop microdata.
// A price is required, otherwise any page with a title would pass.
func extractMetaProduct(doc *goquery.Document) (*productData, bool) {
	meta := func(names ...string) string {
		for _, name := range names {
			sel := doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"], meta[itemprop="` + name + `"]`).First()
			if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
		}
		return ""
	}

	p := &productData{}
	p.Title = cleanText(meta("og:title"))
	if p.Title == "" {
		p.Title = cleanText(doc.Find(`[itemprop="name"]`).First().Text())
	}
	if p.Title == "" {
		p.Title = cleanText(doc.Find("title").First().Text())
	}

	p.Price = parsePrice(meta("product:price:amount", "og:price:amount", "price"))
	if p.Price == nil {
		if content, ok := doc.Find(`[itemprop="price"]`).First().Attr("content"); ok {
			p.Price = parsePrice(content)
		} else {
			p.Price = parsePrice(doc.Find(`[itemprop="price"]`).First().Text())
		}
	}
	p.Currency = meta("product:price:currency", "og:price:currency", "priceCurrency")
	p.Brand = cleanText(meta("product:brand", "og:brand", "brand"))

	avail := meta("product:availability", "og:availability", "availability")
	if avail == "" {
		avail, _ = doc.Find(`link[itemprop="availability"]`).First().Attr("href")
	}
	if avail != "" {
		p.HasAvailability = true
		p.Available = availabilityInStock(avail)
	}

	if p.Title == "" || p.Price == nil {
		return nil, false
	}
	return p, true
}
