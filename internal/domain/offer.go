package domain

import "time"

// Match reject reasons
const (
	RejectSizeMismatch   = "size_mismatch"
	RejectBelowThreshold = "below_threshold"

	// RejectNoOffer only appears in diagnostic traces, when a page yielded nothing
	RejectNoOffer = "no_offer"
)

// NormalizedOffer is what an adapter extracts from one product detail page
type NormalizedOffer struct {
	Price     *float64 `json:"price"`
	Currency  string   `json:"currency"`
	Available bool     `json:"available"`
	Title     string   `json:"title"`
	PDPURL    string   `json:"pdpUrl"`
	Vendor    string   `json:"vendor,omitempty"`
	Size      string   `json:"size,omitempty"`
}

// ExternalOffer is the persisted match for one (wine, source) pair
type ExternalOffer struct {
	ID              string    `json:"id"`
	WineID          string    `json:"wineId"`
	PriceSourceID   string    `json:"priceSourceId"`
	PDPURL          string    `json:"pdpUrl"`
	Price           *float64  `json:"priceAmount"`
	Currency        string    `json:"currency"`
	Available       bool      `json:"available"`
	TitleRaw        string    `json:"titleRaw,omitempty"`
	MatchConfidence float64   `json:"matchConfidence"`
	LastFetchedAt   time.Time `json:"lastFetchedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MatchBreakdown explains how a score was computed. VintageScore is always zero.
type MatchBreakdown struct {
	ProducerScore float64 `json:"producerScore"`
	NameScore     float64 `json:"nameScore"`
	VintageScore  float64 `json:"vintageScore"`
	WineVintage   string  `json:"wineVintage,omitempty"`
	OfferVintage  string  `json:"offerVintage,omitempty"`
	WineSize      string  `json:"wineSize,omitempty"`
	OfferSize     string  `json:"offerSize,omitempty"`
}

// MatchResult is the outcome of evaluating one offer against one wine
type MatchResult struct {
	Accepted     bool           `json:"accepted"`
	Score        float64        `json:"score"`
	Breakdown    MatchBreakdown `json:"breakdown"`
	RejectReason string         `json:"rejectReason,omitempty"`
}
