package domain

import (
	"context"
	"time"
)

// WineRepository reads the catalog projection. The catalog itself is owned elsewhere.
type WineRepository interface {
	GetWineForMatch(ctx context.Context, id string) (*WineForMatch, error)
	ListWineIDs(ctx context.Context, limit int) ([]string, error)
}

// PriceSourceRepository reads source configuration and records crawl attempts
type PriceSourceRepository interface {
	GetSource(ctx context.Context, id string) (*PriceSource, error)
	ListActiveSources(ctx context.Context) ([]PriceSource, error)
	TouchLastCrawled(ctx context.Context, id string, at time.Time) error
	SaveSource(ctx context.Context, source *PriceSource) error
}

// OfferRepository persists external offers, one row per (wine, source)
type OfferRepository interface {
	UpsertOffer(ctx context.Context, offer *ExternalOffer) error
	ListOffersForWine(ctx context.Context, wineID string) ([]ExternalOffer, error)
}

// SourceAdapter is one site-convention strategy
type SourceAdapter interface {
	SearchCandidates(ctx context.Context, wine *WineForMatch, source *PriceSource) ([]string, error)
	// FetchOffer returns nil, nil when no offer could be extracted
	FetchOffer(ctx context.Context, pdpURL string, source *PriceSource) (*NormalizedOffer, error)
}
