package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/winemarket/backend/internal/domain"
)

const defaultCandidateCap = 12

// AdapterResolver picks the strategy registered for a source's adapter type
type AdapterResolver interface {
	Resolve(adapterType string) (domain.SourceAdapter, error)
}

// CacheClearer is implemented by components holding cross-request cached state
type CacheClearer interface {
	ClearCache()
}

// RefreshServiceConfig holds configuration for the refresh orchestrator
type RefreshServiceConfig struct {
	CandidateCap int
	Caches       []CacheClearer // reset at the start of every batch run
	Logger       *zap.Logger
}

// RefreshService discovers, scores and stores external offers
type RefreshService struct {
	wines        domain.WineRepository
	sources      domain.PriceSourceRepository
	offers       domain.OfferRepository
	adapters     AdapterResolver
	matcher      *MatchingService
	candidateCap int
	caches       []CacheClearer
	logger       *zap.Logger
	now          func() time.Time
}

// NewRefreshService creates a refresh orchestrator with its dependencies
func NewRefreshService(
	wines domain.WineRepository,
	sources domain.PriceSourceRepository,
	offers domain.OfferRepository,
	adapters AdapterResolver,
	matcher *MatchingService,
	config RefreshServiceConfig,
) *RefreshService {
	candidateCap := config.CandidateCap
	if candidateCap <= 0 {
		candidateCap = defaultCandidateCap
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RefreshService{
		wines:        wines,
		sources:      sources,
		offers:       offers,
		adapters:     adapters,
		matcher:      matcher,
		candidateCap: candidateCap,
		caches:       config.Caches,
		logger:       logger.Named("refresh"),
		now:          time.Now,
	}
}

// RefreshWineSource searches one source for one wine and stores the first
// accepted match. It never panics or returns an error: failures end up in
// result.Error. The source's last_crawled_at is touched on every path.
func (s *RefreshService) RefreshWineSource(
	ctx context.Context,
	wine *domain.WineForMatch,
	source *domain.PriceSource,
) (result domain.SourceRefreshResult) {
	result = domain.SourceRefreshResult{SourceID: source.ID, SourceName: source.Name}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result.Error = sourceError(source, fmt.Errorf("panic: %v", r))
			s.logger.Error("adapter panicked", zap.String("source", source.Name), zap.Any("panic", r))
		}
		if err := s.sources.TouchLastCrawled(context.WithoutCancel(ctx), source.ID, s.now()); err != nil {
			s.logger.Warn("failed to touch last_crawled_at", zap.String("source", source.Name), zap.Error(err))
		}
		s.logger.Info("source refreshed",
			zap.String("wine_id", wine.ID),
			zap.String("source", source.Name),
			zap.Int("found", result.CandidatesFound),
			zap.Int("checked", result.CandidatesChecked),
			zap.Bool("matched", result.Matched),
			zap.String("error", result.Error),
			zap.Duration("took", time.Since(start)),
		)
	}()

	adapter, err := s.adapters.Resolve(source.AdapterType)
	if err != nil {
		result.Error = sourceError(source, err)
		return result
	}

	candidates, err := adapter.SearchCandidates(ctx, wine, source)
	if err != nil {
		result.Error = sourceError(source, fmt.Errorf("search: %w", err))
		return result
	}
	result.CandidatesFound = len(candidates)
	if len(candidates) > s.candidateCap {
		candidates = candidates[:s.candidateCap]
	}

	opts := MatchOptions{Source: source}
	var firstFetchErr error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			result.Error = sourceError(source, err)
			return result
		}

		offer, err := adapter.FetchOffer(ctx, candidate, source)
		result.CandidatesChecked++
		if err != nil {
			s.logger.Warn("candidate fetch failed", zap.String("source", source.Name), zap.String("url", candidate), zap.Error(err))
			if firstFetchErr == nil {
				firstFetchErr = err
			}
			continue
		}
		if offer == nil {
			continue
		}

		match := s.matcher.EvaluateMatch(wine, offer, opts)
		if !match.Accepted {
			continue
		}

		stored := toExternalOffer(wine, source, candidate, offer, match, s.now())
		if err := s.offers.UpsertOffer(ctx, stored); err != nil {
			result.Error = sourceError(source, fmt.Errorf("save offer: %w", err))
			return result
		}
		result.Matched = true
		result.Offer = stored
		return result
	}

	if firstFetchErr != nil {
		result.Error = sourceError(source, fmt.Errorf("fetch offer: %w", firstFetchErr))
	}
	return result
}

// RefreshWine refreshes one wine against every active source, or only sourceID
// when it is set. Sources run concurrently; one failing source never cancels
// its siblings.
func (s *RefreshService) RefreshWine(ctx context.Context, wineID, sourceID string) domain.WineRefreshResult {
	result := domain.WineRefreshResult{
		WineID:  wineID,
		Sources: []domain.SourceRefreshResult{},
		Errors:  []string{},
	}

	wine, err := s.wines.GetWineForMatch(ctx, wineID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	sources, err := s.selectSources(ctx, sourceID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	perSource := make([]domain.SourceRefreshResult, len(sources))
	var g errgroup.Group
	for i := range sources {
		i := i
		g.Go(func() error {
			perSource[i] = s.RefreshWineSource(ctx, wine, &sources[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range perSource {
		result.Sources = append(result.Sources, r)
		result.Checked += r.CandidatesChecked
		if r.Matched {
			result.Matched++
		}
		if r.Error != "" {
			result.Errors = append(result.Errors, r.Error)
		}
	}
	return result
}

// RefreshAll clears cached fetch state and refreshes wines one at a time.
// A limit <= 0 processes the whole catalog.
func (s *RefreshService) RefreshAll(ctx context.Context, limit int) domain.BatchRefreshResult {
	result := domain.BatchRefreshResult{Errors: []string{}}

	for _, c := range s.caches {
		c.ClearCache()
	}

	ids, err := s.wines.ListWineIDs(ctx, limit)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list wines: %v", err))
		return result
	}
	result.Total = len(ids)

	start := time.Now()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch stopped: %v", err))
			break
		}

		r := s.RefreshWine(ctx, id, "")
		result.Processed++
		result.Matched += r.Matched
		for _, e := range r.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, e))
		}
	}

	s.logger.Info("batch refresh finished",
		zap.Int("processed", result.Processed),
		zap.Int("total", result.Total),
		zap.Int("matched", result.Matched),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("took", time.Since(start)),
	)
	return result
}

func (s *RefreshService) selectSources(ctx context.Context, sourceID string) ([]domain.PriceSource, error) {
	if sourceID == "" {
		return s.sources.ListActiveSources(ctx)
	}

	source, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceInactive, sourceID)
	}
	return []domain.PriceSource{*source}, nil
}

func toExternalOffer(
	wine *domain.WineForMatch,
	source *domain.PriceSource,
	candidate string,
	offer *domain.NormalizedOffer,
	match domain.MatchResult,
	at time.Time,
) *domain.ExternalOffer {
	pdpURL := offer.PDPURL
	if pdpURL == "" {
		pdpURL = candidate
	}
	return &domain.ExternalOffer{
		WineID:          wine.ID,
		PriceSourceID:   source.ID,
		PDPURL:          pdpURL,
		Price:           offer.Price,
		Currency:        offer.Currency,
		Available:       offer.Available,
		TitleRaw:        offer.Title,
		MatchConfidence: match.Score,
		LastFetchedAt:   at,
	}
}

func sourceError(source *domain.PriceSource, err error) string {
	name := source.Name
	if name == "" {
		name = source.ID
	}
	return fmt.Sprintf("%s: %v", name, err)
}
