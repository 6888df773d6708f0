// Package memstore keeps wines, sources and offers in memory. It backs local
// development and tests and can be seeded from a YAML file.
package memstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/winemarket/backend/internal/domain"
)

var (
	_ domain.WineRepository        = (*Store)(nil)
	_ domain.PriceSourceRepository = (*Store)(nil)
	_ domain.OfferRepository       = (*Store)(nil)
)

// Seed is the YAML layout accepted by LoadSeed
type Seed struct {
	Wines   []domain.WineForMatch `yaml:"wines"`
	Sources []domain.PriceSource  `yaml:"sources"`
}

type offerKey struct {
	wineID   string
	sourceID string
}

// Store is a mutex-guarded in-memory implementation of the repositories
type Store struct {
	mu      sync.RWMutex
	wines   map[string]domain.WineForMatch
	sources map[string]domain.PriceSource
	offers  map[offerKey]domain.ExternalOffer
	now     func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		wines:   map[string]domain.WineForMatch{},
		sources: map[string]domain.PriceSource{},
		offers:  map[offerKey]domain.ExternalOffer{},
		now:     time.Now,
	}
}

// LoadSeed reads a YAML seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML. Sources default to active unless is_active is set.
func ParseSeed(data []byte) (*Seed, error) {
	var raw struct {
		Wines   []domain.WineForMatch `yaml:"wines"`
		Sources []yaml.Node           `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	seed := &Seed{Wines: raw.Wines}
	for i := range raw.Sources {
		src := domain.PriceSource{IsActive: true}
		if err := raw.Sources[i].Decode(&src); err != nil {
			return nil, fmt.Errorf("parse seed source %d: %w", i, err)
		}
		seed.Sources = append(seed.Sources, src)
	}
	return seed, nil
}

// Apply loads seed wines and sources into the store
func (s *Store) Apply(ctx context.Context, seed *Seed) error {
	for _, w := range seed.Wines {
		if w.ID == "" {
			return fmt.Errorf("%w: seed wine %q has no id", domain.ErrInvalidRequest, w.Name)
		}
		s.PutWine(w)
	}
	for i := range seed.Sources {
		if err := s.SaveSource(ctx, &seed.Sources[i]); err != nil {
			return err
		}
	}
	return nil
}

// PutWine adds or replaces a catalog wine
func (s *Store) PutWine(w domain.WineForMatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wines[w.ID] = w
}

// GetWineForMatch returns a copy of the stored wine
func (s *Store) GetWineForMatch(_ context.Context, id string) (*domain.WineForMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWineNotFound, id)
	}
	return &w, nil
}

// ListWineIDs returns wine IDs sorted ascending. A limit <= 0 means all.
func (s *Store) ListWineIDs(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.wines))
	for id := range s.wines {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// GetSource returns a copy of the stored source
func (s *Store) GetSource(_ context.Context, id string) (*domain.PriceSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	return &src, nil
}

// ListActiveSources returns active sources ordered by name
func (s *Store) ListActiveSources(_ context.Context) ([]domain.PriceSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PriceSource
	for _, src := range s.sources {
		if src.IsActive {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TouchLastCrawled records a crawl attempt
func (s *Store) TouchLastCrawled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	src.LastCrawledAt = &at
	src.UpdatedAt = at
	s.sources[id] = src
	return nil
}

// SaveSource inserts or replaces a source by ID, generating one when missing
func (s *Store) SaveSource(_ context.Context, src *domain.PriceSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	now := s.now()
	if existing, ok := s.sources[src.ID]; ok {
		src.CreatedAt = existing.CreatedAt
		if src.LastCrawledAt == nil {
			src.LastCrawledAt = existing.LastCrawledAt
		}
	} else {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	s.sources[src.ID] = *src
	return nil
}

// UpsertOffer keeps exactly one offer per (wine, source) pair. The row ID and
// creation time of an existing pair are preserved.
func (s *Store) UpsertOffer(_ context.Context, offer *domain.ExternalOffer) error {
	if offer.WineID == "" || offer.PriceSourceID == "" {
		return fmt.Errorf("%w: offer needs wine and source ids", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := offerKey{wineID: offer.WineID, sourceID: offer.PriceSourceID}
	if existing, ok := s.offers[key]; ok {
		offer.ID = existing.ID
		offer.CreatedAt = existing.CreatedAt
	} else {
		if offer.ID == "" {
			offer.ID = uuid.NewString()
		}
		offer.CreatedAt = now
	}
	if offer.LastFetchedAt.IsZero() {
		offer.LastFetchedAt = now
	}
	offer.UpdatedAt = now

	stored := *offer
	if offer.Price != nil {
		p := *offer.Price
		stored.Price = &p
	}
	s.offers[key] = stored
	return nil
}

// ListOffersForWine returns a wine's offers, best match first
func (s *Store) ListOffersForWine(_ context.Context, wineID string) ([]domain.ExternalOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ExternalOffer
	for key, o := range s.offers {
		if key.wineID == wineID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchConfidence != out[j].MatchConfidence {
			return out[i].MatchConfidence > out[j].MatchConfidence
		}
		return out[i].PriceSourceID < out[j].PriceSourceID
	})
	return out, nil
}
