package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/adapter"
	"github.com/winemarket/backend/internal/infrastructure/memstore"
)

type fakeAdapter struct {
	mu         sync.Mutex
	candidates []string
	searchErr  error
	offers     map[string]*domain.NormalizedOffer
	fetchErrs  map[string]error
	panicOn    string
	record     domain.FetchRecorder
	fetched    []string
}

func (f *fakeAdapter) SearchCandidates(_ context.Context, _ *domain.WineForMatch, _ *domain.PriceSource) ([]string, error) {
	if f.panicOn == "search" {
		panic("boom")
	}
	if f.record != nil {
		f.record(domain.FetchRecord{RequestURL: "https://shop.test/search", Status: 200})
	}
	return f.candidates, f.searchErr
}

func (f *fakeAdapter) FetchOffer(_ context.Context, pdpURL string, _ *domain.PriceSource) (*domain.NormalizedOffer, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, pdpURL)
	f.mu.Unlock()

	if f.panicOn == pdpURL {
		panic("fetch boom")
	}
	if f.record != nil && f.offers[pdpURL] != nil {
		f.record(domain.FetchRecord{RequestURL: pdpURL, Status: 200, ByteLength: 42})
	}
	if err := f.fetchErrs[pdpURL]; err != nil {
		return nil, err
	}
	return f.offers[pdpURL], nil
}

func (f *fakeAdapter) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type failingOffers struct{}

func (failingOffers) UpsertOffer(context.Context, *domain.ExternalOffer) error {
	return errors.New("disk full")
}

func (failingOffers) ListOffersForWine(context.Context, string) ([]domain.ExternalOffer, error) {
	return nil, nil
}

type countingCache struct {
	mu      sync.Mutex
	cleared int
}

func (c *countingCache) ClearCache() {
	c.mu.Lock()
	c.cleared++
	c.mu.Unlock()
}

func newStore() *memstore.Store {
	s := memstore.New()
	s.PutWine(*leflaive())
	s.PutWine(domain.WineForMatch{ID: "wine-2", Name: "Barolo Castiglione", Producer: "Vietti", Vintage: "2019"})
	return s
}

func addSource(s *memstore.Store, id, name, adapterType string, active bool) {
	_ = s.SaveSource(context.Background(), &domain.PriceSource{
		ID: id, Name: name, BaseURL: "https://" + id + ".test", AdapterType: adapterType, IsActive: active,
	})
}

func registryWith(adapters map[string]domain.SourceAdapter) *adapter.Registry {
	reg := adapter.NewRegistry()
	for tag, a := range adapters {
		reg.Register(tag, a)
	}
	return reg
}

func offerFor(title, url string, price float64) *domain.NormalizedOffer {
	return &domain.NormalizedOffer{Title: title, PDPURL: url, Price: &price, Currency: "NOK", Available: true}
}

func recentlyCrawled(t time.Time) bool {
	return time.Since(t) < time.Minute
}

type fakeRecorderSlot struct {
	mu       sync.Mutex
	rec      domain.FetchRecorder
	busy     bool
	released int
}

func (s *fakeRecorderSlot) InstallRecorder(rec domain.FetchRecorder) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.rec != nil {
		return nil, domain.ErrRecorderBusy
	}
	s.rec = rec
	return func() {
		s.mu.Lock()
		s.rec = nil
		s.released++
		s.mu.Unlock()
	}, nil
}

func (s *fakeRecorderSlot) emit(r domain.FetchRecord) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		rec(r)
	}
}

func (s *fakeRecorderSlot) installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}
