// Package app wires configuration into the repositories, fetch client,
// adapters and services shared by the server and the batch runner.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/winemarket/backend/config"
	httpDelivery "github.com/winemarket/backend/internal/delivery/http"
	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/adapter"
	"github.com/winemarket/backend/internal/infrastructure/fetch"
	"github.com/winemarket/backend/internal/infrastructure/memstore"
	"github.com/winemarket/backend/internal/infrastructure/postgres"
	"github.com/winemarket/backend/internal/usecase"
)

// Repositories groups the storage ports
type Repositories struct {
	Wines   domain.WineRepository
	Sources domain.PriceSourceRepository
	Offers  domain.OfferRepository
}

// App holds the wired components
type App struct {
	Repos       Repositories
	Fetcher     *fetch.Client
	Registry    *adapter.Registry
	Matcher     *usecase.MatchingService
	Refresh     *usecase.RefreshService
	Diagnostics *usecase.DiagnosticService

	closers []func() error
	logger  *zap.Logger
}

// Build opens storage, applies the optional seed file and wires the services
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	if err := a.openStorage(ctx, cfg.Storage); err != nil {
		return nil, err
	}

	a.Fetcher = fetch.NewClient(fetch.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		MaxRetries:  cfg.Fetch.MaxRetries,
		CacheTTL:    cfg.Fetch.CacheTTL,
		BackoffBase: cfg.Fetch.BackoffBase,
		BackoffMax:  cfg.Fetch.BackoffMax,
		Logger:      logger,
	})
	a.Registry = adapter.NewDefaultRegistry(a.Fetcher, adapter.Config{
		SearchDelay:     cfg.Refresh.SearchDelay,
		SitemapTimeout:  cfg.Fetch.SitemapTimeout,
		OfferCacheTTL:   cfg.Refresh.OfferCacheTTL,
		DefaultCurrency: cfg.Matching.DefaultCurrency,
		Logger:          logger,
	})
	a.Matcher = usecase.NewMatchingService(usecase.MatchConfig{
		DefaultThreshold:   cfg.Matching.DefaultThreshold,
		ProducerWeight:     cfg.Matching.ProducerWeight,
		NameWeight:         cfg.Matching.NameWeight,
		EnableDebugLogging: cfg.Matching.EnableDebugLogging,
		Logger:             logger,
	})

	a.closers = append(a.closers, a.Fetcher.Close, a.Registry.Close)

	caches := []usecase.CacheClearer{a.Fetcher, a.Registry}
	a.Refresh = usecase.NewRefreshService(
		a.Repos.Wines, a.Repos.Sources, a.Repos.Offers, a.Registry, a.Matcher,
		usecase.RefreshServiceConfig{CandidateCap: cfg.Refresh.CandidateCap, Caches: caches, Logger: logger},
	)
	a.Diagnostics = usecase.NewDiagnosticService(
		a.Repos.Wines, a.Repos.Sources, a.Registry, a.Matcher, a.Fetcher,
		usecase.DiagnosticServiceConfig{CandidateCap: cfg.Refresh.CandidateCap, Caches: caches, Logger: logger},
	)

	logger.Info("application wired",
		zap.String("storage", cfg.Storage.Type),
		zap.Strings("adapters", a.Registry.Types()),
		zap.Float64("default_threshold", cfg.Matching.DefaultThreshold),
		zap.Int("candidate_cap", cfg.Refresh.CandidateCap),
	)
	return a, nil
}

// HandlerDeps exposes the services to the HTTP layer
func (a *App) HandlerDeps() httpDelivery.HandlerDeps {
	return httpDelivery.HandlerDeps{
		Refresher:   a.Refresh,
		Diagnostics: a.Diagnostics,
		Offers:      a.Repos.Offers,
		Detect: func(ctx context.Context, baseURL string) (string, error) {
			return adapter.DetectPlatform(ctx, a.Fetcher, baseURL)
		},
		Logger: a.logger,
	}
}

// Close stops cache sweepers and releases storage handles
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig) error {
	var seed *memstore.Seed
	if cfg.SeedFile != "" {
		s, err := memstore.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		seed = s
	}

	switch cfg.Type {
	case "memory", "":
		store := memstore.New()
		if seed != nil {
			if err := store.Apply(ctx, seed); err != nil {
				return fmt.Errorf("apply seed: %w", err)
			}
			a.logger.Info("seed applied",
				zap.Int("wines", len(seed.Wines)),
				zap.Int("sources", len(seed.Sources)),
			)
		}
		a.Repos = Repositories{Wines: store, Sources: store, Offers: store}

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		store := postgres.NewStore(db, a.logger)
		a.closers = append(a.closers, store.Close)

		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return err
			}
		}
		// The catalog is owned elsewhere; only sources are seeded into Postgres.
		if seed != nil {
			for i := range seed.Sources {
				if err := store.SaveSource(ctx, &seed.Sources[i]); err != nil {
					_ = store.Close()
					return fmt.Errorf("seed source %q: %w", seed.Sources[i].Name, err)
				}
			}
			a.logger.Info("seed sources saved", zap.Int("sources", len(seed.Sources)))
		}
		a.Repos = Repositories{Wines: store, Sources: store, Offers: store}

	default:
		return fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
	return nil
}
