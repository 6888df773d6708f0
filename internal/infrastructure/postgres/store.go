// Package postgres persists price sources and external offers and reads the
// catalog projection used for matching.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
)

const (
	pingAttempts = 10
	pingInterval = 2 * time.Second
)

var (
	_ domain.WineRepository        = (*Store)(nil)
	_ domain.PriceSourceRepository = (*Store)(nil)
	_ domain.OfferRepository       = (*Store)(nil)
)

// Store implements the repositories on one *sql.DB
type Store struct {
	db     *sql.DB
	psql   sq.StatementBuilderType
	now    func() time.Time
	logger *zap.Logger
}

// Open connects to PostgreSQL and waits until the server answers a ping
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < pingAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(pingInterval):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return db, nil
}

// NewStore wraps an open database handle
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:    time.Now,
		logger: logger.Named("postgres"),
	}
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables owned by this service. The wines catalog is
// owned elsewhere and only read.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS price_sources (
			id                  UUID PRIMARY KEY,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			name                TEXT        NOT NULL,
			slug                TEXT        NOT NULL,
			base_url            TEXT        NOT NULL,
			search_url_template TEXT,
			sitemap_url         TEXT,
			adapter_type        TEXT        NOT NULL,
			is_active           BOOLEAN     NOT NULL DEFAULT TRUE,
			rate_limit_delay_ms INTEGER     NOT NULL DEFAULT 1000,
			last_crawled_at     TIMESTAMPTZ,
			config              JSONB       NOT NULL DEFAULT '{}'::jsonb
		);

		CREATE TABLE IF NOT EXISTS external_offers (
			id               UUID PRIMARY KEY,
			created_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			wine_id          TEXT          NOT NULL,
			price_source_id  UUID          NOT NULL REFERENCES price_sources(id) ON DELETE CASCADE,
			pdp_url          TEXT          NOT NULL,
			price_amount     NUMERIC(12,2),
			currency         VARCHAR(3)    NOT NULL,
			available        BOOLEAN       NOT NULL DEFAULT FALSE,
			title_raw        TEXT,
			match_confidence NUMERIC(4,2)  NOT NULL DEFAULT 0,
			last_fetched_at  TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			UNIQUE (wine_id, price_source_id)
		);

		CREATE INDEX IF NOT EXISTS idx_price_sources_active ON price_sources(is_active);
		CREATE INDEX IF NOT EXISTS idx_external_offers_wine ON external_offers(wine_id);
	`)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
