package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/winemarket/backend/internal/domain"
)

var sourceColumns = []string{
	"id", "created_at", "updated_at", "name", "slug", "base_url", "search_url_template", "sitemap_url",
	"adapter_type", "is_active", "rate_limit_delay_ms", "last_crawled_at", "config",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*domain.PriceSource, error) {
	var (
		src         domain.PriceSource
		searchTmpl  sql.NullString
		sitemapURL  sql.NullString
		lastCrawled sql.NullTime
		rawConfig   []byte
	)
	if err := row.Scan(
		&src.ID, &src.CreatedAt, &src.UpdatedAt, &src.Name, &src.Slug, &src.BaseURL, &searchTmpl, &sitemapURL,
		&src.AdapterType, &src.IsActive, &src.RateLimitDelayMs, &lastCrawled, &rawConfig,
	); err != nil {
		return nil, err
	}

	src.SearchURLTemplate = searchTmpl.String
	src.SitemapURL = sitemapURL.String
	if lastCrawled.Valid {
		t := lastCrawled.Time
		src.LastCrawledAt = &t
	}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &src.Config); err != nil {
			return nil, fmt.Errorf("decode config for source %s: %w", src.ID, err)
		}
	}
	return &src, nil
}

// GetSource reads one price source by ID
func (s *Store) GetSource(ctx context.Context, id string) (*domain.PriceSource, error) {
	query, args, err := s.psql.Select(sourceColumns...).From("price_sources").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source query: %w", err)
	}

	src, err := scanSource(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	return src, nil
}

// ListActiveSources returns every source with is_active set, ordered by name
func (s *Store) ListActiveSources(ctx context.Context) ([]domain.PriceSource, error) {
	query, args, err := s.psql.Select(sourceColumns...).
		From("price_sources").
		Where(sq.Eq{"is_active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.PriceSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return sources, nil
}

// TouchLastCrawled records a crawl attempt regardless of its outcome
func (s *Store) TouchLastCrawled(ctx context.Context, id string, at time.Time) error {
	query, args, err := s.psql.Update("price_sources").
		Set("last_crawled_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("touch source: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	return nil
}

// SaveSource inserts or updates a source keyed by ID. A missing ID is generated.
func (s *Store) SaveSource(ctx context.Context, src *domain.PriceSource) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	cfg := src.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	rawConfig, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}

	query, args, err := s.psql.Insert("price_sources").
		Columns("id", "name", "slug", "base_url", "search_url_template", "sitemap_url",
			"adapter_type", "is_active", "rate_limit_delay_ms", "config").
		Values(src.ID, src.Name, src.Slug, src.BaseURL, nullString(src.SearchURLTemplate), nullString(src.SitemapURL),
			src.AdapterType, src.IsActive, src.RateLimitDelayMs, rawConfig).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    slug = EXCLUDED.slug,
			    base_url = EXCLUDED.base_url,
			    search_url_template = EXCLUDED.search_url_template,
			    sitemap_url = EXCLUDED.sitemap_url,
			    adapter_type = EXCLUDED.adapter_type,
			    is_active = EXCLUDED.is_active,
			    rate_limit_delay_ms = EXCLUDED.rate_limit_delay_ms,
			    config = EXCLUDED.config,
			    updated_at = NOW()
			RETURNING created_at, updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build source upsert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&src.CreatedAt, &src.UpdatedAt); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
