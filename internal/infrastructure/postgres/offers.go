package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/winemarket/backend/internal/domain"
)

// UpsertOffer writes the single row for (wine_id, price_source_id). A later
// accepted match overwrites the previous one; the row ID and created_at survive.
func (s *Store) UpsertOffer(ctx context.Context, offer *domain.ExternalOffer) error {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if offer.LastFetchedAt.IsZero() {
		offer.LastFetchedAt = s.now()
	}

	var price sql.NullFloat64
	if offer.Price != nil {
		price = sql.NullFloat64{Float64: *offer.Price, Valid: true}
	}

	query, args, err := s.psql.Insert("external_offers").
		Columns("id", "wine_id", "price_source_id", "pdp_url", "price_amount", "currency",
			"available", "title_raw", "match_confidence", "last_fetched_at").
		Values(offer.ID, offer.WineID, offer.PriceSourceID, offer.PDPURL, price, offer.Currency,
			offer.Available, nullString(offer.TitleRaw), offer.MatchConfidence, offer.LastFetchedAt).
		Suffix(`ON CONFLICT (wine_id, price_source_id) DO UPDATE
			SET pdp_url = EXCLUDED.pdp_url,
			    price_amount = EXCLUDED.price_amount,
			    currency = EXCLUDED.currency,
			    available = EXCLUDED.available,
			    title_raw = EXCLUDED.title_raw,
			    match_confidence = EXCLUDED.match_confidence,
			    last_fetched_at = EXCLUDED.last_fetched_at,
			    updated_at = NOW()
			RETURNING id, created_at, updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build offer upsert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&offer.ID, &offer.CreatedAt, &offer.UpdatedAt); err != nil {
		return fmt.Errorf("upsert offer: %w", err)
	}
	return nil
}

// ListOffersForWine returns stored offers for a wine, best match first
func (s *Store) ListOffersForWine(ctx context.Context, wineID string) ([]domain.ExternalOffer, error) {
	query, args, err := s.psql.
		Select("id", "created_at", "updated_at", "wine_id", "price_source_id", "pdp_url", "price_amount",
			"currency", "available", "title_raw", "match_confidence", "last_fetched_at").
		From("external_offers").
		Where(sq.Eq{"wine_id": wineID}).
		OrderBy("match_confidence DESC", "last_fetched_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build offers query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.ExternalOffer
	for rows.Next() {
		var (
			o     domain.ExternalOffer
			price sql.NullFloat64
			title sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.WineID, &o.PriceSourceID, &o.PDPURL, &price,
			&o.Currency, &o.Available, &title, &o.MatchConfidence, &o.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		if price.Valid {
			p := price.Float64
			o.Price = &p
		}
		o.TitleRaw = title.String
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return offers, nil
}
