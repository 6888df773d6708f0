package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/winemarket/backend/internal/domain"
)

// GetWineForMatch reads one catalog row as a matching projection
func (s *Store) GetWineForMatch(ctx context.Context, id string) (*domain.WineForMatch, error) {
	query, args, err := s.psql.
		Select("id", "name", "COALESCE(vintage, '')", "COALESCE(producer_name, '')", "grapes", "COALESCE(color, '')").
		From("wines").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build wine query: %w", err)
	}

	var w domain.WineForMatch
	var grapes pq.StringArray
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&w.ID, &w.Name, &w.Vintage, &w.Producer, &grapes, &w.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWineNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query wine: %w", err)
	}
	w.Grapes = []string(grapes)
	return &w, nil
}

// ListWineIDs returns catalog IDs in stable order. A limit <= 0 means all.
func (s *Store) ListWineIDs(ctx context.Context, limit int) ([]string, error) {
	builder := s.psql.Select("id").From("wines").OrderBy("id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build wine id query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wine ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wine id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ids, nil
}
