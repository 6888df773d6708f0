package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winemarket/backend/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, nil), mock
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS price_sources .* CREATE TABLE IF NOT EXISTS external_offers .*UNIQUE \(wine_id, price_source_id\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWineForMatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM wines WHERE id = $1")).
		WithArgs("wine-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "vintage", "producer_name", "grapes", "color"}).
			AddRow("wine-1", "Puligny-Montrachet 1er Cru", "2020", "Domaine Leflaive", "{Chardonnay}", "white"))

	wine, err := store.GetWineForMatch(context.Background(), "wine-1")
	require.NoError(t, err)
	assert.Equal(t, "Domaine Leflaive", wine.Producer)
	assert.Equal(t, []string{"Chardonnay"}, wine.Grapes)
	assert.Equal(t, "2020", wine.Vintage)

	mock.ExpectQuery(regexp.QuoteMeta("FROM wines WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "vintage", "producer_name", "grapes", "color"}))

	_, err = store.GetWineForMatch(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrWineNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWineIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM wines ORDER BY id LIMIT 2")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := store.ListWineIDs(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	mock.ExpectQuery(`^SELECT id FROM wines ORDER BY id$`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a"))

	ids, err = store.ListWineIDs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sourceRows() *sqlmock.Rows {
	return sqlmock.NewRows(sourceColumns)
}

func TestSources(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("list active", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM price_sources WHERE is_active = $1 ORDER BY name")).
			WithArgs(true).
			WillReturnRows(sourceRows().
				AddRow("src-1", now, now, "Vinbutikken", "vinbutikken", "https://vin.test", nil, nil,
					"shopify", true, 1500, nil, []byte(`{"matchThreshold":0.5,"currency":"NOK"}`)).
				AddRow("src-2", now, now, "Cave", "cave", "https://cave.test", "https://cave.test/?s={query}",
					"https://cave.test/sitemap.xml", "woocommerce", true, 1000, now, []byte(`{}`)))

		sources, err := store.ListActiveSources(context.Background())
		require.NoError(t, err)
		require.Len(t, sources, 2)

		threshold, ok := sources[0].MatchThreshold()
		assert.True(t, ok)
		assert.Equal(t, 0.5, threshold)
		assert.Equal(t, "NOK", sources[0].ConfigString("currency"))
		assert.Nil(t, sources[0].LastCrawledAt)
		assert.Equal(t, 1500*time.Millisecond, sources[0].RateLimitDelay())

		assert.Equal(t, "https://cave.test/?s={query}", sources[1].SearchURLTemplate)
		require.NotNil(t, sources[1].LastCrawledAt)
		assert.True(t, sources[1].LastCrawledAt.Equal(now))
	})

	t.Run("get missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM price_sources WHERE id = $1")).
			WithArgs("nope").
			WillReturnRows(sourceRows())

		_, err := store.GetSource(context.Background(), "nope")
		assert.True(t, errors.Is(err, domain.ErrSourceNotFound))
	})

	t.Run("touch last crawled", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE price_sources SET last_crawled_at = $1, updated_at = $2 WHERE id = $3")).
			WithArgs(now, now, "src-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, store.TouchLastCrawled(context.Background(), "src-1", now))

		mock.ExpectExec(regexp.QuoteMeta("UPDATE price_sources")).
			WithArgs(now, now, "gone").
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := store.TouchLastCrawled(context.Background(), "gone", now)
		assert.True(t, errors.Is(err, domain.ErrSourceNotFound))
	})

	t.Run("save generates id", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO price_sources .* ON CONFLICT \(id\) DO UPDATE`).
			WithArgs(sqlmock.AnyArg(), "Cave", "cave", "https://cave.test", nil, nil, "woocommerce", true, 1000, []byte(`{}`)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		src := &domain.PriceSource{Name: "Cave", Slug: "cave", BaseURL: "https://cave.test",
			AdapterType: "woocommerce", IsActive: true, RateLimitDelayMs: 1000}
		require.NoError(t, store.SaveSource(context.Background(), src))

		_, err := uuid.Parse(src.ID)
		assert.NoError(t, err)
		assert.True(t, src.CreatedAt.Equal(now))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertOffer(t *testing.T) {
	store, mock := newMockStore(t)
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	price := 899.0

	mock.ExpectQuery(`INSERT INTO external_offers .* ON CONFLICT \(wine_id, price_source_id\) DO UPDATE .* RETURNING id, created_at, updated_at`).
		WithArgs(sqlmock.AnyArg(), "wine-1", "src-1", "https://vin.test/products/leflaive", 899.0, "NOK",
			true, "Domaine Leflaive Puligny-Montrachet 1er Cru 2020", 0.87, fetched).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("existing-row", fetched.Add(-time.Hour), fetched))

	offer := &domain.ExternalOffer{
		WineID:          "wine-1",
		PriceSourceID:   "src-1",
		PDPURL:          "https://vin.test/products/leflaive",
		Price:           &price,
		Currency:        "NOK",
		Available:       true,
		TitleRaw:        "Domaine Leflaive Puligny-Montrachet 1er Cru 2020",
		MatchConfidence: 0.87,
		LastFetchedAt:   fetched,
	}
	require.NoError(t, store.UpsertOffer(context.Background(), offer))

	assert.Equal(t, "existing-row", offer.ID, "conflicting pair keeps its original row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertOffer_NullPrice(t *testing.T) {
	store, mock := newMockStore(t)
	store.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	mock.ExpectQuery(`INSERT INTO external_offers`).
		WithArgs(sqlmock.AnyArg(), "wine-1", "src-1", "u", nil, "EUR", false, nil, 0.5, store.now()).
		WillReturnError(errors.New("connection lost"))

	err := store.UpsertOffer(context.Background(), &domain.ExternalOffer{
		WineID: "wine-1", PriceSourceID: "src-1", PDPURL: "u", Currency: "EUR", MatchConfidence: 0.5,
	})
	assert.ErrorContains(t, err, "upsert offer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOffersForWine(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM external_offers WHERE wine_id = $1 ORDER BY match_confidence DESC, last_fetched_at DESC")).
		WithArgs("wine-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "wine_id", "price_source_id",
			"pdp_url", "price_amount", "currency", "available", "title_raw", "match_confidence", "last_fetched_at"}).
			AddRow("o1", now, now, "wine-1", "src-1", "https://a", 899.0, "NOK", true, "Leflaive", 0.9, now).
			AddRow("o2", now, now, "wine-1", "src-2", "https://b", nil, "EUR", false, nil, 0.6, now))

	offers, err := store.ListOffersForWine(context.Background(), "wine-1")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	require.NotNil(t, offers[0].Price)
	assert.Equal(t, 899.0, *offers[0].Price)
	assert.Nil(t, offers[1].Price)
	assert.Equal(t, "", offers[1].TitleRaw)
	assert.NoError(t, mock.ExpectationsWereMet())
}
