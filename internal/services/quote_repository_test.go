package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kha86lilo/quotescan/pkg/models"
)

func testRepoLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func quoteMockColumns() []string {
	return []string{
		"id", "origin_city", "origin_state", "origin_country",
		"destination_city", "destination_state", "destination_country",
		"service_type", "cargo_description", "cargo_weight", "weight_unit", "pieces",
		"hazmat", "container_type", "final_agreed_price", "initial_quote_amount",
		"created_at", "updated_at",
	}
}

func addQuoteMockRow(rows *pgxmock.Rows, quote *models.Quote) *pgxmock.Rows {
	return rows.AddRow(
		quote.ID, quote.OriginCity, quote.OriginState, quote.OriginCountry,
		quote.DestinationCity, quote.DestinationState, quote.DestinationCountry,
		quote.ServiceType, quote.CargoDescription, quote.CargoWeight, quote.WeightUnit, quote.Pieces,
		quote.Hazmat, quote.ContainerType, quote.FinalAgreedPrice, quote.InitialQuoteAmount,
		quote.CreatedAt, quote.UpdatedAt,
	)
}

func TestQuoteRepository_GetQuoteForMatching(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewQuoteRepository(mockDB, testRepoLogger())

	t.Run("returns quote when found", func(t *testing.T) {
		expected := groundQuote(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 3200)

		rows := addQuoteMockRow(pgxmock.NewRows(quoteMockColumns()), expected)
		mockDB.ExpectQuery("SELECT .* FROM quotes WHERE id").
			WithArgs(expected.ID).
			WillReturnRows(rows)

		quote, err := repo.GetQuoteForMatching(context.Background(), expected.ID)

		require.NoError(t, err)
		require.NotNil(t, quote)
		assert.Equal(t, expected.ID, quote.ID)
		assert.Equal(t, "Chicago", quote.OriginCity)
		assert.Equal(t, "Ground", quote.ServiceType)
		require.NotNil(t, quote.FinalAgreedPrice)
		assert.Equal(t, 3200.0, *quote.FinalAgreedPrice)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("returns nil for unknown id", func(t *testing.T) {
		unknown := uuid.New()

		mockDB.ExpectQuery("SELECT .* FROM quotes WHERE id").
			WithArgs(unknown).
			WillReturnError(pgx.ErrNoRows)

		quote, err := repo.GetQuoteForMatching(context.Background(), unknown)

		require.NoError(t, err)
		assert.Nil(t, quote)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestQuoteRepository_GetHistoricalQuotesForMatching(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewQuoteRepository(mockDB, testRepoLogger())

	t.Run("applies exclusions, price filter and limit", func(t *testing.T) {
		excludeIDs := []uuid.UUID{uuid.New(), uuid.New()}
		first := groundQuote(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 3200)
		second := oceanQuote(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 18000)

		rows := addQuoteMockRow(pgxmock.NewRows(quoteMockColumns()), first)
		rows = addQuoteMockRow(rows, second)

		mockDB.ExpectQuery("SELECT .* FROM quotes").
			WithArgs(excludeIDs, 100).
			WillReturnRows(rows)

		quotes, err := repo.GetHistoricalQuotesForMatching(context.Background(), excludeIDs, HistoricalQuoteOptions{
			Limit:         100,
			OnlyWithPrice: true,
		})

		require.NoError(t, err)
		require.Len(t, quotes, 2)
		assert.Equal(t, first.ID, quotes[0].ID)
		assert.Equal(t, second.ID, quotes[1].ID)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("no filters", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT .* FROM quotes").
			WillReturnRows(pgxmock.NewRows(quoteMockColumns()))

		quotes, err := repo.GetHistoricalQuotesForMatching(context.Background(), nil, HistoricalQuoteOptions{})

		require.NoError(t, err)
		assert.Empty(t, quotes)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
