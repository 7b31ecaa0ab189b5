package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kha86lilo/quotescan/pkg/models"
)

func sampleMatch() *models.QuoteMatch {
	return &models.QuoteMatch{
		SourceQuoteID:   uuid.New(),
		MatchedQuoteID:  uuid.New(),
		SimilarityScore: 0.91,
		CriteriaScores: map[string]float64{
			models.CriterionServiceType:      1.0,
			models.CriterionCargoWeightRange: 0.85,
		},
		SuggestedPrice: floatPtr(3200),
		PriceRangeLow:  floatPtr(2880),
		PriceRangeHigh: floatPtr(3520),
		WeightVersion:  3,
	}
}

func TestMatchRepository_CreateQuoteMatch(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewMatchRepository(mockDB, testRepoLogger())

	t.Run("upsert writes surviving row id back", func(t *testing.T) {
		match := sampleMatch()
		existingID := uuid.New()

		mockDB.ExpectQuery("INSERT INTO quote_matches").
			WithArgs(
				pgxmock.AnyArg(), match.SourceQuoteID, match.MatchedQuoteID, match.SimilarityScore,
				pgxmock.AnyArg(), match.SuggestedPrice, match.PriceConfidence,
				match.PriceRangeLow, match.PriceRangeHigh, pgxmock.AnyArg(),
				match.WeightVersion, pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existingID))

		err := repo.CreateQuoteMatch(context.Background(), match)

		require.NoError(t, err)
		assert.Equal(t, existingID, match.ID)
		assert.False(t, match.CreatedAt.IsZero())

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("write failure is wrapped", func(t *testing.T) {
		match := sampleMatch()

		mockDB.ExpectQuery("INSERT INTO quote_matches").
			WillReturnError(errors.New("connection reset"))

		err := repo.CreateQuoteMatch(context.Background(), match)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to store quote match")

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestMatchRepository_CreateQuoteMatchesBulk(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewMatchRepository(mockDB, testRepoLogger())

	first := sampleMatch()
	second := sampleMatch()

	mockDB.ExpectQuery("INSERT INTO quote_matches").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mockDB.ExpectQuery("INSERT INTO quote_matches").
		WillReturnError(errors.New("disk full"))

	created, err := repo.CreateQuoteMatchesBulk(context.Background(), []*models.QuoteMatch{first, second})

	assert.Equal(t, 1, created)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store 1 of 2 matches")

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestMatchRepository_SupersedeMatchesForQuote(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewMatchRepository(mockDB, testRepoLogger())
	quoteID := uuid.New()

	mockDB.ExpectExec("UPDATE quote_matches").
		WithArgs(quoteID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	superseded, err := repo.SupersedeMatchesForQuote(context.Background(), quoteID)

	require.NoError(t, err)
	assert.Equal(t, 3, superseded)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestMatchRepository_GetMatchesForQuote(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewMatchRepository(mockDB, testRepoLogger())
	quoteID := uuid.New()

	criteriaJSON, err := json.Marshal(map[string]float64{models.CriterionServiceType: 1.0})
	require.NoError(t, err)
	aiJSON, err := json.Marshal(&models.AIPricingDetails{
		RecommendedPrice: 3250,
		FloorPrice:       2900,
		TargetPrice:      3250,
		CeilingPrice:     3600,
		Confidence:       models.ConfidenceHigh,
	})
	require.NoError(t, err)

	now := time.Now()
	matchID := uuid.New()
	matchedID := uuid.New()

	rows := pgxmock.NewRows([]string{
		"id", "source_quote_id", "matched_quote_id", "similarity_score", "criteria_scores",
		"suggested_price", "price_confidence", "price_range_low", "price_range_high",
		"ai_pricing", "weight_version", "superseded", "created_at", "updated_at",
	}).AddRow(
		matchID, quoteID, matchedID, 0.91, criteriaJSON,
		floatPtr(3200), floatPtr(0.75), floatPtr(2880), floatPtr(3520),
		aiJSON, 3, false, now, now,
	)

	mockDB.ExpectQuery("SELECT .* FROM quote_matches").
		WithArgs(quoteID, 0.5, 10).
		WillReturnRows(rows)

	matches, err := repo.GetMatchesForQuote(context.Background(), quoteID, MatchQueryOptions{
		Limit:    10,
		MinScore: 0.5,
	})

	require.NoError(t, err)
	require.Len(t, matches, 1)

	match := matches[0]
	assert.Equal(t, matchID, match.ID)
	assert.Equal(t, 0.91, match.SimilarityScore)
	assert.Equal(t, 1.0, match.CriteriaScores[models.CriterionServiceType])
	require.NotNil(t, match.AIPricing)
	assert.Equal(t, 3250.0, match.AIPricing.RecommendedPrice)
	assert.Equal(t, 3, match.WeightVersion)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestMatchRepository_DeleteMatch(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewMatchRepository(mockDB, testRepoLogger())

	t.Run("deletes existing match", func(t *testing.T) {
		matchID := uuid.New()

		mockDB.ExpectExec("DELETE FROM quote_matches").
			WithArgs(matchID).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, repo.DeleteMatch(context.Background(), matchID))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown match id", func(t *testing.T) {
		matchID := uuid.New()

		mockDB.ExpectExec("DELETE FROM quote_matches").
			WithArgs(matchID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := repo.DeleteMatch(context.Background(), matchID)

		assert.True(t, errors.Is(err, ErrMatchNotFound))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
