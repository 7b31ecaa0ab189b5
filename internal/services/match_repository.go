package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/pkg/models"
)

// ErrMatchNotFound is returned when a match id does not resolve to a stored
// match.
var ErrMatchNotFound = errors.New("match not found")

// MatchQueryOptions filters match reads.
type MatchQueryOptions struct {
	Limit    int
	MinScore float64
}

type MatchRepository struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewMatchRepository(db DatabaseQuerier, logger *logrus.Logger) *MatchRepository {
	return &MatchRepository{db: db, logger: logger}
}

// CreateQuoteMatch upserts a match keyed by (source_quote_id,
// matched_quote_id). A rematch that rediscovers an existing pair refreshes
// its scores and clears the superseded flag instead of inserting a duplicate.
// The surviving row id is written back into match.ID.
func (r *MatchRepository) CreateQuoteMatch(ctx context.Context, match *models.QuoteMatch) error {
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	now := time.Now()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	criteriaJSON, err := json.Marshal(match.CriteriaScores)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria scores: %w", err)
	}

	var aiJSON []byte
	if match.AIPricing != nil {
		aiJSON, err = json.Marshal(match.AIPricing)
		if err != nil {
			return fmt.Errorf("failed to marshal ai pricing details: %w", err)
		}
	}

	query := `
		INSERT INTO quote_matches (id, source_quote_id, matched_quote_id, similarity_score,
			criteria_scores, suggested_price, price_confidence, price_range_low, price_range_high,
			ai_pricing, weight_version, superseded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12, $13)
		ON CONFLICT (source_quote_id, matched_quote_id) DO UPDATE SET
			similarity_score = EXCLUDED.similarity_score,
			criteria_scores = EXCLUDED.criteria_scores,
			suggested_price = EXCLUDED.suggested_price,
			price_confidence = EXCLUDED.price_confidence,
			price_range_low = EXCLUDED.price_range_low,
			price_range_high = EXCLUDED.price_range_high,
			ai_pricing = EXCLUDED.ai_pricing,
			weight_version = EXCLUDED.weight_version,
			superseded = false,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		match.ID,
		match.SourceQuoteID,
		match.MatchedQuoteID,
		match.SimilarityScore,
		criteriaJSON,
		match.SuggestedPrice,
		match.PriceConfidence,
		match.PriceRangeLow,
		match.PriceRangeHigh,
		aiJSON,
		match.WeightVersion,
		match.CreatedAt,
		match.UpdatedAt,
	).Scan(&match.ID)
	if err != nil {
		return fmt.Errorf("failed to store quote match: %w", err)
	}

	return nil
}

// CreateQuoteMatchesBulk stores a batch of matches, continuing past
// individual failures. It returns how many were stored; the error is non-nil
// if any write failed.
func (r *MatchRepository) CreateQuoteMatchesBulk(ctx context.Context, matches []*models.QuoteMatch) (int, error) {
	created := 0
	var lastErr error

	for _, match := range matches {
		if err := r.CreateQuoteMatch(ctx, match); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"source_quote_id":  match.SourceQuoteID,
				"matched_quote_id": match.MatchedQuoteID,
			}).Error("Failed to store match in bulk write")
			lastErr = err
			continue
		}
		created++
	}

	if lastErr != nil {
		return created, fmt.Errorf("failed to store %d of %d matches: %w", len(matches)-created, len(matches), lastErr)
	}
	return created, nil
}

// SupersedeMatchesForQuote marks all live matches of a source quote as
// superseded. Rematch calls this before writing fresh results so history is
// preserved without deleting rows.
func (r *MatchRepository) SupersedeMatchesForQuote(ctx context.Context, sourceQuoteID uuid.UUID) (int, error) {
	query := `
		UPDATE quote_matches
		SET superseded = true, updated_at = $2
		WHERE source_quote_id = $1 AND superseded = false`

	tag, err := r.db.Exec(ctx, query, sourceQuoteID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to supersede matches for quote %s: %w", sourceQuoteID, err)
	}

	return int(tag.RowsAffected()), nil
}

// GetMatchesForQuote returns the live (non-superseded) matches for a source
// quote, best score first.
func (r *MatchRepository) GetMatchesForQuote(ctx context.Context, quoteID uuid.UUID, opts MatchQueryOptions) ([]*models.QuoteMatch, error) {
	query := `
		SELECT id, source_quote_id, matched_quote_id, similarity_score, criteria_scores,
			suggested_price, price_confidence, price_range_low, price_range_high,
			ai_pricing, weight_version, superseded, created_at, updated_at
		FROM quote_matches
		WHERE source_quote_id = $1 AND superseded = false`

	args := []interface{}{quoteID}
	argCount := 1

	if opts.MinScore > 0 {
		argCount++
		query += fmt.Sprintf(" AND similarity_score >= $%d", argCount)
		args = append(args, opts.MinScore)
	}

	query += " ORDER BY similarity_score DESC"

	if opts.Limit > 0 {
		argCount++
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, opts.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.QuoteMatch
	for rows.Next() {
		match, err := r.scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// DeleteMatch removes a match permanently. This is an explicit operator
// action, not part of the rematch flow.
func (r *MatchRepository) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quote_matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMatchNotFound
	}

	r.logger.WithField("match_id", id).Info("Deleted quote match")
	return nil
}

func (r *MatchRepository) scanMatch(row rowScanner) (*models.QuoteMatch, error) {
	var match models.QuoteMatch
	var criteriaJSON, aiJSON []byte

	err := row.Scan(
		&match.ID,
		&match.SourceQuoteID,
		&match.MatchedQuoteID,
		&match.SimilarityScore,
		&criteriaJSON,
		&match.SuggestedPrice,
		&match.PriceConfidence,
		&match.PriceRangeLow,
		&match.PriceRangeHigh,
		&aiJSON,
		&match.WeightVersion,
		&match.Superseded,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &match.CriteriaScores); err != nil {
			r.logger.WithError(err).WithField("match_id", match.ID).Warn("Failed to unmarshal criteria scores")
		}
	}
	if len(aiJSON) > 0 {
		if err := json.Unmarshal(aiJSON, &match.AIPricing); err != nil {
			r.logger.WithError(err).WithField("match_id", match.ID).Warn("Failed to unmarshal ai pricing details")
		}
	}

	return &match, nil
}
