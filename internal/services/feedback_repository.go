package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/pkg/models"
)

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// RatedMatchSample pairs a match's per-criterion scores with its human
// rating. The weight learner consumes these.
type RatedMatchSample struct {
	CriteriaScores map[string]float64
	Rating         int
}

type FeedbackRepository struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewFeedbackRepository(db DatabaseQuerier, logger *logrus.Logger) *FeedbackRepository {
	return &FeedbackRepository{db: db, logger: logger}
}

// SubmitMatchFeedback upserts a rating keyed by (match_id, reviewer): a
// reviewer re-rating the same match replaces their previous rating. The
// surviving row id is written back into feedback.ID.
func (r *FeedbackRepository) SubmitMatchFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO match_feedback (id, match_id, reviewer, rating, reason_code, notes, actual_price_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id, reviewer) DO UPDATE SET
			rating = EXCLUDED.rating,
			reason_code = EXCLUDED.reason_code,
			notes = EXCLUDED.notes,
			actual_price_used = EXCLUDED.actual_price_used,
			created_at = EXCLUDED.created_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		feedback.ID,
		feedback.MatchID,
		feedback.Reviewer,
		feedback.Rating,
		feedback.ReasonCode,
		feedback.Notes,
		feedback.ActualPriceUsed,
		feedback.CreatedAt,
	).Scan(&feedback.ID)
	if err != nil {
		return fmt.Errorf("failed to store match feedback: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"match_id": feedback.MatchID,
		"reviewer": feedback.Reviewer,
		"rating":   feedback.Rating,
	}).Info("Recorded match feedback")

	return nil
}

// GetFeedbackForHistoricalQuotes aggregates feedback per historical quote,
// scoped to matches where the quote was the matched (not source) side.
// Quotes with no feedback are absent from the returned map.
func (r *FeedbackRepository) GetFeedbackForHistoricalQuotes(ctx context.Context, quoteIDs []uuid.UUID) (map[uuid.UUID]*models.FeedbackData, error) {
	result := make(map[uuid.UUID]*models.FeedbackData)
	if len(quoteIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT m.matched_quote_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE f.rating > 0),
			COUNT(*) FILTER (WHERE f.rating < 0),
			AVG(f.rating),
			ARRAY_REMOVE(ARRAY_AGG(f.reason_code), NULL),
			ARRAY_REMOVE(ARRAY_AGG(f.actual_price_used), NULL)
		FROM match_feedback f
		JOIN quote_matches m ON m.id = f.match_id
		WHERE m.matched_quote_id = ANY($1)
		GROUP BY m.matched_quote_id`

	rows, err := r.db.Query(ctx, query, quoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		data := &models.FeedbackData{}
		err := rows.Scan(
			&data.QuoteID,
			&data.TotalCount,
			&data.PositiveCount,
			&data.NegativeCount,
			&data.AverageRating,
			&data.Reasons,
			&data.ActualPrices,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback aggregate: %w", err)
		}
		result[data.QuoteID] = data
	}

	return result, rows.Err()
}

// GetFeedbackStatistics returns ledger-wide totals, optionally filtered by
// reviewer and time window.
func (r *FeedbackRepository) GetFeedbackStatistics(ctx context.Context, filters models.FeedbackFilters) (*models.FeedbackStatistics, error) {
	where := ""
	args := []interface{}{}
	argCount := 0

	if filters.Reviewer != nil {
		argCount++
		where += fmt.Sprintf(" AND reviewer = $%d", argCount)
		args = append(args, *filters.Reviewer)
	}
	if filters.Since != nil {
		argCount++
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filters.Since)
	}
	if filters.Until != nil {
		argCount++
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filters.Until)
	}

	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE rating > 0),
			COUNT(*) FILTER (WHERE rating < 0)
		FROM match_feedback
		WHERE 1=1` + where

	stats := &models.FeedbackStatistics{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&stats.TotalFeedback,
		&stats.PositiveFeedback,
		&stats.NegativeFeedback,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback statistics: %w", err)
	}

	if stats.TotalFeedback > 0 {
		stats.PositiveRatio = float64(stats.PositiveFeedback) / float64(stats.TotalFeedback)
	}

	reasonQuery := `
		SELECT reason_code, COUNT(*)
		FROM match_feedback
		WHERE reason_code IS NOT NULL` + where + `
		GROUP BY reason_code`

	rows, err := r.db.Query(ctx, reasonQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback reasons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("failed to scan feedback reason: %w", err)
		}
		if stats.ReasonCounts == nil {
			stats.ReasonCounts = make(map[string]int)
		}
		stats.ReasonCounts[reason] = count
	}

	return stats, rows.Err()
}

// GetRatedMatchSamples returns (criteria scores, rating) pairs for every
// rated match, newest first, for weight learning.
func (r *FeedbackRepository) GetRatedMatchSamples(ctx context.Context, limit int) ([]RatedMatchSample, error) {
	query := `
		SELECT m.criteria_scores, f.rating
		FROM match_feedback f
		JOIN quote_matches m ON m.id = f.match_id
		ORDER BY f.created_at DESC`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rated matches: %w", err)
	}
	defer rows.Close()

	var samples []RatedMatchSample
	for rows.Next() {
		var criteriaJSON []byte
		var rating int
		if err := rows.Scan(&criteriaJSON, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan rated match: %w", err)
		}

		var scores map[string]float64
		if err := json.Unmarshal(criteriaJSON, &scores); err != nil {
			r.logger.WithError(err).Warn("Skipping rated match with unreadable criteria scores")
			continue
		}

		samples = append(samples, RatedMatchSample{CriteriaScores: scores, Rating: rating})
	}

	return samples, rows.Err()
}

// RecordPricingOutcome persists ground-truth pricing for a quote. A missing
// outcomes table is a soft failure: logged, not fatal.
func (r *FeedbackRepository) RecordPricingOutcome(ctx context.Context, outcome *models.PricingOutcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO pricing_outcomes (quote_id, actual_price_quoted, actual_price_accepted, job_won, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (quote_id) DO UPDATE SET
			actual_price_quoted = EXCLUDED.actual_price_quoted,
			actual_price_accepted = EXCLUDED.actual_price_accepted,
			job_won = EXCLUDED.job_won,
			recorded_at = EXCLUDED.recorded_at`

	_, err := r.db.Exec(ctx, query,
		outcome.QuoteID,
		outcome.ActualPriceQuoted,
		outcome.ActualPriceAccepted,
		outcome.JobWon,
		outcome.RecordedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			r.logger.WithError(err).WithField("quote_id", outcome.QuoteID).Warn("Pricing outcomes table missing, outcome not recorded")
			return nil
		}
		return fmt.Errorf("failed to record pricing outcome: %w", err)
	}

	return nil
}
