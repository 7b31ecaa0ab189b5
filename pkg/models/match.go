package models

import (
	"time"

	"github.com/google/uuid"
)

type QuoteMatch struct {
	ID              uuid.UUID          `json:"id" db:"id"`
	SourceQuoteID   uuid.UUID          `json:"source_quote_id" db:"source_quote_id"`
	MatchedQuoteID  uuid.UUID          `json:"matched_quote_id" db:"matched_quote_id"`
	SimilarityScore float64            `json:"similarity_score" db:"similarity_score"`
	CriteriaScores  map[string]float64 `json:"criteria_scores" db:"criteria_scores"`
	SuggestedPrice  *float64           `json:"suggested_price,omitempty" db:"suggested_price"`
	PriceConfidence *float64           `json:"price_confidence,omitempty" db:"price_confidence"`
	PriceRangeLow   *float64           `json:"price_range_low,omitempty" db:"price_range_low"`
	PriceRangeHigh  *float64           `json:"price_range_high,omitempty" db:"price_range_high"`
	AIPricing       *AIPricingDetails  `json:"ai_pricing,omitempty" db:"ai_pricing"`
	WeightVersion   int                `json:"weight_version" db:"weight_version"`
	Superseded      bool               `json:"superseded" db:"superseded"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
}

type MatchFeedback struct {
	ID              uuid.UUID `json:"id" db:"id"`
	MatchID         uuid.UUID `json:"match_id" db:"match_id"`
	Reviewer        string    `json:"reviewer" db:"reviewer"`
	Rating          int       `json:"rating" db:"rating"` // +1 or -1
	ReasonCode      *string   `json:"reason_code,omitempty" db:"reason_code"`
	Notes           *string   `json:"notes,omitempty" db:"notes"`
	ActualPriceUsed *float64  `json:"actual_price_used,omitempty" db:"actual_price_used"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// FeedbackData aggregates all feedback rows whose match pointed at one
// historical quote. Recomputed per batch run, never stored.
type FeedbackData struct {
	QuoteID       uuid.UUID `json:"quote_id"`
	TotalCount    int       `json:"total_count"`
	PositiveCount int       `json:"positive_count"`
	NegativeCount int       `json:"negative_count"`
	AverageRating float64   `json:"average_rating"`
	Reasons       []string  `json:"reasons,omitempty"`
	ActualPrices  []float64 `json:"actual_prices,omitempty"`
}

type FeedbackStatistics struct {
	TotalFeedback    int            `json:"total_feedback"`
	PositiveFeedback int            `json:"positive_feedback"`
	NegativeFeedback int            `json:"negative_feedback"`
	PositiveRatio    float64        `json:"positive_ratio"`
	ReasonCounts     map[string]int `json:"reason_counts,omitempty"`
}

type FeedbackFilters struct {
	Reviewer *string    `json:"reviewer,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
}
