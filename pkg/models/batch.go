package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchOptions tunes one batch or rematch call.
type MatchOptions struct {
	UseAI      bool    `json:"use_ai"`
	MinScore   float64 `json:"min_score"`
	MaxMatches int     `json:"max_matches"`
}

type MatchDetail struct {
	QuoteID        uuid.UUID         `json:"quote_id"`
	MatchCount     int               `json:"match_count"`
	BestScore      float64           `json:"best_score"`
	SuggestedPrice *float64          `json:"suggested_price,omitempty"`
	PriceRange     *PriceRange       `json:"price_range,omitempty"`
	AIPricing      *AIPricingDetails `json:"ai_pricing,omitempty"`
}

type BatchError struct {
	QuoteID uuid.UUID `json:"quote_id"`
	Message string    `json:"message"`
}

type BatchMatchResult struct {
	Processed      int           `json:"processed"`
	MatchesCreated int           `json:"matches_created"`
	Errors         []BatchError  `json:"errors,omitempty"`
	MatchDetails   []MatchDetail `json:"match_details"`
}

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// BatchJob tracks an asynchronous batch run.
type BatchJob struct {
	ID              uuid.UUID    `json:"id"`
	Status          JobStatus    `json:"status"`
	TotalQuotes     int          `json:"total_quotes"`
	ProcessedQuotes int          `json:"processed_quotes"`
	MatchesCreated  int          `json:"matches_created"`
	Errors          []BatchError `json:"errors,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Progress returns completion as a 0-100 percentage.
func (j *BatchJob) Progress() int {
	if j.TotalQuotes == 0 {
		return 0
	}
	p := j.ProcessedQuotes * 100 / j.TotalQuotes
	if p > 100 {
		p = 100
	}
	return p
}

type BatchMatchRequest struct {
	QuoteIDs   []uuid.UUID `json:"quote_ids" validate:"required,min=1,max=100"`
	UseAI      bool        `json:"use_ai"`
	MinScore   *float64    `json:"min_score,omitempty" validate:"omitempty,min=0,max=1"`
	MaxMatches *int        `json:"max_matches,omitempty" validate:"omitempty,min=1,max=50"`
	Async      bool        `json:"async"`
}

type RematchRequest struct {
	UseAI      bool     `json:"use_ai"`
	MinScore   *float64 `json:"min_score,omitempty" validate:"omitempty,min=0,max=1"`
	MaxMatches *int     `json:"max_matches,omitempty" validate:"omitempty,min=1,max=50"`
}

type MatchFeedbackRequest struct {
	Reviewer        string   `json:"reviewer" validate:"required,min=1,max=255"`
	Rating          int      `json:"rating" validate:"required,oneof=-1 1"`
	ReasonCode      *string  `json:"reason_code,omitempty" validate:"omitempty,max=100"`
	Notes           *string  `json:"notes,omitempty" validate:"omitempty,max=2000"`
	ActualPriceUsed *float64 `json:"actual_price_used,omitempty" validate:"omitempty,gt=0"`
}

type PricingOutcomeRequest struct {
	ActualPriceQuoted   *float64 `json:"actual_price_quoted,omitempty" validate:"omitempty,gt=0"`
	ActualPriceAccepted *float64 `json:"actual_price_accepted,omitempty" validate:"omitempty,gt=0"`
	JobWon              *bool    `json:"job_won,omitempty"`
}
