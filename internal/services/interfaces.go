package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/kha86lilo/quotescan/pkg/models"
)

// MatchOrchestratorInterface defines the matching pipeline operations the ops
// API drives.
type MatchOrchestratorInterface interface {
	ProcessEnhancedMatches(ctx context.Context, quoteIDs []uuid.UUID, opts models.MatchOptions) (*models.BatchMatchResult, error)
	Rematch(ctx context.Context, quoteID uuid.UUID, req *models.RematchRequest) (*models.MatchDetail, error)
	RunBatchJob(ctx context.Context, jobID uuid.UUID, quoteIDs []uuid.UUID, opts models.MatchOptions)
}

// FeedbackLedgerInterface defines the feedback operations exposed over HTTP.
type FeedbackLedgerInterface interface {
	SubmitFeedback(ctx context.Context, matchID uuid.UUID, req *models.MatchFeedbackRequest) (*models.MatchFeedback, error)
	Statistics(ctx context.Context, filters models.FeedbackFilters) (*models.FeedbackStatistics, error)
	RecordPricingOutcome(ctx context.Context, quoteID uuid.UUID, req *models.PricingOutcomeRequest) (*models.PricingOutcome, error)
}

// JobTrackerInterface defines batch job bookkeeping.
type JobTrackerInterface interface {
	CreateJob(ctx context.Context, totalQuotes int) (*models.BatchJob, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error)
	RequestCancel(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error)
}

// WeightStoreInterface defines read access to weight vector versions.
type WeightStoreInterface interface {
	GetActiveWeights(ctx context.Context) (*models.WeightVectorVersion, error)
	ListWeightVersions(ctx context.Context, limit int) ([]*models.WeightVectorVersion, error)
}

// MatchReaderInterface defines read access to persisted matches.
type MatchReaderInterface interface {
	GetMatchesForQuote(ctx context.Context, quoteID uuid.UUID, opts MatchQueryOptions) ([]*models.QuoteMatch, error)
}
