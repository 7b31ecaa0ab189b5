package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

var ErrQuoteNotFound = errors.New("quote not found")

// batchObserver runs after every quote in a batch with the result so far.
// Returning false stops the batch before the next quote.
type batchObserver func(result *models.BatchMatchResult) bool

// MatchOrchestrator drives the matching pipeline end to end: load the query
// quote and its candidate pool, score, estimate a price, overlay oracle
// pricing when requested, persist the matches, and trigger the periodic
// learning pass. Quotes in a batch are processed sequentially so every
// failure stays attributable to one quote.
type MatchOrchestrator struct {
	quotes    *QuoteRepository
	matches   *MatchRepository
	ledger    *FeedbackLedger
	weights   *WeightManager
	scorer    *SimilarityScorer
	estimator *PriceEstimator
	lanes     *LaneStatsService
	oracle    *PricingOracleAdapter
	learner   *WeightLearner
	schedule  LearningSchedule
	jobs      *JobTracker
	metrics   *MetricsCollector
	config    *config.Config
	logger    *logrus.Logger
}

func NewMatchOrchestrator(
	quotes *QuoteRepository,
	matches *MatchRepository,
	ledger *FeedbackLedger,
	weights *WeightManager,
	scorer *SimilarityScorer,
	estimator *PriceEstimator,
	lanes *LaneStatsService,
	oracle *PricingOracleAdapter,
	learner *WeightLearner,
	schedule LearningSchedule,
	jobs *JobTracker,
	metrics *MetricsCollector,
	cfg *config.Config,
	logger *logrus.Logger,
) *MatchOrchestrator {
	return &MatchOrchestrator{
		quotes:    quotes,
		matches:   matches,
		ledger:    ledger,
		weights:   weights,
		scorer:    scorer,
		estimator: estimator,
		lanes:     lanes,
		oracle:    oracle,
		learner:   learner,
		schedule:  schedule,
		jobs:      jobs,
		metrics:   metrics,
		config:    cfg,
		logger:    logger,
	}
}

// ProcessEnhancedMatches runs the pipeline for each quote id and returns the
// aggregate result. Per-quote failures land in the result's error list and
// never abort the rest of the batch; context cancellation stops the batch
// between quotes with everything persisted so far intact.
func (o *MatchOrchestrator) ProcessEnhancedMatches(ctx context.Context, quoteIDs []uuid.UUID, opts models.MatchOptions) (*models.BatchMatchResult, error) {
	return o.runBatch(ctx, quoteIDs, opts, nil)
}

// Rematch reruns matching for a single quote, superseding its previous
// matches. Scoring is deterministic given unchanged data and weights, so a
// repeated rematch reproduces its scores.
func (o *MatchOrchestrator) Rematch(ctx context.Context, quoteID uuid.UUID, req *models.RematchRequest) (*models.MatchDetail, error) {
	opts := models.MatchOptions{UseAI: req.UseAI}
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	if req.MaxMatches != nil {
		opts.MaxMatches = *req.MaxMatches
	}
	opts = o.resolveOptions(opts)

	active, err := o.weights.GetActiveWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active weights: %w", err)
	}

	detail, created, err := o.processQuote(ctx, quoteID, opts, active)
	if err != nil {
		return nil, err
	}

	o.metrics.RecordBatch("completed", 1, created)
	o.maybeLearn(ctx)

	return &detail, nil
}

// RunBatchJob executes a batch under a tracker record: counters are written
// after every quote and a cancel request stops the run before the next one.
// Meant to run on its own goroutine; all failures end up on the job record.
func (o *MatchOrchestrator) RunBatchJob(ctx context.Context, jobID uuid.UUID, quoteIDs []uuid.UUID, opts models.MatchOptions) {
	if _, err := o.jobs.SetStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
		o.logger.WithError(err).WithField("job_id", jobID).Error("Failed to start batch job")
		return
	}

	cancelled := false
	result, err := o.runBatch(ctx, quoteIDs, opts, func(result *models.BatchMatchResult) bool {
		attempted := result.Processed + len(result.Errors)
		job, trackErr := o.jobs.UpdateProgress(ctx, jobID, attempted, result.MatchesCreated, result.Errors)
		if trackErr != nil {
			o.logger.WithError(trackErr).WithField("job_id", jobID).Warn("Failed to update batch job progress")
			return true
		}
		if job.CancelRequested {
			cancelled = true
			return false
		}
		return true
	})

	status := models.JobStatusCompleted
	switch {
	case cancelled:
		status = models.JobStatusCancelled
	case err != nil:
		status = models.JobStatusFailed
	}

	if _, statusErr := o.jobs.SetStatus(ctx, jobID, status); statusErr != nil {
		o.logger.WithError(statusErr).WithField("job_id", jobID).Error("Failed to finalize batch job")
	}

	fields := logrus.Fields{"job_id": jobID, "status": status}
	if result != nil {
		fields["processed"] = result.Processed
		fields["matches_created"] = result.MatchesCreated
	}
	o.logger.WithFields(fields).Info("Batch job finished")
}

func (o *MatchOrchestrator) runBatch(ctx context.Context, quoteIDs []uuid.UUID, opts models.MatchOptions, observe batchObserver) (*models.BatchMatchResult, error) {
	opts = o.resolveOptions(opts)
	result := &models.BatchMatchResult{MatchDetails: make([]models.MatchDetail, 0, len(quoteIDs))}

	active, err := o.weights.GetActiveWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active weights: %w", err)
	}

	start := time.Now()
	aborted := false
	var runErr error

	for _, quoteID := range quoteIDs {
		if err := ctx.Err(); err != nil {
			aborted = true
			runErr = err
			break
		}

		detail, created, err := o.processQuote(ctx, quoteID, opts, active)
		result.MatchesCreated += created
		if err != nil {
			o.logger.WithError(err).WithField("quote_id", quoteID).Warn("Quote failed during batch matching")
			result.Errors = append(result.Errors, models.BatchError{QuoteID: quoteID, Message: err.Error()})
		} else {
			result.Processed++
			result.MatchDetails = append(result.MatchDetails, detail)
		}

		if observe != nil && !observe(result) {
			aborted = true
			break
		}
	}

	outcome := "completed"
	if aborted {
		outcome = "cancelled"
	}
	o.metrics.RecordBatch(outcome, result.Processed, result.MatchesCreated)

	o.logger.WithFields(logrus.Fields{
		"quotes":          len(quoteIDs),
		"processed":       result.Processed,
		"matches_created": result.MatchesCreated,
		"errors":          len(result.Errors),
		"weight_version":  active.Version,
		"duration":        time.Since(start),
	}).Info("Batch matching completed")

	if !aborted {
		o.maybeLearn(ctx)
	}

	return result, runErr
}

// processQuote runs the pipeline for one quote against resolved options and
// the batch's weight snapshot. Returns the detail, how many matches were
// persisted, and the quote's error if any step failed.
func (o *MatchOrchestrator) processQuote(ctx context.Context, quoteID uuid.UUID, opts models.MatchOptions, active *models.WeightVectorVersion) (models.MatchDetail, int, error) {
	detail := models.MatchDetail{QuoteID: quoteID}

	quote, err := o.quotes.GetQuoteForMatching(ctx, quoteID)
	if err != nil {
		return detail, 0, err
	}
	if quote == nil {
		return detail, 0, fmt.Errorf("%w: %s", ErrQuoteNotFound, quoteID)
	}

	candidates, err := o.quotes.GetHistoricalQuotesForMatching(ctx, []uuid.UUID{quoteID}, HistoricalQuoteOptions{
		Limit:         o.config.Matching.CandidateLimit,
		OnlyWithPrice: o.config.Matching.OnlyWithPrice,
	})
	if err != nil {
		return detail, 0, err
	}

	feedback := o.loadFeedback(ctx, candidates)
	scored := o.scorer.FindMatches(quote, candidates, active.Weights, opts, feedback)

	var estimate *models.PriceEstimate
	var aiPricing *models.AIPricingDetails
	if len(scored) > 0 {
		estimate = o.estimatePrice(ctx, quote, scored)
		if opts.UseAI {
			aiPricing = o.oraclePricing(ctx, quote, scored)
		}
	}

	// Rematch truth: everything currently live is superseded, then the
	// surviving pairs are re-created (the upsert clears their flag).
	if _, err := o.matches.SupersedeMatchesForQuote(ctx, quote.ID); err != nil {
		return detail, 0, err
	}

	rows := make([]*models.QuoteMatch, 0, len(scored))
	for i := range scored {
		match := scored[i].Match
		match.WeightVersion = active.Version
		if estimate != nil {
			match.SuggestedPrice = &estimate.WeightedAverage
			match.PriceConfidence = &estimate.Confidence
			match.PriceRangeLow = &estimate.Range.Low
			match.PriceRangeHigh = &estimate.Range.High
		}
		if i == 0 {
			match.AIPricing = aiPricing
		}
		o.metrics.ObserveSimilarity(match.SimilarityScore)
		rows = append(rows, &match)
	}

	created := 0
	if len(rows) > 0 {
		created, err = o.matches.CreateQuoteMatchesBulk(ctx, rows)
		if err != nil {
			return detail, created, err
		}
	}

	detail.MatchCount = len(scored)
	if len(scored) > 0 {
		detail.BestScore = scored[0].Match.SimilarityScore
	}
	if estimate != nil {
		detail.SuggestedPrice = &estimate.WeightedAverage
		detail.PriceRange = &estimate.Range
	}
	detail.AIPricing = aiPricing

	o.logger.WithFields(logrus.Fields{
		"quote_id":   quoteID,
		"candidates": len(candidates),
		"matches":    len(scored),
		"created":    created,
		"use_ai":     opts.UseAI,
	}).Debug("Quote matched")

	return detail, created, nil
}

// estimatePrice produces the match-based estimate, blending in lane
// statistics when confidence is low. Estimation failures degrade to no
// suggested price, never to a quote error.
func (o *MatchOrchestrator) estimatePrice(ctx context.Context, quote *models.Quote, scored []ScoredMatch) *models.PriceEstimate {
	estimate, err := o.estimator.Estimate(scored)
	if err != nil {
		if !errors.Is(err, ErrInsufficientPriceData) {
			o.logger.WithError(err).WithField("quote_id", quote.ID).Warn("Price estimation failed")
		}
		return nil
	}

	if estimate.Confidence < o.config.Estimator.LaneConfidenceFloor {
		lane, laneErr := o.lanes.GetLaneStats(ctx, quote)
		if laneErr != nil {
			o.logger.WithError(laneErr).WithField("quote_id", quote.ID).Warn("Lane statistics unavailable")
		} else if blended, blendErr := o.estimator.SuggestPriceWithFeedback(scored, lane); blendErr == nil {
			estimate = blended
		}
	}

	o.metrics.ObserveEstimateConfidence(estimate.Confidence)
	return estimate
}

// oraclePricing asks the pricing oracle and falls back to nil on any
// failure; the match-based estimate already stands on its own.
func (o *MatchOrchestrator) oraclePricing(ctx context.Context, quote *models.Quote, scored []ScoredMatch) *models.AIPricingDetails {
	if o.oracle == nil {
		return nil
	}

	start := time.Now()
	details, err := o.oracle.SuggestPricing(ctx, quote, scored)
	if err != nil {
		o.metrics.ObserveOracleRequest(time.Since(start), true)
		o.logger.WithError(err).WithField("quote_id", quote.ID).Warn("Oracle pricing unavailable, keeping match-based estimate")
		return nil
	}

	o.metrics.ObserveOracleRequest(time.Since(start), false)
	return details
}

// loadFeedback fetches feedback aggregates for the candidate pool. Missing
// feedback only disables the boost, so failures degrade to an empty map.
func (o *MatchOrchestrator) loadFeedback(ctx context.Context, candidates []*models.Quote) map[uuid.UUID]*models.FeedbackData {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.ID)
	}

	feedback, err := o.ledger.FeedbackForQuotes(ctx, ids)
	if err != nil {
		o.logger.WithError(err).Warn("Feedback aggregation unavailable, scoring without boost")
		return nil
	}
	return feedback
}

func (o *MatchOrchestrator) maybeLearn(ctx context.Context) {
	if o.learner == nil || o.schedule == nil || !o.schedule.ShouldLearn() {
		return
	}

	report, err := o.learner.LearnFromFeedback(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("Weight learning failed after batch")
		o.metrics.RecordLearningRun("failed", nil)
		return
	}
	if !report.Ran {
		o.metrics.RecordLearningRun("skipped", nil)
		return
	}
	o.metrics.RecordLearningRun("completed", report.Adjustments)
}

// resolveOptions fills unset options from config. Zero and negative values
// count as unset.
func (o *MatchOrchestrator) resolveOptions(opts models.MatchOptions) models.MatchOptions {
	if opts.MinScore <= 0 {
		opts.MinScore = o.config.Matching.MinScore
	}
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = o.config.Matching.MaxMatches
	}
	return opts
}
