package services

import (
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/internal/database"
	"github.com/kha86lilo/quotescan/internal/messaging"
	"github.com/kha86lilo/quotescan/internal/validation"
)

type Services struct {
	Auth         *AuthService
	RateLimit    *RateLimitService
	Health       *HealthService
	MessageBus   *messaging.MessageBus
	Normalizer   *QuoteNormalizer
	Quotes       *QuoteRepository
	Matches      *MatchRepository
	Weights      *WeightManager
	Ledger       *FeedbackLedger
	Scorer       *SimilarityScorer
	Estimator    *PriceEstimator
	LaneStats    *LaneStatsService
	Oracle       *PricingOracleAdapter
	Learner      *WeightLearner
	JobTracker   *JobTracker
	Metrics      *MetricsCollector
	Orchestrator *MatchOrchestrator
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis)
	rateLimit := NewRateLimitService(cfg, logger, db.Redis)
	healthService := NewHealthService(cfg, logger, db)

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	normalizer := NewQuoteNormalizer(logger)
	quotes := NewQuoteRepository(db.PG, logger)
	matches := NewMatchRepository(db.PG, logger)
	feedbackRepo := NewFeedbackRepository(db.PG, logger)
	weights := NewWeightManager(db.PG, logger)

	ledger := NewFeedbackLedger(feedbackRepo, messageBus, logger)
	scorer := NewSimilarityScorer(normalizer, &cfg.Matching, logger)
	estimator := NewPriceEstimator(&cfg.Estimator, logger)
	laneStats := NewLaneStatsService(db.PG, db.Redis, normalizer, cfg, logger)

	// A disabled oracle stays nil; the orchestrator then skips AI pricing
	// regardless of per-request use_ai flags.
	var oracle *PricingOracleAdapter
	if cfg.Oracle.Enabled {
		oracle = NewPricingOracleAdapter(&cfg.Oracle, validator, normalizer, logger)
	}

	learner := NewWeightLearner(feedbackRepo, weights, &cfg.Learning, logger)
	jobTracker := NewJobTracker(db.Redis, &cfg.Jobs, logger)
	metrics := NewMetricsCollector()

	orchestrator := NewMatchOrchestrator(
		quotes, matches, ledger, weights, scorer, estimator, laneStats,
		oracle, learner, NewEveryNBatches(cfg.Learning.EveryNBatches),
		jobTracker, metrics, cfg, logger,
	)

	return &Services{
		Auth:         authService,
		RateLimit:    rateLimit,
		Health:       healthService,
		MessageBus:   messageBus,
		Normalizer:   normalizer,
		Quotes:       quotes,
		Matches:      matches,
		Weights:      weights,
		Ledger:       ledger,
		Scorer:       scorer,
		Estimator:    estimator,
		LaneStats:    laneStats,
		Oracle:       oracle,
		Learner:      learner,
		JobTracker:   jobTracker,
		Metrics:      metrics,
		Orchestrator: orchestrator,
	}, nil
}
