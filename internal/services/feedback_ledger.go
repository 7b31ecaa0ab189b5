package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/messaging"
	"github.com/kha86lilo/quotescan/pkg/models"
)

// FeedbackPublisher decouples the ledger from the Kafka transport.
type FeedbackPublisher interface {
	PublishFeedbackEvent(event messaging.FeedbackEvent) error
}

// FeedbackLedger records human ratings on matches and ground-truth pricing
// outcomes, and fans ratings out as Kafka events. Persistence is the source
// of truth: a failed publish is logged, never surfaced to the reviewer.
type FeedbackLedger struct {
	feedback  *FeedbackRepository
	publisher FeedbackPublisher
	logger    *logrus.Logger
}

func NewFeedbackLedger(feedback *FeedbackRepository, publisher FeedbackPublisher, logger *logrus.Logger) *FeedbackLedger {
	return &FeedbackLedger{
		feedback:  feedback,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitFeedback persists a reviewer's rating for a match and echoes it to
// the feedback topic.
func (l *FeedbackLedger) SubmitFeedback(ctx context.Context, matchID uuid.UUID, req *models.MatchFeedbackRequest) (*models.MatchFeedback, error) {
	feedback := &models.MatchFeedback{
		MatchID:         matchID,
		Reviewer:        req.Reviewer,
		Rating:          req.Rating,
		ReasonCode:      req.ReasonCode,
		Notes:           req.Notes,
		ActualPriceUsed: req.ActualPriceUsed,
	}

	if err := l.feedback.SubmitMatchFeedback(ctx, feedback); err != nil {
		return nil, err
	}

	l.publish(feedback)
	return feedback, nil
}

// HandleFeedbackEvent lands a feedback event from the topic into the ledger.
// Events echoed by this service's own HTTP path are skipped; they are
// already persisted.
func (l *FeedbackLedger) HandleFeedbackEvent(event messaging.FeedbackEvent) error {
	if event.Source == messaging.FeedbackSourceAPI {
		return nil
	}

	feedback := &models.MatchFeedback{
		MatchID:         event.MatchID,
		Reviewer:        event.Reviewer,
		Rating:          event.Rating,
		ReasonCode:      event.ReasonCode,
		Notes:           event.Notes,
		ActualPriceUsed: event.ActualPriceUsed,
		CreatedAt:       event.Timestamp,
	}

	return l.feedback.SubmitMatchFeedback(context.Background(), feedback)
}

// FeedbackForQuotes aggregates feedback per historical quote for the scorer's
// boost pass.
func (l *FeedbackLedger) FeedbackForQuotes(ctx context.Context, quoteIDs []uuid.UUID) (map[uuid.UUID]*models.FeedbackData, error) {
	return l.feedback.GetFeedbackForHistoricalQuotes(ctx, quoteIDs)
}

// Statistics returns ledger-wide totals.
func (l *FeedbackLedger) Statistics(ctx context.Context, filters models.FeedbackFilters) (*models.FeedbackStatistics, error) {
	return l.feedback.GetFeedbackStatistics(ctx, filters)
}

// RecordPricingOutcome persists ground truth against a quote.
func (l *FeedbackLedger) RecordPricingOutcome(ctx context.Context, quoteID uuid.UUID, req *models.PricingOutcomeRequest) (*models.PricingOutcome, error) {
	outcome := &models.PricingOutcome{
		QuoteID:             quoteID,
		ActualPriceQuoted:   req.ActualPriceQuoted,
		ActualPriceAccepted: req.ActualPriceAccepted,
		JobWon:              req.JobWon,
	}

	if err := l.feedback.RecordPricingOutcome(ctx, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (l *FeedbackLedger) publish(feedback *models.MatchFeedback) {
	if l.publisher == nil {
		return
	}

	event := messaging.FeedbackEvent{
		MatchID:         feedback.MatchID,
		Reviewer:        feedback.Reviewer,
		Rating:          feedback.Rating,
		ReasonCode:      feedback.ReasonCode,
		Notes:           feedback.Notes,
		ActualPriceUsed: feedback.ActualPriceUsed,
		Source:          messaging.FeedbackSourceAPI,
		Timestamp:       feedback.CreatedAt,
	}

	if err := l.publisher.PublishFeedbackEvent(event); err != nil {
		l.logger.WithError(err).WithField("match_id", feedback.MatchID).Warn("Feedback persisted but event publish failed")
	}
}
