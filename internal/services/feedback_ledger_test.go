package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kha86lilo/quotescan/internal/messaging"
	"github.com/kha86lilo/quotescan/pkg/models"
)

type capturingPublisher struct {
	events []messaging.FeedbackEvent
	err    error
}

func (p *capturingPublisher) PublishFeedbackEvent(event messaging.FeedbackEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func newTestLedger(t *testing.T, publisher FeedbackPublisher) (*FeedbackLedger, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := testRepoLogger()
	ledger := NewFeedbackLedger(NewFeedbackRepository(mockDB, logger), publisher, logger)
	return ledger, mockDB
}

func TestFeedbackLedger_SubmitFeedbackPublishesEvent(t *testing.T) {
	publisher := &capturingPublisher{}
	ledger, mockDB := newTestLedger(t, publisher)

	matchID := uuid.New()
	feedbackID := uuid.New()

	mockDB.ExpectQuery("INSERT INTO match_feedback").
		WithArgs(pgxmock.AnyArg(), matchID, "ops@freightco", 1, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(feedbackID))

	feedback, err := ledger.SubmitFeedback(context.Background(), matchID, &models.MatchFeedbackRequest{
		Reviewer: "ops@freightco",
		Rating:   1,
	})

	require.NoError(t, err)
	assert.Equal(t, feedbackID, feedback.ID)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, matchID, event.MatchID)
	assert.Equal(t, "ops@freightco", event.Reviewer)
	assert.Equal(t, 1, event.Rating)
	assert.Equal(t, messaging.FeedbackSourceAPI, event.Source)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestFeedbackLedger_SubmitFeedbackToleratesPublishFailure(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("broker down")}
	ledger, mockDB := newTestLedger(t, publisher)

	matchID := uuid.New()
	mockDB.ExpectQuery("INSERT INTO match_feedback").
		WithArgs(pgxmock.AnyArg(), matchID, "ops@freightco", -1, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	feedback, err := ledger.SubmitFeedback(context.Background(), matchID, &models.MatchFeedbackRequest{
		Reviewer: "ops@freightco",
		Rating:   -1,
	})

	// The rating is in the ledger; a dead broker must not fail the request.
	require.NoError(t, err)
	assert.NotNil(t, feedback)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestFeedbackLedger_SubmitFeedbackWithoutPublisher(t *testing.T) {
	ledger, mockDB := newTestLedger(t, nil)

	matchID := uuid.New()
	mockDB.ExpectQuery("INSERT INTO match_feedback").
		WithArgs(pgxmock.AnyArg(), matchID, "ops@freightco", 1, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	_, err := ledger.SubmitFeedback(context.Background(), matchID, &models.MatchFeedbackRequest{
		Reviewer: "ops@freightco",
		Rating:   1,
	})
	require.NoError(t, err)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestFeedbackLedger_SubmitFeedbackWriteFailureSkipsPublish(t *testing.T) {
	publisher := &capturingPublisher{}
	ledger, mockDB := newTestLedger(t, publisher)

	matchID := uuid.New()
	mockDB.ExpectQuery("INSERT INTO match_feedback").
		WithArgs(pgxmock.AnyArg(), matchID, "ops@freightco", 1, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := ledger.SubmitFeedback(context.Background(), matchID, &models.MatchFeedbackRequest{
		Reviewer: "ops@freightco",
		Rating:   1,
	})

	require.Error(t, err)
	assert.Empty(t, publisher.events)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestFeedbackLedger_HandleFeedbackEventSkipsOwnEcho(t *testing.T) {
	ledger, mockDB := newTestLedger(t, nil)

	err := ledger.HandleFeedbackEvent(messaging.FeedbackEvent{
		MatchID:  uuid.New(),
		Reviewer: "ops@freightco",
		Rating:   1,
		Source:   messaging.FeedbackSourceAPI,
	})

	require.NoError(t, err)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestFeedbackLedger_HandleFeedbackEventPersistsExternal(t *testing.T) {
	ledger, mockDB := newTestLedger(t, nil)

	matchID := uuid.New()
	recordedAt := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	mockDB.ExpectQuery("INSERT INTO match_feedback").
		WithArgs(pgxmock.AnyArg(), matchID, "partner-tms", -1, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), recordedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	err := ledger.HandleFeedbackEvent(messaging.FeedbackEvent{
		MatchID:   matchID,
		Reviewer:  "partner-tms",
		Rating:    -1,
		Source:    messaging.FeedbackSourceExternal,
		Timestamp: recordedAt,
	})

	require.NoError(t, err)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestFeedbackLedger_RecordPricingOutcome(t *testing.T) {
	ledger, mockDB := newTestLedger(t, nil)

	quoteID := uuid.New()
	quoted := 3100.0
	won := true

	mockDB.ExpectExec("INSERT INTO pricing_outcomes").
		WithArgs(quoteID, &quoted, pgxmock.AnyArg(), &won, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	outcome, err := ledger.RecordPricingOutcome(context.Background(), quoteID, &models.PricingOutcomeRequest{
		ActualPriceQuoted: &quoted,
		JobWon:            &won,
	})

	require.NoError(t, err)
	assert.Equal(t, quoteID, outcome.QuoteID)
	require.NotNil(t, outcome.JobWon)
	assert.True(t, *outcome.JobWon)
	require.NoError(t, mockDB.ExpectationsWereMet())
}
