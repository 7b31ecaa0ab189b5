package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessageBus() *MessageBus {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &MessageBus{topic: DefaultFeedbackEventsTopic, logger: logger}
}

func testEvent() FeedbackEvent {
	return FeedbackEvent{
		EventID:  uuid.New(),
		MatchID:  uuid.New(),
		Reviewer: "external-review-ui",
		Rating:   1,
		Source:   FeedbackSourceExternal,
	}
}

func TestProcessWithRetry_FirstAttemptSucceeds(t *testing.T) {
	bus := testMessageBus()

	calls := 0
	var seenRetryCount int
	err := bus.processWithRetry(context.Background(), testEvent(), func(event FeedbackEvent) error {
		calls++
		seenRetryCount = event.RetryCount
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, seenRetryCount)
}

func TestProcessWithRetry_RecoversAfterFailure(t *testing.T) {
	bus := testMessageBus()

	calls := 0
	err := bus.processWithRetry(context.Background(), testEvent(), func(event FeedbackEvent) error {
		calls++
		if calls == 1 {
			return errors.New("ledger write failed")
		}
		// The retry count travels with the event so the handler can see it.
		assert.Equal(t, 1, event.RetryCount)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestProcessWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	bus := testMessageBus()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := bus.processWithRetry(ctx, testEvent(), func(event FeedbackEvent) error {
		return errors.New("ledger write failed")
	})

	assert.ErrorIs(t, err, context.Canceled)
	// Cancellation must cut the backoff short instead of sleeping it out.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
