package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
)

const (
	DefaultFeedbackEventsTopic = "quotescan.feedback.events"

	// FeedbackSourceAPI marks events echoed by this service's own HTTP
	// path; the consumer skips them since the rating is already persisted.
	FeedbackSourceAPI      = "api"
	FeedbackSourceExternal = "external"

	maxProcessRetries = 3
)

// FeedbackEvent is the wire shape for match feedback flowing through Kafka.
// Reviewers working in external tools (the email pipeline's review UI) emit
// these; the consumer loop lands them in the feedback ledger.
type FeedbackEvent struct {
	EventID         uuid.UUID `json:"event_id"`
	MatchID         uuid.UUID `json:"match_id"`
	Reviewer        string    `json:"reviewer"`
	Rating          int       `json:"rating"`
	ReasonCode      *string   `json:"reason_code,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	ActualPriceUsed *float64  `json:"actual_price_used,omitempty"`
	Source          string    `json:"source,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	RetryCount      int       `json:"retry_count"`
}

type MessageBus struct {
	writer    *kafka.Writer
	reader    *kafka.Reader
	dlqWriter *kafka.Writer
	topic     string
	logger    *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	topic := cfg.Kafka.Topics.FeedbackEvents
	if topic == "" {
		topic = DefaultFeedbackEventsTopic
	}
	dlqTopic := topic + ".dlq"

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Key by match id so ratings for one match stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Compression:  kafka.Snappy,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        cfg.Kafka.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        dlqTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		writer:    writer,
		reader:    reader,
		dlqWriter: dlqWriter,
		topic:     topic,
		logger:    logger,
	}, nil
}

// PublishFeedbackEvent emits one feedback event so downstream consumers
// (analytics, the learner pipeline) see ratings as they land.
func (mb *MessageBus) PublishFeedbackEvent(event FeedbackEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback event: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(event.MatchID.String()),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("match_feedback")},
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "match_id", Value: []byte(event.MatchID.String())},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		mb.logger.WithError(err).WithField("match_id", event.MatchID).Error("Failed to publish feedback event to Kafka")
		return fmt.Errorf("failed to write feedback event to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"match_id": event.MatchID,
		"rating":   event.Rating,
		"topic":    mb.topic,
	}).Debug("Feedback event published to Kafka")

	return nil
}

// ConsumeFeedbackEvents reads feedback events until ctx is cancelled, calling
// handler for each. Events that keep failing after retries go to the DLQ.
func (mb *MessageBus) ConsumeFeedbackEvents(ctx context.Context, handler func(FeedbackEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read feedback event from Kafka")
				continue
			}

			var event FeedbackEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal feedback event")
				continue
			}

			if err := mb.processWithRetry(ctx, event, handler); err != nil {
				mb.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to process feedback event after retries")

				if dlqErr := mb.sendToDLQ(ctx, event, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send feedback event to DLQ")
				}
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, event FeedbackEvent, handler func(FeedbackEvent) error) error {
	baseDelay := time.Second

	for attempt := 0; attempt <= maxProcessRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying feedback event processing")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		event.RetryCount = attempt
		if err := handler(event); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
			}).Warn("Feedback event processing failed")

			if attempt == maxProcessRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, event FeedbackEvent, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_event": event,
		"error":          originalError.Error(),
		"dlq_timestamp":  time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(event.MatchID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"error":    originalError.Error(),
	}).Warn("Feedback event sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.writer.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close producer: %w", err))
	}

	if err := mb.reader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}

	return nil
}

// GetMetrics returns Kafka consumer metrics for monitoring.
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
