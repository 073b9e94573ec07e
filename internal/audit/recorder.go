package audit

import (
	"context"
	"fmt"

	"bookswap/pkg/kafka"
	"bookswap/pkg/logger"
)

const sourceName = "bookswap"

// Recorder is the ledger/audit collaborator. The returned reference
// identifies the recorded entry.
type Recorder interface {
	Record(ctx context.Context, eventType string, payload map[string]any) (string, error)
}

// Notifier delivers a user-facing notification for an event.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload map[string]any) error
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaRecorder appends events to the audit topic, keyed by aggregate so
// the history of one listing or proposal stays ordered.
type KafkaRecorder struct {
	publisher Publisher
}

func NewKafkaRecorder(publisher Publisher) *KafkaRecorder {
	return &KafkaRecorder{publisher: publisher}
}

// Record returns the event id as the transaction reference. Consumers
// deduplicate on it, since the relay delivers at least once.
func (r *KafkaRecorder) Record(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	eventID := stringField(payload, FieldEventID)
	key := stringField(payload, FieldAggregateID)
	if key == "" {
		key = eventID
	}

	msg := kafka.NewMessage().
		WithKey(key).
		WithValue(payload).
		WithEventID(eventID).
		WithEventType(eventType).
		WithSource(sourceName).
		WithSchemaVersion("1").
		Build()

	if err := r.publisher.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to record %s: %w", eventType, err)
	}
	return msg.GetEventID(), nil
}

type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, eventType string, payload map[string]any) error {
	msg := kafka.NewMessage().
		WithKey(userID).
		WithValue(payload).
		WithEventType(eventType).
		WithCorrelationID(stringField(payload, FieldEventID)).
		WithRecipient(userID).
		WithSource(sourceName).
		Build()

	if err := n.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to notify %s of %s: %w", userID, eventType, err)
	}
	return nil
}

// LogRecorder is used when no broker is configured.
type LogRecorder struct {
	log *logger.Logger
}

func NewLogRecorder(log *logger.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(_ context.Context, eventType string, payload map[string]any) (string, error) {
	eventID := stringField(payload, FieldEventID)
	r.log.Info("Audit event recorded",
		"event_type", eventType,
		"event_id", eventID,
		"aggregate_id", stringField(payload, FieldAggregateID),
	)
	return "log:" + eventID, nil
}

type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, userID, eventType string, payload map[string]any) error {
	n.log.Info("Notification",
		"user_id", userID,
		"event_type", eventType,
		"aggregate_id", stringField(payload, FieldAggregateID),
	)
	return nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
