package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bookswap/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	err     error
	written []kafka.Message
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestMessageBuilder_SetsStandardHeaders(t *testing.T) {
	msg := NewMessage().
		WithKey("listing-1").
		WithValue(map[string]string{"edge_id": "e-1"}).
		WithEventType("swap.proposal.created").
		WithEventID("evt-1").
		WithRecipient("user-1").
		Build()

	assert.Equal(t, "listing-1", msg.Key)
	assert.Equal(t, "evt-1", msg.GetEventID())
	assert.Equal(t, "swap.proposal.created", msg.GetEventType())
	assert.Equal(t, "user-1", msg.Headers[HeaderRecipientID])
	assert.NotEmpty(t, msg.Headers[HeaderTimestamp])

	var decoded map[string]string
	require.NoError(t, msg.DecodeValue(&decoded))
	assert.Equal(t, "e-1", decoded["edge_id"])
}

func TestMessageBuilder_GeneratesEventID(t *testing.T) {
	msg := NewMessage().WithKey("k").WithRawValue([]byte("{}")).Build()
	assert.NotEmpty(t, msg.GetEventID())
}

func TestMessage_RetryCount(t *testing.T) {
	msg := NewMessage().Build()
	assert.Equal(t, 0, msg.GetRetryCount())

	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	assert.Equal(t, 12, msg.GetRetryCount())
}

func TestProducer_PublishRejectsInvalidMessages(t *testing.T) {
	p := newProducer(&fakeWriter{}, nil, "swap-audit", "")

	err := p.Publish(context.Background(), NewMessage().WithRawValue([]byte("{}")).Build())
	assert.ErrorIs(t, err, ErrEmptyKey)

	err = p.Publish(context.Background(), NewMessage().WithKey("k").Build())
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestProducer_MiddlewareOrder(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "swap-audit", "")

	var calls []string
	for _, name := range []string{"first", "second"} {
		name := name
		p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
			calls = append(calls, name)
			assert.Equal(t, "swap-audit", msg.Topic)
			return next(ctx, msg)
		})
	}

	require.NoError(t, p.Publish(context.Background(), NewMessage().WithKey("k").WithValue("v").Build()))
	assert.Equal(t, []string{"first", "second"}, calls)
	require.Len(t, w.written, 1)
	assert.Equal(t, "k", string(w.written[0].Key))
}

func TestProducer_FailedWriteGoesToDLQ(t *testing.T) {
	writeErr := errors.New("connection refused")
	dlq := &fakeWriter{}
	p := newProducer(&fakeWriter{err: writeErr}, dlq, "swap-audit", "bookswap-dlq")

	msg := NewMessage().WithKey("k").WithValue("v").Build()
	err := p.Publish(context.Background(), msg)

	assert.ErrorIs(t, err, writeErr)
	require.Len(t, dlq.written, 1)
	assert.Equal(t, "swap-audit", header(dlq.written[0], HeaderOriginalTopic))
	assert.Equal(t, "connection refused", header(dlq.written[0], "dlq-error"))
	assert.NotContains(t, msg.Headers, HeaderOriginalTopic)
}

func TestProducer_ClosedRejectsPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "swap-audit", "")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), NewMessage().WithKey("k").WithValue("v").Build()), ErrProducerClosed)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "nil", err: nil, want: ErrorTypeUnknown},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorTypeTransient},
		{name: "network text", err: errors.New("dial tcp: Connection Refused"), want: ErrorTypeTransient},
		{name: "typed transient", err: NewTransientError("store busy", nil), want: ErrorTypeTransient},
		{name: "business", err: NewBusinessError("listing gone", nil), want: ErrorTypeBusiness},
		{name: "schema", err: errors.New("schema mismatch on field"), want: ErrorTypePermanent},
		{name: "unknown", err: errors.New("boom"), want: ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestConsumer_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	c := newConsumer(nil, nil, "booking-events", "bookswap", "", func(ctx context.Context, msg Message) error {
		calls++
		if calls < 3 {
			return NewTransientError("try again", nil)
		}
		return nil
	}, logger.Discard())
	c.retryBackoff = 0

	require.NoError(t, c.processMessage(context.Background(), NewMessage().WithKey("k").WithValue("v").Build()))
	assert.Equal(t, 3, calls)
}

func TestConsumer_PermanentFailureGoesToDLQ(t *testing.T) {
	dlq := &fakeWriter{}
	calls := 0
	c := newConsumer(nil, dlq, "booking-events", "bookswap", "bookswap-dlq", func(ctx context.Context, msg Message) error {
		calls++
		return NewPermanentError("bad payload", nil)
	}, logger.Discard())

	err := c.processMessage(context.Background(), NewMessage().WithKey("k").WithValue("v").Build())

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, dlq.written, 1)
	assert.Equal(t, "bookswap", header(dlq.written[0], "dlq-consumer-group"))
}

func TestConsumer_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	c := newConsumer(nil, nil, "booking-events", "bookswap", "", func(ctx context.Context, msg Message) error {
		calls++
		return NewTransientError("still down", nil)
	}, logger.Discard())
	c.retryBackoff = 0
	c.maxRetries = 2

	require.Error(t, c.processMessage(context.Background(), NewMessage().WithKey("k").WithValue("v").Build()))
	assert.Equal(t, 3, calls)
}
