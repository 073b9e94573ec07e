package consumer

import (
	"context"
	"errors"
	"testing"

	"bookswap/internal/targeting/service"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/kafka"
	"bookswap/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	service.TargetingService
	cancelFunc func(ctx context.Context, bookingID string) (int, error)
	calls      []string
}

func (m *mockService) CancelListingsForBooking(ctx context.Context, bookingID string) (int, error) {
	m.calls = append(m.calls, bookingID)
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, bookingID)
	}
	return 1, nil
}

func message(event BookingEvent) kafka.Message {
	return kafka.NewMessage().
		WithKey(event.BookingID).
		WithValue(event).
		WithEventType(event.EventType).
		Build()
}

func kafkaErrorType(t *testing.T, err error) kafka.ErrorType {
	t.Helper()
	var kerr *kafka.KafkaError
	require.ErrorAs(t, err, &kerr)
	return kerr.Type
}

func TestHandle_CancelsListings(t *testing.T) {
	for _, eventType := range []string{EventBookingCancelled, EventBookingTransferred} {
		t.Run(eventType, func(t *testing.T) {
			svc := &mockService{}
			h := NewBookingEventHandler(svc, logger.Discard())

			err := h.Handle(context.Background(), message(BookingEvent{EventType: eventType, BookingID: "bk-1"}))
			require.NoError(t, err)
			assert.Equal(t, []string{"bk-1"}, svc.calls)
		})
	}
}

func TestHandle_EventTypeFromHeader(t *testing.T) {
	svc := &mockService{}
	h := NewBookingEventHandler(svc, logger.Discard())

	msg := kafka.NewMessage().
		WithValue(map[string]string{"booking_id": "bk-2"}).
		WithEventType(EventBookingCancelled).
		Build()
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []string{"bk-2"}, svc.calls)
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	svc := &mockService{}
	h := NewBookingEventHandler(svc, logger.Discard())

	err := h.Handle(context.Background(), message(BookingEvent{EventType: "booking.confirmed", BookingID: "bk-1"}))
	require.NoError(t, err)
	assert.Empty(t, svc.calls)
}

func TestHandle_Failures(t *testing.T) {
	tests := []struct {
		name     string
		msg      kafka.Message
		cancel   func(ctx context.Context, bookingID string) (int, error)
		wantType kafka.ErrorType
	}{
		{
			name:     "undecodable payload",
			msg:      kafka.NewMessage().WithRawValue([]byte("{not json")).Build(),
			wantType: kafka.ErrorTypePermanent,
		},
		{
			name:     "missing booking id",
			msg:      message(BookingEvent{EventType: EventBookingCancelled}),
			wantType: kafka.ErrorTypePermanent,
		},
		{
			name: "store unavailable",
			msg:  message(BookingEvent{EventType: EventBookingCancelled, BookingID: "bk-1"}),
			cancel: func(context.Context, string) (int, error) {
				return 0, apperrors.RetryLater(errors.New("conflict"))
			},
			wantType: kafka.ErrorTypeTransient,
		},
		{
			name: "refused",
			msg:  message(BookingEvent{EventType: EventBookingCancelled, BookingID: "bk-1"}),
			cancel: func(context.Context, string) (int, error) {
				return 0, apperrors.InvalidInput("booking ID is required")
			},
			wantType: kafka.ErrorTypeBusiness,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBookingEventHandler(&mockService{cancelFunc: tt.cancel}, logger.Discard())
			err := h.Handle(context.Background(), tt.msg)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, kafkaErrorType(t, err))
		})
	}
}
