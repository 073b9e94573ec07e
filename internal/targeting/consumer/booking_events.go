// Package consumer reacts to Booking Service events: a booking that is
// cancelled or transferred can no longer be swapped by its listing owner.
package consumer

import (
	"context"

	"bookswap/internal/targeting/service"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/kafka"
	"bookswap/pkg/logger"
)

const (
	EventBookingCancelled   = "booking.cancelled"
	EventBookingTransferred = "booking.transferred"
)

// BookingEvent is the payload published by the Booking Service.
type BookingEvent struct {
	EventType string `json:"event_type"`
	BookingID string `json:"booking_id"`
	OwnerID   string `json:"owner_id,omitempty"`
}

type BookingEventHandler struct {
	service service.TargetingService
	log     *logger.Logger
}

func NewBookingEventHandler(service service.TargetingService, log *logger.Logger) *BookingEventHandler {
	return &BookingEventHandler{service: service, log: log}
}

// Handle is a kafka.MessageHandler. Listing lookups that fail for transient
// reasons are retried by the consumer; malformed events go to the DLQ.
func (h *BookingEventHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event BookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("deserialization failed for booking event", err)
	}
	if event.EventType == "" {
		event.EventType = msg.GetEventType()
	}

	switch event.EventType {
	case EventBookingCancelled, EventBookingTransferred:
	default:
		h.log.Debug("Ignoring booking event", "event_type", event.EventType, "event_id", msg.GetEventID())
		return nil
	}
	if event.BookingID == "" {
		return kafka.NewPermanentError("invalid message: booking_id is required", kafka.ErrInvalidMessage)
	}

	cancelled, err := h.service.CancelListingsForBooking(ctx, event.BookingID)
	if err != nil {
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			return kafka.NewTransientError("failed to cancel listings for booking", err).
				WithDetail("booking_id", event.BookingID)
		}
		return kafka.NewBusinessError("booking event rejected", err).
			WithDetail("booking_id", event.BookingID)
	}

	h.log.Info("Booking event processed",
		"event_type", event.EventType,
		"booking_id", event.BookingID,
		"cancelled_listings", cancelled,
	)
	return nil
}
