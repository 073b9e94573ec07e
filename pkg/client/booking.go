package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var ErrBookingNotFound = errors.New("booking not found")

// Booking statuses reported by the Booking Service.
const (
	BookingConfirmed   = "confirmed"
	BookingPending     = "pending"
	BookingCancelled   = "cancelled"
	BookingTransferred = "transferred"
)

// Booking is the subset of the Booking Service record this service reads.
type Booking struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Status  string `json:"status"`
}

// BookingClient reads booking ownership and availability from the Booking Service.
type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseURL string, timeout time.Duration) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseURL, timeout),
	}
}

func (c *BookingClient) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/bookings/id/"+url.PathEscape(bookingID))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrBookingNotFound
	default:
		return nil, fmt.Errorf("booking service returned %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return nil, fmt.Errorf("could not decode booking wrapper: %w", err)
	}

	var booking Booking
	if err := json.Unmarshal(wrapper.Data, &booking); err != nil {
		return nil, fmt.Errorf("could not decode booking json: %w", err)
	}
	return &booking, nil
}

func (c *BookingClient) GetBookingOwner(ctx context.Context, bookingID string) (string, error) {
	booking, err := c.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	return booking.OwnerID, nil
}

// IsBookingAvailable reports whether the booking can still be offered for a swap.
func (c *BookingClient) IsBookingAvailable(ctx context.Context, bookingID string) (bool, error) {
	booking, err := c.GetBooking(ctx, bookingID)
	if errors.Is(err, ErrBookingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return booking.Status == BookingConfirmed, nil
}
