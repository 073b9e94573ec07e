package model

import "time"

type ListingMode string

const (
	ModeExclusive ListingMode = "exclusive"
	ModeAuction   ListingMode = "auction"
)

type ListingStatus string

const (
	ListingOpen      ListingStatus = "open"
	ListingCommitted ListingStatus = "committed"
	ListingCancelled ListingStatus = "cancelled"
	ListingCompleted ListingStatus = "completed"
)

// SwapListing is a booking offered for exchange.
type SwapListing struct {
	ID              string        `json:"id" bson:"_id" validate:"required,uuid"`
	OwnerID         string        `json:"owner_id" bson:"owner_id" validate:"required,max=128"`
	BookingID       string        `json:"booking_id" bson:"booking_id" validate:"required,max=128"`
	Mode            ListingMode   `json:"mode" bson:"mode" validate:"required,oneof=exclusive auction"`
	Status          ListingStatus `json:"status" bson:"status" validate:"required,oneof=open committed cancelled completed"`
	Title           string        `json:"title,omitempty" bson:"title,omitempty" validate:"omitempty,max=200"`
	AuctionDeadline *time.Time    `json:"auction_deadline,omitempty" bson:"auction_deadline,omitempty"`
	AuctionClosedAt *time.Time    `json:"auction_closed_at,omitempty" bson:"auction_closed_at,omitempty"`
	LockVersion     int64         `json:"-" bson:"lock_version"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

func (l *SwapListing) IsOpen() bool {
	return l != nil && l.Status == ListingOpen
}

func (l *SwapListing) IsAuction() bool {
	return l != nil && l.Mode == ModeAuction
}

// AuctionOver reports whether an auction listing stopped taking proposals at now.
func (l *SwapListing) AuctionOver(now time.Time) bool {
	if !l.IsAuction() {
		return false
	}
	if l.AuctionClosedAt != nil {
		return true
	}
	return l.AuctionDeadline != nil && !now.Before(*l.AuctionDeadline)
}

func (l *SwapListing) Clone() *SwapListing {
	if l == nil {
		return nil
	}
	c := *l
	c.AuctionDeadline = cloneTime(l.AuctionDeadline)
	c.AuctionClosedAt = cloneTime(l.AuctionClosedAt)
	return &c
}

type CreateListingRequest struct {
	BookingID       string      `json:"booking_id" validate:"required,max=128"`
	Mode            ListingMode `json:"mode" validate:"required,oneof=exclusive auction"`
	Title           string      `json:"title,omitempty" validate:"omitempty,max=200"`
	AuctionDeadline *time.Time  `json:"auction_deadline,omitempty" validate:"required_if=Mode auction,excluded_if=Mode exclusive"`
}

type ExtendDeadlineRequest struct {
	AuctionDeadline time.Time `json:"auction_deadline" validate:"required"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
