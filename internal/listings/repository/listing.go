package repository

import (
	"context"
	"time"

	"bookswap/pkg/model"
)

const (
	CollectionName = "Swap_listings"
	TableName      = "swap_listings"
)

// ListingRepository is the Listing Store. All methods run inside the
// transaction carried by ctx when there is one.
type ListingRepository interface {
	Create(ctx context.Context, listing *model.SwapListing) error
	FindByID(ctx context.Context, id string) (*model.SwapListing, error)
	// FindByIDs returns the listings found, keyed by id. Missing ids are absent.
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.SwapListing, error)
	// FindAll lists listings newest first. An empty status matches every status.
	FindAll(ctx context.Context, status model.ListingStatus, limit int, offset int64) ([]*model.SwapListing, error)
	Count(ctx context.Context, status model.ListingStatus) (int64, error)
	FindOpenByBooking(ctx context.Context, bookingID string) ([]*model.SwapListing, error)
	// FindExpiredAuctions returns open auctions whose deadline is at or before now
	// and that have not been closed yet.
	FindExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]*model.SwapListing, error)
	// Lock marks the listings as written by the current transaction, so a
	// concurrent transaction deciding on the same listings conflicts and retries.
	Lock(ctx context.Context, ids ...string) error
	// UpdateStatus moves a listing from one status to another, failing with
	// ErrStatusConflict when it is not in from.
	UpdateStatus(ctx context.Context, id string, from, to model.ListingStatus, at time.Time) error
	// UpdateAuction sets the deadline when non-nil and replaces the closed
	// marker; a nil closedAt reopens the auction.
	UpdateAuction(ctx context.Context, id string, deadline, closedAt *time.Time, at time.Time) error
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
