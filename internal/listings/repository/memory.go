package repository

import (
	"context"
	"sort"
	"time"

	listingserrors "bookswap/internal/listings/errors"
	"bookswap/pkg/db/memory"
	"bookswap/pkg/model"
)

type memoryListingRepository struct {
	store *memory.Store
}

var _ ListingRepository = (*memoryListingRepository)(nil)

func NewMemoryListingRepository(store *memory.Store) ListingRepository {
	return &memoryListingRepository{store: store}
}

const bookingsTable = "swap_listing_bookings"

// Create enforces one open listing per booking, as the unique partial index
// does in the other backends.
func (r *memoryListingRepository) Create(ctx context.Context, listing *model.SwapListing) error {
	if memory.InTransaction(ctx) {
		if err := r.store.Lock(ctx, bookingsTable, listing.BookingID); err != nil {
			return err
		}
	}
	if _, exists := r.store.Get(ctx, TableName, listing.ID); exists {
		return listingserrors.ErrDuplicate
	}
	if listing.Status == model.ListingOpen {
		open, _ := r.FindOpenByBooking(ctx, listing.BookingID)
		if len(open) > 0 {
			return listingserrors.ErrDuplicate
		}
	}
	r.store.Put(ctx, TableName, listing.ID, listing.Clone())
	return nil
}

func (r *memoryListingRepository) FindByID(ctx context.Context, id string) (*model.SwapListing, error) {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return nil, listingserrors.ErrNotFound
	}
	return v.(*model.SwapListing).Clone(), nil
}

func (r *memoryListingRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.SwapListing, error) {
	out := make(map[string]*model.SwapListing, len(ids))
	for _, id := range uniqueIDs(ids) {
		if v, ok := r.store.Get(ctx, TableName, id); ok {
			out[id] = v.(*model.SwapListing).Clone()
		}
	}
	return out, nil
}

func (r *memoryListingRepository) scan(ctx context.Context, match func(*model.SwapListing) bool) []*model.SwapListing {
	var out []*model.SwapListing
	r.store.Scan(ctx, TableName, func(_ string, v any) {
		l := v.(*model.SwapListing)
		if match(l) {
			out = append(out, l.Clone())
		}
	})
	return out
}

func (r *memoryListingRepository) FindAll(ctx context.Context, status model.ListingStatus, limit int, offset int64) ([]*model.SwapListing, error) {
	listings := r.scan(ctx, func(l *model.SwapListing) bool {
		return status == "" || l.Status == status
	})
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].ID < listings[j].ID
		}
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return paginate(listings, limit, offset), nil
}

func (r *memoryListingRepository) Count(ctx context.Context, status model.ListingStatus) (int64, error) {
	listings := r.scan(ctx, func(l *model.SwapListing) bool {
		return status == "" || l.Status == status
	})
	return int64(len(listings)), nil
}

func (r *memoryListingRepository) FindOpenByBooking(ctx context.Context, bookingID string) ([]*model.SwapListing, error) {
	return r.scan(ctx, func(l *model.SwapListing) bool {
		return l.BookingID == bookingID && l.Status == model.ListingOpen
	}), nil
}

func (r *memoryListingRepository) FindExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]*model.SwapListing, error) {
	listings := r.scan(ctx, func(l *model.SwapListing) bool {
		return l.IsAuction() && l.IsOpen() && l.AuctionClosedAt == nil &&
			l.AuctionDeadline != nil && !l.AuctionDeadline.After(now)
	})
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].AuctionDeadline.Before(*listings[j].AuctionDeadline)
	})
	return paginate(listings, limit, 0), nil
}

func (r *memoryListingRepository) Lock(ctx context.Context, ids ...string) error {
	ids = uniqueIDs(ids)
	if err := r.store.Lock(ctx, TableName, ids...); err != nil {
		return err
	}
	for _, id := range ids {
		v, ok := r.store.Get(ctx, TableName, id)
		if !ok {
			continue
		}
		l := v.(*model.SwapListing).Clone()
		l.LockVersion++
		r.store.Put(ctx, TableName, id, l)
	}
	return nil
}

func (r *memoryListingRepository) UpdateStatus(ctx context.Context, id string, from, to model.ListingStatus, at time.Time) error {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return listingserrors.ErrNotFound
	}
	l := v.(*model.SwapListing).Clone()
	if l.Status != from {
		return listingserrors.ErrStatusConflict
	}
	l.Status = to
	l.UpdatedAt = at
	r.store.Put(ctx, TableName, id, l)
	return nil
}

func (r *memoryListingRepository) UpdateAuction(ctx context.Context, id string, deadline, closedAt *time.Time, at time.Time) error {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return listingserrors.ErrNotFound
	}
	l := v.(*model.SwapListing).Clone()
	if deadline != nil {
		d := *deadline
		l.AuctionDeadline = &d
	}
	if closedAt != nil {
		c := *closedAt
		l.AuctionClosedAt = &c
	} else {
		l.AuctionClosedAt = nil
	}
	l.UpdatedAt = at
	r.store.Put(ctx, TableName, id, l)
	return nil
}

func paginate[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
