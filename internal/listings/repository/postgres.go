package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	listingserrors "bookswap/internal/listings/errors"
	"bookswap/pkg/db/postgres"
	"bookswap/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const listingColumns = `id, owner_id, booking_id, mode, status, title, auction_deadline,
	auction_closed_at, lock_version, created_at, updated_at`

type postgresListingRepository struct {
	pool *pgxpool.Pool
}

var _ ListingRepository = (*postgresListingRepository)(nil)

func NewPostgresListingRepository(pool *pgxpool.Pool) ListingRepository {
	return &postgresListingRepository{pool: pool}
}

func (r *postgresListingRepository) Create(ctx context.Context, l *model.SwapListing) error {
	_, err := postgres.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO swap_listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.OwnerID, l.BookingID, string(l.Mode), string(l.Status), l.Title,
		l.AuctionDeadline, l.AuctionClosedAt, l.LockVersion, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if postgres.IsDuplicateKey(err) {
			return listingserrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create swap listing: %w", err)
	}
	return nil
}

func (r *postgresListingRepository) FindByID(ctx context.Context, id string) (*model.SwapListing, error) {
	row := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+listingColumns+` FROM swap_listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, listingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find swap listing: %w", err)
	}
	return l, nil
}

func (r *postgresListingRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.SwapListing, error) {
	listings, err := r.query(ctx,
		`SELECT `+listingColumns+` FROM swap_listings WHERE id = ANY($1)`, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.SwapListing, len(listings))
	for _, l := range listings {
		out[l.ID] = l
	}
	return out, nil
}

func (r *postgresListingRepository) FindAll(ctx context.Context, status model.ListingStatus, limit int, offset int64) ([]*model.SwapListing, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	return r.query(ctx, `
		SELECT `+listingColumns+` FROM swap_listings
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		string(status), lim, offset)
}

func (r *postgresListingRepository) Count(ctx context.Context, status model.ListingStatus) (int64, error) {
	var count int64
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM swap_listings WHERE ($1 = '' OR status = $1)`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count swap listings: %w", err)
	}
	return count, nil
}

func (r *postgresListingRepository) FindOpenByBooking(ctx context.Context, bookingID string) ([]*model.SwapListing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM swap_listings WHERE booking_id = $1 AND status = 'open'`, bookingID)
}

func (r *postgresListingRepository) FindExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]*model.SwapListing, error) {
	return r.query(ctx, `
		SELECT `+listingColumns+` FROM swap_listings
		WHERE mode = 'auction' AND status = 'open' AND auction_closed_at IS NULL AND auction_deadline <= $1
		ORDER BY auction_deadline
		LIMIT $2`, now, limit)
}

// Lock takes row locks in id order and bumps lock_version. Under REPEATABLE
// READ a row committed by another transaction after our snapshot raises a
// serialization failure, which the transaction manager retries.
func (r *postgresListingRepository) Lock(ctx context.Context, ids ...string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := postgres.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE swap_listings SET lock_version = lock_version + 1
		WHERE id IN (SELECT id FROM swap_listings WHERE id = ANY($1) ORDER BY id FOR UPDATE)`, ids)
	if err != nil {
		return fmt.Errorf("failed to lock swap listings: %w", err)
	}
	return nil
}

func (r *postgresListingRepository) UpdateStatus(ctx context.Context, id string, from, to model.ListingStatus, at time.Time) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE swap_listings SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("failed to update swap listing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return listingserrors.ErrStatusConflict
	}
	return nil
}

func (r *postgresListingRepository) UpdateAuction(ctx context.Context, id string, deadline, closedAt *time.Time, at time.Time) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE swap_listings
		SET auction_deadline = COALESCE($2, auction_deadline), auction_closed_at = $3, updated_at = $4
		WHERE id = $1`, id, deadline, closedAt, at)
	if err != nil {
		return fmt.Errorf("failed to update swap listing auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return listingserrors.ErrNotFound
	}
	return nil
}

func (r *postgresListingRepository) query(ctx context.Context, sql string, args ...any) ([]*model.SwapListing, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap listings: %w", err)
	}
	defer rows.Close()

	var listings []*model.SwapListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(row pgx.Row) (*model.SwapListing, error) {
	var (
		l            model.SwapListing
		mode, status string
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.BookingID, &mode, &status, &l.Title,
		&l.AuctionDeadline, &l.AuctionClosedAt, &l.LockVersion, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Mode = model.ListingMode(mode)
	l.Status = model.ListingStatus(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}
