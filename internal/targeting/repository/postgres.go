package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/pkg/db/postgres"
	"bookswap/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const edgeColumns = `id, source_listing_id, target_listing_id, source_owner_id, target_owner_id,
	status, message, conditions, cash_amount_minor, cash_currency, created_at, expires_at,
	resolved_at, resolution`

type postgresEdgeRepository struct {
	pool *pgxpool.Pool
}

var _ EdgeRepository = (*postgresEdgeRepository)(nil)

func NewPostgresEdgeRepository(pool *pgxpool.Pool) EdgeRepository {
	return &postgresEdgeRepository{pool: pool}
}

func (r *postgresEdgeRepository) Create(ctx context.Context, e *model.TargetingEdge) error {
	var (
		amount   *int64
		currency *string
	)
	if e.CashOffer != nil {
		amount = &e.CashOffer.AmountMinor
		currency = &e.CashOffer.Currency
	}
	conditions := e.Conditions
	if conditions == nil {
		conditions = []string{}
	}

	_, err := postgres.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO targeting_edges (`+edgeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.SourceListingID, e.TargetListingID, e.SourceOwnerID, e.TargetOwnerID,
		string(e.Status), e.Message, conditions, amount, currency, e.CreatedAt, e.ExpiresAt,
		e.ResolvedAt, e.Resolution,
	)
	if err != nil {
		if postgres.IsDuplicateKey(err) {
			return targetingerrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create targeting edge: %w", err)
	}
	return nil
}

func (r *postgresEdgeRepository) FindByID(ctx context.Context, id string) (*model.TargetingEdge, error) {
	row := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+edgeColumns+` FROM targeting_edges WHERE id = $1`, id)
	e, err := scanEdge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, targetingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find targeting edge: %w", err)
	}
	return e, nil
}

func (r *postgresEdgeRepository) FindActive(ctx context.Context) ([]*model.TargetingEdge, error) {
	return r.query(ctx, `
		SELECT `+edgeColumns+` FROM targeting_edges
		WHERE status = 'active'
		ORDER BY created_at, id`)
}

func (r *postgresEdgeRepository) FindActiveBySource(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	return r.query(ctx, `
		SELECT `+edgeColumns+` FROM targeting_edges
		WHERE source_listing_id = $1 AND status = 'active'
		ORDER BY created_at, id`, listingID)
}

func (r *postgresEdgeRepository) FindActiveByTarget(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	return r.query(ctx, `
		SELECT `+edgeColumns+` FROM targeting_edges
		WHERE target_listing_id = $1 AND status = 'active'
		ORDER BY created_at, id`, listingID)
}

func (r *postgresEdgeRepository) FindActiveTouching(ctx context.Context, listingIDs []string) ([]*model.TargetingEdge, error) {
	return r.query(ctx, `
		SELECT `+edgeColumns+` FROM targeting_edges
		WHERE status = 'active' AND (source_listing_id = ANY($1) OR target_listing_id = ANY($1))
		ORDER BY created_at, id`, uniqueIDs(listingIDs))
}

func (r *postgresEdgeRepository) FindByListing(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	return r.query(ctx, `
		SELECT `+edgeColumns+` FROM targeting_edges
		WHERE `+directionClause(dir)+`
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, listingID, lim, offset)
}

func (r *postgresEdgeRepository) CountByListing(ctx context.Context, listingID string, dir model.Direction) (int64, error) {
	var count int64
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM targeting_edges WHERE `+directionClause(dir), listingID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count targeting edges: %w", err)
	}
	return count, nil
}

func (r *postgresEdgeRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.TargetingEdge, error) {
	return r.query(ctx, `
		SELECT `+edgeColumns+` FROM targeting_edges
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2`, now, limit)
}

func (r *postgresEdgeRepository) UpdateStatus(ctx context.Context, id string, from, to model.EdgeStatus, resolution string, at time.Time) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE targeting_edges SET status = $3, resolution = $4, resolved_at = $5
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), resolution, at)
	if err != nil {
		return fmt.Errorf("failed to update targeting edge status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return targetingerrors.ErrStatusConflict
	}
	return nil
}

func (r *postgresEdgeRepository) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE targeting_edges SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update targeting edge expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return targetingerrors.ErrNotFound
	}
	return nil
}

func (r *postgresEdgeRepository) query(ctx context.Context, sql string, args ...any) ([]*model.TargetingEdge, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targeting edges: %w", err)
	}
	defer rows.Close()

	var edges []*model.TargetingEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan targeting edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func directionClause(dir model.Direction) string {
	switch dir {
	case model.DirectionIncoming:
		return "target_listing_id = $1"
	case model.DirectionOutgoing:
		return "source_listing_id = $1"
	default:
		return "(source_listing_id = $1 OR target_listing_id = $1)"
	}
}

func scanEdge(row pgx.Row) (*model.TargetingEdge, error) {
	var (
		e        model.TargetingEdge
		status   string
		amount   *int64
		currency *string
	)
	err := row.Scan(&e.ID, &e.SourceListingID, &e.TargetListingID, &e.SourceOwnerID, &e.TargetOwnerID,
		&status, &e.Message, &e.Conditions, &amount, &currency, &e.CreatedAt, &e.ExpiresAt,
		&e.ResolvedAt, &e.Resolution)
	if err != nil {
		return nil, err
	}
	e.Status = model.EdgeStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	if len(e.Conditions) == 0 {
		e.Conditions = nil
	}
	if amount != nil && currency != nil {
		e.CashOffer = &model.CashOffer{AmountMinor: *amount, Currency: *currency}
	}
	return &e, nil
}
