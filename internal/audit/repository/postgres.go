package repository

import (
	"context"
	"fmt"
	"time"

	"bookswap/pkg/db/postgres"
	"bookswap/pkg/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `id, event_type, aggregate_id, recipient_ids, payload, status, attempts,
	next_attempt_at, transaction_ref, last_error, created_at, delivered_at`

type postgresOutboxRepository struct {
	pool *pgxpool.Pool
}

var _ OutboxRepository = (*postgresOutboxRepository)(nil)

func NewPostgresOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &postgresOutboxRepository{pool: pool}
}

func (r *postgresOutboxRepository) Append(ctx context.Context, records ...*model.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	conn := postgres.Conn(ctx, r.pool)
	for _, rec := range records {
		recipients := rec.RecipientIDs
		if recipients == nil {
			recipients = []string{}
		}
		_, err := conn.Exec(ctx, `INSERT INTO swap_outbox (`+outboxColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, rec.EventType, rec.AggregateID, recipients, rec.Payload, string(rec.Status),
			rec.Attempts, rec.NextAttemptAt, rec.TransactionRef, rec.LastError, rec.CreatedAt, rec.DeliveredAt)
		if err != nil {
			return fmt.Errorf("failed to append outbox record: %w", err)
		}
	}
	return nil
}

func (r *postgresOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRecord, error) {
	return r.query(ctx, `
		SELECT `+outboxColumns+` FROM swap_outbox
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY created_at, id
		LIMIT $2`, now, limit)
}

func (r *postgresOutboxRepository) FindByAggregate(ctx context.Context, aggregateID string) ([]*model.OutboxRecord, error) {
	return r.query(ctx, `
		SELECT `+outboxColumns+` FROM swap_outbox
		WHERE aggregate_id = $1
		ORDER BY created_at, id`, aggregateID)
}

func (r *postgresOutboxRepository) MarkDelivered(ctx context.Context, id, transactionRef string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE swap_outbox
		SET status = 'delivered', transaction_ref = $2, delivered_at = $3, last_error = '', attempts = attempts + 1
		WHERE id = $1`, id, transactionRef, at)
}

func (r *postgresOutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, lastErr string, terminal bool) error {
	status := model.OutboxPending
	if terminal {
		status = model.OutboxFailed
	}
	return r.exec(ctx, `
		UPDATE swap_outbox
		SET attempts = $2, next_attempt_at = $3, last_error = $4, status = $5
		WHERE id = $1`, id, attempts, nextAttempt, lastErr, string(status))
}

func (r *postgresOutboxRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresOutboxRepository) query(ctx context.Context, sql string, args ...any) ([]*model.OutboxRecord, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox records: %w", err)
	}
	defer rows.Close()

	var records []*model.OutboxRecord
	for rows.Next() {
		var (
			rec    model.OutboxRecord
			status string
		)
		err := rows.Scan(&rec.ID, &rec.EventType, &rec.AggregateID, &rec.RecipientIDs, &rec.Payload,
			&status, &rec.Attempts, &rec.NextAttemptAt, &rec.TransactionRef, &rec.LastError,
			&rec.CreatedAt, &rec.DeliveredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		rec.Status = model.OutboxStatus(status)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
