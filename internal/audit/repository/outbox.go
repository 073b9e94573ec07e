package repository

import (
	"context"
	"errors"
	"time"

	"bookswap/pkg/model"
)

const (
	CollectionName = "Swap_outbox"
	TableName      = "swap_outbox"
)

var ErrNotFound = errors.New("outbox record not found")

// OutboxRepository stores audit events until the relay has delivered them.
type OutboxRepository interface {
	// Append writes records inside the caller's transaction.
	Append(ctx context.Context, records ...*model.OutboxRecord) error
	// FindDue returns pending records whose next attempt is at or before now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRecord, error)
	FindByAggregate(ctx context.Context, aggregateID string) ([]*model.OutboxRecord, error)
	MarkDelivered(ctx context.Context, id, transactionRef string, at time.Time) error
	// MarkFailed records a failed attempt. terminal moves the record to failed,
	// otherwise it stays pending until nextAttempt.
	MarkFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, lastErr string, terminal bool) error
}
