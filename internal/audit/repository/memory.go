package repository

import (
	"context"
	"sort"
	"time"

	"bookswap/pkg/db/memory"
	"bookswap/pkg/model"
)

type memoryOutboxRepository struct {
	store *memory.Store
}

var _ OutboxRepository = (*memoryOutboxRepository)(nil)

func NewMemoryOutboxRepository(store *memory.Store) OutboxRepository {
	return &memoryOutboxRepository{store: store}
}

func (r *memoryOutboxRepository) Append(ctx context.Context, records ...*model.OutboxRecord) error {
	for _, rec := range records {
		r.store.Put(ctx, TableName, rec.ID, rec.Clone())
	}
	return nil
}

func (r *memoryOutboxRepository) all(ctx context.Context, match func(*model.OutboxRecord) bool) []*model.OutboxRecord {
	var out []*model.OutboxRecord
	r.store.Scan(ctx, TableName, func(_ string, v any) {
		rec := v.(*model.OutboxRecord)
		if match(rec) {
			out = append(out, rec.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memoryOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRecord, error) {
	due := r.all(ctx, func(rec *model.OutboxRecord) bool {
		return rec.Status == model.OutboxPending && !rec.NextAttemptAt.After(now)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memoryOutboxRepository) FindByAggregate(ctx context.Context, aggregateID string) ([]*model.OutboxRecord, error) {
	return r.all(ctx, func(rec *model.OutboxRecord) bool {
		return rec.AggregateID == aggregateID
	}), nil
}

func (r *memoryOutboxRepository) update(ctx context.Context, id string, fn func(*model.OutboxRecord)) error {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return ErrNotFound
	}
	rec := v.(*model.OutboxRecord).Clone()
	fn(rec)
	r.store.Put(ctx, TableName, id, rec)
	return nil
}

func (r *memoryOutboxRepository) MarkDelivered(ctx context.Context, id, transactionRef string, at time.Time) error {
	return r.update(ctx, id, func(rec *model.OutboxRecord) {
		rec.Status = model.OutboxDelivered
		rec.TransactionRef = transactionRef
		rec.Attempts++
		rec.LastError = ""
		delivered := at
		rec.DeliveredAt = &delivered
	})
}

func (r *memoryOutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, lastErr string, terminal bool) error {
	return r.update(ctx, id, func(rec *model.OutboxRecord) {
		rec.Attempts = attempts
		rec.NextAttemptAt = nextAttempt
		rec.LastError = lastErr
		if terminal {
			rec.Status = model.OutboxFailed
		}
	})
}
