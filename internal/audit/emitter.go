package audit

import (
	"context"
	"fmt"

	"bookswap/internal/audit/repository"
	"bookswap/pkg/model"
)

// Emitter enqueues audit events. Callers emit inside the transaction that
// performs the transition, so an event exists if and only if the transition
// committed.
type Emitter interface {
	Emit(ctx context.Context, records ...*model.OutboxRecord) error
}

type OutboxEmitter struct {
	outbox repository.OutboxRepository
}

var _ Emitter = (*OutboxEmitter)(nil)

func NewOutboxEmitter(outbox repository.OutboxRepository) *OutboxEmitter {
	return &OutboxEmitter{outbox: outbox}
}

func (e *OutboxEmitter) Emit(ctx context.Context, records ...*model.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := e.outbox.Append(ctx, records...); err != nil {
		return fmt.Errorf("failed to enqueue %d audit event(s): %w", len(records), err)
	}
	return nil
}
