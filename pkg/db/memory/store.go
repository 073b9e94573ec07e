// Package memory is an in-process transactional store with the same
// conflict semantics as the mongo and postgres backends: a transaction that
// locks a row another transaction committed after it started is aborted with
// db.ErrWriteConflict and retried by ExecuteTransaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"bookswap/pkg/db"
)

type txKey struct{}

type Store struct {
	mu      sync.RWMutex
	tables  map[string]map[string]any
	written map[string]uint64
	seq     uint64

	lockMu sync.Mutex
	owners map[string]uint64

	nextTx atomic.Uint64
	policy db.RetryPolicy
}

type tx struct {
	id       uint64
	startSeq uint64
	writes   map[string]map[string]any
	locked   map[string]struct{}
}

var _ db.TransactionManager = (*Store)(nil)

func New(policy db.RetryPolicy) *Store {
	return &Store{
		tables:  make(map[string]map[string]any),
		written: make(map[string]uint64),
		owners:  make(map[string]uint64),
		policy:  policy,
	}
}

// ExecuteTransaction runs fn with a transaction carried in ctx. Nested calls
// join the outer transaction.
func (s *Store) ExecuteTransaction(ctx context.Context, fn db.TransactionFunc) error {
	if _, ok := current(ctx); ok {
		return fn(ctx)
	}
	return db.RunWithRetry(ctx, s.policy, db.IsWriteConflict, func(ctx context.Context) error {
		t := s.begin()
		if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
			s.release(t)
			return err
		}
		s.commit(t)
		return nil
	})
}

// Lock claims the given rows for the current transaction. It fails with
// db.ErrWriteConflict when another live transaction holds one of them or one
// was committed after this transaction started.
func (s *Store) Lock(ctx context.Context, table string, ids ...string) error {
	t, ok := current(ctx)
	if !ok {
		return fmt.Errorf("lock %s outside transaction", table)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, rowKey(table, id))
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, held := t.locked[key]; held {
			continue
		}
		s.lockMu.Lock()
		owner, held := s.owners[key]
		if held && owner != t.id {
			s.lockMu.Unlock()
			return fmt.Errorf("%w: %s held by another transaction", db.ErrWriteConflict, key)
		}
		s.owners[key] = t.id
		s.lockMu.Unlock()
		t.locked[key] = struct{}{}

		s.mu.RLock()
		stale := s.written[key] > t.startSeq
		s.mu.RUnlock()
		if stale {
			return fmt.Errorf("%w: %s changed since transaction start", db.ErrWriteConflict, key)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table, id string) (any, bool) {
	if t, ok := current(ctx); ok {
		if v, ok := t.writes[table][id]; ok {
			return v, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tables[table][id]
	return v, ok
}

// Put writes a row. Outside a transaction the write is committed at once.
func (s *Store) Put(ctx context.Context, table, id string, v any) {
	if t, ok := current(ctx); ok {
		if t.writes[table] == nil {
			t.writes[table] = make(map[string]any)
		}
		t.writes[table][id] = v
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.row(table)[id] = v
}

// Scan visits every row of table as seen by ctx. Order is unspecified.
func (s *Store) Scan(ctx context.Context, table string, fn func(id string, v any)) {
	s.mu.RLock()
	snapshot := make(map[string]any, len(s.tables[table]))
	for id, v := range s.tables[table] {
		snapshot[id] = v
	}
	s.mu.RUnlock()

	if t, ok := current(ctx); ok {
		for id, v := range t.writes[table] {
			snapshot[id] = v
		}
	}
	for id, v := range snapshot {
		fn(id, v)
	}
}

func (s *Store) begin() *tx {
	s.mu.RLock()
	start := s.seq
	s.mu.RUnlock()
	return &tx{
		id:       s.nextTx.Add(1),
		startSeq: start,
		writes:   make(map[string]map[string]any),
		locked:   make(map[string]struct{}),
	}
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	s.seq++
	for table, rows := range t.writes {
		dst := s.row(table)
		for id, v := range rows {
			dst[id] = v
		}
	}
	for key := range t.locked {
		s.written[key] = s.seq
	}
	s.mu.Unlock()
	s.release(t)
}

func (s *Store) release(t *tx) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	for key := range t.locked {
		if s.owners[key] == t.id {
			delete(s.owners, key)
		}
	}
}

func (s *Store) row(table string) map[string]any {
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string]any)
		s.tables[table] = rows
	}
	return rows
}

func current(ctx context.Context) (*tx, bool) {
	t, ok := ctx.Value(txKey{}).(*tx)
	return t, ok
}

// InTransaction reports whether ctx carries a memory transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := current(ctx)
	return ok
}

func rowKey(table, id string) string {
	return table + "/" + id
}
