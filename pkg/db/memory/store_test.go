package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookswap/pkg/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *Store {
	return New(db.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
}

func TestStore_CommitIsAtomic(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	err := s.ExecuteTransaction(ctx, func(ctx context.Context) error {
		s.Put(ctx, "rows", "a", 1)
		s.Put(ctx, "rows", "b", 2)

		_, visibleOutside := s.Get(context.Background(), "rows", "a")
		assert.False(t, visibleOutside, "uncommitted write leaked")

		v, ok := s.Get(ctx, "rows", "a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		return nil
	})
	require.NoError(t, err)

	count := 0
	s.Scan(ctx, "rows", func(string, any) { count++ })
	assert.Equal(t, 2, count)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := newStore()
	boom := errors.New("boom")

	err := s.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.Lock(ctx, "rows", "a"))
		s.Put(ctx, "rows", "a", 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := s.Get(context.Background(), "rows", "a")
	assert.False(t, ok)

	// lock released
	err = s.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		return s.Lock(ctx, "rows", "a")
	})
	assert.NoError(t, err)
}

func TestStore_StaleLockConflicts(t *testing.T) {
	s := newStore()
	attempts := 0

	err := s.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			// a concurrent transaction commits a write to "a" after this one started
			other := s.begin()
			otherCtx := context.WithValue(context.Background(), txKey{}, other)
			require.NoError(t, s.Lock(otherCtx, "rows", "a"))
			s.Put(otherCtx, "rows", "a", "other")
			s.commit(other)
		}
		if err := s.Lock(ctx, "rows", "a"); err != nil {
			return err
		}
		s.Put(ctx, "rows", "a", "mine")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	v, _ := s.Get(context.Background(), "rows", "a")
	assert.Equal(t, "mine", v)
}

func TestStore_HeldLockExhaustsRetries(t *testing.T) {
	s := newStore()
	holder := s.begin()
	holderCtx := context.WithValue(context.Background(), txKey{}, holder)
	require.NoError(t, s.Lock(holderCtx, "rows", "a"))

	err := s.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		return s.Lock(ctx, "rows", "a")
	})
	assert.ErrorIs(t, err, db.ErrRetriesExhausted)

	s.release(holder)
}

func TestStore_LockOutsideTransaction(t *testing.T) {
	s := newStore()
	assert.Error(t, s.Lock(context.Background(), "rows", "a"))
}

func TestStore_NestedTransactionJoinsOuter(t *testing.T) {
	s := newStore()
	err := s.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		return s.ExecuteTransaction(ctx, func(inner context.Context) error {
			s.Put(inner, "rows", "x", true)
			_, visible := s.Get(context.Background(), "rows", "x")
			assert.False(t, visible)
			return nil
		})
	})
	require.NoError(t, err)
	_, ok := s.Get(context.Background(), "rows", "x")
	assert.True(t, ok)
}

func TestStore_ConcurrentIncrementsSerialize(t *testing.T) {
	s := New(db.RetryPolicy{MaxAttempts: 1000, BaseDelay: time.Microsecond})
	s.Put(context.Background(), "counters", "c", 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
				if err := s.Lock(ctx, "counters", "c"); err != nil {
					return err
				}
				v, _ := s.Get(ctx, "counters", "c")
				s.Put(ctx, "counters", "c", v.(int)+1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _ := s.Get(context.Background(), "counters", "c")
	assert.Equal(t, 20, v)
}
