package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithRetry_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	var retried []int

	policy := RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
	}

	err := RunWithRetry(context.Background(), policy, IsWriteConflict, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("lock listing: %w", ErrWriteConflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRunWithRetry_Exhausted(t *testing.T) {
	calls := 0
	err := RunWithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, IsWriteConflict,
		func(ctx context.Context) error {
			calls++
			return ErrWriteConflict
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}

func TestRunWithRetry_PermanentErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RunWithRetry(context.Background(), RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, IsWriteConflict,
		func(ctx context.Context) error {
			calls++
			return boom
		})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRunWithRetry_DefaultsApplied(t *testing.T) {
	calls := 0
	err := RunWithRetry(context.Background(), RetryPolicy{BaseDelay: time.Microsecond}, IsWriteConflict,
		func(ctx context.Context) error {
			calls++
			return ErrWriteConflict
		})

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, DefaultMaxAttempts, calls)
}
