// Package db holds the store-agnostic transaction contract shared by the
// memory, mongo and postgres backends.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TransactionFunc runs inside a transaction. The context it receives carries
// the backend transaction; repositories pick it up from there.
type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

var (
	// ErrWriteConflict marks a transaction that lost a race on a locked row.
	ErrWriteConflict = errors.New("write conflict")
	// ErrRetriesExhausted is returned once a conflicting transaction has been
	// retried RetryPolicy.MaxAttempts times.
	ErrRetriesExhausted = errors.New("transaction retries exhausted")
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 10 * time.Millisecond
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry is called before every retry with the attempt that failed.
	OnRetry func(attempt int, err error)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// IsWriteConflict is the conflict classifier shared by every backend.
func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}

// RunWithRetry runs attempt until it succeeds, fails with a non transient
// error, or the policy is exhausted.
func RunWithRetry(ctx context.Context, policy RetryPolicy, isTransient func(error) bool, attempt func(ctx context.Context) error) error {
	policy = policy.normalized()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.BaseDelay
	eb.MaxInterval = policy.BaseDelay * 32
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(policy.MaxAttempts-1)), ctx)

	tries := 0
	err := backoff.Retry(func() error {
		tries++
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		if policy.OnRetry != nil && tries < policy.MaxAttempts {
			policy.OnRetry(tries, err)
		}
		return err
	}, b)

	if err != nil && isTransient(err) {
		return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, tries, err)
	}
	return err
}
