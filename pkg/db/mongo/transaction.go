package mongo

import (
	"context"
	"errors"
	"fmt"

	"bookswap/pkg/db"
	apperrors "bookswap/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
	maxCommitAttempts         = 3
)

type mongoTransactionManager struct {
	client *mongo.Client
	policy db.RetryPolicy
}

var _ db.TransactionManager = (*mongoTransactionManager)(nil)

func NewTransactionManager(client *mongo.Client, policy db.RetryPolicy) db.TransactionManager {
	return &mongoTransactionManager{
		client: client,
		policy: policy,
	}
}

// ExecuteTransaction runs fn in a snapshot transaction. Transactions aborted
// with TransientTransactionError are retried under the retry policy.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn db.TransactionFunc) error {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return fn(ctx)
	}

	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	err = db.RunWithRetry(ctx, m.policy, IsTransient, func(ctx context.Context) error {
		return mongo.WithSession(ctx, session, func(sessCtx mongo.SessionContext) error {
			if err := sessCtx.StartTransaction(txnOpts); err != nil {
				return err
			}
			if err := fn(sessCtx); err != nil {
				_ = sessCtx.AbortTransaction(context.Background())
				return err
			}
			return commit(sessCtx)
		})
	})

	if err != nil {
		if apperrors.IsAppError(err) || errors.Is(err, db.ErrRetriesExhausted) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func commit(sessCtx mongo.SessionContext) error {
	var err error
	for i := 0; i < maxCommitAttempts; i++ {
		err = sessCtx.CommitTransaction(sessCtx)
		if err == nil || !hasLabel(err, labelUnknownCommitResult) {
			return err
		}
	}
	return err
}

// IsTransient reports whether a transaction failed on a write conflict and
// may be retried from the start.
func IsTransient(err error) bool {
	if db.IsWriteConflict(err) {
		return true
	}
	return hasLabel(err, labelTransientTransaction)
}

func hasLabel(err error, label string) bool {
	var labeled interface{ HasErrorLabel(string) bool }
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel(label)
	}
	return false
}
