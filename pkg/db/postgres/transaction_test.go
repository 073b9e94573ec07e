package postgres

import (
	"errors"
	"fmt"
	"testing"

	"bookswap/pkg/db"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, true},
		{"deadlock", fmt.Errorf("update listing: %w", &pgconn.PgError{Code: codeDeadlockDetected}), true},
		{"lock not available", &pgconn.PgError{Code: codeLockNotAvailable}, true},
		{"write conflict", db.ErrWriteConflict, true},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})))
	assert.False(t, IsDuplicateKey(&pgconn.PgError{Code: codeSerializationFailure}))
}
