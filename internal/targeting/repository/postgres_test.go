package repository

import (
	"context"
	"testing"
	"time"

	listingrepo "bookswap/internal/listings/repository"
	pgmigrations "bookswap/internal/migrations/postgres"
	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/pkg/db"
	pgdb "bookswap/pkg/db/postgres"
	"bookswap/pkg/logger"
	"bookswap/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("bookswap"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgmigrations.RunMigration(ctx, pool, logger.Discard()), "failed to apply schema")
	return pool
}

func TestPostgresEdgeRepository(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	listings := listingrepo.NewPostgresListingRepository(pool)
	edges := NewPostgresEdgeRepository(pool)
	tx := pgdb.NewTransactionManager(pool, db.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond})
	now := time.Now().UTC().Truncate(time.Millisecond)

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.NewString()
		require.NoError(t, listings.Create(ctx, &model.SwapListing{
			ID:        ids[i],
			OwnerID:   "owner-" + ids[i],
			BookingID: "bk-" + ids[i],
			Mode:      model.ModeExclusive,
			Status:    model.ListingOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	expires := now.Add(time.Hour)
	e1 := &model.TargetingEdge{
		ID:              uuid.NewString(),
		SourceListingID: ids[0],
		TargetListingID: ids[1],
		Status:          model.EdgeActive,
		Conditions:      []string{"late checkout"},
		CashOffer:       &model.CashOffer{AmountMinor: 2500, Currency: "EUR"},
		CreatedAt:       now,
		ExpiresAt:       &expires,
	}
	e2 := &model.TargetingEdge{
		ID:              uuid.NewString(),
		SourceListingID: ids[1],
		TargetListingID: ids[2],
		Status:          model.EdgeActive,
		CreatedAt:       now.Add(time.Second),
	}

	err := tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := listings.Lock(ctx, ids...); err != nil {
			return err
		}
		if err := edges.Create(ctx, e1); err != nil {
			return err
		}
		return edges.Create(ctx, e2)
	})
	require.NoError(t, err)
	assert.ErrorIs(t, edges.Create(ctx, e1), targetingerrors.ErrDuplicate)

	got, err := edges.FindByID(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"late checkout"}, got.Conditions)
	require.NotNil(t, got.CashOffer)
	assert.Equal(t, int64(2500), got.CashOffer.AmountMinor)

	active, err := edges.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, e1.ID, active[0].ID)

	touching, err := edges.FindActiveTouching(ctx, []string{ids[2]})
	require.NoError(t, err)
	require.Len(t, touching, 1)
	assert.Equal(t, e2.ID, touching[0].ID)

	count, err := edges.CountByListing(ctx, ids[1], model.DirectionAll)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	page, err := edges.FindByListing(ctx, ids[1], model.DirectionAll, 1, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, e2.ID, page[0].ID, "newest first")

	due, err := edges.FindExpired(ctx, expires, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, e1.ID, due[0].ID)

	require.NoError(t, edges.UpdateStatus(ctx, e1.ID, model.EdgeActive, model.EdgeExpired, model.ResolutionDeadlinePassed, expires))
	assert.ErrorIs(t,
		edges.UpdateStatus(ctx, e1.ID, model.EdgeActive, model.EdgeAccepted, model.ResolutionAccepted, expires),
		targetingerrors.ErrStatusConflict)
	assert.ErrorIs(t,
		edges.UpdateStatus(ctx, uuid.NewString(), model.EdgeActive, model.EdgeAccepted, model.ResolutionAccepted, expires),
		targetingerrors.ErrNotFound)

	later := expires.Add(time.Hour)
	require.NoError(t, edges.UpdateExpiry(ctx, e2.ID, &later))
	got, err = edges.FindByID(ctx, e2.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(later))

	active, err = edges.FindActiveBySource(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, active)
}
