package auction

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"bookswap/internal/audit"
	auditrepo "bookswap/internal/audit/repository"
	listingrepo "bookswap/internal/listings/repository"
	"bookswap/internal/targeting/repository"
	"bookswap/internal/targeting/service"
	"bookswap/internal/targeting/validator"
	"bookswap/pkg/config"
	"bookswap/pkg/db"
	"bookswap/pkg/db/memory"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/logger"
	"bookswap/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deadline = time.Now().UTC().Truncate(time.Millisecond).Add(2 * time.Hour)

type fixture struct {
	coord     *Coordinator
	lifecycle service.TargetingService
	listings  listingrepo.ListingRepository
	edges     repository.EdgeRepository
	outbox    auditrepo.OutboxRepository
}

func setup(t *testing.T, policy string) fixture {
	t.Helper()
	log := logger.Discard()
	store := memory.New(db.RetryPolicy{MaxAttempts: 10, BaseDelay: time.Millisecond})
	listings := listingrepo.NewMemoryListingRepository(store)
	edges := repository.NewMemoryEdgeRepository(store)
	outbox := auditrepo.NewMemoryOutboxRepository(store)
	emitter := audit.NewOutboxEmitter(outbox)
	cfg := &config.Config{Log: log, ProposalTTL: 72 * time.Hour, AuctionExpiryPolicy: policy}

	// Each proposal is a second younger than the one before it.
	var ticks atomic.Int64
	start := time.Now().UTC().Truncate(time.Millisecond)
	clock := func() time.Time { return start.Add(time.Duration(ticks.Add(1)) * time.Second) }

	lifecycle := service.NewTargetingService(listings, edges, store, emitter,
		validator.NewTargetingValidator(listings, edges, nil, log), nil, cfg, service.WithClock(clock))
	return fixture{
		coord:     NewCoordinator(lifecycle, listings, edges, store, emitter, nil, cfg),
		lifecycle: lifecycle,
		listings:  listings,
		edges:     edges,
		outbox:    outbox,
	}
}

func (f fixture) listing(t *testing.T, owner string, mode model.ListingMode) *model.SwapListing {
	t.Helper()
	l := &model.SwapListing{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		BookingID: "bk-" + owner,
		Mode:      mode,
		Status:    model.ListingOpen,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if mode == model.ModeAuction {
		d := deadline
		l.AuctionDeadline = &d
	}
	require.NoError(t, f.listings.Create(context.Background(), l))
	return l
}

func (f fixture) target(t *testing.T, source, target *model.SwapListing) *model.TargetingEdge {
	t.Helper()
	edge, err := f.lifecycle.Target(context.Background(), &model.TargetRequest{
		SourceListingID: source.ID,
		TargetListingID: target.ID,
		RequesterID:     source.OwnerID,
	})
	require.NoError(t, err)
	return edge
}

// auctionWithBids returns an auction listing with three incoming proposals.
func (f fixture) auctionWithBids(t *testing.T) (*model.SwapListing, []*model.TargetingEdge) {
	t.Helper()
	tgt := f.listing(t, "tara", model.ModeAuction)
	var bids []*model.TargetingEdge
	for _, owner := range []string{"alice", "bob", "carol"} {
		bids = append(bids, f.target(t, f.listing(t, owner, model.ModeExclusive), tgt))
	}
	return tgt, bids
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.AsAppError(err).Code, err.Error())
}

func TestIncoming(t *testing.T) {
	f := setup(t, config.AuctionKeepOpen)
	ctx := context.Background()
	tgt, bids := f.auctionWithBids(t)

	incoming, err := f.coord.Incoming(ctx, tgt.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 3)
	for i, b := range bids {
		assert.Equal(t, b.ID, incoming[i].ID, "oldest first")
	}

	empty := f.listing(t, "erin", model.ModeAuction)
	incoming, err = f.coord.Incoming(ctx, empty.ID)
	require.NoError(t, err)
	assert.NotNil(t, incoming)
	assert.Empty(t, incoming)

	exclusive := f.listing(t, "xena", model.ModeExclusive)
	_, err = f.coord.Incoming(ctx, exclusive.ID)
	requireCode(t, err, apperrors.CodeInvalidInput)

	_, err = f.coord.Incoming(ctx, uuid.NewString())
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestAccept_PicksWinner(t *testing.T) {
	f := setup(t, config.AuctionKeepOpen)
	ctx := context.Background()
	tgt, bids := f.auctionWithBids(t)

	other := f.listing(t, "olga", model.ModeAuction)
	_, err := f.coord.Accept(ctx, other.ID, bids[1].ID, "tara")
	requireCode(t, err, apperrors.CodeNotFound)

	result, err := f.coord.Accept(ctx, tgt.ID, bids[1].ID, "tara")
	require.NoError(t, err)
	assert.Equal(t, bids[1].ID, result.Accepted.ID)
	assert.Len(t, result.Cancelled, 2)
	for _, e := range result.Cancelled {
		assert.Equal(t, model.ResolutionCompetingCommit, e.Resolution)
	}
}

func TestExtendDeadline(t *testing.T) {
	f := setup(t, config.AuctionKeepOpen)
	ctx := context.Background()
	tgt, bids := f.auctionWithBids(t)
	later := deadline.Add(24 * time.Hour)

	_, err := f.coord.ExtendDeadline(ctx, tgt.ID, "alice", later)
	requireCode(t, err, apperrors.CodeNotOwner)

	_, err = f.coord.ExtendDeadline(ctx, tgt.ID, "tara", deadline.Add(-time.Minute))
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.coord.ExtendDeadline(ctx, tgt.ID, "tara", time.Now().Add(-time.Hour))
	requireCode(t, err, apperrors.CodeValidation)

	listing, err := f.coord.ExtendDeadline(ctx, tgt.ID, "tara", later)
	require.NoError(t, err)
	require.NotNil(t, listing.AuctionDeadline)
	assert.True(t, listing.AuctionDeadline.Equal(later))

	for _, b := range bids {
		e, err := f.edges.FindByID(ctx, b.ID)
		require.NoError(t, err)
		require.NotNil(t, e.ExpiresAt)
		assert.True(t, e.ExpiresAt.Equal(later))
	}
}

func TestCloseExpired_KeepOpen(t *testing.T) {
	f := setup(t, config.AuctionKeepOpen)
	ctx := context.Background()
	tgt, bids := f.auctionWithBids(t)

	result, err := f.coord.CloseExpired(ctx, tgt.ID, deadline.Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, result, "deadline not reached")

	result, err = f.coord.CloseExpired(ctx, tgt.ID, deadline)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Expired, len(bids))
	assert.Equal(t, model.ListingOpen, result.Listing.Status)
	assert.NotNil(t, result.Listing.AuctionClosedAt)

	for _, b := range bids {
		e, err := f.edges.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EdgeExpired, e.Status)
		assert.Equal(t, model.ResolutionAuctionClosed, e.Resolution)
	}

	events, err := f.outbox.FindByAggregate(ctx, tgt.ID)
	require.NoError(t, err)
	var closed int
	for _, ev := range events {
		if ev.EventType == model.EventAuctionClosed {
			closed++
		}
	}
	assert.Equal(t, 1, closed)

	result, err = f.coord.CloseExpired(ctx, tgt.ID, deadline.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, result, "already closed")

	_, err = f.lifecycle.Target(ctx, &model.TargetRequest{
		SourceListingID: f.listing(t, "dave", model.ModeExclusive).ID,
		TargetListingID: tgt.ID,
		RequesterID:     "dave",
	})
	requireCode(t, err, apperrors.CodeAuctionClosed)
}

func TestCloseExpired_CancelPolicy(t *testing.T) {
	f := setup(t, config.AuctionCancel)
	ctx := context.Background()
	tgt, bids := f.auctionWithBids(t)
	x := f.listing(t, "xena", model.ModeExclusive)
	outgoing := f.target(t, tgt, x)

	result, err := f.coord.CloseExpired(ctx, tgt.ID, deadline.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Expired, len(bids))
	require.Len(t, result.Cancelled, 1)
	assert.Equal(t, outgoing.ID, result.Cancelled[0].ID)
	assert.Equal(t, model.ListingCancelled, result.Listing.Status)

	stored, err := f.listings.FindByID(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingCancelled, stored.Status)
}

func TestExtendDeadline_ReopensClosedAuction(t *testing.T) {
	f := setup(t, config.AuctionKeepOpen)
	ctx := context.Background()
	tgt, _ := f.auctionWithBids(t)

	_, err := f.coord.CloseExpired(ctx, tgt.ID, deadline)
	require.NoError(t, err)

	later := deadline.Add(24 * time.Hour)
	listing, err := f.coord.ExtendDeadline(ctx, tgt.ID, "tara", later)
	require.NoError(t, err)
	assert.Nil(t, listing.AuctionClosedAt)

	stored, err := f.listings.FindByID(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AuctionClosedAt)
	assert.False(t, stored.AuctionOver(time.Now()))
}
