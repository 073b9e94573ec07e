package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	listingrepo "bookswap/internal/listings/repository"
	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/internal/targeting/repository"
	"bookswap/pkg/db"
	"bookswap/pkg/db/memory"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/logger"
	"bookswap/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func edge(id, from, to string) *model.TargetingEdge {
	return &model.TargetingEdge{
		ID:              id,
		SourceListingID: from,
		TargetListingID: to,
		Status:          model.EdgeActive,
		CreatedAt:       now,
	}
}

func TestGraphWalk(t *testing.T) {
	g := newGraph([]*model.TargetingEdge{
		edge("e1", "A", "B"),
		edge("e2", "B", "C"),
		edge("e3", "C", "D"),
		edge("e4", "X", "A"),
		edge("e5", "B", "Y"),
	})

	tests := []struct {
		name        string
		start, stop string
		wantPath    []string
		wantReached []string
	}{
		{name: "three hop path", start: "A", stop: "D", wantPath: []string{"A", "B", "C", "D"}},
		{name: "direct edge", start: "A", stop: "B", wantPath: []string{"A", "B"}},
		{name: "unreachable", start: "C", stop: "A", wantReached: []string{"C", "D"}},
		{name: "unknown start", start: "Z", stop: "A", wantReached: []string{"Z"}},
		{name: "stop not in graph", start: "X", stop: "Q", wantReached: []string{"X", "A", "B", "C", "Y", "D"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, reached := g.walk(tt.start, tt.stop)
			assert.Equal(t, tt.wantPath, path)
			if tt.wantReached != nil {
				assert.ElementsMatch(t, tt.wantReached, reached)
			}
		})
	}
}

func TestGraphWalk_TerminatesOnExistingCycle(t *testing.T) {
	g := newGraph([]*model.TargetingEdge{
		edge("e1", "A", "B"),
		edge("e2", "B", "A"),
	})

	path, reached := g.walk("A", "C")
	assert.Nil(t, path)
	assert.ElementsMatch(t, []string{"A", "B"}, reached)
}

type fixture struct {
	v        *TargetingValidator
	listings listingrepo.ListingRepository
	edges    repository.EdgeRepository
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New(db.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	listings := listingrepo.NewMemoryListingRepository(store)
	edges := repository.NewMemoryEdgeRepository(store)
	return fixture{
		v:        NewTargetingValidator(listings, edges, nil, logger.Discard()),
		listings: listings,
		edges:    edges,
	}
}

func (f fixture) listing(t *testing.T, id, owner string, mode model.ListingMode, status model.ListingStatus) {
	t.Helper()
	l := &model.SwapListing{
		ID:        id,
		OwnerID:   owner,
		BookingID: "bk-" + id,
		Mode:      mode,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mode == model.ModeAuction {
		deadline := now.Add(time.Hour)
		l.AuctionDeadline = &deadline
	}
	require.NoError(t, f.listings.Create(context.Background(), l))
}

func (f fixture) link(t *testing.T, id, from, to string) {
	t.Helper()
	require.NoError(t, f.edges.Create(context.Background(), edge(id, from, to)))
}

func codes(res *Result) []string {
	out := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, v.Code)
	}
	return out
}

func TestValidate_StopsAtFirstViolation(t *testing.T) {
	f := setup(t)
	f.listing(t, "A", "alice", model.ModeExclusive, model.ListingOpen)
	f.listing(t, "B", "bob", model.ModeExclusive, model.ListingCommitted)

	res, err := f.v.Validate(context.Background(), "A", "B", Options{RequesterID: "mallory"}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{apperrors.CodeNotOwner}, codes(res))
	assert.Equal(t, apperrors.CodeNotOwner, apperrors.AsAppError(res.Err()).Code)
}

func TestValidate_CollectAll(t *testing.T) {
	f := setup(t)
	f.listing(t, "A", "alice", model.ModeExclusive, model.ListingOpen)
	f.listing(t, "B", "bob", model.ModeExclusive, model.ListingOpen)
	f.listing(t, "C", "carol", model.ModeExclusive, model.ListingOpen)
	f.link(t, "e1", "A", "B")
	f.link(t, "e2", "B", "C")

	res, err := f.v.Validate(context.Background(), "B", "A", Options{CollectAll: true}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{apperrors.CodeAlreadyTargeting, apperrors.CodeCircularTargeting}, codes(res))

	eligibility := res.Eligibility()
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, []string{"A", "B"}, eligibility.Reasons[1].Cycle)
}

func TestValidate_ReplacingSkipsExistingTarget(t *testing.T) {
	f := setup(t)
	f.listing(t, "A", "alice", model.ModeExclusive, model.ListingOpen)
	f.listing(t, "B", "bob", model.ModeExclusive, model.ListingOpen)
	f.listing(t, "C", "carol", model.ModeExclusive, model.ListingOpen)
	f.link(t, "e1", "A", "B")
	f.link(t, "e2", "C", "B")

	res, err := f.v.Validate(context.Background(), "A", "C", Options{Replacing: true}, now)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.ElementsMatch(t, []string{"C", "B"}, res.Visited)
}

func TestValidate_MissingAndClosedListings(t *testing.T) {
	f := setup(t)
	f.listing(t, "A", "alice", model.ModeExclusive, model.ListingOpen)
	f.listing(t, "T", "tara", model.ModeAuction, model.ListingOpen)

	res, err := f.v.Validate(context.Background(), "A", "missing", Options{CollectAll: true}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{apperrors.CodeListingUnavailable}, codes(res))

	res, err = f.v.Validate(context.Background(), "A", "T", Options{}, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{apperrors.CodeAuctionClosed}, codes(res))

	res, err = f.v.Validate(context.Background(), "A", "A", Options{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{apperrors.CodeSelfTargeting}, codes(res))
}

func TestFindCycle_InconsistentGraphIsRetried(t *testing.T) {
	f := setup(t)
	f.listing(t, "A", "alice", model.ModeExclusive, model.ListingOpen)
	f.link(t, "e1", "A", "ghost-1")
	f.link(t, "e2", "ghost-1", "ghost-2")

	_, _, err := f.v.FindCycle(context.Background(), "A", "ghost-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrWriteConflict))
	assert.True(t, errors.Is(err, targetingerrors.ErrTraversalBound))
}

func TestValidateRequest(t *testing.T) {
	f := setup(t)

	err := f.v.ValidateRequest(&model.TargetRequest{
		SourceListingID: "A",
		TargetListingID: "B",
		RequesterID:     "alice",
		CashOffer:       &model.CashOffer{AmountMinor: 0, Currency: "XXQ"},
	})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)

	err = f.v.ValidateRequest(&model.TargetRequest{
		SourceListingID: "A",
		TargetListingID: "B",
		RequesterID:     "alice",
		Conditions:      []string{"late checkout"},
	})
	assert.NoError(t, err)
}
