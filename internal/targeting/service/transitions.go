package service

import (
	"context"
	"errors"
	"time"

	"bookswap/internal/audit"
	listingserrors "bookswap/internal/listings/errors"
	listingrepo "bookswap/internal/listings/repository"
	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/internal/targeting/repository"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/metrics"
	"bookswap/pkg/model"
)

// Transitions applies single status changes inside the caller's
// transaction and enqueues the matching audit records. Callers hold the
// locks on every listing involved.
type Transitions struct {
	listings listingrepo.ListingRepository
	edges    repository.EdgeRepository
	emitter  audit.Emitter
}

func NewTransitions(listings listingrepo.ListingRepository, edges repository.EdgeRepository, emitter audit.Emitter) *Transitions {
	return &Transitions{listings: listings, edges: edges, emitter: emitter}
}

// ResolveEdge moves an active edge to a terminal status.
func (t *Transitions) ResolveEdge(ctx context.Context, edge *model.TargetingEdge, to model.EdgeStatus, resolution string, at time.Time) (*model.TargetingEdge, error) {
	if !model.CanTransition(edge.Status, to) {
		if edge.Status.Terminal() {
			return nil, apperrors.AlreadyResolved(edge.ID)
		}
		return nil, apperrors.InvalidTransition(string(edge.Status), string(to))
	}

	err := t.edges.UpdateStatus(ctx, edge.ID, edge.Status, to, resolution, at)
	if err != nil {
		if errors.Is(err, targetingerrors.ErrStatusConflict) {
			return nil, apperrors.AlreadyResolved(edge.ID)
		}
		if errors.Is(err, targetingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Proposal", edge.ID)
		}
		return nil, err
	}

	resolved := edge.Clone()
	resolved.Status = to
	resolved.Resolution = resolution
	resolvedAt := at
	resolved.ResolvedAt = &resolvedAt

	if err := t.emitter.Emit(ctx, audit.ProposalEvent(audit.ProposalEventType(to), resolved, at)); err != nil {
		return nil, err
	}
	return resolved, nil
}

// MoveListing changes a listing's status.
func (t *Transitions) MoveListing(ctx context.Context, listing *model.SwapListing, to model.ListingStatus, at time.Time) (*model.SwapListing, error) {
	if !model.CanTransitionListing(listing.Status, to) {
		return nil, apperrors.InvalidTransition(string(listing.Status), string(to))
	}

	err := t.listings.UpdateStatus(ctx, listing.ID, listing.Status, to, at)
	if err != nil {
		if errors.Is(err, listingserrors.ErrStatusConflict) {
			return nil, apperrors.InvalidTransition(string(listing.Status), string(to))
		}
		if errors.Is(err, listingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Listing", listing.ID)
		}
		return nil, err
	}

	moved := listing.Clone()
	moved.Status = to
	moved.UpdatedAt = at

	if err := t.emitter.Emit(ctx, audit.ListingEvent(audit.ListingEventType(to), moved, at)); err != nil {
		return nil, err
	}
	return moved, nil
}

// CancelTouching cancels every active edge with one of listingIDs at either
// end, except the edge with id except. The far endpoints are locked first.
func (t *Transitions) CancelTouching(ctx context.Context, listingIDs []string, except, resolution string, at time.Time) ([]*model.TargetingEdge, error) {
	touching, err := t.edges.FindActiveTouching(ctx, listingIDs)
	if err != nil {
		return nil, err
	}

	var victims []*model.TargetingEdge
	var endpoints []string
	for _, e := range touching {
		if e.ID == except {
			continue
		}
		victims = append(victims, e)
		endpoints = append(endpoints, e.SourceListingID, e.TargetListingID)
	}
	if len(victims) == 0 {
		return nil, nil
	}
	if err := t.listings.Lock(ctx, endpoints...); err != nil {
		return nil, err
	}

	cancelled := make([]*model.TargetingEdge, 0, len(victims))
	for _, e := range victims {
		resolved, err := t.ResolveEdge(ctx, e, model.EdgeCancelled, resolution, at)
		if err != nil {
			return nil, err
		}
		cancelled = append(cancelled, resolved)
	}
	return cancelled, nil
}

// observeEdges records committed edge transitions.
func observeEdges(m *metrics.SwapMetrics, edges ...*model.TargetingEdge) {
	for _, e := range edges {
		if e != nil {
			m.ObserveEdgeTransition(string(e.Status), e.Resolution)
		}
	}
}

func observeListings(m *metrics.SwapMetrics, listings ...*model.SwapListing) {
	for _, l := range listings {
		if l != nil {
			m.ObserveListingTransition(string(l.Status))
		}
	}
}
