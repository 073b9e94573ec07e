// Package auction handles auction-mode listings: the competing proposals
// they collect, deadline extension and closing at the deadline.
package auction

import (
	"context"
	"errors"
	"time"

	"bookswap/internal/audit"
	listingserrors "bookswap/internal/listings/errors"
	listingrepo "bookswap/internal/listings/repository"
	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/internal/targeting/repository"
	"bookswap/internal/targeting/service"
	"bookswap/pkg/config"
	"bookswap/pkg/db"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/metrics"
	"bookswap/pkg/model"
)

// CloseResult describes one auction closed at its deadline.
type CloseResult struct {
	Listing *model.SwapListing
	Expired []*model.TargetingEdge
	// Cancelled holds the listing's own outgoing proposals, cancelled under
	// the cancel policy.
	Cancelled []*model.TargetingEdge
}

type Coordinator struct {
	lifecycle   service.TargetingService
	transitions *service.Transitions
	listings    listingrepo.ListingRepository
	edges       repository.EdgeRepository
	tx          db.TransactionManager
	emitter     audit.Emitter
	metrics     *metrics.SwapMetrics
	cfg         *config.Config
	now         func() time.Time
}

func NewCoordinator(
	lifecycle service.TargetingService,
	listings listingrepo.ListingRepository,
	edges repository.EdgeRepository,
	tx db.TransactionManager,
	emitter audit.Emitter,
	m *metrics.SwapMetrics,
	cfg *config.Config,
) *Coordinator {
	return &Coordinator{
		lifecycle:   lifecycle,
		transitions: service.NewTransitions(listings, edges, emitter),
		listings:    listings,
		edges:       edges,
		tx:          tx,
		emitter:     emitter,
		metrics:     m,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Incoming returns the active proposals competing for an auction listing,
// oldest first. Proposals stamped in the same millisecond by different
// processes are ordered by ID.
func (c *Coordinator) Incoming(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	listing, err := c.auctionListing(ctx, listingID)
	if err != nil {
		return nil, c.txError(err, "Failed to retrieve listing")
	}

	edges, err := c.edges.FindActiveByTarget(ctx, listing.ID)
	if err != nil {
		c.cfg.Log.Error("Failed to list auction proposals", "listing_id", listingID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve auction proposals", err)
	}
	if edges == nil {
		edges = []*model.TargetingEdge{}
	}
	return edges, nil
}

// Accept picks the winning proposal of an auction listing. The commit is the
// same as for exclusive listings and cancels every other competing proposal.
func (c *Coordinator) Accept(ctx context.Context, listingID, edgeID, requesterID string) (*model.CommitResult, error) {
	if _, err := c.auctionListing(ctx, listingID); err != nil {
		return nil, c.txError(err, "Failed to retrieve listing")
	}
	edge, err := c.edges.FindByID(ctx, edgeID)
	if err != nil {
		if errors.Is(err, targetingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Proposal", edgeID)
		}
		return nil, apperrors.Internal("Failed to retrieve proposal", err)
	}
	if edge.TargetListingID != listingID {
		return nil, apperrors.NotFoundWithID("Proposal", edgeID)
	}
	return c.lifecycle.Accept(ctx, edgeID, requesterID)
}

// ExtendDeadline moves an open auction's deadline later. A closed auction
// reopens, and active proposals expire at the new deadline.
func (c *Coordinator) ExtendDeadline(ctx context.Context, listingID, requesterID string, deadline time.Time) (*model.SwapListing, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}

	now := c.now()
	deadline = deadline.UTC().Truncate(time.Millisecond)
	if !deadline.After(now) {
		return nil, apperrors.Validation("Invalid auction deadline",
			map[string]any{"auction_deadline": "must be in the future"})
	}

	var extended *model.SwapListing
	updated := 0
	err := c.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		extended, updated = nil, 0

		if err := c.listings.Lock(ctx, listingID); err != nil {
			return err
		}
		listing, err := c.auctionListing(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.OwnerID != requesterID {
			return apperrors.NotOwner("requester does not own the listing")
		}
		if !listing.IsOpen() {
			return apperrors.InvalidTransition(string(listing.Status), string(model.ListingOpen))
		}
		if listing.AuctionDeadline != nil && !deadline.After(*listing.AuctionDeadline) {
			return apperrors.Validation("Invalid auction deadline",
				map[string]any{"auction_deadline": "must be later than the current deadline"})
		}

		if err := c.listings.UpdateAuction(ctx, listingID, &deadline, nil, now); err != nil {
			return err
		}
		incoming, err := c.edges.FindActiveByTarget(ctx, listingID)
		if err != nil {
			return err
		}
		for _, e := range incoming {
			if err := c.edges.UpdateExpiry(ctx, e.ID, &deadline); err != nil {
				return err
			}
			updated++
		}

		extended = listing.Clone()
		extended.AuctionDeadline = &deadline
		extended.AuctionClosedAt = nil
		extended.UpdatedAt = now
		return nil
	})
	if err != nil {
		c.cfg.Log.Warn("Failed to extend auction deadline", "listing_id", listingID, "error", err)
		return nil, c.txError(err, "Failed to extend auction deadline")
	}

	c.cfg.Log.Info("Auction deadline extended",
		"listing_id", listingID,
		"auction_deadline", deadline,
		"proposals", updated,
	)
	return extended, nil
}

// CloseExpired closes an auction whose deadline passed at now: every
// incoming active proposal expires, then the configured policy keeps the
// listing open or cancels it. It returns nil when there is nothing to close.
func (c *Coordinator) CloseExpired(ctx context.Context, listingID string, now time.Time) (*CloseResult, error) {
	policy := c.cfg.AuctionExpiryPolicy
	var result *CloseResult
	err := c.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		result = nil

		if err := c.listings.Lock(ctx, listingID); err != nil {
			return err
		}
		listing, err := c.listings.FindByID(ctx, listingID)
		if err != nil {
			if errors.Is(err, listingserrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Listing", listingID)
			}
			return err
		}
		if !listing.IsAuction() || !listing.IsOpen() || listing.AuctionClosedAt != nil ||
			listing.AuctionDeadline == nil || listing.AuctionDeadline.After(now) {
			return nil
		}

		incoming, err := c.edges.FindActiveByTarget(ctx, listingID)
		if err != nil {
			return err
		}
		sources := make([]string, 0, len(incoming))
		for _, e := range incoming {
			sources = append(sources, e.SourceListingID)
		}
		if err := c.listings.Lock(ctx, sources...); err != nil {
			return err
		}

		res := &CloseResult{}
		for _, e := range incoming {
			expired, err := c.transitions.ResolveEdge(ctx, e, model.EdgeExpired, model.ResolutionAuctionClosed, now)
			if err != nil {
				return err
			}
			res.Expired = append(res.Expired, expired)
		}

		closedAt := now
		if err := c.listings.UpdateAuction(ctx, listingID, nil, &closedAt, now); err != nil {
			return err
		}
		listing.AuctionClosedAt = &closedAt
		listing.UpdatedAt = now

		if policy == config.AuctionCancel {
			res.Cancelled, err = c.transitions.CancelTouching(ctx, []string{listingID}, "", model.ResolutionListingCancelled, now)
			if err != nil {
				return err
			}
			if listing, err = c.transitions.MoveListing(ctx, listing, model.ListingCancelled, now); err != nil {
				return err
			}
		}
		res.Listing = listing

		result = res
		return c.emitter.Emit(ctx, audit.AuctionClosedEvent(listing, len(res.Expired), policy, now))
	})
	if err != nil {
		return nil, c.txError(err, "Failed to close auction")
	}
	if result == nil {
		return nil, nil
	}

	for _, e := range append(result.Expired, result.Cancelled...) {
		c.metrics.ObserveEdgeTransition(string(e.Status), e.Resolution)
	}
	if result.Listing.Status == model.ListingCancelled {
		c.metrics.ObserveListingTransition(string(model.ListingCancelled))
	}
	c.cfg.Log.Info("Auction closed",
		"listing_id", listingID,
		"policy", policy,
		"expired_proposals", len(result.Expired),
		"cancelled_proposals", len(result.Cancelled),
	)
	return result, nil
}

func (c *Coordinator) auctionListing(ctx context.Context, listingID string) (*model.SwapListing, error) {
	if listingID == "" {
		return nil, apperrors.InvalidInput("Listing ID cannot be empty")
	}
	listing, err := c.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, listingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Listing", listingID)
		}
		return nil, err
	}
	if !listing.IsAuction() {
		return nil, apperrors.InvalidInput("listing is not in auction mode")
	}
	return listing, nil
}

func (c *Coordinator) txError(err error, message string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, db.ErrRetriesExhausted) {
		c.metrics.ObserveTxExhausted()
		return apperrors.RetryLater(err)
	}
	return apperrors.Internal(message, err)
}
