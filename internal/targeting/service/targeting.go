package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"bookswap/internal/audit"
	listingrepo "bookswap/internal/listings/repository"
	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/internal/targeting/repository"
	"bookswap/internal/targeting/validator"
	"bookswap/pkg/config"
	"bookswap/pkg/db"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/metrics"
	"bookswap/pkg/model"
	"bookswap/pkg/sanitizer"

	"github.com/google/uuid"
)

// TargetingService is the proposal lifecycle: creating, replacing and
// resolving targeting edges together with the listing status changes they
// imply. Every mutation runs in one transaction.
type TargetingService interface {
	Target(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error)
	Retarget(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error)
	RemoveTarget(ctx context.Context, sourceID, requesterID string) ([]*model.TargetingEdge, error)
	Accept(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error)
	Reject(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error)
	Withdraw(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error)
	Complete(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error)
	CanTarget(ctx context.Context, sourceID, targetID string) (*model.Eligibility, error)
	CancelListing(ctx context.Context, listingID, requesterID string) (*model.SwapListing, error)
	CancelListingsForBooking(ctx context.Context, bookingID string) (int, error)
	Expire(ctx context.Context, edgeID string, now time.Time) (bool, error)
	GetEdge(ctx context.Context, id string) (*model.TargetingEdge, error)
	ListEdges(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, int64, error)
}

type targetingService struct {
	listings    listingrepo.ListingRepository
	edges       repository.EdgeRepository
	tx          db.TransactionManager
	emitter     audit.Emitter
	transitions *Transitions
	validator   *validator.TargetingValidator
	metrics     *metrics.SwapMetrics
	cfg         *config.Config
	now         func() time.Time
	// afterValidate runs between the cycle check and locking the listings it
	// walked.
	afterValidate func()
}

type Option func(*targetingService)

// WithClock replaces the wall clock. Timestamps handed out stay strictly
// increasing whatever now returns.
func WithClock(now func() time.Time) Option {
	return func(s *targetingService) {
		s.now = newMonotonicClock(now).Now
	}
}

// monotonicClock hands out strictly increasing millisecond timestamps, so
// proposals created by one process within the same millisecond still sort in
// arrival order.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	t := c.now().UTC().Truncate(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}

func NewTargetingService(
	listings listingrepo.ListingRepository,
	edges repository.EdgeRepository,
	tx db.TransactionManager,
	emitter audit.Emitter,
	validator *validator.TargetingValidator,
	m *metrics.SwapMetrics,
	cfg *config.Config,
	opts ...Option,
) TargetingService {
	s := &targetingService{
		listings:    listings,
		edges:       edges,
		tx:          tx,
		emitter:     emitter,
		transitions: NewTransitions(listings, edges, emitter),
		validator:   validator,
		metrics:     m,
		cfg:         cfg,
		now:         newMonotonicClock(time.Now).Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *targetingService) Target(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
	return s.propose(ctx, req, false)
}

// Retarget replaces the source's active edges with one to the new target.
// Readers see either the old edges or the new one, never both or neither.
func (s *targetingService) Retarget(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
	return s.propose(ctx, req, true)
}

func (s *targetingService) propose(ctx context.Context, req *model.TargetRequest, replacing bool) (*model.TargetingEdge, error) {
	if err := s.prepareRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	var (
		edge       *model.TargetingEdge
		superseded []*model.TargetingEdge
	)
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		edge, superseded = nil, nil

		if err := s.listings.Lock(ctx, req.SourceListingID, req.TargetListingID); err != nil {
			return err
		}
		res, err := s.validator.Validate(ctx, req.SourceListingID, req.TargetListingID, validator.Options{
			RequesterID: req.RequesterID,
			Replacing:   replacing,
		}, now)
		if err != nil {
			return err
		}
		if !res.OK() {
			return res.Err()
		}
		if s.afterValidate != nil {
			s.afterValidate()
		}
		if err := s.listings.Lock(ctx, res.Visited...); err != nil {
			return err
		}

		if replacing {
			outgoing, err := s.edges.FindActiveBySource(ctx, req.SourceListingID)
			if err != nil {
				return err
			}
			targets := make([]string, 0, len(outgoing))
			for _, e := range outgoing {
				targets = append(targets, e.TargetListingID)
			}
			if err := s.listings.Lock(ctx, targets...); err != nil {
				return err
			}
			for _, e := range outgoing {
				cancelled, err := s.transitions.ResolveEdge(ctx, e, model.EdgeCancelled, model.ResolutionSuperseded, now)
				if err != nil {
					return err
				}
				superseded = append(superseded, cancelled)
			}
		}

		edge = newEdge(res.Source, res.Target, req, now, s.cfg.ProposalTTL)
		if err := s.edges.Create(ctx, edge); err != nil {
			if errors.Is(err, targetingerrors.ErrDuplicate) {
				return apperrors.Conflict("proposal already exists")
			}
			return err
		}
		return s.emitter.Emit(ctx, audit.ProposalEvent(model.EventProposalCreated, edge, now))
	})
	if err != nil {
		if appErr := apperrors.AsAppError(err); apperrors.IsAppError(err) && appErr.HTTPStatus < 500 {
			s.metrics.ObserveRejection(appErr.Code)
			s.cfg.Log.Warn("Proposal refused",
				"source_listing_id", req.SourceListingID,
				"target_listing_id", req.TargetListingID,
				"requester_id", req.RequesterID,
				"code", appErr.Code,
			)
			return nil, err
		}
		s.cfg.Log.Error("Failed to create proposal",
			"source_listing_id", req.SourceListingID,
			"target_listing_id", req.TargetListingID,
			"error", err,
		)
		return nil, s.txError(err, "Failed to create proposal")
	}

	observeEdges(s.metrics, superseded...)
	observeEdges(s.metrics, edge)
	s.cfg.Log.Info("Proposal created",
		"edge_id", edge.ID,
		"source_listing_id", edge.SourceListingID,
		"target_listing_id", edge.TargetListingID,
		"superseded", len(superseded),
	)
	return edge, nil
}

func (s *targetingService) prepareRequest(req *model.TargetRequest) error {
	if req == nil {
		return apperrors.InvalidInput("proposal request cannot be empty")
	}
	if req.RequesterID == "" {
		return apperrors.Unauthorized("requester is required")
	}

	req.SourceListingID = strings.TrimSpace(req.SourceListingID)
	req.TargetListingID = strings.TrimSpace(req.TargetListingID)
	req.Message = sanitizer.SanitizeMessage(req.Message)
	req.Conditions = sanitizer.SanitizeConditions(req.Conditions)
	if req.CashOffer != nil {
		req.CashOffer.Currency = strings.ToUpper(strings.TrimSpace(req.CashOffer.Currency))
	}

	if err := s.validator.ValidateRequest(req); err != nil {
		s.cfg.Log.Warn("Proposal validation failed",
			"source_listing_id", req.SourceListingID,
			"error", err,
		)
		return apperrors.Validation("Invalid proposal input", map[string]any{"error": err.Error()})
	}
	return nil
}

// newEdge builds an active edge. It expires at the target's auction deadline,
// or after ttl when the target is exclusive and ttl is positive.
func newEdge(source, target *model.SwapListing, req *model.TargetRequest, now time.Time, ttl time.Duration) *model.TargetingEdge {
	edge := &model.TargetingEdge{
		ID:              uuid.NewString(),
		SourceListingID: source.ID,
		TargetListingID: target.ID,
		SourceOwnerID:   source.OwnerID,
		TargetOwnerID:   target.OwnerID,
		Status:          model.EdgeActive,
		Message:         req.Message,
		Conditions:      req.Conditions,
		CreatedAt:       now,
	}
	if req.CashOffer != nil {
		offer := *req.CashOffer
		edge.CashOffer = &offer
	}

	switch {
	case target.IsAuction() && target.AuctionDeadline != nil:
		deadline := *target.AuctionDeadline
		edge.ExpiresAt = &deadline
	case ttl > 0:
		expires := now.Add(ttl)
		edge.ExpiresAt = &expires
	}
	return edge
}

func (s *targetingService) RemoveTarget(ctx context.Context, sourceID, requesterID string) ([]*model.TargetingEdge, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}

	now := s.now()
	var cancelled []*model.TargetingEdge
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		cancelled = nil

		if err := s.listings.Lock(ctx, sourceID); err != nil {
			return err
		}
		source, err := s.findListing(ctx, sourceID)
		if err != nil {
			return err
		}
		if source.OwnerID != requesterID {
			return apperrors.NotOwner("requester does not own the source listing")
		}

		outgoing, err := s.edges.FindActiveBySource(ctx, sourceID)
		if err != nil {
			return err
		}
		if len(outgoing) == 0 {
			return apperrors.NotFound("Active target")
		}
		targets := make([]string, 0, len(outgoing))
		for _, e := range outgoing {
			targets = append(targets, e.TargetListingID)
		}
		if err := s.listings.Lock(ctx, targets...); err != nil {
			return err
		}
		for _, e := range outgoing {
			resolved, err := s.transitions.ResolveEdge(ctx, e, model.EdgeCancelled, model.ResolutionWithdrawn, now)
			if err != nil {
				return err
			}
			cancelled = append(cancelled, resolved)
		}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to remove target", err, "source_listing_id", sourceID)
		return nil, s.txError(err, "Failed to remove target")
	}

	observeEdges(s.metrics, cancelled...)
	s.cfg.Log.Info("Target removed", "source_listing_id", sourceID, "cancelled", len(cancelled))
	return cancelled, nil
}

// Accept commits both listings of an active proposal to the swap and cancels
// every other active proposal touching either of them.
func (s *targetingService) Accept(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}

	now := s.now()
	var result *model.CommitResult
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		result = nil

		edge, err := s.lockEdge(ctx, edgeID)
		if err != nil {
			return err
		}
		source, target, err := s.edgeListings(ctx, edge)
		if err != nil {
			return err
		}
		if target.OwnerID != requesterID {
			return apperrors.NotOwner("only the target listing owner can accept a proposal")
		}
		if !edge.IsActive() {
			return apperrors.AlreadyResolved(edge.ID)
		}
		if !source.IsOpen() || !target.IsOpen() {
			return apperrors.ListingUnavailable("both listings must be open to accept a proposal")
		}

		accepted, err := s.transitions.ResolveEdge(ctx, edge, model.EdgeAccepted, model.ResolutionAccepted, now)
		if err != nil {
			return err
		}
		committedSource, err := s.transitions.MoveListing(ctx, source, model.ListingCommitted, now)
		if err != nil {
			return err
		}
		committedTarget, err := s.transitions.MoveListing(ctx, target, model.ListingCommitted, now)
		if err != nil {
			return err
		}
		cancelled, err := s.transitions.CancelTouching(ctx,
			[]string{source.ID, target.ID}, edge.ID, model.ResolutionCompetingCommit, now)
		if err != nil {
			return err
		}

		result = &model.CommitResult{
			Accepted:  accepted,
			Source:    committedSource,
			Target:    committedTarget,
			Cancelled: cancelled,
		}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to accept proposal", err, "edge_id", edgeID, "requester_id", requesterID)
		return nil, s.txError(err, "Failed to accept proposal")
	}

	observeEdges(s.metrics, result.Accepted)
	observeEdges(s.metrics, result.Cancelled...)
	observeListings(s.metrics, result.Source, result.Target)
	s.cfg.Log.Info("Proposal accepted",
		"edge_id", edgeID,
		"source_listing_id", result.Source.ID,
		"target_listing_id", result.Target.ID,
		"cancelled", len(result.Cancelled),
	)
	return result, nil
}

func (s *targetingService) Reject(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error) {
	return s.resolveByOwner(ctx, edgeID, requesterID, "reject", model.EdgeRejected, model.ResolutionRejected)
}

// Withdraw lets the source owner cancel one specific proposal, which is how
// an auction-mode source with several outgoing proposals drops one of them.
func (s *targetingService) Withdraw(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error) {
	return s.resolveByOwner(ctx, edgeID, requesterID, "withdraw", model.EdgeCancelled, model.ResolutionWithdrawn)
}

// resolveByOwner resolves an edge on behalf of the target owner, or of the
// source owner when action is "withdraw".
func (s *targetingService) resolveByOwner(ctx context.Context, edgeID, requesterID, action string, to model.EdgeStatus, resolution string) (*model.TargetingEdge, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}

	now := s.now()
	var resolved *model.TargetingEdge
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		resolved = nil

		edge, err := s.lockEdge(ctx, edgeID)
		if err != nil {
			return err
		}
		source, target, err := s.edgeListings(ctx, edge)
		if err != nil {
			return err
		}
		owner, role := target.OwnerID, "target"
		if action == "withdraw" {
			owner, role = source.OwnerID, "source"
		}
		if owner != requesterID {
			return apperrors.NotOwner("only the " + role + " listing owner can " + action + " this proposal")
		}

		resolved, err = s.transitions.ResolveEdge(ctx, edge, to, resolution, now)
		return err
	})
	if err != nil {
		s.logFailure("Failed to resolve proposal", err, "edge_id", edgeID, "status", to)
		return nil, s.txError(err, "Failed to resolve proposal")
	}

	observeEdges(s.metrics, resolved)
	s.cfg.Log.Info("Proposal resolved", "edge_id", edgeID, "status", to, "resolution", resolution)
	return resolved, nil
}

// Complete marks an accepted swap as fulfilled; either party may call it.
func (s *targetingService) Complete(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}

	now := s.now()
	var result *model.CommitResult
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		result = nil

		edge, err := s.lockEdge(ctx, edgeID)
		if err != nil {
			return err
		}
		source, target, err := s.edgeListings(ctx, edge)
		if err != nil {
			return err
		}
		if source.OwnerID != requesterID && target.OwnerID != requesterID {
			return apperrors.NotOwner("only a party to the swap can complete it")
		}
		if edge.Status != model.EdgeAccepted {
			return apperrors.InvalidTransition(string(edge.Status), string(model.ListingCompleted))
		}

		completedSource, err := s.transitions.MoveListing(ctx, source, model.ListingCompleted, now)
		if err != nil {
			return err
		}
		completedTarget, err := s.transitions.MoveListing(ctx, target, model.ListingCompleted, now)
		if err != nil {
			return err
		}
		result = &model.CommitResult{Accepted: edge, Source: completedSource, Target: completedTarget}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to complete swap", err, "edge_id", edgeID)
		return nil, s.txError(err, "Failed to complete swap")
	}

	observeListings(s.metrics, result.Source, result.Target)
	s.cfg.Log.Info("Swap completed", "edge_id", edgeID)
	return result, nil
}

// CanTarget reports every structural reason source cannot target target
// right now. Ownership is not checked.
func (s *targetingService) CanTarget(ctx context.Context, sourceID, targetID string) (*model.Eligibility, error) {
	if sourceID == "" || targetID == "" {
		return nil, apperrors.InvalidInput("source and target listing IDs are required")
	}

	res, err := s.validator.Validate(ctx, sourceID, targetID, validator.Options{CollectAll: true}, s.now())
	if err != nil {
		s.cfg.Log.Error("Failed to check eligibility",
			"source_listing_id", sourceID,
			"target_listing_id", targetID,
			"error", err,
		)
		return nil, s.txError(err, "Failed to check eligibility")
	}
	return res.Eligibility(), nil
}

func (s *targetingService) CancelListing(ctx context.Context, listingID, requesterID string) (*model.SwapListing, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}
	return s.cancelListing(ctx, listingID, requesterID)
}

// CancelListingsForBooking cancels every open listing of a booking the
// Booking Service no longer lets its owner swap.
func (s *targetingService) CancelListingsForBooking(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, apperrors.InvalidInput("booking ID is required")
	}

	open, err := s.listings.FindOpenByBooking(ctx, bookingID)
	if err != nil {
		return 0, apperrors.Internal("Failed to find listings for booking", err)
	}

	cancelled := 0
	for _, l := range open {
		if _, err := s.cancelListing(ctx, l.ID, ""); err != nil {
			if apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// cancelListing cancels an open listing and its active edges. An empty
// requesterID skips the ownership check.
func (s *targetingService) cancelListing(ctx context.Context, listingID, requesterID string) (*model.SwapListing, error) {
	now := s.now()
	var (
		listing   *model.SwapListing
		cancelled []*model.TargetingEdge
	)
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		listing, cancelled = nil, nil

		if err := s.listings.Lock(ctx, listingID); err != nil {
			return err
		}
		current, err := s.findListing(ctx, listingID)
		if err != nil {
			return err
		}
		if requesterID != "" && current.OwnerID != requesterID {
			return apperrors.NotOwner("requester does not own the listing")
		}
		if !current.IsOpen() {
			return apperrors.InvalidTransition(string(current.Status), string(model.ListingCancelled))
		}

		cancelled, err = s.transitions.CancelTouching(ctx, []string{listingID}, "", model.ResolutionListingCancelled, now)
		if err != nil {
			return err
		}
		listing, err = s.transitions.MoveListing(ctx, current, model.ListingCancelled, now)
		return err
	})
	if err != nil {
		s.logFailure("Failed to cancel listing", err, "listing_id", listingID)
		return nil, s.txError(err, "Failed to cancel listing")
	}

	observeEdges(s.metrics, cancelled...)
	observeListings(s.metrics, listing)
	s.cfg.Log.Info("Listing cancelled", "listing_id", listingID, "cancelled_proposals", len(cancelled))
	return listing, nil
}

// Expire moves an edge whose deadline passed to expired. It reports false
// when the edge was already resolved or is not due, so a concurrent accept
// always wins.
func (s *targetingService) Expire(ctx context.Context, edgeID string, now time.Time) (bool, error) {
	var expired *model.TargetingEdge
	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		expired = nil

		edge, err := s.edges.FindByID(ctx, edgeID)
		if err != nil {
			return mapEdgeError(err, edgeID)
		}
		if !edge.IsActive() {
			return nil
		}
		if edge, err = s.lockEdge(ctx, edgeID); err != nil {
			return err
		}
		if !edge.IsActive() || edge.ExpiresAt == nil || edge.ExpiresAt.After(now) {
			return nil
		}

		expired, err = s.transitions.ResolveEdge(ctx, edge, model.EdgeExpired, model.ResolutionDeadlinePassed, now)
		return err
	})
	if err != nil {
		return false, s.txError(err, "Failed to expire proposal")
	}
	if expired == nil {
		return false, nil
	}

	observeEdges(s.metrics, expired)
	s.cfg.Log.Info("Proposal expired", "edge_id", edgeID)
	return true, nil
}

func (s *targetingService) GetEdge(ctx context.Context, id string) (*model.TargetingEdge, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Proposal ID cannot be empty")
	}

	edge, err := s.edges.FindByID(ctx, id)
	if err != nil {
		if appErr := mapEdgeError(err, id); apperrors.IsAppError(appErr) {
			return nil, appErr
		}
		return nil, apperrors.Internal("Failed to retrieve proposal", err)
	}
	return edge, nil
}

func (s *targetingService) ListEdges(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, int64, error) {
	if listingID == "" {
		return nil, 0, apperrors.InvalidInput("Listing ID cannot be empty")
	}
	switch dir {
	case "":
		dir = model.DirectionAll
	case model.DirectionIncoming, model.DirectionOutgoing, model.DirectionAll:
	default:
		return nil, 0, apperrors.InvalidInput("direction must be one of: incoming, outgoing, all")
	}

	var count int64
	var edges []*model.TargetingEdge
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.edges.CountByListing(ctx, listingID, dir)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count proposals", "listing_id", listingID, "error", errCount)
			errCount = apperrors.Internal("Failed to count proposals", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		edges, errFind = s.edges.FindByListing(ctx, listingID, dir, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list proposals", "listing_id", listingID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve proposals", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return edges, count, nil
}

// lockEdge locks both endpoints of an edge and returns it as seen under the lock.
func (s *targetingService) lockEdge(ctx context.Context, edgeID string) (*model.TargetingEdge, error) {
	edge, err := s.edges.FindByID(ctx, edgeID)
	if err != nil {
		return nil, mapEdgeError(err, edgeID)
	}
	if err := s.listings.Lock(ctx, edge.SourceListingID, edge.TargetListingID); err != nil {
		return nil, err
	}
	edge, err = s.edges.FindByID(ctx, edgeID)
	if err != nil {
		return nil, mapEdgeError(err, edgeID)
	}
	return edge, nil
}

func (s *targetingService) edgeListings(ctx context.Context, edge *model.TargetingEdge) (*model.SwapListing, *model.SwapListing, error) {
	found, err := s.listings.FindByIDs(ctx, []string{edge.SourceListingID, edge.TargetListingID})
	if err != nil {
		return nil, nil, err
	}
	source, target := found[edge.SourceListingID], found[edge.TargetListingID]
	if source == nil || target == nil {
		return nil, nil, apperrors.ListingUnavailable("a listing of this proposal no longer exists")
	}
	return source, target, nil
}

func (s *targetingService) findListing(ctx context.Context, id string) (*model.SwapListing, error) {
	found, err := s.listings.FindByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	listing, ok := found[id]
	if !ok {
		return nil, apperrors.NotFoundWithID("Listing", id)
	}
	return listing, nil
}

func (s *targetingService) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperrors.IsAppError(err) && apperrors.AsAppError(err).HTTPStatus < 500 {
		s.cfg.Log.Warn(msg, args...)
		return
	}
	s.cfg.Log.Error(msg, args...)
}

func (s *targetingService) txError(err error, message string) error {
	if errors.Is(err, db.ErrRetriesExhausted) {
		s.metrics.ObserveTxExhausted()
	}
	return translateTxError(err, message)
}

func mapEdgeError(err error, id string) error {
	if errors.Is(err, targetingerrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Proposal", id)
	}
	if errors.Is(err, targetingerrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid proposal ID format")
	}
	return err
}

func translateTxError(err error, message string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, db.ErrRetriesExhausted) {
		return apperrors.RetryLater(err)
	}
	return apperrors.Internal(message, err)
}
