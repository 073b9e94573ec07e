package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	listingrepo "bookswap/internal/listings/repository"
	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/internal/targeting/repository"
	"bookswap/pkg/db"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/logger"
	"bookswap/pkg/metrics"
	"bookswap/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Options selects which structural checks Validate runs.
type Options struct {
	// RequesterID enables the ownership check when set.
	RequesterID string
	// Replacing skips the already-targeting check; the caller is about to
	// cancel the source's active edges in the same transaction.
	Replacing bool
	// CollectAll keeps checking after the first violation.
	CollectAll bool
}

// Result is the outcome of a structural validation.
type Result struct {
	Source     *model.SwapListing
	Target     *model.SwapListing
	Violations []*apperrors.AppError
	// Visited holds the listings the cycle check walked through. Callers lock
	// them before writing so a concurrent edge on that path conflicts.
	Visited []string
}

func (r *Result) OK() bool {
	return len(r.Violations) == 0
}

// Err returns the first violation, or nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return r.Violations[0]
}

func (r *Result) Eligibility() *model.Eligibility {
	out := &model.Eligibility{Eligible: r.OK()}
	for _, v := range r.Violations {
		reason := model.EligibilityReason{Code: v.Code, Message: v.Message}
		if cycle, ok := v.Details["cycle"].([]string); ok {
			reason.Cycle = cycle
		}
		out.Reasons = append(out.Reasons, reason)
	}
	return out
}

type TargetingValidator struct {
	listings listingrepo.ListingRepository
	edges    repository.EdgeRepository
	validate *validator.Validate
	metrics  *metrics.SwapMetrics
	logger   *logger.Logger
}

func NewTargetingValidator(
	listings listingrepo.ListingRepository,
	edges repository.EdgeRepository,
	m *metrics.SwapMetrics,
	log *logger.Logger,
) *TargetingValidator {
	return &TargetingValidator{
		listings: listings,
		edges:    edges,
		validate: validator.New(),
		metrics:  m,
		logger:   log,
	}
}

func (v *TargetingValidator) ValidateRequest(req *model.TargetRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// Validate runs the structural checks for source targeting target in order:
// ownership, availability, self-targeting, existing target, auction deadline
// and cycles. It only reads, and is meant to run inside the transaction that
// writes the edge.
func (v *TargetingValidator) Validate(ctx context.Context, sourceID, targetID string, opts Options, now time.Time) (*Result, error) {
	found, err := v.listings.FindByIDs(ctx, []string{sourceID, targetID})
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	res := &Result{Source: found[sourceID], Target: found[targetID]}
	done := func() bool { return !opts.CollectAll && !res.OK() }

	if opts.RequesterID != "" && res.Source != nil && res.Source.OwnerID != opts.RequesterID {
		res.Violations = append(res.Violations, apperrors.NotOwner("requester does not own the source listing"))
		if done() {
			return res, nil
		}
	}

	for _, side := range []struct {
		name    string
		id      string
		listing *model.SwapListing
	}{
		{"source", sourceID, res.Source},
		{"target", targetID, res.Target},
	} {
		switch {
		case side.listing == nil:
			res.Violations = append(res.Violations,
				apperrors.ListingUnavailable(side.name+" listing does not exist").
					WithDetails(map[string]any{"listing_id": side.id}))
		case !side.listing.IsOpen():
			res.Violations = append(res.Violations,
				apperrors.ListingUnavailable(fmt.Sprintf("%s listing is %s", side.name, side.listing.Status)).
					WithDetails(map[string]any{"listing_id": side.id, "status": side.listing.Status}))
		}
		if done() {
			return res, nil
		}
	}

	if sourceID == targetID {
		res.Violations = append(res.Violations, apperrors.SelfTargeting())
		return res, nil
	}

	if res.Source != nil && !opts.Replacing {
		active, err := v.edges.FindActiveBySource(ctx, sourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load outgoing edges: %w", err)
		}
		for _, e := range active {
			if !res.Source.IsAuction() || e.TargetListingID == targetID {
				res.Violations = append(res.Violations, apperrors.AlreadyTargeting(sourceID, e.ID))
				break
			}
		}
		if done() {
			return res, nil
		}
	}

	if res.Target.AuctionOver(now) {
		res.Violations = append(res.Violations, apperrors.AuctionClosed(targetID))
		if done() {
			return res, nil
		}
	}

	if res.Source == nil || res.Target == nil {
		return res, nil
	}

	cycle, visited, err := v.FindCycle(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	res.Visited = visited
	if cycle != nil {
		res.Violations = append(res.Violations, apperrors.CircularTargeting(cycle))
	}
	return res, nil
}

// FindCycle reports the cycle a new edge source->target would close, as the
// path target..source over active edges, or nil when there is none. visited
// lists every listing reached from target. The walk runs on one snapshot of
// the active edges read inside the caller's transaction.
func (v *TargetingValidator) FindCycle(ctx context.Context, sourceID, targetID string) (cycle []string, visited []string, err error) {
	bound, err := v.listings.Count(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count listings: %w", err)
	}
	active, err := v.edges.FindActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load active edges: %w", err)
	}
	defer func() { v.metrics.ObserveCycleCheck(len(visited)) }()

	g := newGraph(active)
	if int64(g.size()) > bound {
		v.logger.Warn("Active edges reference more listings than exist",
			"source_listing_id", sourceID,
			"target_listing_id", targetID,
			"nodes", g.size(),
			"listings", bound,
		)
		return nil, nil, fmt.Errorf("%w: %w", db.ErrWriteConflict, targetingerrors.ErrTraversalBound)
	}

	cycle, visited = g.walk(targetID, sourceID)
	return cycle, visited, nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "iso4217":
			message = fmt.Sprintf("%s must be an ISO 4217 currency code", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
