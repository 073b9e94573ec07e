package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookswap/internal/audit"
	listingserrors "bookswap/internal/listings/errors"
	"bookswap/internal/listings/repository"
	"bookswap/internal/listings/validator"
	"bookswap/pkg/client"
	"bookswap/pkg/config"
	"bookswap/pkg/db"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/model"
	"bookswap/pkg/sanitizer"

	"github.com/google/uuid"
)

// BookingDirectory is the Booking Service as seen by this service.
type BookingDirectory interface {
	GetBookingOwner(ctx context.Context, bookingID string) (string, error)
	IsBookingAvailable(ctx context.Context, bookingID string) (bool, error)
}

type ListingService interface {
	Create(ctx context.Context, requesterID string, req *model.CreateListingRequest) (*model.SwapListing, error)
	GetByID(ctx context.Context, id string) (*model.SwapListing, error)
	GetAll(ctx context.Context, status model.ListingStatus, limit int, offset int64) ([]*model.SwapListing, int64, error)
}

type listingService struct {
	repo      repository.ListingRepository
	tx        db.TransactionManager
	emitter   audit.Emitter
	bookings  BookingDirectory
	validator *validator.ListingValidator
	cfg       *config.Config
	now       func() time.Time
}

// NewListingService wires the listing service. A nil bookings directory
// skips booking ownership and availability checks.
func NewListingService(
	repo repository.ListingRepository,
	tx db.TransactionManager,
	emitter audit.Emitter,
	bookings BookingDirectory,
	validator *validator.ListingValidator,
	cfg *config.Config,
) ListingService {
	return &listingService{
		repo:      repo,
		tx:        tx,
		emitter:   emitter,
		bookings:  bookings,
		validator: validator,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *listingService) Create(ctx context.Context, requesterID string, req *model.CreateListingRequest) (*model.SwapListing, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}
	if req == nil {
		return nil, apperrors.InvalidInput("listing request cannot be empty")
	}

	now := s.now()
	req.BookingID = sanitizer.TrimAndNormalize(req.BookingID)
	req.Title = sanitizer.SanitizeTitle(req.Title)
	if err := s.validator.ValidateCreate(req, now); err != nil {
		s.cfg.Log.Warn("Listing validation failed", "booking_id", req.BookingID, "error", err)
		return nil, apperrors.Validation("Invalid listing input", map[string]any{"error": err.Error()})
	}

	if err := s.verifyBooking(ctx, requesterID, req.BookingID); err != nil {
		return nil, err
	}

	listing := &model.SwapListing{
		ID:        uuid.NewString(),
		OwnerID:   requesterID,
		BookingID: req.BookingID,
		Mode:      req.Mode,
		Status:    model.ListingOpen,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.AuctionDeadline != nil {
		deadline := req.AuctionDeadline.UTC().Truncate(time.Millisecond)
		listing.AuctionDeadline = &deadline
	}
	if err := s.validator.ValidateListing(listing); err != nil {
		return nil, apperrors.Validation("Invalid listing", map[string]any{"error": err.Error()})
	}

	err := s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, listing); err != nil {
			if errors.Is(err, listingserrors.ErrDuplicate) {
				return apperrors.Conflict("an open listing already exists for this booking")
			}
			return err
		}
		return s.emitter.Emit(ctx, audit.ListingEvent(model.EventListingCreated, listing, now))
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create listing", "booking_id", listing.BookingID, "error", err)
		return nil, translateTxError(err, "Failed to create listing")
	}

	s.cfg.Log.Info("Listing created successfully",
		"listing_id", listing.ID,
		"owner_id", listing.OwnerID,
		"booking_id", listing.BookingID,
		"mode", listing.Mode,
	)
	return listing, nil
}

func (s *listingService) verifyBooking(ctx context.Context, requesterID, bookingID string) error {
	if s.bookings == nil {
		return nil
	}

	owner, err := s.bookings.GetBookingOwner(ctx, bookingID)
	if err != nil {
		if errors.Is(err, client.ErrBookingNotFound) {
			return apperrors.ListingUnavailable("booking does not exist")
		}
		s.cfg.Log.Error("Booking Service lookup failed", "booking_id", bookingID, "error", err)
		return apperrors.Unavailable("Booking Service")
	}
	if owner != requesterID {
		return apperrors.NotOwner("requester does not own the booking")
	}

	available, err := s.bookings.IsBookingAvailable(ctx, bookingID)
	if err != nil {
		s.cfg.Log.Error("Booking Service availability check failed", "booking_id", bookingID, "error", err)
		return apperrors.Unavailable("Booking Service")
	}
	if !available {
		return apperrors.ListingUnavailable("booking is not available for swapping")
	}
	return nil
}

func (s *listingService) GetByID(ctx context.Context, id string) (*model.SwapListing, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Listing ID cannot be empty")
	}

	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, listingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Listing", id)
		}
		if errors.Is(err, listingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid listing ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve listing", err)
	}
	return listing, nil
}

func (s *listingService) GetAll(ctx context.Context, status model.ListingStatus, limit int, offset int64) ([]*model.SwapListing, int64, error) {
	switch status {
	case "", model.ListingOpen, model.ListingCommitted, model.ListingCancelled, model.ListingCompleted:
	default:
		return nil, 0, apperrors.InvalidInput("invalid status filter: " + string(status))
	}

	var count int64
	var listings []*model.SwapListing
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, status)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count listings", "status", status, "error", errCount)
			errCount = apperrors.Internal("Failed to count listings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		listings, errFind = s.repo.FindAll(ctx, status, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list listings", "status", status, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve listings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return listings, count, nil
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
