// Package sweeper periodically expires proposals and closes auctions whose
// deadline passed. Every item is handled in its own transaction that
// re-checks the state, so the sweeper may run next to itself and next to
// user requests.
package sweeper

import (
	"context"
	"time"

	listingrepo "bookswap/internal/listings/repository"
	"bookswap/internal/targeting/auction"
	"bookswap/internal/targeting/repository"
	"bookswap/internal/targeting/service"
	"bookswap/pkg/config"
	apperrors "bookswap/pkg/errors"
	"bookswap/pkg/logger"
	"bookswap/pkg/metrics"
)

const (
	kindEdge    = "edge"
	kindAuction = "auction"
)

// Report summarizes one sweep.
type Report struct {
	ExpiredEdges   int
	ClosedAuctions int
	// Skipped counts items a concurrent transition resolved first.
	Skipped int
	Errors  int
}

type Sweeper struct {
	lifecycle service.TargetingService
	auctions  *auction.Coordinator
	listings  listingrepo.ListingRepository
	edges     repository.EdgeRepository
	metrics   *metrics.SwapMetrics
	log       *logger.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func New(
	lifecycle service.TargetingService,
	auctions *auction.Coordinator,
	listings listingrepo.ListingRepository,
	edges repository.EdgeRepository,
	m *metrics.SwapMetrics,
	cfg *config.Config,
) *Sweeper {
	return &Sweeper{
		lifecycle: lifecycle,
		auctions:  auctions,
		listings:  listings,
		edges:     edges,
		metrics:   m,
		log:       cfg.Log,
		interval:  cfg.SweepInterval,
		batchSize: cfg.SweepBatchSize,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Start sweeps every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Expiry sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			report := s.RunOnce(ctx, s.now())
			if report.ExpiredEdges+report.ClosedAuctions+report.Errors > 0 {
				s.log.Info("Sweep finished",
					"expired_edges", report.ExpiredEdges,
					"closed_auctions", report.ClosedAuctions,
					"skipped", report.Skipped,
					"errors", report.Errors,
				)
			}
		}
	}
}

// RunOnce closes auctions due at now, then expires the remaining due
// proposals. Auctions go first so their proposals are resolved with the
// auction_closed resolution.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) Report {
	var report Report

	auctions, err := s.listings.FindExpiredAuctions(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("Failed to find expired auctions", "error", err)
		report.Errors++
	}
	for _, l := range auctions {
		if ctx.Err() != nil {
			break
		}
		closed, err := s.auctions.CloseExpired(ctx, l.ID, now)
		switch {
		case err != nil:
			s.recordError(&report, kindAuction, l.ID, err)
		case closed == nil:
			report.Skipped++
			s.metrics.ObserveSwept(kindAuction, "skipped", 1)
		default:
			report.ClosedAuctions++
			report.ExpiredEdges += len(closed.Expired)
			s.metrics.ObserveSwept(kindAuction, "closed", 1)
			s.metrics.ObserveSwept(kindEdge, "expired", len(closed.Expired))
		}
	}

	edges, err := s.edges.FindExpired(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("Failed to find expired proposals", "error", err)
		report.Errors++
	}
	for _, e := range edges {
		if ctx.Err() != nil {
			break
		}
		expired, err := s.lifecycle.Expire(ctx, e.ID, now)
		switch {
		case err != nil:
			s.recordError(&report, kindEdge, e.ID, err)
		case !expired:
			report.Skipped++
			s.metrics.ObserveSwept(kindEdge, "skipped", 1)
		default:
			report.ExpiredEdges++
			s.metrics.ObserveSwept(kindEdge, "expired", 1)
		}
	}

	s.metrics.ObserveSweep(report.Errors == 0)
	return report
}

// recordError counts err against the sweep. Losing a race to a user
// transition is a skip, not an error.
func (s *Sweeper) recordError(report *Report, kind, id string, err error) {
	if apperrors.HasCode(err, apperrors.CodeAlreadyResolved) ||
		apperrors.HasCode(err, apperrors.CodeRetryLater) ||
		apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		report.Skipped++
		s.metrics.ObserveSwept(kind, "skipped", 1)
		s.log.Debug("Sweep item skipped", "kind", kind, "id", id, "error", err)
		return
	}
	report.Errors++
	s.metrics.ObserveSwept(kind, "error", 1)
	s.log.Error("Sweep item failed", "kind", kind, "id", id, "error", err)
}
