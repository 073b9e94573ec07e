// Package engine assembles the swap engine for one store backend. Every
// binary builds the same graph of repositories and services from it.
package engine

import (
	"fmt"

	"bookswap/internal/audit"
	auditrepo "bookswap/internal/audit/repository"
	listinghandler "bookswap/internal/listings/handler"
	listingrepo "bookswap/internal/listings/repository"
	listingservice "bookswap/internal/listings/service"
	listingvalidator "bookswap/internal/listings/validator"
	"bookswap/internal/targeting/auction"
	targetinghandler "bookswap/internal/targeting/handler"
	"bookswap/internal/targeting/repository"
	"bookswap/internal/targeting/service"
	"bookswap/internal/targeting/sweeper"
	"bookswap/internal/targeting/validator"
	"bookswap/pkg/client"
	"bookswap/pkg/config"
	"bookswap/pkg/contracts"
	"bookswap/pkg/db"
	"bookswap/pkg/db/memory"
	mongodb "bookswap/pkg/db/mongo"
	pgdb "bookswap/pkg/db/postgres"
	"bookswap/pkg/metrics"
)

// Stores are the repositories of one backend plus its transaction manager.
type Stores struct {
	Listings listingrepo.ListingRepository
	Edges    repository.EdgeRepository
	Outbox   auditrepo.OutboxRepository
	Tx       db.TransactionManager
}

// OpenStores builds the repositories for cfg.StoreDriver. The connection
// must already be open (cfg.Connect).
func OpenStores(cfg *config.Config, policy db.RetryPolicy) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		store := memory.New(policy)
		return &Stores{
			Listings: listingrepo.NewMemoryListingRepository(store),
			Edges:    repository.NewMemoryEdgeRepository(store),
			Outbox:   auditrepo.NewMemoryOutboxRepository(store),
			Tx:       store,
		}, nil
	case config.StoreMongo:
		return &Stores{
			Listings: listingrepo.NewMongoListingRepository(cfg),
			Edges:    repository.NewMongoEdgeRepository(cfg),
			Outbox:   auditrepo.NewMongoOutboxRepository(cfg),
			Tx:       mongodb.NewTransactionManager(cfg.Client.Mongo, policy),
		}, nil
	case config.StorePostgres:
		pool := cfg.Client.Postgres
		return &Stores{
			Listings: listingrepo.NewPostgresListingRepository(pool),
			Edges:    repository.NewPostgresEdgeRepository(pool),
			Outbox:   auditrepo.NewPostgresOutboxRepository(pool),
			Tx:       pgdb.NewTransactionManager(pool, policy),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

type Engine struct {
	*Stores
	Emitter   audit.Emitter
	Listing   listingservice.ListingService
	Targeting service.TargetingService
	Auctions  *auction.Coordinator
	Sweeper   *sweeper.Sweeper

	cfg     *config.Config
	metrics *metrics.SwapMetrics
}

// New wires the services on top of the configured store. m may be nil.
func New(cfg *config.Config, m *metrics.SwapMetrics) (*Engine, error) {
	stores, err := OpenStores(cfg, RetryPolicy(cfg, m))
	if err != nil {
		return nil, err
	}
	return NewWithStores(cfg, stores, bookingDirectory(cfg), m), nil
}

// NewWithStores wires the services on top of stores. A nil bookings
// directory skips booking checks on listing creation.
func NewWithStores(cfg *config.Config, stores *Stores, bookings listingservice.BookingDirectory, m *metrics.SwapMetrics) *Engine {
	emitter := audit.NewOutboxEmitter(stores.Outbox)

	listing := listingservice.NewListingService(
		stores.Listings,
		stores.Tx,
		emitter,
		bookings,
		listingvalidator.NewListingValidator(cfg.Log),
		cfg,
	)
	targeting := service.NewTargetingService(
		stores.Listings,
		stores.Edges,
		stores.Tx,
		emitter,
		validator.NewTargetingValidator(stores.Listings, stores.Edges, m, cfg.Log),
		m,
		cfg,
	)
	auctions := auction.NewCoordinator(targeting, stores.Listings, stores.Edges, stores.Tx, emitter, m, cfg)

	cfg.Log.Info("Swap engine initialized", "store", cfg.StoreDriver)
	return &Engine{
		Stores:    stores,
		Emitter:   emitter,
		Listing:   listing,
		Targeting: targeting,
		Auctions:  auctions,
		Sweeper:   sweeper.New(targeting, auctions, stores.Listings, stores.Edges, m, cfg),
		cfg:       cfg,
		metrics:   m,
	}
}

// Handlers returns the HTTP handlers of the public API.
func (e *Engine) Handlers() []contracts.Handler {
	return []contracts.Handler{
		listinghandler.NewListingHandler(e.Listing, e.cfg.Log),
		targetinghandler.NewTargetingHandler(e.Targeting, e.Auctions, e.cfg.Log),
	}
}

// NewRelay builds the outbox relay delivering to recorder and notifier.
func (e *Engine) NewRelay(recorder audit.Recorder, notifier audit.Notifier) *audit.Relay {
	return audit.NewRelay(e.Outbox, recorder, notifier, e.cfg.Log,
		audit.WithRelayBatchSize(e.cfg.OutboxBatchSize),
		audit.WithRelayMaxAttempts(e.cfg.OutboxMaxAttempts),
		audit.WithRelayInterval(e.cfg.OutboxPollInterval),
		audit.WithRelayMetrics(e.metrics),
	)
}

// RetryPolicy is the configured transaction retry policy, counting every
// retry in m.
func RetryPolicy(cfg *config.Config, m *metrics.SwapMetrics) db.RetryPolicy {
	policy := cfg.RetryPolicy()
	policy.OnRetry = func(attempt int, err error) {
		m.ObserveTxRetry()
		cfg.Log.Debug("Retrying transaction after conflict", "attempt", attempt, "error", err)
	}
	return policy
}

func bookingDirectory(cfg *config.Config) listingservice.BookingDirectory {
	if cfg.BookingServiceURL == "" {
		cfg.Log.Warn("BOOKING_SERVICE_URL not set, listings are created without booking checks")
		return nil
	}
	return client.NewBookingClient(cfg.BookingServiceURL, cfg.BookingServiceTimeout)
}
