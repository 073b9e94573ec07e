package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"bookswap/pkg/config"
	"bookswap/pkg/contracts"
	"bookswap/pkg/metrics"
	"bookswap/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type worker struct {
	name string
	w    contracts.Worker
}

type closer struct {
	name string
	fn   func() error
}

// Application runs the HTTP server and the background workers of a service
// and tears them down in reverse order on shutdown.
type Application struct {
	cfg              *config.Config
	metrics          *metrics.SwapMetrics
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.RequesterRateLimiter
	workers          []worker
	closers          []closer
}

// NewApplication builds an application. m may be nil, in which case
// /metrics is not served.
func NewApplication(cfg *config.Config, m *metrics.SwapMetrics) *Application {
	return &Application{cfg: cfg, metrics: m}
}

// SetApp mounts health and the business handlers. Health endpoints get
// Recovery and Logging only; business endpoints get the full stack.
func (a *Application) SetApp(health contracts.Handler, handlers ...contracts.Handler) {
	mux := http.NewServeMux()

	healthRouter := httprouter.New()
	health.RegisterRoutes(healthRouter)
	healthHandler := a.healthChain(healthRouter)
	mux.Handle("/health", healthHandler)
	mux.Handle("/ready", healthHandler)

	if a.metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	if len(handlers) > 0 {
		appRouter := httprouter.New()
		for _, h := range handlers {
			h.RegisterRoutes(appRouter)
		}
		mux.Handle("/", a.appChain(appRouter))
		a.cfg.Log.Info("Application endpoints configured with full middleware stack")
	}

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}
	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) healthChain(router http.Handler) http.Handler {
	h := router
	h = middleware.RequestLogging(a.cfg.Log, nil)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	return h
}

func (a *Application) appChain(router http.Handler) http.Handler {
	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewRequesterRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.RequesterKey,
		a.cfg.Log,
	)

	h := router
	h = middleware.Idempotency(a.idempotencyStore)(h)
	h = middleware.RequestTimeout(a.cfg.RequestTimeout)(h)
	h = middleware.RateLimit(a.rateLimiter)(h)
	h = middleware.Requester(a.cfg.Log)(h)
	h = middleware.ContentTypeValidation(a.cfg.Log)(h)
	h = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(h)
	h = middleware.RequestLogging(a.cfg.Log, a.metrics)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	return h
}

// AddWorker registers a background loop started alongside the server.
func (a *Application) AddWorker(name string, w contracts.Worker) {
	a.workers = append(a.workers, worker{name: name, w: w})
}

// OnShutdown registers fn to run after the server and workers stopped.
// Closers run in reverse registration order.
func (a *Application) OnShutdown(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (a *Application) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx); err != nil {
		a.cfg.Log.Fatal("HTTP server failed", "error", err)
	}
}

// Serve runs the server and workers until ctx is done or the server fails.
func (a *Application) Serve(ctx context.Context) error {
	if a.server == nil {
		return errors.New("application has no server, call SetApp first")
	}

	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.shutdown()
		return err
	}
	return a.serve(ctx, listener)
}

func (a *Application) serve(ctx context.Context, listener net.Listener) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, wk := range a.workers {
		wg.Add(1)
		go func(wk worker) {
			defer wg.Done()
			a.cfg.Log.Info("Starting worker", "worker", wk.name)
			wk.w.Start(workerCtx)
			a.cfg.Log.Info("Worker stopped", "worker", wk.name)
		}(wk)
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", listener.Addr().String())
		serverErrors <- a.server.Serve(listener)
	}()

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		a.cfg.Log.Info("Shutdown signal received")
	}

	a.gracefulShutdown(cancelWorkers, &wg)
	return serveErr
}

func (a *Application) gracefulShutdown(cancelWorkers context.CancelFunc, wg *sync.WaitGroup) {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	cancelWorkers()
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		a.cfg.Log.Info("Background workers stopped")
	case <-ctx.Done():
		a.cfg.Log.Warn("Background workers did not stop before the shutdown timeout")
	}

	a.shutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}

func (a *Application) shutdown() {
	if a.idempotencyStore != nil {
		a.idempotencyStore.Stop()
	}
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.cfg.Log.Error("Failed to close resource", "resource", c.name, "error", err)
		}
	}
	if a.cfg.Client != nil {
		a.cfg.GracefulShutdown()
	}
}
