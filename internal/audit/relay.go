package audit

import (
	"context"
	"time"

	"bookswap/internal/audit/repository"
	"bookswap/pkg/logger"
	"bookswap/pkg/metrics"
	"bookswap/pkg/model"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRelayBatchSize   = 100
	defaultRelayMaxAttempts = 10
	defaultRelayInterval    = 2 * time.Second
	defaultRelayRetryDelay  = time.Second
	maxRelayRetryDelay      = 10 * time.Minute
)

// RelayOption adjusts the behaviour of the relay.
type RelayOption func(*Relay)

func WithRelayBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRelayMaxAttempts sets how many failed deliveries turn a record failed.
func WithRelayMaxAttempts(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRelayRetryDelay sets the delay after the first failure; later failures
// back off exponentially from it.
func WithRelayRetryDelay(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

func WithRelayMetrics(m *metrics.SwapMetrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func withRelayClock(now func() time.Time) RelayOption {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// Relay delivers outbox records to the Recorder and the Notifier. Failures
// never touch the transition that produced the record; they are rescheduled.
type Relay struct {
	outbox      repository.OutboxRepository
	recorder    Recorder
	notifier    Notifier
	log         *logger.Logger
	metrics     *metrics.SwapMetrics
	batchSize   int
	maxAttempts int
	interval    time.Duration
	retryDelay  time.Duration
	now         func() time.Time
}

// RelayReport summarises one relay pass.
type RelayReport struct {
	Delivered       int
	Rescheduled     int
	Failed          int
	NotifyFailures  int
	RecordsExamined int
}

func NewRelay(outbox repository.OutboxRepository, recorder Recorder, notifier Notifier, log *logger.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:      outbox,
		recorder:    recorder,
		notifier:    notifier,
		log:         log,
		batchSize:   defaultRelayBatchSize,
		maxAttempts: defaultRelayMaxAttempts,
		interval:    defaultRelayInterval,
		retryDelay:  defaultRelayRetryDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start polls the outbox until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	r.log.Info("Outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("Outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce delivers every record that is due now.
func (r *Relay) RunOnce(ctx context.Context) (RelayReport, error) {
	var report RelayReport
	now := r.now().UTC()

	due, err := r.outbox.FindDue(ctx, now, r.batchSize)
	if err != nil {
		return report, err
	}
	report.RecordsExamined = len(due)

	for _, rec := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r.deliver(ctx, rec, now, &report)
	}

	if report.RecordsExamined > 0 {
		r.log.Debug("Outbox relay pass finished",
			"delivered", report.Delivered,
			"rescheduled", report.Rescheduled,
			"failed", report.Failed,
		)
	}
	return report, nil
}

func (r *Relay) deliver(ctx context.Context, rec *model.OutboxRecord, now time.Time, report *RelayReport) {
	ref, err := r.recorder.Record(ctx, rec.EventType, rec.Payload)
	r.metrics.ObserveOutboxDelivery(rec.EventType, err == nil)
	if err != nil {
		r.reschedule(ctx, rec, now, err, report)
		return
	}

	// Notification is best effort: the ledger entry already exists, so a
	// retry here would duplicate it.
	for _, userID := range rec.RecipientIDs {
		if nerr := r.notifier.Notify(ctx, userID, rec.EventType, rec.Payload); nerr != nil {
			report.NotifyFailures++
			r.log.Warn("Failed to notify user",
				"outbox_id", rec.ID,
				"event_type", rec.EventType,
				"user_id", userID,
				"error", nerr,
			)
		}
	}

	if err := r.outbox.MarkDelivered(ctx, rec.ID, ref, now); err != nil {
		r.log.Error("Failed to mark outbox record delivered",
			"outbox_id", rec.ID,
			"transaction_ref", ref,
			"error", err,
		)
		return
	}
	report.Delivered++
}

func (r *Relay) reschedule(ctx context.Context, rec *model.OutboxRecord, now time.Time, cause error, report *RelayReport) {
	attempts := rec.Attempts + 1
	terminal := attempts >= r.maxAttempts
	next := now.Add(r.delay(attempts))

	if terminal {
		report.Failed++
		r.log.Error("Audit event delivery abandoned",
			"outbox_id", rec.ID,
			"event_type", rec.EventType,
			"attempts", attempts,
			"error", cause,
		)
	} else {
		report.Rescheduled++
		r.log.Warn("Audit event delivery failed, rescheduled",
			"outbox_id", rec.ID,
			"event_type", rec.EventType,
			"attempts", attempts,
			"next_attempt_at", next,
			"error", cause,
		)
	}

	if err := r.outbox.MarkFailed(ctx, rec.ID, attempts, next, cause.Error(), terminal); err != nil {
		r.log.Error("Failed to reschedule outbox record", "outbox_id", rec.ID, "error", err)
	}
}

// delay is the wait after the given number of failed attempts:
// retryDelay, 2*retryDelay, 4*retryDelay ... capped at maxRelayRetryDelay.
func (r *Relay) delay(attempts int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.retryDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = maxRelayRetryDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	d := eb.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = eb.NextBackOff()
	}
	return d
}
