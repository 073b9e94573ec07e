package engine

import (
	"context"
	"errors"

	"bookswap/internal/audit"
	"bookswap/internal/targeting/consumer"
	"bookswap/pkg/config"
	"bookswap/pkg/kafka"
	kafka_config "bookswap/pkg/kafka/config"
	kafkamiddleware "bookswap/pkg/kafka/middleware"
	"bookswap/pkg/metrics"
)

// Delivery holds the audit sinks the outbox relay delivers to.
type Delivery struct {
	Recorder  audit.Recorder
	Notifier  audit.Notifier
	producers []*kafka.Producer
}

// NewDelivery publishes to Kafka when brokers are configured and falls back
// to logging otherwise.
func NewDelivery(cfg *config.Config, kcfg *kafka_config.Config, m *metrics.SwapMetrics) (*Delivery, error) {
	if !kcfg.Enabled() {
		cfg.Log.Warn("KAFKA_BROKERS not set, audit events and notifications are logged only")
		return &Delivery{
			Recorder: audit.NewLogRecorder(cfg.Log),
			Notifier: audit.NewLogNotifier(cfg.Log),
		}, nil
	}

	d := &Delivery{}
	auditProducer, err := d.producer(cfg, kcfg, cfg.KafkaAuditTopic, m)
	if err != nil {
		return nil, err
	}
	notifyProducer, err := d.producer(cfg, kcfg, cfg.KafkaNotificationTopic, m)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Recorder = audit.NewKafkaRecorder(auditProducer)
	d.Notifier = audit.NewKafkaNotifier(notifyProducer)
	return d, nil
}

func (d *Delivery) producer(cfg *config.Config, kcfg *kafka_config.Config, topic string, m *metrics.SwapMetrics) (*kafka.Producer, error) {
	p, err := kafka.NewProducer(kcfg, topic, cfg.KafkaDLQTopic, cfg.Log)
	if err != nil {
		return nil, err
	}
	if kcfg.EnableMiddleware {
		kafkamiddleware.InstrumentProducer(p, cfg.Log, m)
	}
	d.producers = append(d.producers, p)
	return p, nil
}

func (d *Delivery) Close() error {
	var errs []error
	for _, p := range d.producers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// NewBookingEventsConsumer subscribes the lifecycle manager to booking
// cancellations. It returns nil when Kafka is disabled.
func (e *Engine) NewBookingEventsConsumer(kcfg *kafka_config.Config) (*kafka.Consumer, error) {
	if !kcfg.Enabled() {
		e.cfg.Log.Warn("KAFKA_BROKERS not set, booking events are not consumed")
		return nil, nil
	}

	handler := consumer.NewBookingEventHandler(e.Targeting, e.cfg.Log)
	c, err := kafka.NewConsumer(kcfg, e.cfg.KafkaBookingEventsTopic, e.cfg.KafkaConsumerGroup, e.cfg.KafkaDLQTopic, handler.Handle, e.cfg.Log)
	if err != nil {
		return nil, err
	}
	if kcfg.EnableMiddleware {
		kafkamiddleware.InstrumentConsumer(c, e.cfg.Log, e.metrics)
	}
	return c, nil
}

// ConsumerWorker adapts a consumer to an application worker.
func ConsumerWorker(c *kafka.Consumer, cfg *config.Config) func(ctx context.Context) {
	return func(ctx context.Context) {
		if err := c.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Booking events consumer stopped", "error", err)
		}
	}
}
