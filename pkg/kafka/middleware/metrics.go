package kafka_middleware

import (
	"context"
	"time"

	"bookswap/pkg/kafka"
	"bookswap/pkg/logger"
	"bookswap/pkg/metrics"
)

const (
	directionPublish = "publish"
	directionConsume = "consume"
)

// MetricsProducerMiddleware records publish counts and latency. A nil
// registry disables recording.
func MetricsProducerMiddleware(m *metrics.SwapMetrics) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.ObserveKafka(directionPublish, msg.Topic, err == nil, time.Since(start))
		return err
	}
}

func MetricsConsumerMiddleware(m *metrics.SwapMetrics) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		m.ObserveKafka(directionConsume, msg.Topic, err == nil, time.Since(start))
		return err
	}
}

// InstrumentProducer installs logging then metrics on p.
func InstrumentProducer(p *kafka.Producer, log *logger.Logger, m *metrics.SwapMetrics) {
	p.Use(LoggingProducerMiddleware(log))
	p.Use(MetricsProducerMiddleware(m))
}

func InstrumentConsumer(c *kafka.Consumer, log *logger.Logger, m *metrics.SwapMetrics) {
	c.Use(LoggingConsumerMiddleware(log))
	c.Use(MetricsConsumerMiddleware(m))
}
