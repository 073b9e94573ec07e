// Package metrics exposes the Prometheus collectors of the swap engine.
// Every Observe method is safe on a nil receiver.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SwapMetrics struct {
	edgeTransitions    *prometheus.CounterVec
	listingTransitions *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	txRetries          prometheus.Counter
	txExhausted        prometheus.Counter
	cycleChecks        prometheus.Histogram
	sweeps             *prometheus.CounterVec
	sweptEdges         *prometheus.CounterVec
	outboxDeliveries   *prometheus.CounterVec
	kafkaMessages      *prometheus.CounterVec
	kafkaDuration      *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
}

var (
	swapOnce     sync.Once
	swapRegistry *SwapMetrics
)

func Swap() *SwapMetrics {
	swapOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			edgeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_edge_transitions_total",
				Help: "Targeting edge status transitions by destination status and resolution.",
			}, []string{"status", "resolution"}),
			listingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_listing_transitions_total",
				Help: "Swap listing status transitions by destination status.",
			}, []string{"status"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_targeting_rejections_total",
				Help: "Targeting requests refused by the validator, by error code.",
			}, []string{"code"}),
			txRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "swap_tx_retries_total",
				Help: "Transactions retried after a write conflict.",
			}),
			txExhausted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "swap_tx_retries_exhausted_total",
				Help: "Transactions that gave up after the retry budget.",
			}),
			cycleChecks: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "swap_cycle_check_visited_listings",
				Help:    "Listings visited per cycle detection traversal.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}),
			sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_sweeper_runs_total",
				Help: "Expiry sweeper passes by result.",
			}, []string{"result"}),
			sweptEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_sweeper_items_total",
				Help: "Items handled by the expiry sweeper by kind and outcome.",
			}, []string{"kind", "outcome"}),
			outboxDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_outbox_deliveries_total",
				Help: "Outbox delivery attempts by event type and result.",
			}, []string{"event_type", "result"}),
			kafkaMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_kafka_messages_total",
				Help: "Kafka messages by direction, topic and result.",
			}, []string{"direction", "topic", "result"}),
			kafkaDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "swap_kafka_duration_seconds",
				Help:    "Kafka publish and handle latency.",
				Buckets: prometheus.DefBuckets,
			}, []string{"direction"}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_http_requests_total",
				Help: "HTTP requests by method and status code.",
			}, []string{"method", "status"}),
		}
		prometheus.MustRegister(
			swapRegistry.edgeTransitions,
			swapRegistry.listingTransitions,
			swapRegistry.rejections,
			swapRegistry.txRetries,
			swapRegistry.txExhausted,
			swapRegistry.cycleChecks,
			swapRegistry.sweeps,
			swapRegistry.sweptEdges,
			swapRegistry.outboxDeliveries,
			swapRegistry.kafkaMessages,
			swapRegistry.kafkaDuration,
			swapRegistry.httpRequests,
		)
	})
	return swapRegistry
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *SwapMetrics) ObserveEdgeTransition(status, resolution string) {
	if m == nil {
		return
	}
	if resolution == "" {
		resolution = "none"
	}
	m.edgeTransitions.WithLabelValues(status, resolution).Inc()
}

func (m *SwapMetrics) ObserveListingTransition(status string) {
	if m == nil {
		return
	}
	m.listingTransitions.WithLabelValues(status).Inc()
}

func (m *SwapMetrics) ObserveRejection(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *SwapMetrics) ObserveTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

func (m *SwapMetrics) ObserveTxExhausted() {
	if m == nil {
		return
	}
	m.txExhausted.Inc()
}

func (m *SwapMetrics) ObserveCycleCheck(visited int) {
	if m == nil {
		return
	}
	m.cycleChecks.Observe(float64(visited))
}

func (m *SwapMetrics) ObserveSweep(ok bool) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result(ok)).Inc()
}

func (m *SwapMetrics) ObserveSwept(kind, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweptEdges.WithLabelValues(kind, outcome).Add(float64(n))
}

func (m *SwapMetrics) ObserveOutboxDelivery(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(eventType, result(ok)).Inc()
}

func (m *SwapMetrics) ObserveKafka(direction, topic string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	if topic == "" {
		topic = "unknown"
	}
	m.kafkaMessages.WithLabelValues(direction, topic, result(ok)).Inc()
	m.kafkaDuration.WithLabelValues(direction).Observe(took.Seconds())
}

func (m *SwapMetrics) ObserveHTTPRequest(method, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, status).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
