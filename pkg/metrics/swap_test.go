package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSwapMetrics_Counters(t *testing.T) {
	m := Swap()
	require.Same(t, m, Swap())

	before := testutil.ToFloat64(m.edgeTransitions.WithLabelValues("accepted", "accepted_by_owner"))
	m.ObserveEdgeTransition("accepted", "accepted_by_owner")
	require.Equal(t, before+1, testutil.ToFloat64(m.edgeTransitions.WithLabelValues("accepted", "accepted_by_owner")))

	before = testutil.ToFloat64(m.rejections.WithLabelValues("unknown"))
	m.ObserveRejection("")
	require.Equal(t, before+1, testutil.ToFloat64(m.rejections.WithLabelValues("unknown")))

	before = testutil.ToFloat64(m.sweptEdges.WithLabelValues("edge", "expired"))
	m.ObserveSwept("edge", "expired", 3)
	m.ObserveSwept("edge", "expired", 0)
	require.Equal(t, before+3, testutil.ToFloat64(m.sweptEdges.WithLabelValues("edge", "expired")))
}

func TestSwapMetrics_NilSafe(t *testing.T) {
	var m *SwapMetrics
	m.ObserveEdgeTransition("active", "")
	m.ObserveListingTransition("open")
	m.ObserveRejection("SELF_TARGETING")
	m.ObserveTxRetry()
	m.ObserveTxExhausted()
	m.ObserveCycleCheck(4)
	m.ObserveSweep(true)
	m.ObserveSwept("edge", "expired", 1)
	m.ObserveOutboxDelivery("swap.proposal.created", false)
	m.ObserveKafka("publish", "swap-audit", true, time.Millisecond)
	m.ObserveHTTPRequest("GET", "200")
}
