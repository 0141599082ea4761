package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-arb-go/inventory"
	"spread-arb-go/order"
	"spread-arb-go/signal"
	"spread-arb-go/spread"
)

func TestSpreadMetrics(t *testing.T) {
	m := New(DefaultConfig())
	a := m.ForSpread("SPC")
	b := m.ForSpread("OTHER")

	a.ObserveSynthetic(spread.SyntheticTick{Symbol: "SPC", Ts: time.Unix(1700000000, 0), Last: 6, Bid: 5.5, Ask: 6.5})
	a.ObservePosition(-1, 0, inventory.Short)
	a.ObservePnL(3, -1)
	a.TickAccepted()
	a.TickAccepted()
	a.TickRejected("unknown_leg")
	a.SignalEmitted(signal.CrossOver)
	a.OrderSubmitted(order.PurposeSignal)
	a.OrderSubmitted(order.PurposeCorrective)
	a.OrderRejected(order.PurposeCorrective)
	a.TradeFilled(2)
	a.EngineState(1)
	b.TickAccepted()

	assert.Equal(t, 6.0, testutil.ToFloat64(m.basis.WithLabelValues("SPC")))
	assert.Equal(t, 6.5, testutil.ToFloat64(m.synthAsk.WithLabelValues("SPC")))
	assert.Equal(t, -1.0, testutil.ToFloat64(m.netPosition.WithLabelValues("SPC")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.positionState.WithLabelValues("SPC")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticksAccepted.WithLabelValues("SPC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksAccepted.WithLabelValues("OTHER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksRejected.WithLabelValues("SPC", "unknown_leg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signals.WithLabelValues("SPC", "cross_over")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("SPC", "corrective")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.filledVolume.WithLabelValues("SPC")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ticksAccepted))
}

func TestHandler(t *testing.T) {
	m := New(Config{Namespace: "test", Subsystem: "arb"})
	m.ForSpread("SPC").ObserveParity(101.5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_arb_parity_synthetic_underlying{spread="SPC"} 101.5`), body)
}
