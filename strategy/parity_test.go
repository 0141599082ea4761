package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/spread"
)

func quote(symbol string, bid, ask float64) market.Tick {
	return market.Tick{Symbol: symbol, Ts: t0, BidPrice: bid, AskPrice: ask}
}

func TestParityMonitor(t *testing.T) {
	obs := newRecordingObserver()
	m, err := NewParityMonitor(Params{Name: "IO2403-4000", PricingMode: spread.Mid, Offset: 100}, Deps{Observer: obs})
	require.NoError(t, err)
	require.NoError(t, m.OnInit([]string{"CALL", "PUT", "IF"}, nil))
	require.NoError(t, m.OnStart())

	require.NoError(t, m.OnLegTick(quote("CALL", 11.5, 12.5)))
	require.NoError(t, m.OnLegTick(quote("PUT", 6.5, 7.5)))
	_, ok := m.SyntheticUnderlying()
	assert.False(t, ok)

	require.NoError(t, m.OnLegTick(quote("IF", 104.5, 105.5)))
	u, ok := m.SyntheticUnderlying()
	require.True(t, ok)
	assert.InDelta(t, 105.0, u, 1e-9)
	assert.InDelta(t, 105.0, obs.parity, 1e-9)
	assert.InDelta(t, 0.0, obs.last.Last, 1e-9, "12 - 7 - 105 + 100")

	// 看涨上涨 1：平价偏离 +1，合成标的 +1
	require.NoError(t, m.OnLegTick(quote("CALL", 12.5, 13.5)))
	sum := m.Summary()
	assert.InDelta(t, 1.0, sum.Basis, 1e-9)
	assert.Equal(t, 2, sum.Updates)
	u, _ = m.SyntheticUnderlying()
	assert.InDelta(t, 106.0, u, 1e-9)

	// 从不下单
	assert.NoError(t, m.OnTrade(order.Trade{Symbol: "CALL", Volume: 1}))
	assert.NoError(t, m.OnBar(market.Bar{}))
	require.NoError(t, m.OnStop())
	assert.False(t, m.Summary().Ready)
}

func TestParityMonitorInit(t *testing.T) {
	m, err := NewParityMonitor(Params{Name: "P", PricingMode: spread.Mid}, Deps{})
	require.NoError(t, err)
	assert.ErrorIs(t, m.OnInit([]string{"CALL", "PUT"}, nil), spread.ErrConfiguration)
	assert.ErrorIs(t, m.OnInit([]string{"CALL", "PUT", "IF"}, []float64{1, 0, -1}), spread.ErrZeroCoefficient)
	_, err = NewParityMonitor(Params{}, Deps{})
	assert.ErrorIs(t, err, spread.ErrConfiguration)
}
