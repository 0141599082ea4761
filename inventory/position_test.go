package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-arb-go/market"
	"spread-arb-go/spread"
)

func newPosition(t *testing.T, coefs ...float64) (*SpreadPosition, *spread.Registry) {
	t.Helper()
	symbols := []string{"A", "B", "C", "D"}[:len(coefs)]
	reg, err := spread.NewRegistry(symbols, coefs)
	require.NoError(t, err)
	return NewSpreadPosition(reg), reg
}

func fill(p *SpreadPosition, fills ...float64) {
	for i, f := range fills {
		if f != 0 {
			p.ApplyTrade(spread.LegID(i), f, 100)
		}
	}
}

func TestScenarioBImbalance(t *testing.T) {
	p, _ := newPosition(t, 1, -2, 1)
	fill(p, 1, -2, 1)

	assert.InDelta(t, 2.0, p.Imbalance(), 1e-12)
	leg, signed, ok := p.CorrectionTarget()
	require.True(t, ok)
	assert.Equal(t, spread.LegID(0), leg, "A and C tie on |filled|, lowest index wins")
	assert.InDelta(t, 2.0, signed, 1e-12)
	assert.Equal(t, []float64{1, -2, 1}, p.Filled())
}

func TestZeroImbalanceFixedPoint(t *testing.T) {
	p, _ := newPosition(t, 1, -1)
	for _, q := range []float64{1, 2.5, 7} {
		p.Reset()
		fill(p, q, -q)
		assert.Zero(t, p.Imbalance())
		_, _, ok := p.CorrectionTarget()
		assert.False(t, ok)
		assert.InDelta(t, q, p.Net(), 1e-12)
		assert.Equal(t, Long, p.State())
		assert.Equal(t, []float64{0, 0}, p.Residuals())
	}
}

func TestNetPosition(t *testing.T) {
	cases := []struct {
		name  string
		coefs []float64
		fills []float64
		net   float64
		state State
	}{
		{"flat", []float64{1, -1}, []float64{0, 0}, 0, Flat},
		{"one leg only", []float64{1, -1}, []float64{1, 0}, 0, Flat},
		{"short", []float64{1, -1}, []float64{-2, 2}, -2, Short},
		{"mixed signs", []float64{1, -1}, []float64{1, 1}, 0, Flat},
		{"partial second leg", []float64{1, -1}, []float64{3, -1}, 1, Long},
		{"weighted", []float64{1, -2, 1}, []float64{2, -2, 3}, 1, Long},
		{"tie keeps lowest index", []float64{2, -2}, []float64{-4, 4}, -2, Short},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newPosition(t, tc.coefs...)
			fill(p, tc.fills...)
			assert.InDelta(t, tc.net, p.Net(), 1e-12)
			assert.Equal(t, tc.state, p.State())
		})
	}
}

func TestCorrectionTargetSmallestFill(t *testing.T) {
	p, _ := newPosition(t, 1, -1)
	fill(p, 3, -1)
	leg, signed, ok := p.CorrectionTarget()
	require.True(t, ok)
	assert.Equal(t, spread.LegID(1), leg)
	assert.InDelta(t, -2.0, signed, 1e-12, "excess long on A is offset by selling B")
	assert.Equal(t, []float64{-2, 0}, p.Residuals())
}

func TestLiveOrderSets(t *testing.T) {
	p, _ := newPosition(t, 1, -1)
	assert.True(t, p.Quiescent())

	p.Track("o1", 0)
	p.Track("o2", 1)
	assert.False(t, p.Quiescent())
	assert.Equal(t, 2, p.LiveCount())
	assert.Equal(t, 1, p.LegLiveCount(1))
	assert.True(t, p.IsTracked("o1"))

	assert.True(t, p.Release("o1"))
	assert.False(t, p.Release("o1"))
	assert.False(t, p.Quiescent())
	assert.True(t, p.Release("o2"))
	assert.True(t, p.Quiescent())
}

func TestResetClearsFills(t *testing.T) {
	p, reg := newPosition(t, 1, -1)
	fill(p, 1, -1)
	p.Track("o1", 0)
	p.Reset()
	assert.Zero(t, reg.Leg(0).Filled())
	assert.True(t, p.Quiescent())
	assert.Equal(t, Flat, p.State())
}

func TestPnL(t *testing.T) {
	p, reg := newPosition(t, 1, -1)
	syn := spread.NewSynthesizer(reg, spread.SynthesizerConfig{Name: "AB", Mode: spread.Mid})
	now := time.Now()
	for _, tk := range []market.Tick{
		{Symbol: "A", Ts: now, BidPrice: 109, AskPrice: 111, LastPrice: 110},
		{Symbol: "B", Ts: now, BidPrice: 89, AskPrice: 91, LastPrice: 90},
	} {
		_, _, err := syn.OnLegTick(tk)
		require.NoError(t, err)
	}

	p.ApplyTrade(0, 1, 100)
	p.ApplyTrade(1, -1, 95)
	realized, unrealized := p.PnL(spread.Mid)
	assert.Zero(t, realized)
	assert.InDelta(t, 10+5, unrealized, 1e-9)

	p.ApplyTrade(0, -1, 105)
	realized, _ = p.PnL(spread.Mid)
	assert.InDelta(t, 5.0, realized, 1e-9)
	assert.Zero(t, p.Cost(0).Net())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "FLAT", Flat.String())
	assert.Equal(t, "LONG", Long.String())
	assert.Equal(t, "SHORT", Short.String())
}
