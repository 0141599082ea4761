package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/inventory"
	"spread-arb-go/order"
	"spread-arb-go/signal"
	"spread-arb-go/spread"
)

func TestControllerOpenFromFlat(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 2}, 1, -1)

	f.ctrl.OnSignal(signal.CrossOver)
	assert.Equal(t, []order.Request{
		req("A", order.Buy, order.OffsetOpen, 101, 2),
		req("B", order.Sell, order.OffsetOpen, 99, 2),
	}, strip(f.gw.requests()))

	f.fillAll(t, 0)
	pos := f.ctrl.Position()
	assert.Equal(t, inventory.Long, pos.State())
	assert.InDelta(t, 2.0, pos.Net(), 1e-12)
	assert.True(t, pos.Quiescent())
	assert.Len(t, f.gw.sent, 2, "balanced fills need no correction")

	// 同向信号不动作
	f.ctrl.OnSignal(signal.CrossOver)
	assert.Len(t, f.gw.sent, 2)
}

func TestControllerOpenShortWeighted(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -2, 1)
	f.ctrl.OnSignal(signal.CrossBelow)
	assert.Equal(t, []order.Request{
		req("A", order.Sell, order.OffsetOpen, 99, 1),
		req("B", order.Buy, order.OffsetOpen, 101, 2),
		req("C", order.Sell, order.OffsetOpen, 99, 1),
	}, strip(f.gw.requests()))
}

func TestControllerScenarioCReverse(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 3}, 1, -1)
	pos := f.ctrl.Position()
	pos.ApplyTrade(0, -1, 100)
	pos.ApplyTrade(1, 1, 100)
	require.Equal(t, inventory.Short, pos.State())

	f.ctrl.OnSignal(signal.CrossOver)
	assert.Equal(t, []order.Request{
		req("A", order.Buy, order.OffsetClose, 101, 1),
		req("B", order.Sell, order.OffsetClose, 99, 1),
		req("A", order.Buy, order.OffsetOpen, 101, 3),
		req("B", order.Sell, order.OffsetOpen, 99, 3),
	}, strip(f.gw.requests()), "close orders go out before open orders in the same event")

	f.fillAll(t, 0)
	assert.Equal(t, inventory.Long, pos.State())
	assert.InDelta(t, 3.0, pos.Net(), 1e-12)
}

func TestControllerScenarioBCorrection(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -2, 1)
	pos := f.ctrl.Position()
	pos.ApplyTrade(0, 1, 100)
	pos.ApplyTrade(1, -2, 100)
	pos.ApplyTrade(2, 1, 100)

	f.ctrl.CheckImbalance()
	assert.Equal(t, []order.Request{req("A", order.Buy, order.OffsetOpen, 101, 2)}, strip(f.gw.requests()))
	assert.Equal(t, 1, f.alerts.CountLevel(alert.LevelWarning))

	// 纠偏单在途时不再重复发送
	f.ctrl.CheckImbalance()
	assert.Len(t, f.gw.sent, 1)

	f.fillAll(t, 0)
	assert.Zero(t, pos.Imbalance())
	assert.Len(t, f.gw.sent, 1)
}

func TestControllerImbalanceGating(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	require.Len(t, f.gw.sent, 2)

	// A 腿全部成交，B 腿仍在途：不平衡存在但不纠偏
	f.fill(t, 0, 1)
	pos := f.ctrl.Position()
	assert.InDelta(t, -1.0, pos.Imbalance(), 1e-12)
	assert.False(t, pos.Quiescent())
	assert.Len(t, f.gw.sent, 2)

	// 撤单回报不触发检查
	require.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: f.gw.sent[1].id, Status: order.StatusCanceled}))
	assert.True(t, pos.Quiescent())
	assert.Len(t, f.gw.sent, 2)

	// 定时重检发出纠偏：卖出 B 腿 1 手
	f.ctrl.CheckImbalance()
	require.Len(t, f.gw.sent, 3)
	assert.Equal(t, req("B", order.Sell, order.OffsetOpen, 99, 1), strip(f.gw.requests())[2])
}

func TestControllerPartialFillsThenCorrection(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 2}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)

	f.fill(t, 0, 2)
	f.fill(t, 1, 1) // B 部分成交，订单仍活跃
	assert.Len(t, f.gw.sent, 2)
	assert.Equal(t, 1, f.ctrl.Position().LiveCount())

	require.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: f.gw.sent[1].id, Status: order.StatusCanceled}))
	f.ctrl.CheckImbalance()
	require.Len(t, f.gw.sent, 3)
	assert.Equal(t, req("B", order.Sell, order.OffsetOpen, 99, 1), strip(f.gw.requests())[2])

	f.fillAll(t, 2)
	assert.Zero(t, f.ctrl.Position().Imbalance())
	assert.InDelta(t, 2.0, f.ctrl.Position().Net(), 1e-12)
}

func TestControllerCorrectiveOffset(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	pos := f.ctrl.Position()
	pos.ApplyTrade(0, 3, 100)
	pos.ApplyTrade(1, -2, 100)

	f.ctrl.CheckImbalance()
	assert.Equal(t, []order.Request{req("B", order.Sell, order.OffsetOpen, 99, 1)}, strip(f.gw.requests()))

	g := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	g.ctrl.Position().ApplyTrade(0, 1, 100)
	g.ctrl.Position().ApplyTrade(1, -3, 100)
	g.ctrl.CheckImbalance()
	assert.Equal(t, []order.Request{req("A", order.Buy, order.OffsetOpen, 101, 2)}, strip(g.gw.requests()))

	// 纠偏方向与目标腿持仓相反且不超过持仓时为平仓
	h := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -3)
	h.ctrl.Position().ApplyTrade(0, -2, 100)
	h.ctrl.Position().ApplyTrade(1, 1, 100)
	h.ctrl.CheckImbalance()
	assert.Equal(t, []order.Request{req("B", order.Sell, order.OffsetClose, 99, 1)}, strip(h.gw.requests()))
}

func TestControllerPassivePricing(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	require.NoError(t, f.ctrl.Tune(Tunables{TradeUnit: 1, Aggressiveness: Passive}))
	f.ctrl.OnSignal(signal.CrossOver)
	assert.Equal(t, []order.Request{
		req("A", order.Buy, order.OffsetOpen, 99, 1),
		req("B", order.Sell, order.OffsetOpen, 101, 1),
	}, strip(f.gw.requests()))
	assert.Error(t, f.ctrl.Tune(Tunables{TradeUnit: 0}))
}

func TestControllerGateSignals(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1, GateSignals: true}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	require.Len(t, f.gw.sent, 2)

	f.ctrl.OnSignal(signal.CrossBelow)
	assert.Len(t, f.gw.sent, 2, "signal ignored while orders are live")

	f.fillAll(t, 0)
	f.ctrl.OnSignal(signal.CrossBelow)
	assert.Len(t, f.gw.sent, 6)
}

func TestControllerRejectionAbsorbed(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	f.gw.reject = true
	f.ctrl.OnSignal(signal.CrossOver)

	pos := f.ctrl.Position()
	assert.True(t, pos.Quiescent())
	assert.Equal(t, inventory.Flat, pos.State())
	assert.Equal(t, 2, f.alerts.CountLevel(alert.LevelWarning))
}

func TestControllerStatusRejectedReleases(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	require.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: f.gw.sent[0].id, Status: order.StatusRejected, Reason: "price limit"}))
	assert.Equal(t, 1, f.ctrl.Position().LiveCount())
	assert.Equal(t, 1, f.alerts.CountLevel(alert.LevelWarning))

	// 未知订单与非法转移都被吸收
	assert.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: "ghost", Status: order.StatusAck}))
	assert.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: f.gw.sent[0].id, Status: order.StatusAck}))
}

func TestControllerTradeEdgeCases(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	s := f.gw.sent[0]

	tr := order.Trade{TradeID: "dup", OrderID: s.id, Symbol: "A", Direction: order.Buy, Price: 101, Volume: 1}
	require.NoError(t, f.ctrl.OnTrade(tr))
	require.NoError(t, f.ctrl.OnTrade(tr))
	assert.Equal(t, []float64{1, 0}, f.ctrl.Position().Filled())

	err := f.ctrl.OnTrade(order.Trade{TradeID: "x", Symbol: "ZZZ", Direction: order.Buy, Volume: 1})
	assert.ErrorIs(t, err, spread.ErrUnknownLeg)
	assert.False(t, spread.IsFatal(err))

	err = f.ctrl.OnTrade(order.Trade{TradeID: "y", Symbol: "A", Direction: order.Buy, Volume: 0})
	assert.ErrorIs(t, err, spread.ErrData)
}

func TestControllerFilledStatusBeforeTrade(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	require.Len(t, f.gw.sent, 2)
	pos := f.ctrl.Position()

	// B 腿的 FILLED 状态先于其成交到达，成交量未补齐前仍算在途
	require.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: f.gw.sent[1].id, Status: order.StatusFilled}))
	assert.False(t, pos.Quiescent())
	assert.Equal(t, 2, pos.LiveCount())

	f.fill(t, 0, 1)
	assert.InDelta(t, -1.0, pos.Imbalance(), 1e-12)
	assert.Equal(t, 1, pos.LiveCount())
	assert.Len(t, f.gw.sent, 2, "no correction while B's fill is in flight")

	f.fill(t, 1, 1)
	assert.True(t, pos.Quiescent())
	assert.Equal(t, []float64{1, -1}, pos.Filled())
	assert.InDelta(t, 1.0, pos.Net(), 1e-12)
	assert.Len(t, f.gw.sent, 2)
}

func TestControllerFilledStatusPartialVolumeStaysTracked(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 2}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	pos := f.ctrl.Position()
	f.fill(t, 0, 2)

	require.NoError(t, f.ctrl.OnOrderStatus(order.Update{OrderID: f.gw.sent[1].id, Status: order.StatusFilled}))
	f.fill(t, 1, 1)
	assert.Equal(t, 1, pos.LiveCount())
	f.ctrl.CheckImbalance()
	assert.Len(t, f.gw.sent, 2)

	f.fill(t, 1, 1)
	assert.True(t, pos.Quiescent())
	assert.Zero(t, pos.Imbalance())
	assert.Len(t, f.gw.sent, 2)
}

func TestControllerTradeSymbolMismatch(t *testing.T) {
	f := newControllerFixture(t, Tunables{TradeUnit: 1}, 1, -1)
	f.ctrl.OnSignal(signal.CrossOver)
	a := f.gw.sent[0]

	err := f.ctrl.OnTrade(order.Trade{TradeID: "m1", OrderID: a.id, Symbol: "B", Direction: order.Buy, Price: 101, Volume: 1})
	assert.ErrorIs(t, err, spread.ErrData)
	assert.False(t, spread.IsFatal(err))
	assert.Equal(t, []float64{0, 0}, f.ctrl.Position().Filled())

	o, ok := f.ctrl.Orders().Get(a.id)
	require.True(t, ok)
	assert.Zero(t, o.Traded)
}

func TestNewControllerValidation(t *testing.T) {
	reg := primedRegistry(t, 1, -1)
	_, err := NewController("T", reg, Tunables{TradeUnit: 1}, Deps{})
	assert.ErrorIs(t, err, spread.ErrConfiguration)
	_, err = NewController("T", reg, Tunables{}, Deps{Gateway: &fakeGateway{}})
	assert.ErrorIs(t, err, spread.ErrConfiguration)
}
