package strategy

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/inventory"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/signal"
	"spread-arb-go/spread"
)

const volumeTolerance = 1e-9

// Controller 把交叉信号转换为各腿订单，并在成交后对账、纠偏。
type Controller struct {
	name   string
	reg    *spread.Registry
	pos    *inventory.SpreadPosition
	orders *order.Manager

	log    *logger.Logger
	obs    Observer
	alerts alert.Sender

	tunables Tunables
}

// NewController 创建执行控制器，deps.Gateway 不能为空
func NewController(name string, reg *spread.Registry, t Tunables, deps Deps) (*Controller, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("%w: %s: gateway is required", spread.ErrConfiguration, name)
	}
	if t.TradeUnit <= 0 {
		return nil, fmt.Errorf("%w: %s: trade unit must be positive", spread.ErrConfiguration, name)
	}
	deps = deps.withDefaults()
	mgr := order.NewManager(deps.Gateway, deps.OrderOpts...)
	if len(deps.Constraints) > 0 {
		mgr.SetConstraints(deps.Constraints)
	}
	return &Controller{
		name:     name,
		reg:      reg,
		pos:      inventory.NewSpreadPosition(reg),
		orders:   mgr,
		log:      deps.Logger,
		obs:      deps.Observer,
		alerts:   deps.Alerts,
		tunables: t,
	}, nil
}

// OnSignal 按状态转移表处理交叉信号
//
//	Flat  + CrossOver  -> 开多 Q
//	Flat  + CrossBelow -> 开空 Q
//	Short + CrossOver  -> 平空 |net|，再开多 Q
//	Long  + CrossBelow -> 平多 |net|，再开空 Q
//	同向信号不动作
func (c *Controller) OnSignal(kind signal.Kind) {
	var dir float64
	switch kind {
	case signal.CrossOver:
		dir = 1
	case signal.CrossBelow:
		dir = -1
	default:
		return
	}
	if c.tunables.GateSignals && !c.pos.Quiescent() {
		c.log.Info("signal gated by live orders",
			zap.String("signal", kind.String()),
			zap.Int("live_orders", c.pos.LiveCount()))
		return
	}

	state := c.pos.State()
	if (state == inventory.Long && dir > 0) || (state == inventory.Short && dir < 0) {
		return
	}
	if state != inventory.Flat {
		// 先发出全部平仓单
		c.sendSpread(dir, math.Abs(c.pos.Net()), order.OffsetClose)
	}
	c.sendSpread(dir, c.tunables.TradeUnit, order.OffsetOpen)
}

// sendSpread 按系数拆成各腿订单，dir=+1 买入价差，-1 卖出价差
func (c *Controller) sendSpread(dir, qty float64, offset order.Offset) {
	if qty <= volumeTolerance {
		return
	}
	for i, l := range c.reg.Legs() {
		signed := dir * l.Coef * qty
		c.submit(spread.LegID(i), order.DirectionOf(signed), math.Abs(signed), offset, order.PurposeSignal)
	}
}

// CheckImbalance 所有腿均无活跃订单时，对不平衡量发出一笔纠偏单
func (c *Controller) CheckImbalance() {
	if !c.pos.Quiescent() {
		return
	}
	leg, signed, ok := c.pos.CorrectionTarget()
	if !ok {
		return
	}
	dir := order.DirectionOf(signed)
	vol := math.Abs(signed)

	offset := order.OffsetOpen
	if f := c.reg.Leg(leg).Filled(); f != 0 && math.Signbit(f) != math.Signbit(signed) && vol <= math.Abs(f)+volumeTolerance {
		offset = order.OffsetClose
	}

	symbol := c.reg.Leg(leg).Symbol
	c.log.Warn("imbalance detected, sending corrective order",
		zap.String("leg", symbol),
		zap.Float64("imbalance", signed),
		zap.Float64s("filled", c.pos.Filled()))
	_ = c.alerts.SendAlert(alert.Alert{
		Level:   alert.LevelWarning,
		Spread:  c.name,
		Message: "corrective order",
		Fields: map[string]interface{}{
			"leg":       symbol,
			"direction": string(dir),
			"volume":    vol,
		},
	})
	c.submit(leg, dir, vol, offset, order.PurposeCorrective)
}

func (c *Controller) submit(leg spread.LegID, dir order.Direction, vol float64, offset order.Offset, purpose order.Purpose) {
	l := c.reg.Leg(leg)
	tick, _ := l.Tick()
	o, err := c.orders.Submit(order.Order{
		Symbol:    l.Symbol,
		Leg:       int(leg),
		Direction: dir,
		Offset:    offset,
		Purpose:   purpose,
		Price:     c.price(tick, dir),
		Volume:    vol,
	})
	if err != nil {
		c.obs.OrderRejected(purpose)
		c.log.Warn("order not placed",
			zap.String("leg", l.Symbol),
			zap.String("direction", string(dir)),
			zap.Float64("volume", vol),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		if errors.Is(err, order.ErrRejected) {
			_ = c.alerts.SendAlert(alert.Alert{
				Level:   alert.LevelWarning,
				Spread:  c.name,
				Message: "order rejected",
				Fields:  map[string]interface{}{"leg": l.Symbol, "error": err.Error()},
			})
		}
		return
	}
	c.pos.Track(o.ID, leg)
	c.obs.OrderSubmitted(purpose)
	c.log.LogOrder("submitted", o.ID,
		zap.String("leg", o.Symbol),
		zap.String("direction", string(o.Direction)),
		zap.String("offset", string(o.Offset)),
		zap.String("purpose", string(o.Purpose)),
		zap.Float64("price", o.Price),
		zap.Float64("volume", o.Volume))
}

// price 按激进程度选择对手价或本方价
func (c *Controller) price(t market.Tick, dir order.Direction) float64 {
	buyAtAsk := c.tunables.Aggressiveness == Aggressive
	if dir == order.Buy {
		if buyAtAsk {
			return t.AskPrice
		}
		return t.BidPrice
	}
	if buyAtAsk {
		return t.BidPrice
	}
	return t.AskPrice
}

// OnTrade 记入成交并重检不平衡。重复成交被忽略。
func (c *Controller) OnTrade(tr order.Trade) error {
	leg, ok := c.reg.Lookup(tr.Symbol)
	if !ok {
		return fmt.Errorf("trade %s: %w: %s", tr.TradeID, spread.ErrUnknownLeg, tr.Symbol)
	}
	if tr.Volume <= 0 {
		return fmt.Errorf("trade %s: %w: volume %v", tr.TradeID, spread.ErrData, tr.Volume)
	}

	if known, ok := c.orders.Get(tr.OrderID); ok && known.Leg != int(leg) {
		return fmt.Errorf("trade %s: %w: symbol %s does not match order %s leg %s",
			tr.TradeID, spread.ErrData, tr.Symbol, known.ID, known.Symbol)
	}

	o, err := c.orders.ApplyTrade(tr)
	switch {
	case errors.Is(err, order.ErrDuplicateTrade):
		c.log.Debug("duplicate trade ignored", zap.String("trade_id", tr.TradeID))
		return nil
	case errors.Is(err, order.ErrUnknownOrder):
		// 成交仍属于该腿，照常记入持仓
		c.log.Warn("trade for unknown order", zap.String("trade_id", tr.TradeID), zap.String("order_id", tr.OrderID))
	case err != nil:
		return err
	default:
		if o.Settled() {
			c.pos.Release(o.ID)
		}
	}

	c.pos.ApplyTrade(leg, tr.Signed(), tr.Price)
	c.obs.TradeFilled(tr.Volume)
	c.log.LogTrade("fill",
		zap.String("trade_id", tr.TradeID),
		zap.String("order_id", tr.OrderID),
		zap.String("leg", tr.Symbol),
		zap.String("direction", string(tr.Direction)),
		zap.Float64("price", tr.Price),
		zap.Float64("volume", tr.Volume),
		zap.Float64("net", c.pos.Net()))

	c.CheckImbalance()
	c.observePosition()
	return nil
}

// OnOrderStatus 更新订单状态；已结束的订单移出活跃集合。不触发不平衡检查。
func (c *Controller) OnOrderStatus(u order.Update) error {
	o, changed, err := c.orders.ApplyUpdate(u)
	if err != nil {
		if errors.Is(err, order.ErrUnknownOrder) {
			c.log.Debug("status for unknown order", zap.String("order_id", u.OrderID))
			return nil
		}
		c.log.Debug("order status ignored", zap.String("order_id", u.OrderID), zap.Error(err))
		return nil
	}
	if !changed {
		return nil
	}
	c.log.LogOrder(string(o.Status), o.ID, zap.String("leg", o.Symbol), zap.String("reason", u.Reason))
	if !o.Settled() {
		// FILLED 但成交未到齐：保持在途，由 OnTrade 释放
		return nil
	}
	c.pos.Release(o.ID)
	if o.Status == order.StatusRejected {
		c.obs.OrderRejected(o.Purpose)
		_ = c.alerts.SendAlert(alert.Alert{
			Level:   alert.LevelWarning,
			Spread:  c.name,
			Message: "order rejected",
			Fields:  map[string]interface{}{"leg": o.Symbol, "reason": u.Reason},
		})
	}
	return nil
}

func (c *Controller) observePosition() {
	c.obs.ObservePosition(c.pos.Net(), c.pos.Imbalance(), c.pos.State())
}

// Tune 更新运行时参数
func (c *Controller) Tune(t Tunables) error {
	if t.TradeUnit <= 0 {
		return fmt.Errorf("%w: %s: trade unit must be positive", spread.ErrConfiguration, c.name)
	}
	c.tunables = t
	return nil
}

func (c *Controller) Tunables() Tunables                  { return c.tunables }
func (c *Controller) Position() *inventory.SpreadPosition { return c.pos }
func (c *Controller) Orders() *order.Manager              { return c.orders }

// Reset 清空持仓与订单，仅在停止时调用
func (c *Controller) Reset() {
	c.pos.Reset()
	c.orders.Reset()
}
