// Package strategy 把价差合成、信号与持仓对账组合成可由引擎驱动的策略实例。
//
// 所有回调都在所属引擎的单一事件循环中被调用，策略内部不加锁。
package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/inventory"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/signal"
	"spread-arb-go/spread"
)

// Strategy 策略回调接口
type Strategy interface {
	Name() string
	OnInit(legSymbols []string, coefficients []float64) error
	OnStart() error
	OnStop() error
	OnLegTick(t market.Tick) error
	OnBar(b market.Bar) error
	OnOrderStatus(u order.Update) error
	OnTrade(tr order.Trade) error
}

// Rechecker 支持定时重检腿间不平衡的策略。
type Rechecker interface {
	Recheck() error
}

// Tunable 支持运行时调整参数的策略。
type Tunable interface {
	Tune(t Tunables) error
}

// LiveOrderLister 列出活跃订单，供状态同步使用。
type LiveOrderLister interface {
	LiveOrders() map[string]order.Status
}

// Summarizer 输出当前状态快照。
type Summarizer interface {
	Summary() Summary
}

// Summary 策略状态快照
type Summary struct {
	Name       string
	Kind       string
	Ready      bool
	Basis      float64
	Net        float64
	State      inventory.State
	Imbalance  float64
	Filled     []float64
	LiveOrders int
	Bars       int
	Updates    int // 合成行情次数
	Realized   float64
	Unrealized float64
}

// Aggressiveness 决定下单价格取对手价还是本方价。
type Aggressiveness int

const (
	Aggressive Aggressiveness = iota // 买在卖一，卖在买一
	Passive                          // 买在买一，卖在卖一
)

func (a Aggressiveness) String() string {
	if a == Passive {
		return "passive"
	}
	return "aggressive"
}

// ParseAggressiveness 解析配置值，空串为 aggressive。
func ParseAggressiveness(s string) (Aggressiveness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "aggressive", "taker":
		return Aggressive, nil
	case "passive", "maker":
		return Passive, nil
	}
	return Aggressive, fmt.Errorf("%w: unknown aggressiveness %q", spread.ErrConfiguration, s)
}

// Tunables 运行时可调参数
type Tunables struct {
	TradeUnit      float64
	Aggressiveness Aggressiveness
	GateSignals    bool
}

// Params 策略实例参数
type Params struct {
	Name        string
	PricingMode spread.PricingMode
	Offset      float64
	FastWindow  int
	SlowWindow  int
	BarInterval time.Duration // 0 表示不在内部聚合，K线由外部通过 OnBar 提供
	Tunables
}

// Observer 指标上报，monitor.SpreadMetrics 实现该接口
type Observer interface {
	ObserveSynthetic(t spread.SyntheticTick)
	ObservePosition(net, imbalance float64, state inventory.State)
	ObservePnL(realized, unrealized float64)
	ObserveParity(underlying float64)
	TickAccepted()
	TickRejected(reason string)
	SignalEmitted(kind signal.Kind)
	OrderSubmitted(purpose order.Purpose)
	OrderRejected(purpose order.Purpose)
	TradeFilled(volume float64)
}

// NopObserver 丢弃所有指标
type NopObserver struct{}

func (NopObserver) ObserveSynthetic(spread.SyntheticTick)             {}
func (NopObserver) ObservePosition(float64, float64, inventory.State) {}
func (NopObserver) ObservePnL(float64, float64)                       {}
func (NopObserver) ObserveParity(float64)                             {}
func (NopObserver) TickAccepted()                                     {}
func (NopObserver) TickRejected(string)                               {}
func (NopObserver) SignalEmitted(signal.Kind)                         {}
func (NopObserver) OrderSubmitted(order.Purpose)                      {}
func (NopObserver) OrderRejected(order.Purpose)                       {}
func (NopObserver) TradeFilled(float64)                               {}

type nopSender struct{}

func (nopSender) SendAlert(alert.Alert) error { return nil }

// Deps 策略依赖组件
type Deps struct {
	Gateway     order.Gateway
	Logger      *logger.Logger
	Observer    Observer
	Alerts      alert.Sender
	Constraints map[string]order.SymbolConstraints
	OrderOpts   []order.ManagerOption
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Observer == nil {
		d.Observer = NopObserver{}
	}
	if d.Alerts == nil {
		d.Alerts = nopSender{}
	}
	return d
}

// rejectReason 把数据错误归类为指标标签
func rejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, spread.ErrUnknownLeg):
		return "unknown_leg"
	case errors.Is(err, spread.ErrNonPositivePrice):
		return "non_positive_price"
	default:
		return "other"
	}
}
