package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spread-arb-go/inventory"
	"spread-arb-go/order"
	"spread-arb-go/signal"
	"spread-arb-go/spread"
)

// Monitor Prometheus监控指标收集器，所有序列按价差实例打标签。
type Monitor struct {
	registry *prometheus.Registry

	// 价差行情
	basis     *prometheus.GaugeVec
	synthBid  *prometheus.GaugeVec
	synthAsk  *prometheus.GaugeVec
	lastTicks *prometheus.GaugeVec

	// 持仓
	netPosition   *prometheus.GaugeVec
	imbalance     *prometheus.GaugeVec
	positionState *prometheus.GaugeVec
	realizedPnL   *prometheus.GaugeVec
	unrealizedPnL *prometheus.GaugeVec

	// 平价监控
	parityUnderlying *prometheus.GaugeVec

	// 事件计数
	ticksAccepted *prometheus.CounterVec
	ticksRejected *prometheus.CounterVec
	signals       *prometheus.CounterVec
	orders        *prometheus.CounterVec
	orderRejects  *prometheus.CounterVec
	fills         *prometheus.CounterVec
	filledVolume  *prometheus.CounterVec

	// 引擎
	engineState *prometheus.GaugeVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "spread",
		Subsystem: "arb",
	}
}

// New 创建新的Monitor实例，使用私有 registry
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"spread"}, labels...))
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"spread"}, labels...))
	}

	return &Monitor{
		registry: reg,

		basis:     gauge("basis", "价差合成价（last）"),
		synthBid:  gauge("synthetic_bid", "价差可成交买价"),
		synthAsk:  gauge("synthetic_ask", "价差可成交卖价"),
		lastTicks: gauge("last_tick_timestamp_seconds", "最近一次合成 tick 的时间戳"),

		netPosition:   gauge("net_position", "净价差仓位"),
		imbalance:     gauge("imbalance", "腿间不平衡量"),
		positionState: gauge("position_state", "持仓方向 0=flat 1=long 2=short"),
		realizedPnL:   gauge("realized_pnl", "已实现盈亏"),
		unrealizedPnL: gauge("unrealized_pnl", "未实现盈亏"),

		parityUnderlying: gauge("parity_synthetic_underlying", "平价合成标的价格"),

		ticksAccepted: counter("ticks_accepted_total", "接受的腿行情数"),
		ticksRejected: counter("ticks_rejected_total", "丢弃的腿行情数", "reason"),
		signals:       counter("signals_total", "交叉信号数", "kind"),
		orders:        counter("orders_submitted_total", "提交的腿订单数", "purpose"),
		orderRejects:  counter("orders_rejected_total", "被拒绝的腿订单数", "purpose"),
		fills:         counter("fills_total", "成交笔数"),
		filledVolume:  counter("filled_volume_total", "累计成交量"),

		engineState: gauge("engine_state", "引擎状态 0=idle 1=running 2=stopped 3=halted"),
	}
}

// ForSpread 返回绑定到单个价差实例的指标句柄
func (m *Monitor) ForSpread(name string) *SpreadMetrics {
	return &SpreadMetrics{m: m, name: name}
}

// Handler 返回 /metrics handler
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// SpreadMetrics 单个价差实例的指标，满足 strategy.Observer。
type SpreadMetrics struct {
	m    *Monitor
	name string
}

func (s *SpreadMetrics) ObserveSynthetic(t spread.SyntheticTick) {
	s.m.basis.WithLabelValues(s.name).Set(t.Last)
	s.m.synthBid.WithLabelValues(s.name).Set(t.Bid)
	s.m.synthAsk.WithLabelValues(s.name).Set(t.Ask)
	if !t.Ts.IsZero() {
		s.m.lastTicks.WithLabelValues(s.name).Set(float64(t.Ts.UnixNano()) / 1e9)
	}
}

func (s *SpreadMetrics) ObservePosition(net, imbalance float64, state inventory.State) {
	s.m.netPosition.WithLabelValues(s.name).Set(net)
	s.m.imbalance.WithLabelValues(s.name).Set(imbalance)
	s.m.positionState.WithLabelValues(s.name).Set(float64(state))
}

func (s *SpreadMetrics) ObservePnL(realized, unrealized float64) {
	s.m.realizedPnL.WithLabelValues(s.name).Set(realized)
	s.m.unrealizedPnL.WithLabelValues(s.name).Set(unrealized)
}

func (s *SpreadMetrics) ObserveParity(underlying float64) {
	s.m.parityUnderlying.WithLabelValues(s.name).Set(underlying)
}

func (s *SpreadMetrics) TickAccepted() {
	s.m.ticksAccepted.WithLabelValues(s.name).Inc()
}

func (s *SpreadMetrics) TickRejected(reason string) {
	s.m.ticksRejected.WithLabelValues(s.name, reason).Inc()
}

func (s *SpreadMetrics) SignalEmitted(kind signal.Kind) {
	s.m.signals.WithLabelValues(s.name, kind.String()).Inc()
}

func (s *SpreadMetrics) OrderSubmitted(purpose order.Purpose) {
	s.m.orders.WithLabelValues(s.name, string(purpose)).Inc()
}

func (s *SpreadMetrics) OrderRejected(purpose order.Purpose) {
	s.m.orderRejects.WithLabelValues(s.name, string(purpose)).Inc()
}

func (s *SpreadMetrics) TradeFilled(volume float64) {
	s.m.fills.WithLabelValues(s.name).Inc()
	s.m.filledVolume.WithLabelValues(s.name).Add(volume)
}

// EngineState 记录引擎状态码
func (s *SpreadMetrics) EngineState(code int) {
	s.m.engineState.WithLabelValues(s.name).Set(float64(code))
}
