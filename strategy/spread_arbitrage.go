package strategy

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/signal"
	"spread-arb-go/spread"
)

// SpreadArbitrage 价差均线交叉策略：
// 腿行情 -> 合成价差 -> K线 -> 快慢均线交叉 -> 各腿订单 -> 成交对账 -> 纠偏。
type SpreadArbitrage struct {
	params Params
	deps   Deps
	log    *logger.Logger

	reg        *spread.Registry
	synth      *spread.Synthesizer
	bars       *market.BarAggregator
	cross      *signal.Crossover
	controller *Controller
	started    bool
}

// NewSpreadArbitrage 校验参数，腿与系数在 OnInit 时绑定
func NewSpreadArbitrage(p Params, deps Deps) (*SpreadArbitrage, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: spread name is required", spread.ErrConfiguration)
	}
	if p.TradeUnit <= 0 {
		return nil, fmt.Errorf("%w: %s: trade unit must be positive", spread.ErrConfiguration, p.Name)
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("%w: %s: gateway is required", spread.ErrConfiguration, p.Name)
	}
	deps = deps.withDefaults()
	return &SpreadArbitrage{
		params: p,
		deps:   deps,
		log:    deps.Logger,
	}, nil
}

func (s *SpreadArbitrage) Name() string { return s.params.Name }

// OnInit 绑定腿与系数，长度不一致返回 ConfigurationError
func (s *SpreadArbitrage) OnInit(legSymbols []string, coefficients []float64) error {
	reg, err := spread.NewRegistry(legSymbols, coefficients)
	if err != nil {
		return fmt.Errorf("init %s: %w", s.params.Name, err)
	}
	cross, err := signal.NewCrossover(s.params.FastWindow, s.params.SlowWindow)
	if err != nil {
		return fmt.Errorf("init %s: %w: %w", s.params.Name, spread.ErrConfiguration, err)
	}
	ctrl, err := NewController(s.params.Name, reg, s.params.Tunables, s.deps)
	if err != nil {
		return err
	}

	s.reg = reg
	s.synth = spread.NewSynthesizer(reg, spread.SynthesizerConfig{
		Name:   s.params.Name,
		Mode:   s.params.PricingMode,
		Offset: s.params.Offset,
	})
	if s.params.BarInterval > 0 {
		s.bars = market.NewBarAggregator(s.params.Name, s.params.BarInterval)
	}
	s.cross = cross
	s.controller = ctrl

	s.log.Info("spread strategy initialised",
		zap.Strings("legs", reg.Symbols()),
		zap.Float64s("coefficients", reg.Coefficients()),
		zap.String("pricing_mode", s.params.PricingMode.String()),
		zap.Int("fast_window", s.params.FastWindow),
		zap.Int("slow_window", s.params.SlowWindow),
		zap.Duration("bar_interval", s.params.BarInterval))
	return nil
}

// OnStart 持仓状态在启动时创建
func (s *SpreadArbitrage) OnStart() error {
	if s.reg == nil {
		return fmt.Errorf("%w: %s: OnStart before OnInit", spread.ErrConfiguration, s.params.Name)
	}
	s.started = true
	return nil
}

// OnStop 清空持仓、信号与行情状态
func (s *SpreadArbitrage) OnStop() error {
	if s.reg == nil {
		return nil
	}
	realized, unrealized := s.controller.Position().PnL(s.synth.Mode())
	s.log.Info("spread strategy stopping",
		zap.Float64("net", s.controller.Position().Net()),
		zap.Float64s("filled", s.controller.Position().Filled()),
		zap.Float64("realized_pnl", realized),
		zap.Float64("unrealized_pnl", unrealized))

	s.controller.Reset()
	s.synth.Reset()
	s.cross.Reset()
	if s.bars != nil {
		s.bars.Flush()
	}
	s.started = false
	return nil
}

// OnLegTick 更新合成价差，K线收盘时驱动信号
func (s *SpreadArbitrage) OnLegTick(t market.Tick) error {
	st, emitted, err := s.synth.OnLegTick(t)
	if err != nil {
		if errors.Is(err, spread.ErrData) {
			s.deps.Observer.TickRejected(rejectReason(err))
		}
		return err
	}
	s.deps.Observer.TickAccepted()
	if !emitted {
		return nil
	}
	s.deps.Observer.ObserveSynthetic(st)
	if s.bars == nil {
		return nil
	}
	if bar := s.bars.Update(st.Last, st.Ts); bar != nil {
		return s.OnBar(*bar)
	}
	return nil
}

// OnBar 计算均线交叉并交给控制器
func (s *SpreadArbitrage) OnBar(b market.Bar) error {
	ind := s.cross.OnBar(b)
	kind := ind.Kind()
	if kind == signal.None {
		return nil
	}
	s.deps.Observer.SignalEmitted(kind)
	s.log.LogSignal(kind.String(),
		zap.Time("bar_ts", b.Ts),
		zap.Float64("close", b.Close),
		zap.Float64("fast", ind.FastNow),
		zap.Float64("slow", ind.SlowNow),
		zap.String("state", s.controller.Position().State().String()))
	if !s.started {
		return nil
	}
	s.controller.OnSignal(kind)
	return nil
}

func (s *SpreadArbitrage) OnOrderStatus(u order.Update) error {
	return s.controller.OnOrderStatus(u)
}

func (s *SpreadArbitrage) OnTrade(tr order.Trade) error {
	if err := s.controller.OnTrade(tr); err != nil {
		return err
	}
	s.deps.Observer.ObservePnL(s.controller.Position().PnL(s.synth.Mode()))
	return nil
}

// Recheck 定时重检不平衡
func (s *SpreadArbitrage) Recheck() error {
	if !s.started {
		return nil
	}
	s.controller.CheckImbalance()
	return nil
}

// Tune 运行时更新交易单位、激进程度与信号门控
func (s *SpreadArbitrage) Tune(t Tunables) error {
	if err := s.controller.Tune(t); err != nil {
		return err
	}
	s.params.Tunables = t
	s.log.Info("spread strategy tuned",
		zap.Float64("trade_unit", t.TradeUnit),
		zap.String("aggressiveness", t.Aggressiveness.String()),
		zap.Bool("gate_signals", t.GateSignals))
	return nil
}

// LiveOrders 活跃订单及其本地状态
func (s *SpreadArbitrage) LiveOrders() map[string]order.Status {
	if s.controller == nil {
		return nil
	}
	return s.controller.Orders().LiveStatuses()
}

// Controller 暴露执行控制器，测试与检查用
func (s *SpreadArbitrage) Controller() *Controller { return s.controller }

// Synthesizer 暴露合成器
func (s *SpreadArbitrage) Synthesizer() *spread.Synthesizer { return s.synth }

func (s *SpreadArbitrage) Summary() Summary {
	sum := Summary{Name: s.params.Name, Kind: string(KindSpreadArbitrage)}
	if s.reg == nil {
		return sum
	}
	pos := s.controller.Position()
	sum.Basis, sum.Ready = s.synth.Basis()
	sum.Net = pos.Net()
	sum.State = pos.State()
	sum.Imbalance = pos.Imbalance()
	sum.Filled = pos.Filled()
	sum.LiveOrders = pos.LiveCount()
	sum.Bars = s.cross.Bars()
	sum.Realized, sum.Unrealized = pos.PnL(s.synth.Mode())
	return sum
}
