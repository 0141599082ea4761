package strategy

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/spread"
)

// ParityCoefficients 看涨、看跌、对冲标的三腿的默认系数：C - P - S (+K)
var ParityCoefficients = []float64{1, -1, -1}

// ParityMonitor 监控期权平价：basis = C - P - S + K 应接近 0，
// 合成标的价格 = basis + S。只上报，不下单。
type ParityMonitor struct {
	params Params
	deps   Deps
	log    *logger.Logger

	synth *spread.Synthesizer
	hedge spread.LegID

	underlying float64
	updates    int
}

func NewParityMonitor(p Params, deps Deps) (*ParityMonitor, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: spread name is required", spread.ErrConfiguration)
	}
	deps = deps.withDefaults()
	return &ParityMonitor{params: p, deps: deps, log: deps.Logger}, nil
}

func (m *ParityMonitor) Name() string { return m.params.Name }

// OnInit 腿顺序为 call、put、hedge
func (m *ParityMonitor) OnInit(legSymbols []string, coefficients []float64) error {
	if len(legSymbols) != 3 {
		return fmt.Errorf("%w: %s: parity monitor needs call, put and hedge legs, got %d", spread.ErrConfiguration, m.params.Name, len(legSymbols))
	}
	if len(coefficients) == 0 {
		coefficients = ParityCoefficients
	}
	reg, err := spread.NewRegistry(legSymbols, coefficients)
	if err != nil {
		return fmt.Errorf("init %s: %w", m.params.Name, err)
	}
	m.synth = spread.NewSynthesizer(reg, spread.SynthesizerConfig{
		Name:   m.params.Name,
		Mode:   m.params.PricingMode,
		Offset: m.params.Offset,
	})
	m.hedge = spread.LegID(reg.Len() - 1)
	m.log.Info("parity monitor initialised",
		zap.Strings("legs", reg.Symbols()),
		zap.Float64s("coefficients", reg.Coefficients()),
		zap.Float64("strike", m.params.Offset))
	return nil
}

func (m *ParityMonitor) OnStart() error {
	if m.synth == nil {
		return fmt.Errorf("%w: %s: OnStart before OnInit", spread.ErrConfiguration, m.params.Name)
	}
	return nil
}

func (m *ParityMonitor) OnStop() error {
	if m.synth != nil {
		m.synth.Reset()
	}
	m.underlying = 0
	m.updates = 0
	return nil
}

func (m *ParityMonitor) OnLegTick(t market.Tick) error {
	st, emitted, err := m.synth.OnLegTick(t)
	if err != nil {
		if errors.Is(err, spread.ErrData) {
			m.deps.Observer.TickRejected(rejectReason(err))
		}
		return err
	}
	m.deps.Observer.TickAccepted()
	if !emitted {
		return nil
	}
	hedgeTick, _ := m.synth.Registry().Leg(m.hedge).Tick()
	m.underlying = st.Last + hedgeTick.Mid()
	m.updates++

	m.deps.Observer.ObserveSynthetic(st)
	m.deps.Observer.ObserveParity(m.underlying)
	m.log.Debug("parity update",
		zap.Float64("parity", st.Last),
		zap.Float64("synthetic_underlying", m.underlying),
		zap.Float64("bid", st.Bid),
		zap.Float64("ask", st.Ask))
	return nil
}

func (m *ParityMonitor) OnBar(market.Bar) error           { return nil }
func (m *ParityMonitor) OnOrderStatus(order.Update) error { return nil }
func (m *ParityMonitor) OnTrade(order.Trade) error        { return nil }

// SyntheticUnderlying 最新合成标的价格，未就绪时 ok 为 false
func (m *ParityMonitor) SyntheticUnderlying() (float64, bool) {
	if m.synth == nil || !m.synth.Ready() {
		return 0, false
	}
	return m.underlying, true
}

func (m *ParityMonitor) Summary() Summary {
	sum := Summary{Name: m.params.Name, Kind: string(KindParityMonitor)}
	if m.synth == nil {
		return sum
	}
	sum.Basis, sum.Ready = m.synth.Basis()
	sum.Updates = m.updates
	return sum
}
