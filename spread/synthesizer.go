package spread

import (
	"fmt"
	"strings"
	"time"

	"spread-arb-go/market"
)

// PricingMode 选择计算基差所用的腿价格字段。
type PricingMode int

const (
	// LastTrade 使用最新成交价
	LastTrade PricingMode = iota
	// Mid 使用买一卖一中间价
	Mid
)

func (m PricingMode) String() string {
	switch m {
	case LastTrade:
		return "LAST_TRADE"
	case Mid:
		return "MID"
	default:
		return "UNKNOWN"
	}
}

// ParsePricingMode accepts "last", "ltp", "last_trade" and "mid" (case-insensitive).
func ParsePricingMode(s string) (PricingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last", "ltp", "last_trade":
		return LastTrade, nil
	case "mid":
		return Mid, nil
	default:
		return LastTrade, fmt.Errorf("%w: unknown pricing mode %q", ErrConfiguration, s)
	}
}

func (m PricingMode) price(t market.Tick) float64 {
	if m == Mid {
		return t.Mid()
	}
	return t.LastPrice
}

// SyntheticTick 合成价差行情。Last 即基差，Bid/Ask 为整组立即可成交价格。
type SyntheticTick struct {
	Symbol string
	Ts     time.Time
	Last   float64
	Bid    float64
	Ask    float64
}

// Synthesizer 增量维护价差基差与可成交买卖价。
//
// 所有腿收到首个行情之前只吸收快照，不产出合成行情；就绪时全量计算一次，
// 之后每个行情按 coef × (new - old) 增量更新。
type Synthesizer struct {
	name   string
	reg    *Registry
	mode   PricingMode
	offset float64

	basis      float64
	ready      bool
	pending    int
	lastUpdate time.Time
}

// SynthesizerConfig carries the per-spread pricing parameters.
type SynthesizerConfig struct {
	Name   string
	Mode   PricingMode
	Offset float64 // 常数项，如平价公式中的行权价
}

func NewSynthesizer(reg *Registry, cfg SynthesizerConfig) *Synthesizer {
	return &Synthesizer{
		name:    cfg.Name,
		reg:     reg,
		mode:    cfg.Mode,
		offset:  cfg.Offset,
		pending: reg.Len(),
	}
}

// OnLegTick 处理单腿行情；第二个返回值表示本次是否产出合成行情。
// 未知腿与非正价格返回 DataError，快照保持不变。
func (s *Synthesizer) OnLegTick(t market.Tick) (SyntheticTick, bool, error) {
	id, ok := s.reg.Lookup(t.Symbol)
	if !ok {
		return SyntheticTick{}, false, fmt.Errorf("%w: %s", ErrUnknownLeg, t.Symbol)
	}
	if err := s.checkPrices(t); err != nil {
		return SyntheticTick{}, false, err
	}
	leg := s.reg.Leg(id)

	if !s.ready {
		if !leg.hasTick {
			s.pending--
		}
		leg.setTick(t)
		if s.pending > 0 {
			return SyntheticTick{}, false, nil
		}
		basis, err := s.Recompute()
		if err != nil {
			return SyntheticTick{}, false, err
		}
		s.basis = basis
		s.ready = true
	} else {
		old := s.mode.price(leg.tick)
		leg.setTick(t)
		s.basis += leg.Coef * (s.mode.price(t) - old)
	}
	s.lastUpdate = t.Ts

	bid, ask := s.executable()
	return SyntheticTick{
		Symbol: s.name,
		Ts:     t.Ts,
		Last:   s.basis,
		Bid:    bid,
		Ask:    ask,
	}, true, nil
}

// Recompute 基于当前快照全量计算基差，O(legs)。
func (s *Synthesizer) Recompute() (float64, error) {
	basis := s.offset
	for _, l := range s.reg.legs {
		if !l.hasTick {
			return 0, fmt.Errorf("%w: leg %s has no snapshot", ErrInvariantViolation, l.Symbol)
		}
		basis += l.Coef * s.mode.price(l.tick)
	}
	return basis, nil
}

// executable 买整组价差需买入正系数腿（吃卖一）、卖出负系数腿（吃买一）。
// 假设盘口数量无限。
func (s *Synthesizer) executable() (bid, ask float64) {
	bid, ask = s.offset, s.offset
	for _, l := range s.reg.legs {
		pos, neg := max(0, l.Coef), min(0, l.Coef)
		ask += pos*l.tick.AskPrice + neg*l.tick.BidPrice
		bid += pos*l.tick.BidPrice + neg*l.tick.AskPrice
	}
	return bid, ask
}

func (s *Synthesizer) checkPrices(t market.Tick) error {
	if t.BidPrice <= 0 || t.AskPrice <= 0 {
		return fmt.Errorf("%w: %s bid=%v ask=%v", ErrNonPositivePrice, t.Symbol, t.BidPrice, t.AskPrice)
	}
	if s.mode == LastTrade && t.LastPrice <= 0 {
		return fmt.Errorf("%w: %s last=%v", ErrNonPositivePrice, t.Symbol, t.LastPrice)
	}
	return nil
}

// Basis 返回当前基差；未就绪时第二个返回值为 false。
func (s *Synthesizer) Basis() (float64, bool) {
	if !s.ready {
		return 0, false
	}
	return s.basis, true
}

func (s *Synthesizer) Ready() bool           { return s.ready }
func (s *Synthesizer) Name() string          { return s.name }
func (s *Synthesizer) Mode() PricingMode     { return s.mode }
func (s *Synthesizer) LastUpdate() time.Time { return s.lastUpdate }
func (s *Synthesizer) Registry() *Registry   { return s.reg }

// Reset 回到未就绪状态，并清空腿快照。
func (s *Synthesizer) Reset() {
	s.reg.ResetTicks()
	s.basis = 0
	s.ready = false
	s.pending = s.reg.Len()
	s.lastUpdate = time.Time{}
}
