package spread

import (
	"fmt"
	"strings"

	"spread-arb-go/market"
)

// LegID 腿在注册表中的下标，构造时分配，之后不变。
type LegID int

// Leg 价差的一条腿：静态系数 + 最新盘口快照 + 累计成交量。
//
// 行情字段只由行情路径写入，Filled 只由仓位对账写入；两者都运行在
// 所属实例的单一事件循环里，因此不加锁。
type Leg struct {
	ID     LegID
	Symbol string
	Coef   float64

	tick    market.Tick
	hasTick bool
	filled  float64
}

// Tick 返回最新快照；第二个返回值表示是否已收到过行情。
func (l *Leg) Tick() (market.Tick, bool) {
	return l.tick, l.hasTick
}

// Filled 返回带符号的累计成交量（买为正，卖为负）。
func (l *Leg) Filled() float64 {
	return l.filled
}

// ApplyFill 累加一笔带符号的成交量。
func (l *Leg) ApplyFill(delta float64) {
	l.filled += delta
}

// Price 按定价模式取该腿的价格字段。
func (l *Leg) Price(mode PricingMode) float64 {
	return mode.price(l.tick)
}

func (l *Leg) setTick(t market.Tick) {
	l.tick = t
	l.hasTick = true
}

func (l *Leg) clearTick() {
	l.tick = market.Tick{}
	l.hasTick = false
}

// Registry 固定长度的腿数组，按 LegID 索引；symbol 只在入口处查一次。
type Registry struct {
	legs  []*Leg
	index map[string]LegID
}

// NewRegistry 校验并构造腿集合。长度不一致、零系数、重复腿均为配置错误。
func NewRegistry(symbols []string, coefs []float64) (*Registry, error) {
	if len(symbols) != len(coefs) {
		return nil, fmt.Errorf("%w: %d legs, %d coefficients", ErrLegCountMismatch, len(symbols), len(coefs))
	}
	if len(symbols) == 0 {
		return nil, ErrNoLegs
	}
	r := &Registry{
		legs:  make([]*Leg, 0, len(symbols)),
		index: make(map[string]LegID, len(symbols)),
	}
	for i, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			return nil, fmt.Errorf("%w: empty leg symbol at %d", ErrConfiguration, i)
		}
		if coefs[i] == 0 {
			return nil, fmt.Errorf("%w: leg %s", ErrZeroCoefficient, sym)
		}
		if _, dup := r.index[sym]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLeg, sym)
		}
		id := LegID(i)
		r.index[sym] = id
		r.legs = append(r.legs, &Leg{ID: id, Symbol: sym, Coef: coefs[i]})
	}
	return r, nil
}

// Lookup resolves a symbol to its leg id.
func (r *Registry) Lookup(symbol string) (LegID, bool) {
	id, ok := r.index[symbol]
	return id, ok
}

// Leg returns the leg for id. id must come from this registry.
func (r *Registry) Leg(id LegID) *Leg {
	return r.legs[id]
}

// Legs 按 LegID 顺序返回全部腿（只读使用）。
func (r *Registry) Legs() []*Leg {
	return r.legs
}

func (r *Registry) Len() int {
	return len(r.legs)
}

// Symbols returns leg symbols in LegID order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.legs))
	for i, l := range r.legs {
		out[i] = l.Symbol
	}
	return out
}

// Coefficients returns leg coefficients in LegID order.
func (r *Registry) Coefficients() []float64 {
	out := make([]float64, len(r.legs))
	for i, l := range r.legs {
		out[i] = l.Coef
	}
	return out
}

// ResetTicks 清空全部行情快照。
func (r *Registry) ResetTicks() {
	for _, l := range r.legs {
		l.clearTick()
	}
}

// ResetFills 清零全部累计成交量。
func (r *Registry) ResetFills() {
	for _, l := range r.legs {
		l.filled = 0
	}
}
