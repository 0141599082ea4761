// Package inventory 维护价差实例的持仓状态：各腿成交、净价差仓位、腿间不平衡与活跃订单。
package inventory

import (
	"math"

	"spread-arb-go/spread"
)

const zeroTolerance = 1e-9

// State 价差持仓方向。
type State int

const (
	Flat State = iota
	Long
	Short
)

func (s State) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// SpreadPosition 由各腿成交推导价差持仓。不加锁，只在所属引擎的事件循环中使用。
// 各腿累计成交量保存在 spread.Leg 上，本类型是它唯一的写入方。
type SpreadPosition struct {
	reg      *spread.Registry
	live     []map[string]struct{}
	orderLeg map[string]spread.LegID
	costs    []LegCost
}

func NewSpreadPosition(reg *spread.Registry) *SpreadPosition {
	p := &SpreadPosition{reg: reg}
	p.Reset()
	return p
}

// Reset 清空成交、成本与活跃订单，仅在策略停止时调用。
func (p *SpreadPosition) Reset() {
	p.reg.ResetFills()
	n := p.reg.Len()
	p.live = make([]map[string]struct{}, n)
	for i := range p.live {
		p.live[i] = make(map[string]struct{})
	}
	p.orderLeg = make(map[string]spread.LegID)
	p.costs = make([]LegCost, n)
}

// Track 登记一笔活跃订单。
func (p *SpreadPosition) Track(orderID string, leg spread.LegID) {
	p.live[leg][orderID] = struct{}{}
	p.orderLeg[orderID] = leg
}

// Release 将订单移出活跃集合，返回订单是否曾被登记。
func (p *SpreadPosition) Release(orderID string) bool {
	leg, ok := p.orderLeg[orderID]
	if !ok {
		return false
	}
	delete(p.live[leg], orderID)
	delete(p.orderLeg, orderID)
	return true
}

// IsTracked reports whether the order is in a live set.
func (p *SpreadPosition) IsTracked(orderID string) bool {
	_, ok := p.orderLeg[orderID]
	return ok
}

// ApplyTrade 记入一笔带符号的成交。
func (p *SpreadPosition) ApplyTrade(leg spread.LegID, signed, price float64) {
	p.reg.Leg(leg).ApplyFill(signed)
	p.costs[leg].Apply(signed, price)
}

// Filled 返回各腿累计成交向量。
func (p *SpreadPosition) Filled() []float64 {
	out := make([]float64, p.reg.Len())
	for i, l := range p.reg.Legs() {
		out[i] = l.Filled()
	}
	return out
}

// Net 净价差仓位。各腿按系数归一化 n_i = filled_i / coef_i；
// 若存在零值或符号不一致则为 0，否则取 |n_i| 最小者（并列取下标最小的腿）。
func (p *SpreadPosition) Net() float64 {
	net := 0.0
	sign := 0.0
	for i, l := range p.reg.Legs() {
		n := l.Filled() / l.Coef
		if math.Abs(n) < zeroTolerance {
			return 0
		}
		s := math.Copysign(1, n)
		if i == 0 {
			sign = s
			net = n
			continue
		}
		if s != sign {
			return 0
		}
		if math.Abs(n) < math.Abs(net)-zeroTolerance {
			net = n
		}
	}
	return net
}

// State 由净仓位符号决定方向。
func (p *SpreadPosition) State() State {
	net := p.Net()
	switch {
	case net > zeroTolerance:
		return Long
	case net < -zeroTolerance:
		return Short
	default:
		return Flat
	}
}

// Imbalance = -Σ |coef_i| × filled_i，|x| 小于容差时视为 0。
func (p *SpreadPosition) Imbalance() float64 {
	sum := 0.0
	for _, l := range p.reg.Legs() {
		sum += math.Abs(l.Coef) * l.Filled()
	}
	imb := -sum
	if math.Abs(imb) < zeroTolerance {
		return 0
	}
	return imb
}

// Residuals 各腿相对净仓位的缺口：coef_i × net - filled_i。
func (p *SpreadPosition) Residuals() []float64 {
	net := p.Net()
	out := make([]float64, p.reg.Len())
	for i, l := range p.reg.Legs() {
		r := l.Coef*net - l.Filled()
		if math.Abs(r) < zeroTolerance {
			r = 0
		}
		out[i] = r
	}
	return out
}

// Quiescent 所有腿都没有活跃订单。
func (p *SpreadPosition) Quiescent() bool {
	for _, set := range p.live {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// LiveCount 活跃订单总数。
func (p *SpreadPosition) LiveCount() int { return len(p.orderLeg) }

// LegLiveCount 单腿活跃订单数。
func (p *SpreadPosition) LegLiveCount(leg spread.LegID) int { return len(p.live[leg]) }

// CorrectionTarget 返回纠偏目标腿（|filled| 最小，并列取下标最小）和带符号的纠偏量。
// 不平衡为 0 时 ok 为 false。
func (p *SpreadPosition) CorrectionTarget() (leg spread.LegID, signed float64, ok bool) {
	imb := p.Imbalance()
	if imb == 0 {
		return 0, 0, false
	}
	best := math.Inf(1)
	for i, l := range p.reg.Legs() {
		if f := math.Abs(l.Filled()); f < best-zeroTolerance {
			best = f
			leg = spread.LegID(i)
		}
	}
	return leg, imb, true
}

// Cost 返回单腿成本跟踪。
func (p *SpreadPosition) Cost(leg spread.LegID) LegCost { return p.costs[leg] }

// PnL 汇总各腿已实现与未实现盈亏，未实现部分使用各腿最新行情按 mode 标记；
// 尚无行情的腿不计入未实现盈亏。
func (p *SpreadPosition) PnL(mode spread.PricingMode) (realized, unrealized float64) {
	for i, l := range p.reg.Legs() {
		c := p.costs[i]
		realized += c.Realized()
		if _, ok := l.Tick(); ok {
			unrealized += c.Unrealized(l.Price(mode))
		}
	}
	return realized, unrealized
}
