package inventory

import "math"

// LegCost 维护单腿的净持仓、加权平均成本与已实现盈亏。
type LegCost struct {
	net      float64
	cost     float64
	realized float64
}

// Apply 根据带符号的成交数量调整仓位。减仓部分按平均成本结算已实现盈亏，
// 反手时剩余部分以成交价作为新成本。
func (c *LegCost) Apply(deltaQty, price float64) {
	if deltaQty == 0 {
		return
	}
	if c.net == 0 || sameSign(c.net, deltaQty) {
		totalValue := c.cost*c.net + price*deltaQty
		c.net += deltaQty
		c.cost = totalValue / c.net
		return
	}

	closing := math.Min(math.Abs(deltaQty), math.Abs(c.net))
	if c.net > 0 {
		c.realized += (price - c.cost) * closing
	} else {
		c.realized += (c.cost - price) * closing
	}
	c.net += deltaQty
	switch {
	case math.Abs(c.net) < zeroTolerance:
		c.net = 0
		c.cost = 0
	case !sameSign(c.net, -deltaQty):
		// 反手
		c.cost = price
	}
}

func (c LegCost) Net() float64      { return c.net }
func (c LegCost) AvgCost() float64  { return c.cost }
func (c LegCost) Realized() float64 { return c.realized }

// Unrealized 基于标记价计算未实现盈亏。
func (c LegCost) Unrealized(mark float64) float64 {
	if c.net == 0 {
		return 0
	}
	return (mark - c.cost) * c.net
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
