package order

import (
	"fmt"
	"math"
)

// SymbolConstraints 描述单腿合约的价格步长、数量步长与名义限制。
type SymbolConstraints struct {
	TickSize    float64 `yaml:"tickSize"`
	StepSize    float64 `yaml:"stepSize"`
	MinQty      float64 `yaml:"minQty"`
	MaxQty      float64 `yaml:"maxQty"`
	MinNotional float64 `yaml:"minNotional"`
}

// RoundPrice 按 tickSize 取最近价位。
func (c SymbolConstraints) RoundPrice(price float64) float64 {
	if c.TickSize <= 0 {
		return price
	}
	return math.Round(price/c.TickSize) * c.TickSize
}

// RoundQty 按 stepSize 向下取整，避免超量下单。
func (c SymbolConstraints) RoundQty(qty float64) float64 {
	if c.StepSize <= 0 {
		return qty
	}
	return math.Floor(qty/c.StepSize+1e-9) * c.StepSize
}

// Validate 检查订单价格/数量是否符合精度与最小名义。
func (c SymbolConstraints) Validate(price, qty float64) error {
	if c.TickSize > 0 && !isMultiple(price, c.TickSize) {
		return fmt.Errorf("%w: price %.8f not aligned to tickSize %.8f", ErrConstraint, price, c.TickSize)
	}
	if c.StepSize > 0 && !isMultiple(qty, c.StepSize) {
		return fmt.Errorf("%w: qty %.8f not aligned to stepSize %.8f", ErrConstraint, qty, c.StepSize)
	}
	if c.MinQty > 0 && qty < c.MinQty {
		return fmt.Errorf("%w: qty %.8f < minQty %.8f", ErrConstraint, qty, c.MinQty)
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		return fmt.Errorf("%w: qty %.8f > maxQty %.8f", ErrConstraint, qty, c.MaxQty)
	}
	if c.MinNotional > 0 && price*qty < c.MinNotional {
		return fmt.Errorf("%w: notional %.8f < minNotional %.8f", ErrConstraint, price*qty, c.MinNotional)
	}
	return nil
}

func isMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) <= 1e-8
}
