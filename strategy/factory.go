package strategy

import (
	"fmt"

	"spread-arb-go/spread"
)

// Kind 策略类型
type Kind string

const (
	KindSpreadArbitrage Kind = "spread_arbitrage"
	KindParityMonitor   Kind = "parity_monitor"
)

// ErrUnknownStrategy 未注册的策略类型
var ErrUnknownStrategy = fmt.Errorf("%w: unknown strategy", spread.ErrConfiguration)

// New 根据类型创建策略实例，空类型默认为价差套利。
func New(kind Kind, p Params, deps Deps) (Strategy, error) {
	switch kind {
	case "", KindSpreadArbitrage:
		return NewSpreadArbitrage(p, deps)
	case KindParityMonitor:
		return NewParityMonitor(p, deps)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}
