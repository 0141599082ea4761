package signal

import (
	"errors"

	"spread-arb-go/market"
)

// Kind 信号类型。
type Kind int

const (
	None Kind = iota
	CrossOver
	CrossBelow
)

func (k Kind) String() string {
	switch k {
	case CrossOver:
		return "cross_over"
	case CrossBelow:
		return "cross_below"
	default:
		return "none"
	}
}

// Indicator 单根 Bar 上的双均线状态；交叉标志只对当前 Bar 有效。
type Indicator struct {
	Bar        market.Bar
	FastNow    float64
	SlowNow    float64
	FastPrev   float64
	SlowPrev   float64
	CrossOver  bool
	CrossBelow bool
	// Valid 为 false 表示仍处于冷启动期，其余字段无意义
	Valid bool
}

// Kind collapses the two flags into one value.
func (i Indicator) Kind() Kind {
	switch {
	case i.CrossOver:
		return CrossOver
	case i.CrossBelow:
		return CrossBelow
	default:
		return None
	}
}

// Crossover 双均线交叉检测。fast < slow 是预期用法但不强制。
type Crossover struct {
	fast, slow *SMA
	bars       int

	havePrev           bool
	fastPrev, slowPrev float64
}

var ErrInvalidWindow = errors.New("moving average window must be >= 1")

func NewCrossover(fast, slow int) (*Crossover, error) {
	if fast < 1 || slow < 1 {
		return nil, ErrInvalidWindow
	}
	return &Crossover{fast: NewSMA(fast), slow: NewSMA(slow)}, nil
}

// OnBar 处理一根已闭合的 Bar。两条均线的当前值与前值都存在时才判断交叉，
// 因此至少观测到 slow 根 Bar 之前不会产生任何信号。
func (c *Crossover) OnBar(bar market.Bar) Indicator {
	c.bars++
	fastNow, fastOK := c.fast.Append(bar.Close)
	slowNow, slowOK := c.slow.Append(bar.Close)
	ind := Indicator{Bar: bar, FastNow: fastNow, SlowNow: slowNow}
	if !fastOK || !slowOK {
		return ind
	}
	if c.havePrev {
		ind.FastPrev, ind.SlowPrev = c.fastPrev, c.slowPrev
		ind.Valid = true
		ind.CrossOver = fastNow > slowNow && c.fastPrev <= c.slowPrev
		ind.CrossBelow = fastNow < slowNow && c.fastPrev >= c.slowPrev
	}
	c.fastPrev, c.slowPrev = fastNow, slowNow
	c.havePrev = true
	return ind
}

// Bars returns the number of bars observed since construction or Reset.
func (c *Crossover) Bars() int { return c.bars }

func (c *Crossover) Windows() (fast, slow int) {
	return c.fast.Period(), c.slow.Period()
}

func (c *Crossover) Reset() {
	c.fast.Reset()
	c.slow.Reset()
	c.bars = 0
	c.havePrev = false
	c.fastPrev, c.slowPrev = 0, 0
}
