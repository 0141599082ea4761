package market

import "time"

// BarAggregator 从合成价差的最新价生成固定周期的 Bar。
// 非并发安全：由所属策略的单一事件循环驱动。
type BarAggregator struct {
	Symbol   string
	Interval time.Duration
	current  *Bar
}

func NewBarAggregator(symbol string, interval time.Duration) *BarAggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BarAggregator{Symbol: symbol, Interval: interval}
}

// Update 更新当前 Bar；跨越周期边界时返回已闭合的 Bar，否则返回 nil。
// 周期起点按 Interval 对齐。
func (a *BarAggregator) Update(price float64, ts time.Time) *Bar {
	start := ts.Truncate(a.Interval)
	if a.current == nil {
		a.current = a.open(price, start)
		return nil
	}
	if start.After(a.current.Ts) {
		closed := a.current
		a.current = a.open(price, start)
		return closed
	}
	// 乱序或同周期的价格并入当前 Bar
	if price > a.current.High {
		a.current.High = price
	}
	if price < a.current.Low {
		a.current.Low = price
	}
	a.current.Close = price
	return nil
}

// Flush 返回并清空尚未闭合的 Bar（策略停止时使用）。
func (a *BarAggregator) Flush() *Bar {
	b := a.current
	a.current = nil
	return b
}

// Current 返回当前未闭合 Bar 的拷贝。
func (a *BarAggregator) Current() (Bar, bool) {
	if a.current == nil {
		return Bar{}, false
	}
	return *a.current, true
}

func (a *BarAggregator) open(price float64, start time.Time) *Bar {
	return &Bar{
		Symbol: a.Symbol,
		Ts:     start,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
	}
}
