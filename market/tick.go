package market

import "time"

// Tick 单腿盘口快照（最新成交价 + 买一/卖一）。
type Tick struct {
	Symbol    string
	Ts        time.Time
	LastPrice float64
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
}

// Mid returns the bid/ask midpoint.
func (t Tick) Mid() float64 {
	return 0.5 * (t.BidPrice + t.AskPrice)
}

// Bar represents OHLC data for one aggregation period.
type Bar struct {
	Symbol string
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
}
