package market

import (
	"testing"
	"time"
)

func TestBarAggregator(t *testing.T) {
	agg := NewBarAggregator("SPC", time.Minute)
	ts := time.Unix(0, 0)
	if closed := agg.Update(100, ts); closed != nil {
		t.Fatalf("should not close on first update")
	}
	agg.Update(102, ts.Add(10*time.Second))
	agg.Update(99, ts.Add(20*time.Second))
	agg.Update(101, ts.Add(50*time.Second))
	closed := agg.Update(105, ts.Add(70*time.Second))
	if closed == nil {
		t.Fatalf("expected bar close")
	}
	if closed.Open != 100 || closed.High != 102 || closed.Low != 99 || closed.Close != 101 {
		t.Fatalf("unexpected bar %+v", closed)
	}
	if closed.Symbol != "SPC" || !closed.Ts.Equal(ts) {
		t.Fatalf("unexpected bar identity %+v", closed)
	}
	cur, ok := agg.Current()
	if !ok || cur.Open != 105 || !cur.Ts.Equal(ts.Add(time.Minute)) {
		t.Fatalf("unexpected current bar %+v", cur)
	}
}

func TestBarAggregatorNegativePrices(t *testing.T) {
	// 价差可以为负
	agg := NewBarAggregator("SPC", time.Second)
	ts := time.Unix(100, 0)
	agg.Update(-3, ts)
	agg.Update(-5, ts.Add(200*time.Millisecond))
	closed := agg.Update(-1, ts.Add(time.Second))
	if closed == nil || closed.Low != -5 || closed.High != -3 || closed.Close != -5 {
		t.Fatalf("unexpected bar %+v", closed)
	}
}

func TestBarAggregatorFlush(t *testing.T) {
	agg := NewBarAggregator("SPC", 0)
	if agg.Interval != time.Minute {
		t.Fatalf("expected default interval")
	}
	if agg.Flush() != nil {
		t.Fatalf("expected nil flush on empty aggregator")
	}
	agg.Update(1, time.Unix(0, 0))
	if b := agg.Flush(); b == nil || b.Close != 1 {
		t.Fatalf("unexpected flush %+v", b)
	}
	if _, ok := agg.Current(); ok {
		t.Fatalf("expected empty current after flush")
	}
}

func TestTickMid(t *testing.T) {
	tk := Tick{BidPrice: 99, AskPrice: 101}
	if tk.Mid() != 100 {
		t.Fatalf("unexpected mid %v", tk.Mid())
	}
}
