package sim

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"spread-arb-go/market"
)

// DispatchFunc 接收回放的行情
type DispatchFunc func(ctx context.Context, t market.Tick) error

// ReplayStats 回放统计
type ReplayStats struct {
	Rows       int
	Dispatched int
	Skipped    int // 解析失败或分发返回错误
	First      time.Time
	Last       time.Time
}

// Replayer 从 CSV 读取腿行情并按顺序分发。
// 列顺序：ts,symbol,last,bid,bidSize,ask,askSize；ts 为 RFC3339 或毫秒时间戳，首行表头可选。
type Replayer struct {
	Dispatch DispatchFunc
	Speed    float64 // >0 时按行情时间间隔 / Speed 休眠，0 为尽快回放
	Strict   bool    // 遇到坏行直接返回错误
}

// ReplayFile 回放文件
func (r Replayer) ReplayFile(ctx context.Context, path string) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	return r.Replay(ctx, f)
}

// Replay 回放 reader 中的全部行情
func (r Replayer) Replay(ctx context.Context, in io.Reader) (ReplayStats, error) {
	var stats ReplayStats
	if r.Dispatch == nil {
		return stats, errors.New("replayer: dispatch is required")
	}
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var prev time.Time
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read line %d: %w", line, err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		stats.Rows++

		tick, err := ParseTickRecord(rec)
		if err != nil {
			if r.Strict {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.Skipped++
			continue
		}

		if r.Speed > 0 && !prev.IsZero() && tick.Ts.After(prev) {
			wait := time.Duration(float64(tick.Ts.Sub(prev)) / r.Speed)
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(wait):
			}
		}
		prev = tick.Ts

		if err := r.Dispatch(ctx, tick); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if r.Strict {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.Skipped++
			continue
		}
		stats.Dispatched++
		if stats.First.IsZero() {
			stats.First = tick.Ts
		}
		stats.Last = tick.Ts
	}
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "ts")
}

// ParseTickRecord 解析一行 CSV；bid/ask 等列缺省为 0
func ParseTickRecord(rec []string) (market.Tick, error) {
	if len(rec) < 3 {
		return market.Tick{}, fmt.Errorf("expected at least 3 columns, got %d", len(rec))
	}
	ts, err := parseTime(rec[0])
	if err != nil {
		return market.Tick{}, err
	}
	t := market.Tick{Symbol: strings.TrimSpace(rec[1]), Ts: ts}
	if t.Symbol == "" {
		return market.Tick{}, errors.New("empty symbol")
	}
	fields := []*float64{&t.LastPrice, &t.BidPrice, &t.BidSize, &t.AskPrice, &t.AskSize}
	for i, dst := range fields {
		col := i + 2
		if col >= len(rec) || strings.TrimSpace(rec[col]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			return market.Tick{}, fmt.Errorf("column %d: %w", col+1, err)
		}
		*dst = v
	}
	return t, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ts %q: %w", s, err)
	}
	return ts, nil
}
