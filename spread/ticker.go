package spread

import (
	"fmt"
	"strings"
)

// ParseTicker 解析组合代码，例如 "SPC_fu2001.SHFE&fu2005.SHFE"。
// 返回价差名与各腿代码。
func ParseTicker(ticker string) (string, []string, error) {
	name, contracts, ok := strings.Cut(strings.TrimSpace(ticker), "_")
	if !ok || name == "" || contracts == "" {
		return "", nil, fmt.Errorf("%w: malformed spread ticker %q", ErrConfiguration, ticker)
	}
	parts := strings.Split(contracts, "&")
	legs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", nil, fmt.Errorf("%w: empty leg in spread ticker %q", ErrConfiguration, ticker)
		}
		legs = append(legs, p)
	}
	if len(legs) < 2 {
		return "", nil, fmt.Errorf("%w: spread ticker %q needs at least 2 legs, got %d", ErrConfiguration, ticker, len(legs))
	}
	return name, legs, nil
}

// DefaultCoefficients 返回两腿价差的默认系数 [1, -1]；其他腿数没有默认值。
func DefaultCoefficients(legs int) ([]float64, bool) {
	if legs != 2 {
		return nil, false
	}
	return []float64{1, -1}, true
}
