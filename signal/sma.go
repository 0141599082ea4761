// Package signal derives edge-triggered moving-average cross signals from bar closes.
package signal

// SMA simple moving average over a fixed window.
type SMA struct {
	period int
	values []float64 // 环形缓冲
	next   int
	count  int
}

func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{period: period, values: make([]float64, period)}
}

// Append 加入一个收盘价，返回当前均值以及窗口是否已满。
func (m *SMA) Append(v float64) (float64, bool) {
	m.values[m.next] = v
	m.next = (m.next + 1) % m.period
	if m.count < m.period {
		m.count++
	}
	return m.Value()
}

// Value 窗口未满时第二个返回值为 false。每次全量求和，避免累计浮点漂移。
func (m *SMA) Value() (float64, bool) {
	if m.count < m.period {
		return 0, false
	}
	var sum float64
	for _, v := range m.values {
		sum += v
	}
	return sum / float64(m.period), true
}

func (m *SMA) Period() int { return m.period }

func (m *SMA) Reset() {
	for i := range m.values {
		m.values[i] = 0
	}
	m.next, m.count = 0, 0
}
