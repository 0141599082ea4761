package order

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 1024
	volumeEpsilon       = 1e-9
)

// Manager 维护单个价差实例的订单状态并通过 Gateway 下发。
// 不加锁：所有方法都在所属引擎的事件循环中调用。
type Manager struct {
	gw          Gateway
	sm          *StateMachine
	orders      map[string]*Order
	live        []string // 按提交顺序
	finished    []string
	seenTrades  map[string]struct{}
	tradeIDs    map[string][]string // 订单号 -> 已记录的成交号，随历史淘汰一起清理
	orphanIDs   []string            // 未知订单的成交号，按历史上限截断
	constraints map[string]SymbolConstraints

	historyLimit int
	now          func() time.Time
	newID        func() string
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock overrides time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides the client id generator.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) { m.newID = gen }
}

// WithHistoryLimit bounds how many finished orders are retained for lookups.
func WithHistoryLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

func NewManager(gw Gateway, opts ...ManagerOption) *Manager {
	m := &Manager{
		gw:           gw,
		sm:           NewStateMachine(),
		orders:       make(map[string]*Order),
		seenTrades:   make(map[string]struct{}),
		tradeIDs:     make(map[string][]string),
		constraints:  make(map[string]SymbolConstraints),
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetConstraints 设置各合约的精度/名义限制。
func (m *Manager) SetConstraints(c map[string]SymbolConstraints) {
	m.constraints = make(map[string]SymbolConstraints, len(c))
	for sym, sc := range c {
		m.constraints[sym] = sc
	}
}

// Submit 按合约约束取整、校验后提交到 Gateway。
// 返回的订单为快照；被拒绝的订单也会登记，状态为 REJECTED。
func (m *Manager) Submit(o Order) (Order, error) {
	if c, ok := m.constraints[o.Symbol]; ok {
		o.Price = c.RoundPrice(o.Price)
		o.Volume = c.RoundQty(o.Volume)
		if o.Volume > volumeEpsilon {
			if err := c.Validate(o.Price, o.Volume); err != nil {
				return o, fmt.Errorf("submit %s: %w", o.Symbol, err)
			}
		}
	}
	if o.Volume <= volumeEpsilon {
		return o, fmt.Errorf("submit %s %.8f: %w", o.Symbol, o.Volume, ErrInvalidVolume)
	}
	if o.ClientID == "" {
		o.ClientID = m.newID()
	}
	if o.Offset == "" {
		o.Offset = OffsetNone
	}
	o.Traded = 0
	o.CreatedAt = m.now()
	o.Status = StatusPending

	id, err := m.gw.SubmitOrder(Request{
		ClientID:  o.ClientID,
		Symbol:    o.Symbol,
		Direction: o.Direction,
		Offset:    o.Offset,
		Price:     o.Price,
		Volume:    o.Volume,
	})
	if err != nil {
		o.ID = o.ClientID
		o.Status = StatusRejected
		o.LastError = err.Error()
		m.orders[o.ID] = &o
		m.retire(o.ID)
		return o, fmt.Errorf("%w: %s %s %.8f@%.8f: %v", ErrRejected, o.Symbol, o.Direction, o.Volume, o.Price, err)
	}
	if id == "" {
		id = o.ClientID
	}
	o.ID = id
	o.Status = StatusNew
	m.orders[id] = &o
	m.live = append(m.live, id)
	return o, nil
}

// ApplyUpdate 应用状态回报。changed 为 false 表示状态未变化。
func (m *Manager) ApplyUpdate(u Update) (o Order, changed bool, err error) {
	cur, ok := m.orders[u.OrderID]
	if !ok {
		return Order{}, false, fmt.Errorf("%w: %s", ErrUnknownOrder, u.OrderID)
	}
	if cur.Status == u.Status {
		return *cur, false, nil
	}
	if err := m.sm.ValidateTransition(cur.Status, u.Status); err != nil {
		return *cur, false, fmt.Errorf("order %s: %w", u.OrderID, err)
	}
	cur.Status = u.Status
	if u.Reason != "" {
		cur.LastError = u.Reason
	}
	if !cur.Status.IsLive() {
		m.retire(cur.ID)
	}
	return *cur, true, nil
}

// ApplyTrade 累计成交量并推进状态。重复的 TradeID 返回 ErrDuplicateTrade。
// 未知订单返回 ErrUnknownOrder，但成交本身依然有效，由调用方决定是否记入持仓。
func (m *Manager) ApplyTrade(tr Trade) (Order, error) {
	if tr.TradeID != "" {
		if _, dup := m.seenTrades[tr.TradeID]; dup {
			return Order{}, fmt.Errorf("%w: %s", ErrDuplicateTrade, tr.TradeID)
		}
		m.seenTrades[tr.TradeID] = struct{}{}
	}
	cur, ok := m.orders[tr.OrderID]
	if !ok {
		if tr.TradeID != "" {
			m.orphanIDs = append(m.orphanIDs, tr.TradeID)
			for len(m.orphanIDs) > m.historyLimit {
				delete(m.seenTrades, m.orphanIDs[0])
				m.orphanIDs = m.orphanIDs[1:]
			}
		}
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, tr.OrderID)
	}
	if tr.TradeID != "" {
		m.tradeIDs[cur.ID] = append(m.tradeIDs[cur.ID], tr.TradeID)
	}
	wasLive := cur.Status.IsLive()
	cur.Traded += math.Abs(tr.Volume)

	next := StatusPartial
	if cur.Traded >= cur.Volume-volumeEpsilon {
		next = StatusFilled
	}
	if m.sm.ValidateTransition(cur.Status, next) == nil {
		cur.Status = next
	}
	if wasLive && !cur.Status.IsLive() {
		m.retire(cur.ID)
	}
	return *cur, nil
}

// Get 返回订单快照。
func (m *Manager) Get(id string) (Order, bool) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Live 返回所有活跃订单，按提交顺序。
func (m *Manager) Live() []Order {
	out := make([]Order, 0, len(m.live))
	for _, id := range m.live {
		out = append(out, *m.orders[id])
	}
	return out
}

// LiveStatuses maps live order ids to their local status.
func (m *Manager) LiveStatuses() map[string]Status {
	out := make(map[string]Status, len(m.live))
	for _, id := range m.live {
		out[id] = m.orders[id].Status
	}
	return out
}

// LiveCount 活跃订单数。
func (m *Manager) LiveCount() int { return len(m.live) }

// Reset 清空订单与成交去重记录。
func (m *Manager) Reset() {
	m.orders = make(map[string]*Order)
	m.live = nil
	m.finished = nil
	m.seenTrades = make(map[string]struct{})
	m.tradeIDs = make(map[string][]string)
	m.orphanIDs = nil
}

// TrackedTrades 当前用于去重的成交号数量。
func (m *Manager) TrackedTrades() int { return len(m.seenTrades) }

func (m *Manager) retire(id string) {
	for i, lid := range m.live {
		if lid == id {
			m.live = append(m.live[:i], m.live[i+1:]...)
			break
		}
	}
	m.finished = append(m.finished, id)
	for len(m.finished) > m.historyLimit {
		old := m.finished[0]
		for _, tid := range m.tradeIDs[old] {
			delete(m.seenTrades, tid)
		}
		delete(m.tradeIDs, old)
		delete(m.orders, old)
		m.finished = m.finished[1:]
	}
}
