package order

import "time"

// Status represents order lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"   // 待提交
	StatusNew       Status = "NEW"       // 已提交，未确认
	StatusAck       Status = "ACK"       // 交易所已确认
	StatusPartial   Status = "PARTIAL"   // 部分成交
	StatusFilled    Status = "FILLED"    // 全部成交
	StatusCanceling Status = "CANCELING" // 撤单中
	StatusCanceled  Status = "CANCELED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
)

// IsLive 订单仍可能产生成交（含未确认的撤单）。
func (s Status) IsLive() bool {
	switch s {
	case StatusPending, StatusNew, StatusAck, StatusPartial, StatusCanceling:
		return true
	default:
		return false
	}
}

// Direction 买卖方向。
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Sign returns +1 for Buy and -1 for Sell.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Sell {
		return Buy
	}
	return Sell
}

// DirectionOf maps a signed quantity to a direction; zero maps to Buy.
func DirectionOf(signed float64) Direction {
	if signed < 0 {
		return Sell
	}
	return Buy
}

// Offset 开平标志。
type Offset string

const (
	OffsetNone  Offset = "NONE"
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// Purpose distinguishes signal-driven orders from imbalance corrections.
type Purpose string

const (
	PurposeSignal     Purpose = "signal"
	PurposeCorrective Purpose = "corrective"
)

// Order holds the local view of one leg order.
type Order struct {
	ID        string // 网关返回的订单号
	ClientID  string
	Symbol    string
	Leg       int
	Direction Direction
	Offset    Offset
	Purpose   Purpose
	Price     float64
	Volume    float64
	Traded    float64
	Status    Status
	LastError string
	CreatedAt time.Time
}

// Remaining 未成交数量。
func (o Order) Remaining() float64 {
	if r := o.Volume - o.Traded; r > 0 {
		return r
	}
	return 0
}

// Settled 订单不会再有成交到达。FILLED 状态可能先于成交回报到达，
// 此时要等累计成交量补齐才算结束。
func (o Order) Settled() bool {
	if o.Status.IsLive() {
		return false
	}
	if o.Status == StatusFilled {
		return o.Traded >= o.Volume-volumeEpsilon
	}
	return true
}

// Request is what a Gateway receives for a new order.
type Request struct {
	ClientID  string
	Symbol    string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
}

// Update is an order-status event reported by the venue.
type Update struct {
	OrderID string
	Status  Status
	Reason  string
	Ts      time.Time
}

// IsLive reports whether the venue still considers the order working.
func (u Update) IsLive() bool { return u.Status.IsLive() }

// Trade 单笔成交回报。
type Trade struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Direction Direction
	Price     float64
	Volume    float64
	Ts        time.Time
}

// Signed returns the volume signed by direction.
func (t Trade) Signed() float64 { return t.Direction.Sign() * t.Volume }

// Gateway is the order-routing collaborator. SubmitOrder returns immediately;
// outcomes arrive later as Update and Trade events.
type Gateway interface {
	SubmitOrder(req Request) (string, error)
	OrderStatus(orderID string) (Update, error)
}
