package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/order"
)

// Sink 接收模拟撮合产生的回报，engine.Engine 实现该接口
type Sink interface {
	OnOrderStatus(ctx context.Context, u order.Update) error
	OnTrade(ctx context.Context, tr order.Trade) error
}

// PaperConfig 模拟撮合参数
type PaperConfig struct {
	Latency          time.Duration // 每笔订单回报前的延迟
	RejectRate       float64       // 拒单概率
	PartialFillRatio float64       // 首笔成交占比，(0,1) 之间时拆成两笔成交
	Seed             int64         // 0 表示使用当前时间
}

type paperOrder struct {
	id     string
	req    order.Request
	status order.Status
	traded float64
	reason string
}

// PaperGateway 内存撮合：下单立即返回编号，状态与成交由独立 goroutine 按提交顺序异步投递。
// 成交价格等于委托价格。
type PaperGateway struct {
	cfg    PaperConfig
	sink   Sink
	logger *logger.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	orders  map[string]*paperOrder
	pending []string
	now     func() time.Time
	newID   func() string

	notify   chan struct{}
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
}

// NewPaperGateway 创建模拟网关，sink 可在 Start 之前通过 SetSink 设置
func NewPaperGateway(cfg PaperConfig, sink Sink, log *logger.Logger) *PaperGateway {
	if log == nil {
		log = logger.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperGateway{
		cfg:      cfg,
		sink:     sink,
		logger:   log.With(zap.String("component", "paper_gateway")),
		rng:      rand.New(rand.NewSource(seed)),
		orders:   make(map[string]*paperOrder),
		now:      time.Now,
		newID:    uuid.NewString,
		notify:   make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// SetSink 设置回报接收方
func (g *PaperGateway) SetSink(sink Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = sink
}

// SubmitOrder 实现 order.Gateway，只做格式校验，不阻塞
func (g *PaperGateway) SubmitOrder(req order.Request) (string, error) {
	if req.Symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", order.ErrRejected)
	}
	if req.Volume <= 0 || math.IsNaN(req.Volume) {
		return "", fmt.Errorf("%w: volume %v", order.ErrRejected, req.Volume)
	}
	if req.Price <= 0 || math.IsNaN(req.Price) {
		return "", fmt.Errorf("%w: price %v", order.ErrRejected, req.Price)
	}

	g.mu.Lock()
	id := g.newID()
	g.orders[id] = &paperOrder{id: id, req: req, status: order.StatusNew}
	g.pending = append(g.pending, id)
	g.mu.Unlock()

	select {
	case g.notify <- struct{}{}:
	default:
	}
	return id, nil
}

// OrderStatus 实现 order.Gateway
func (g *PaperGateway) OrderStatus(orderID string) (order.Update, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return order.Update{}, fmt.Errorf("%w: %s", order.ErrUnknownOrder, orderID)
	}
	return order.Update{OrderID: o.id, Status: o.status, Reason: o.reason, Ts: g.now()}, nil
}

// Start 启动投递 goroutine
func (g *PaperGateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}
	if g.sink == nil {
		return errors.New("paper gateway: sink is required")
	}
	g.started = true
	go g.run(ctx)
	return nil
}

// Stop 停止投递，未投递的回报被丢弃
func (g *PaperGateway) Stop() error {
	g.stopOnce.Do(func() {
		close(g.stopChan)
		g.mu.Lock()
		started := g.started
		g.mu.Unlock()
		if started {
			<-g.doneChan
		}
	})
	return nil
}

// Health 实现 container.Lifecycle
func (g *PaperGateway) Health() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return errors.New("paper gateway not started")
	}
	return nil
}

// Pending 尚未投递的订单数
func (g *PaperGateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *PaperGateway) run(ctx context.Context) {
	defer close(g.doneChan)
	for {
		id, ok := g.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-g.stopChan:
				return
			case <-g.notify:
				continue
			}
		}
		if g.cfg.Latency > 0 {
			select {
			case <-ctx.Done():
				return
			case <-g.stopChan:
				return
			case <-time.After(g.cfg.Latency):
			}
		}
		if err := g.execute(ctx, id); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			g.logger.Warn("Paper delivery failed", zap.String("order_id", id), zap.Error(err))
		}
	}
}

func (g *PaperGateway) next() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return "", false
	}
	id := g.pending[0]
	g.pending = g.pending[1:]
	return id, true
}

// execute 模拟一笔订单的完整回报序列：拒单，或 ACK 后一笔或两笔成交
func (g *PaperGateway) execute(ctx context.Context, id string) error {
	g.mu.Lock()
	o := g.orders[id]
	sink := g.sink
	reject := g.cfg.RejectRate > 0 && g.rng.Float64() < g.cfg.RejectRate
	req := o.req
	g.mu.Unlock()

	if reject {
		g.setStatus(o, order.StatusRejected, "paper reject")
		return sink.OnOrderStatus(ctx, order.Update{OrderID: id, Status: order.StatusRejected, Reason: "paper reject", Ts: g.now()})
	}

	g.setStatus(o, order.StatusAck, "")
	if err := sink.OnOrderStatus(ctx, order.Update{OrderID: id, Status: order.StatusAck, Ts: g.now()}); err != nil {
		return err
	}

	volumes := []float64{req.Volume}
	if r := g.cfg.PartialFillRatio; r > 0 && r < 1 {
		first := req.Volume * r
		volumes = []float64{first, req.Volume - first}
	}
	for _, v := range volumes {
		g.mu.Lock()
		o.traded += v
		if o.traded >= req.Volume-1e-9 {
			o.status = order.StatusFilled
		} else {
			o.status = order.StatusPartial
		}
		tradeID := "T-" + g.newID()
		g.mu.Unlock()

		tr := order.Trade{
			TradeID:   tradeID,
			OrderID:   id,
			Symbol:    req.Symbol,
			Direction: req.Direction,
			Price:     req.Price,
			Volume:    v,
			Ts:        g.now(),
		}
		if err := sink.OnTrade(ctx, tr); err != nil {
			return err
		}
		g.logger.LogTrade("paper_fill",
			zap.String("order_id", id),
			zap.String("symbol", req.Symbol),
			zap.String("direction", string(req.Direction)),
			zap.Float64("price", req.Price),
			zap.Float64("volume", v))
	}
	return nil
}

func (g *PaperGateway) setStatus(o *paperOrder, s order.Status, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o.status = s
	o.reason = reason
}
