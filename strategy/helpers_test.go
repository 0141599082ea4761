package strategy

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/spread"
)

type sentOrder struct {
	id  string
	req order.Request
}

type fakeGateway struct {
	sent   []sentOrder
	reject bool
	seq    int
}

func (g *fakeGateway) SubmitOrder(req order.Request) (string, error) {
	if g.reject {
		return "", errors.New("venue closed")
	}
	g.seq++
	id := fmt.Sprintf("o-%d", g.seq)
	g.sent = append(g.sent, sentOrder{id: id, req: req})
	return id, nil
}

func (g *fakeGateway) OrderStatus(id string) (order.Update, error) {
	return order.Update{OrderID: id, Status: order.StatusAck}, nil
}

func (g *fakeGateway) requests() []order.Request {
	out := make([]order.Request, len(g.sent))
	for i, s := range g.sent {
		out[i] = s.req
	}
	return out
}

var legSymbols = []string{"A", "B", "C"}

// primedRegistry 构造注册表，并给每条腿一个 bid=99 ask=101 last=100 的行情
func primedRegistry(t *testing.T, coefs ...float64) *spread.Registry {
	t.Helper()
	reg, err := spread.NewRegistry(legSymbols[:len(coefs)], coefs)
	require.NoError(t, err)
	syn := spread.NewSynthesizer(reg, spread.SynthesizerConfig{Name: "T"})
	for _, sym := range reg.Symbols() {
		_, _, err := syn.OnLegTick(market.Tick{Symbol: sym, Ts: time.Now(), LastPrice: 100, BidPrice: 99, AskPrice: 101})
		require.NoError(t, err)
	}
	return reg
}

type controllerFixture struct {
	ctrl   *Controller
	gw     *fakeGateway
	alerts *alert.MockChannel
	trades int
}

func newControllerFixture(t *testing.T, tun Tunables, coefs ...float64) *controllerFixture {
	t.Helper()
	gw := &fakeGateway{}
	mock := alert.NewMockChannel("mock")
	ctrl, err := NewController("T", primedRegistry(t, coefs...), tun, Deps{
		Gateway: gw,
		Alerts:  alert.NewManager([]alert.Channel{mock}, 0),
	})
	require.NoError(t, err)
	return &controllerFixture{ctrl: ctrl, gw: gw, alerts: mock}
}

// fill 为第 i 笔已发送订单回报成交
func (f *controllerFixture) fill(t *testing.T, i int, volume float64) {
	t.Helper()
	s := f.gw.sent[i]
	f.trades++
	require.NoError(t, f.ctrl.OnTrade(order.Trade{
		TradeID:   fmt.Sprintf("t-%d", f.trades),
		OrderID:   s.id,
		Symbol:    s.req.Symbol,
		Direction: s.req.Direction,
		Price:     s.req.Price,
		Volume:    volume,
	}))
}

func (f *controllerFixture) fillAll(t *testing.T, from int) {
	t.Helper()
	for i := from; i < len(f.gw.sent); i++ {
		f.fill(t, i, f.gw.sent[i].req.Volume)
	}
}

func req(symbol string, dir order.Direction, offset order.Offset, price, volume float64) order.Request {
	return order.Request{Symbol: symbol, Direction: dir, Offset: offset, Price: price, Volume: volume}
}

// strip 去掉测试不关心的 ClientID
func strip(reqs []order.Request) []order.Request {
	out := make([]order.Request, len(reqs))
	for i, r := range reqs {
		r.ClientID = ""
		out[i] = r
	}
	return out
}
