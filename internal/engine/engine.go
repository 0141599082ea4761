package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/spread"
	"spread-arb-go/strategy"
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StateStopped 停止状态
	StateStopped
	// StateHalted 不变量被破坏，丢弃后续事件，等待人工处理
	StateHalted
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrNotRunning 引擎未启动或已停止
	ErrNotRunning = errors.New("engine not running")
	// ErrStopTimeout 事件循环未在 StopTimeout 内退出
	ErrStopTimeout = errors.New("timeout waiting for event loop to exit")
	// ErrUnsupported 策略不支持该操作
	ErrUnsupported = errors.New("operation not supported by strategy")
)

// StateObserver 上报引擎状态，monitor.SpreadMetrics 实现该接口
type StateObserver interface {
	EngineState(code int)
}

// Config 引擎配置
type Config struct {
	Spread          string        // 价差实例名
	Legs            []string      // 腿合约
	Coefficients    []float64     // 腿系数
	QueueSize       int           // 事件队列长度
	RecheckInterval time.Duration // 不平衡定时重检间隔，0 为关闭
	StopTimeout     time.Duration // 等待事件循环退出的时间
}

// Components 引擎依赖组件
type Components struct {
	Strategy strategy.Strategy
	Logger   *logger.Logger
	Alerts   alert.Sender
	Metrics  StateObserver
}

type eventKind int

const (
	evTick eventKind = iota
	evBar
	evStatus
	evTrade
	evCall
)

type event struct {
	kind   eventKind
	tick   market.Tick
	bar    market.Bar
	update order.Update
	trade  order.Trade
	call   func(strategy.Strategy) error
	result chan error
}

// Engine 单个价差实例的有序事件循环。所有策略回调都在同一个 goroutine 中执行，
// 入队在队列满时阻塞而不是丢弃。
type Engine struct {
	config   Config
	strategy strategy.Strategy
	logger   *logger.Logger
	alerts   alert.Sender
	metrics  StateObserver

	events chan event

	// 状态
	state EngineState
	mu    sync.RWMutex

	// 控制通道
	stopChan chan struct{}
	doneChan chan struct{}

	// 统计信息
	stats   Statistics
	statsMu sync.RWMutex
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime     time.Time
	TotalTicks    int64
	TotalBars     int64
	TotalStatuses int64
	TotalTrades   int64
	TotalRechecks int64
	DataErrors    int64
	TotalErrors   int64
	Dropped       int64 // 停机后丢弃的事件
	LastEventTime time.Time
	HaltReason    string
}

// New 创建引擎并以腿与系数初始化策略
func New(cfg Config, components Components) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if components.Strategy == nil {
		return nil, fmt.Errorf("invalid components: %w: strategy is required", spread.ErrConfiguration)
	}
	if components.Logger == nil {
		components.Logger = logger.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	log := components.Logger.With(zap.String("spread", cfg.Spread))
	if err := components.Strategy.OnInit(cfg.Legs, cfg.Coefficients); err != nil {
		return nil, fmt.Errorf("init strategy %s: %w", cfg.Spread, err)
	}

	e := &Engine{
		config:   cfg,
		strategy: components.Strategy,
		logger:   log,
		alerts:   components.Alerts,
		metrics:  components.Metrics,
		events:   make(chan event, cfg.QueueSize),
		state:    StateIdle,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	e.reportState(StateIdle)
	return e, nil
}

// Start 启动引擎
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	// 如果从 StateStopped 复启，需要重建通道
	if e.state == StateStopped {
		e.stopChan = make(chan struct{})
		e.doneChan = make(chan struct{})
	}
	if err := e.strategy.OnStart(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("start strategy %s: %w", e.config.Spread, err)
	}
	e.state = StateRunning
	stop, done := e.stopChan, e.doneChan
	e.mu.Unlock()

	e.statsMu.Lock()
	e.stats = Statistics{StartTime: time.Now()}
	e.statsMu.Unlock()

	e.reportState(StateRunning)
	e.logger.Info("Spread engine starting",
		zap.Strings("legs", e.config.Legs),
		zap.Float64s("coefficients", e.config.Coefficients),
		zap.Duration("recheck_interval", e.config.RecheckInterval))

	go e.run(ctx, stop, done)
	return nil
}

// Stop 停止事件循环并调用策略 OnStop。超时返回 ErrStopTimeout，此时策略未被停止。
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning && e.state != StateHalted {
		state := e.state
		e.mu.Unlock()
		if state == StateStopped {
			return nil // 幂等
		}
		return fmt.Errorf("engine not running (state: %s)", state)
	}
	stop, done := e.stopChan, e.doneChan
	e.mu.Unlock()

	e.logger.Info("Spread engine stopping...")
	select {
	case <-stop:
	default:
		close(stop)
	}

	select {
	case <-done:
	case <-time.After(e.config.StopTimeout):
		// 循环仍在处理事件，不能触碰策略状态；可稍后再次调用 Stop
		e.logger.Warn("Timeout waiting for engine to stop", zap.Duration("timeout", e.config.StopTimeout))
		return fmt.Errorf("%w after %s", ErrStopTimeout, e.config.StopTimeout)
	}

	// 循环已退出，剩余事件不再处理
	dropped := 0
drain:
	for {
		select {
		case ev := <-e.events:
			dropped++
			if ev.result != nil {
				ev.result <- ErrNotRunning
			}
		default:
			break drain
		}
	}
	if dropped > 0 {
		e.logger.Warn("Pending events dropped on stop", zap.Int("count", dropped))
		e.addStat(func(s *Statistics) { s.Dropped += int64(dropped) })
	}

	if err := e.strategy.OnStop(); err != nil {
		e.logger.Error("Failed to stop strategy", zap.Error(err))
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.reportState(StateStopped)
	e.logger.Info("Spread engine stopped")
	return nil
}

// OnLegTick 入队腿行情
func (e *Engine) OnLegTick(ctx context.Context, t market.Tick) error {
	return e.enqueue(ctx, event{kind: evTick, tick: t})
}

// OnBar 入队外部K线
func (e *Engine) OnBar(ctx context.Context, b market.Bar) error {
	return e.enqueue(ctx, event{kind: evBar, bar: b})
}

// OnOrderStatus 入队订单状态回报，满足 order.UpdateSink
func (e *Engine) OnOrderStatus(ctx context.Context, u order.Update) error {
	return e.enqueue(ctx, event{kind: evStatus, update: u})
}

// OnTrade 入队成交回报
func (e *Engine) OnTrade(ctx context.Context, tr order.Trade) error {
	return e.enqueue(ctx, event{kind: evTrade, trade: tr})
}

// Inspect 在事件循环中执行 fn 并等待其返回，用于跨 goroutine 读取策略状态
func (e *Engine) Inspect(ctx context.Context, fn func(strategy.Strategy) error) error {
	ev := event{kind: evCall, call: fn, result: make(chan error, 1)}
	if err := e.enqueue(ctx, ev); err != nil {
		return err
	}
	e.mu.RLock()
	done := e.doneChan
	e.mu.RUnlock()
	select {
	case err := <-ev.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		// 循环退出前可能已经处理
		select {
		case err := <-ev.result:
			return err
		default:
			return ErrNotRunning
		}
	}
}

// UpdateParams 在事件循环中调整运行时参数
func (e *Engine) UpdateParams(ctx context.Context, t strategy.Tunables) error {
	return e.Inspect(ctx, func(s strategy.Strategy) error {
		tun, ok := s.(strategy.Tunable)
		if !ok {
			return ErrUnsupported
		}
		return tun.Tune(t)
	})
}

// LiveOrders 活跃订单快照，满足 order.LiveOrderSource
func (e *Engine) LiveOrders(ctx context.Context) (map[string]order.Status, error) {
	var out map[string]order.Status
	err := e.Inspect(ctx, func(s strategy.Strategy) error {
		lister, ok := s.(strategy.LiveOrderLister)
		if !ok {
			return ErrUnsupported
		}
		out = lister.LiveOrders()
		return nil
	})
	return out, err
}

// Summary 策略状态快照
func (e *Engine) Summary(ctx context.Context) (strategy.Summary, error) {
	var out strategy.Summary
	err := e.Inspect(ctx, func(s strategy.Strategy) error {
		sum, ok := s.(strategy.Summarizer)
		if !ok {
			return ErrUnsupported
		}
		out = sum.Summary()
		return nil
	})
	return out, err
}

func (e *Engine) enqueue(ctx context.Context, ev event) error {
	e.mu.RLock()
	state, done := e.state, e.doneChan
	e.mu.RUnlock()
	if state != StateRunning && state != StateHalted {
		return ErrNotRunning
	}
	select {
	case <-done:
		return ErrNotRunning
	default:
	}
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrNotRunning
	}
}

// run 主事件循环
func (e *Engine) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	var recheck <-chan time.Time
	if _, ok := e.strategy.(strategy.Rechecker); ok && e.config.RecheckInterval > 0 {
		ticker := time.NewTicker(e.config.RecheckInterval)
		defer ticker.Stop()
		recheck = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping engine loop")
			return
		case <-stop:
			e.logger.Info("Stop signal received")
			return
		case ev := <-e.events:
			e.handle(ev)
		case <-recheck:
			if e.GetState() != StateRunning {
				continue
			}
			e.addStat(func(s *Statistics) { s.TotalRechecks++ })
			e.classify(e.strategy.(strategy.Rechecker).Recheck(), "recheck")
		}
	}
}

func (e *Engine) handle(ev event) {
	if ev.kind == evCall {
		ev.result <- ev.call(e.strategy)
		return
	}
	if e.GetState() == StateHalted {
		e.addStat(func(s *Statistics) { s.Dropped++ })
		return
	}

	var err error
	var source string
	now := time.Now()
	switch ev.kind {
	case evTick:
		e.addStat(func(s *Statistics) { s.TotalTicks++; s.LastEventTime = now })
		err, source = e.strategy.OnLegTick(ev.tick), "tick"
	case evBar:
		e.addStat(func(s *Statistics) { s.TotalBars++; s.LastEventTime = now })
		err, source = e.strategy.OnBar(ev.bar), "bar"
	case evStatus:
		e.addStat(func(s *Statistics) { s.TotalStatuses++; s.LastEventTime = now })
		err, source = e.strategy.OnOrderStatus(ev.update), "order_status"
	case evTrade:
		e.addStat(func(s *Statistics) { s.TotalTrades++; s.LastEventTime = now })
		err, source = e.strategy.OnTrade(ev.trade), "trade"
	}
	e.classify(err, source)
}

// classify 数据错误记录后丢弃；配置错误与不变量破坏使引擎停机
func (e *Engine) classify(err error, source string) {
	switch {
	case err == nil:
	case spread.IsFatal(err):
		e.halt(err, source)
	case errors.Is(err, spread.ErrData):
		e.addStat(func(s *Statistics) { s.DataErrors++ })
		e.logger.Warn("Event dropped", zap.String("source", source), zap.Error(err))
	default:
		e.addStat(func(s *Statistics) { s.TotalErrors++ })
		e.logger.Warn("Event handling failed", zap.String("source", source), zap.Error(err))
	}
}

func (e *Engine) halt(err error, source string) {
	e.mu.Lock()
	e.state = StateHalted
	e.mu.Unlock()
	e.addStat(func(s *Statistics) { s.TotalErrors++; s.HaltReason = err.Error() })
	e.reportState(StateHalted)

	e.logger.LogError(err, zap.String("source", source), zap.String("action", "halt"))
	if e.alerts != nil {
		_ = e.alerts.SendAlert(alert.Alert{
			Level:   alert.LevelCritical,
			Spread:  e.config.Spread,
			Message: "spread engine halted",
			Fields:  map[string]interface{}{"source": source, "error": err.Error()},
		})
	}
}

func (e *Engine) reportState(s EngineState) {
	if e.metrics != nil {
		e.metrics.EngineState(int(s))
	}
}

func (e *Engine) addStat(fn func(*Statistics)) {
	e.statsMu.Lock()
	fn(&e.stats)
	e.statsMu.Unlock()
}

// Name 价差实例名
func (e *Engine) Name() string { return e.config.Spread }

// Legs 腿合约
func (e *Engine) Legs() []string { return append([]string(nil), e.config.Legs...) }

// GetState 获取引擎状态
func (e *Engine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *Engine) GetStatistics() Statistics {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.stats
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.Spread == "" {
		return fmt.Errorf("%w: spread name is required", spread.ErrConfiguration)
	}
	if len(cfg.Legs) != len(cfg.Coefficients) && len(cfg.Coefficients) != 0 {
		return fmt.Errorf("%w: %s: %d legs, %d coefficients", spread.ErrLegCountMismatch, cfg.Spread, len(cfg.Legs), len(cfg.Coefficients))
	}
	if cfg.RecheckInterval < 0 {
		return fmt.Errorf("%w: recheck interval must be >= 0", spread.ErrConfiguration)
	}
	return nil
}
