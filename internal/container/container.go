package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"spread-arb-go/config"
	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/infrastructure/monitor"
	"spread-arb-go/internal/engine"
	"spread-arb-go/market"
	"spread-arb-go/order"
	"spread-arb-go/sim"
	"spread-arb-go/spread"
	"spread-arb-go/strategy"
)

// Options 容器可选项
type Options struct {
	ConfigPath string         // 非空时启用配置热更新
	Logger     *logger.Logger // 测试注入，nil 时按配置创建
	NoMetrics  bool           // 不启动指标 HTTP 服务
	NoWatch    bool           // 不监听配置文件
}

// spreadUnit 单个价差实例的运行组件
type spreadUnit struct {
	name    string
	cfg     config.SpreadConfig
	legs    []string
	coefs   []float64
	engine  *engine.Engine
	gateway *sim.PaperGateway
	syncer  *order.Syncer
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg  config.AppConfig
	opts Options

	// 基础设施
	logger    *logger.Logger
	ownLogger bool
	monitor   *monitor.Monitor
	alerts    *alert.Manager

	// 价差实例
	units  []*spreadUnit
	byName map[string]*spreadUnit
	routes map[string][]*engine.Engine // 腿合约 → 订阅该腿的引擎

	metricsServer *httpServerComponent
	watcher       *config.Watcher

	// 生命周期管理
	lifecycle *LifecycleManager
	mu        sync.Mutex
}

// New 加载配置文件并创建容器
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewFromConfig(cfg, Options{ConfigPath: configPath}), nil
}

// NewFromConfig 使用已加载的配置创建容器
func NewFromConfig(cfg config.AppConfig, opts Options) *Container {
	return &Container{
		cfg:       cfg,
		opts:      opts,
		byName:    make(map[string]*spreadUnit),
		routes:    make(map[string][]*engine.Engine),
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	for _, name := range c.cfg.SpreadNames() {
		if err := c.buildSpread(name, c.cfg.Spreads[name]); err != nil {
			return fmt.Errorf("build spread %s failed: %w", name, err)
		}
	}
	if err := c.buildWatcher(); err != nil {
		return fmt.Errorf("build watcher failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.Int("spreads", len(c.units)),
		zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	if c.opts.Logger != nil {
		c.logger = c.opts.Logger
	} else {
		var err error
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
		c.ownLogger = true
	}
	c.logger = c.logger.With(zap.String("env", c.cfg.Env))

	monitorCfg := monitor.DefaultConfig()
	if c.cfg.Metrics.Namespace != "" {
		monitorCfg.Namespace = c.cfg.Metrics.Namespace
	}
	c.monitor = monitor.New(monitorCfg)

	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Logger)}
	if c.cfg.Alerts.Console {
		channels = append(channels, alert.NewConsoleChannel("console", os.Stderr))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alerts.ThrottleInterval())

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildSpread(name string, sc config.SpreadConfig) error {
	legs, coefs, err := sc.ResolveLegs()
	if err != nil {
		return err
	}
	params, err := sc.Params(name)
	if err != nil {
		return err
	}

	log := c.logger.With(zap.String("spread", name))
	metrics := c.monitor.ForSpread(name)
	paper := sim.NewPaperGateway(sim.PaperConfig{
		Latency:          time.Duration(c.cfg.Paper.LatencyMs) * time.Millisecond,
		RejectRate:       c.cfg.Paper.RejectRate,
		PartialFillRatio: c.cfg.Paper.PartialFillRatio,
		Seed:             c.cfg.Paper.Seed,
	}, nil, log)

	strat, err := strategy.New(sc.Kind(), params, strategy.Deps{
		Gateway:     paper,
		Logger:      log,
		Observer:    metrics,
		Alerts:      c.alerts,
		Constraints: c.cfg.Symbols,
	})
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Config{
		Spread:          name,
		Legs:            legs,
		Coefficients:    coefs,
		RecheckInterval: sc.RecheckInterval(),
	}, engine.Components{
		Strategy: strat,
		Logger:   c.logger,
		Alerts:   c.alerts,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}
	paper.SetSink(eng)

	unit := &spreadUnit{name: name, cfg: sc, legs: legs, coefs: coefs, engine: eng, gateway: paper}
	if sc.Kind() == strategy.KindSpreadArbitrage && c.cfg.Paper.SyncIntervalMs > 0 {
		unit.syncer = order.NewSyncer(paper, eng, eng, order.SyncerConfig{
			Interval: time.Duration(c.cfg.Paper.SyncIntervalMs) * time.Millisecond,
		})
	}

	c.units = append(c.units, unit)
	c.byName[name] = unit
	for _, leg := range legs {
		c.routes[leg] = append(c.routes[leg], eng)
	}
	return nil
}

func (c *Container) buildWatcher() error {
	if c.opts.NoWatch || c.opts.ConfigPath == "" {
		return nil
	}
	w, err := config.NewWatcher(c.opts.ConfigPath, config.WatcherConfig{Cooldown: time.Second}, c.logger, func(cfg config.AppConfig) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.ApplyConfig(ctx, cfg); err != nil {
			c.logger.Warn("Config change partially applied", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.watcher = w
	return nil
}

// registerLifecycleComponents 启动顺序：引擎、模拟网关、对账、配置监听、指标服务
func (c *Container) registerLifecycleComponents() {
	for _, u := range c.units {
		eng := u.engine
		c.lifecycle.Register(funcComponent{
			name:  "engine:" + u.name,
			start: eng.Start,
			stop:  eng.Stop,
			health: func() error {
				if s := eng.GetState(); s != engine.StateRunning {
					return fmt.Errorf("engine %s is %s", eng.Name(), s)
				}
				return nil
			},
		})
	}
	for _, u := range c.units {
		c.lifecycle.Register(funcComponent{
			name:   "paper:" + u.name,
			start:  u.gateway.Start,
			stop:   u.gateway.Stop,
			health: u.gateway.Health,
		})
	}
	for _, u := range c.units {
		if u.syncer == nil {
			continue
		}
		c.lifecycle.Register(funcComponent{name: "syncer:" + u.name, start: u.syncer.Start, stop: u.syncer.Stop})
	}
	if c.watcher != nil {
		c.lifecycle.Register(funcComponent{name: "config_watcher", start: c.watcher.Start, stop: c.watcher.Stop})
	}
	if !c.opts.NoMetrics && c.cfg.Metrics.Addr != "" {
		c.metricsServer = &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.metricsServer)
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, zap.String("action", "stop"))
	}

	// 停止后汇总各实例的最终持仓
	for _, u := range c.units {
		stats := u.engine.GetStatistics()
		c.logger.Info("spread final statistics",
			zap.String("spread", u.name),
			zap.String("state", u.engine.GetState().String()),
			zap.Int64("ticks", stats.TotalTicks),
			zap.Int64("trades", stats.TotalTrades),
			zap.Int64("data_errors", stats.DataErrors),
			zap.String("halt_reason", stats.HaltReason))
	}

	if c.ownLogger {
		_ = c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Dispatch 把腿行情送往所有包含该腿的价差实例
func (c *Container) Dispatch(ctx context.Context, t market.Tick) error {
	engines, ok := c.routes[t.Symbol]
	if !ok {
		return fmt.Errorf("%w: %s", spread.ErrUnknownLeg, t.Symbol)
	}
	var errs []error
	for _, eng := range engines {
		if err := eng.OnLegTick(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Symbols 所有已订阅的腿合约
func (c *Container) Symbols() []string {
	out := make([]string, 0, len(c.routes))
	for sym := range c.routes {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Summaries 各价差实例的状态快照，按名称排序
func (c *Container) Summaries(ctx context.Context) ([]strategy.Summary, error) {
	out := make([]strategy.Summary, 0, len(c.units))
	var errs []error
	for _, u := range c.units {
		s, err := u.engine.Summary(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.name, err))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}

// WaitIdle 等待模拟网关投递完毕且所有引擎处理完已入队事件，用于回放结束后取快照
func (c *Container) WaitIdle(ctx context.Context) error {
	for {
		pending := 0
		for _, u := range c.units {
			pending += u.gateway.Pending()
		}
		for _, u := range c.units {
			if u.engine.GetState() == engine.StateHalted {
				continue
			}
			if err := u.engine.Inspect(ctx, func(s strategy.Strategy) error {
				if l, ok := s.(strategy.LiveOrderLister); ok {
					pending += len(l.LiveOrders())
				}
				return nil
			}); err != nil {
				return err
			}
		}
		if pending == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Engine 按名称取价差引擎
func (c *Container) Engine(name string) (*engine.Engine, bool) {
	u, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return u.engine, true
}

// Monitor 指标注册表
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

// MetricsAddr 指标服务实际监听地址
func (c *Container) MetricsAddr() string {
	if c.metricsServer == nil {
		return ""
	}
	return c.metricsServer.Addr()
}

// ApplyConfig 把新配置中的可调参数应用到运行中的引擎。
// 腿、系数或策略类型的变化需要重启，记录告警后忽略；新增或删除的实例同样忽略。
func (c *Container) ApplyConfig(ctx context.Context, cfg config.AppConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, name := range cfg.SpreadNames() {
		next := cfg.Spreads[name]
		u, ok := c.byName[name]
		if !ok {
			c.logger.Warn("New spread in config ignored until restart", zap.String("spread", name))
			continue
		}
		legs, coefs, err := next.ResolveLegs()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if next.Kind() != u.cfg.Kind() || !slices.Equal(legs, u.legs) || !slices.Equal(coefs, u.coefs) {
			c.logger.Warn("Leg or coefficient change rejected, restart required",
				zap.String("spread", name),
				zap.Strings("legs", legs),
				zap.Float64s("coefficients", coefs))
			errs = append(errs, fmt.Errorf("%w: %s: legs and coefficients are fixed while running", spread.ErrConfiguration, name))
			continue
		}
		if next.Kind() != strategy.KindSpreadArbitrage {
			continue
		}
		tun, err := next.Tunables()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := u.engine.UpdateParams(ctx, tun); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		u.cfg = next
		c.logger.Info("Tunables applied",
			zap.String("spread", name),
			zap.Float64("trade_unit", tun.TradeUnit),
			zap.String("aggressiveness", tun.Aggressiveness.String()),
			zap.Bool("gate_signals", tun.GateSignals))
	}
	for name := range c.byName {
		if _, ok := cfg.Spreads[name]; !ok {
			c.logger.Warn("Spread removed from config keeps running until restart", zap.String("spread", name))
		}
	}
	return errors.Join(errs...)
}
