package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/order"
	"spread-arb-go/spread"
	"spread-arb-go/strategy"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string                             `yaml:"env"`
	Log     logger.Config                      `yaml:"log"`
	Metrics MetricsConfig                      `yaml:"metrics"`
	Alerts  AlertConfig                        `yaml:"alerts"`
	Paper   PaperConfig                        `yaml:"paper"`
	Symbols map[string]order.SymbolConstraints `yaml:"symbols"`
	Spreads map[string]SpreadConfig            `yaml:"spreads"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`      // 为空则不启动 HTTP 服务
	Namespace string `yaml:"namespace"` // 指标前缀
}

type AlertConfig struct {
	ThrottleSeconds int  `yaml:"throttleSeconds"`
	Console         bool `yaml:"console"` // 额外输出到 stderr
}

// PaperConfig 模拟撮合参数
type PaperConfig struct {
	LatencyMs        int     `yaml:"latencyMs"`        // 回报延迟
	RejectRate       float64 `yaml:"rejectRate"`       // 拒单概率 [0,1]
	PartialFillRatio float64 `yaml:"partialFillRatio"` // 首笔成交占比 (0,1]；0 或 1 为一次全成
	Seed             int64   `yaml:"seed"`             // 随机种子，0 取当前时间
	SyncIntervalMs   int     `yaml:"syncIntervalMs"`   // 订单状态对账周期，0 为关闭
}

// SpreadConfig 单个价差实例的配置。legs 与 ticker 二选一。
type SpreadConfig struct {
	Strategy          string    `yaml:"strategy"` // spread_arbitrage | parity_monitor
	Ticker            string    `yaml:"ticker"`   // 例如 SPC_fu2001.SHFE&fu2005.SHFE
	Legs              []string  `yaml:"legs"`
	Coefficients      []float64 `yaml:"coefficients"`
	PricingMode       string    `yaml:"pricingMode"` // last | mid
	Offset            float64   `yaml:"offset"`      // 基差常数项，期权平价中为行权价
	FastWindow        int       `yaml:"fastWindow"`
	SlowWindow        int       `yaml:"slowWindow"`
	BarIntervalMs     *int      `yaml:"barIntervalMs"` // 缺省 60000，0 表示K线由外部提供
	TradeUnit         float64   `yaml:"tradeUnit"`
	Aggressiveness    string    `yaml:"aggressiveness"` // aggressive | passive
	RecheckIntervalMs int       `yaml:"recheckIntervalMs"`
	GateSignals       bool      `yaml:"gateSignals"`
}

const defaultBarIntervalMs = 60000

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse yaml: %v", spread.ErrConfiguration, err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides runtime fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("SPREAD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SPREAD_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, Validate(cfg)
}

func (c *AppConfig) applyDefaults() {
	def := logger.DefaultConfig()
	if c.Log.Level == "" {
		c.Log.Level = def.Level
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = def.Outputs
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Format
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = def.MaxSize
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = def.MaxBackups
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = def.MaxAge
	}
	if c.Alerts.ThrottleSeconds == 0 {
		c.Alerts.ThrottleSeconds = 60
	}
}

// SpreadNames 按名称排序，保证启动顺序稳定
func (c AppConfig) SpreadNames() []string {
	names := make([]string, 0, len(c.Spreads))
	for name := range c.Spreads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ThrottleInterval 告警节流间隔
func (c AlertConfig) ThrottleInterval() time.Duration {
	return time.Duration(c.ThrottleSeconds) * time.Second
}

// Kind 策略类型
func (s SpreadConfig) Kind() strategy.Kind {
	if s.Strategy == "" {
		return strategy.KindSpreadArbitrage
	}
	return strategy.Kind(s.Strategy)
}

// ResolveLegs 返回腿与系数：显式 legs 优先，否则解析 ticker；
// 没有给系数时两腿价差取 [1,-1]，期权平价取默认三腿系数。
func (s SpreadConfig) ResolveLegs() ([]string, []float64, error) {
	legs := s.Legs
	if len(legs) == 0 && s.Ticker != "" {
		_, parsed, err := spread.ParseTicker(s.Ticker)
		if err != nil {
			return nil, nil, err
		}
		legs = parsed
	}
	if len(legs) == 0 {
		return nil, nil, spread.ErrNoLegs
	}
	coefs := s.Coefficients
	if len(coefs) == 0 {
		switch {
		case s.Kind() == strategy.KindParityMonitor && len(legs) == len(strategy.ParityCoefficients):
			coefs = append([]float64(nil), strategy.ParityCoefficients...)
		default:
			def, ok := spread.DefaultCoefficients(len(legs))
			if !ok {
				return nil, nil, fmt.Errorf("%w: coefficients required for %d legs", spread.ErrConfiguration, len(legs))
			}
			coefs = def
		}
	}
	if len(coefs) != len(legs) {
		return nil, nil, fmt.Errorf("%w: %d legs, %d coefficients", spread.ErrLegCountMismatch, len(legs), len(coefs))
	}
	return legs, coefs, nil
}

// BarInterval K线周期，缺省一分钟
func (s SpreadConfig) BarInterval() time.Duration {
	if s.BarIntervalMs == nil {
		return defaultBarIntervalMs * time.Millisecond
	}
	return time.Duration(*s.BarIntervalMs) * time.Millisecond
}

// RecheckInterval 不平衡重检周期
func (s SpreadConfig) RecheckInterval() time.Duration {
	return time.Duration(s.RecheckIntervalMs) * time.Millisecond
}

// Tunables 运行中可调整的参数
func (s SpreadConfig) Tunables() (strategy.Tunables, error) {
	aggr, err := strategy.ParseAggressiveness(s.Aggressiveness)
	if err != nil {
		return strategy.Tunables{}, err
	}
	return strategy.Tunables{TradeUnit: s.TradeUnit, Aggressiveness: aggr, GateSignals: s.GateSignals}, nil
}

// Params 转换为策略参数
func (s SpreadConfig) Params(name string) (strategy.Params, error) {
	mode, err := spread.ParsePricingMode(s.PricingMode)
	if err != nil {
		return strategy.Params{}, err
	}
	tun, err := s.Tunables()
	if err != nil {
		return strategy.Params{}, err
	}
	return strategy.Params{
		Name:        name,
		PricingMode: mode,
		Offset:      s.Offset,
		FastWindow:  s.FastWindow,
		SlowWindow:  s.SlowWindow,
		BarInterval: s.BarInterval(),
		Tunables:    tun,
	}, nil
}
