package config

import (
	"errors"
	"fmt"
	"slices"

	"spread-arb-go/spread"
	"spread-arb-go/strategy"
)

// Validate ensures required fields are present. 所有错误都包装 spread.ErrConfiguration。
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return fmt.Errorf("%w: env is required", spread.ErrConfiguration)
	}
	if cfg.Alerts.ThrottleSeconds < 0 {
		return fmt.Errorf("%w: alerts.throttleSeconds must be >= 0", spread.ErrConfiguration)
	}
	if err := validatePaper(cfg.Paper); err != nil {
		return err
	}
	for sym, sc := range cfg.Symbols {
		if sc.TickSize < 0 || sc.StepSize < 0 {
			return fmt.Errorf("%w: symbol %s tickSize/stepSize must be >= 0", spread.ErrConfiguration, sym)
		}
		if sc.MinQty < 0 || sc.MaxQty < 0 || sc.MinNotional < 0 {
			return fmt.Errorf("%w: symbol %s qty bounds must be >= 0", spread.ErrConfiguration, sym)
		}
		if sc.MaxQty > 0 && sc.MinQty > sc.MaxQty {
			return fmt.Errorf("%w: symbol %s minQty > maxQty", spread.ErrConfiguration, sym)
		}
	}
	if len(cfg.Spreads) == 0 {
		return fmt.Errorf("%w: spreads config is required", spread.ErrConfiguration)
	}

	owner := make(map[string]string)
	for _, name := range cfg.SpreadNames() {
		sc := cfg.Spreads[name]
		if err := ValidateSpread(name, sc); err != nil {
			return err
		}
		if sc.Kind() != strategy.KindSpreadArbitrage {
			continue
		}
		// 同一合约的成交只能归属一个交易实例
		legs, _, _ := sc.ResolveLegs()
		for _, leg := range legs {
			if prev, ok := owner[leg]; ok {
				return fmt.Errorf("%w: leg %s used by both %s and %s", spread.ErrConfiguration, leg, prev, name)
			}
			owner[leg] = name
		}
	}
	return nil
}

// ValidateSpread 校验单个价差实例
func ValidateSpread(name string, sc SpreadConfig) error {
	wrap := func(err error) error { return fmt.Errorf("spread %s: %w", name, err) }

	kind := sc.Kind()
	if kind != strategy.KindSpreadArbitrage && kind != strategy.KindParityMonitor {
		return wrap(fmt.Errorf("%w: %s", strategy.ErrUnknownStrategy, sc.Strategy))
	}
	if len(sc.Legs) > 0 && sc.Ticker != "" {
		tickerName, tickerLegs, err := spread.ParseTicker(sc.Ticker)
		if err != nil {
			return wrap(err)
		}
		if !slices.Equal(tickerLegs, sc.Legs) {
			return wrap(fmt.Errorf("%w: legs disagree with ticker %s", spread.ErrConfiguration, tickerName))
		}
	}
	legs, coefs, err := sc.ResolveLegs()
	if err != nil {
		return wrap(err)
	}
	if _, err := spread.NewRegistry(legs, coefs); err != nil {
		return wrap(err)
	}
	params, err := sc.Params(name)
	if err != nil {
		return wrap(err)
	}
	if params.BarInterval < 0 {
		return wrap(fmt.Errorf("%w: barIntervalMs must be >= 0", spread.ErrConfiguration))
	}
	if sc.RecheckIntervalMs < 0 {
		return wrap(fmt.Errorf("%w: recheckIntervalMs must be >= 0", spread.ErrConfiguration))
	}

	switch kind {
	case strategy.KindSpreadArbitrage:
		if sc.TradeUnit <= 0 {
			return wrap(fmt.Errorf("%w: tradeUnit must be > 0", spread.ErrConfiguration))
		}
		if sc.FastWindow < 1 || sc.SlowWindow < 1 {
			return wrap(fmt.Errorf("%w: fastWindow/slowWindow must be >= 1", spread.ErrConfiguration))
		}
	case strategy.KindParityMonitor:
		if len(legs) != 3 {
			return wrap(fmt.Errorf("%w: parity monitor needs call, put and hedge legs", spread.ErrConfiguration))
		}
	}
	return nil
}

func validatePaper(p PaperConfig) error {
	var errs []error
	if p.LatencyMs < 0 {
		errs = append(errs, errors.New("paper.latencyMs must be >= 0"))
	}
	if p.RejectRate < 0 || p.RejectRate > 1 {
		errs = append(errs, errors.New("paper.rejectRate must be within [0, 1]"))
	}
	if p.PartialFillRatio < 0 || p.PartialFillRatio > 1 {
		errs = append(errs, errors.New("paper.partialFillRatio must be within [0, 1]"))
	}
	if p.SyncIntervalMs < 0 {
		errs = append(errs, errors.New("paper.syncIntervalMs must be >= 0"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", spread.ErrConfiguration, errors.Join(errs...))
}
