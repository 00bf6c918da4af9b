package config

import (
	"fmt"
	"strings"
	"time"

	"fundledger/internal/money"
	"fundledger/internal/pkg/symbol"

	"github.com/shopspring/decimal"
)

var stageOrder = map[string]int{
	"ts_sync":              0,
	"ability":              1,
	"dividend_liquidation": 2,
	"dividend_finalize":    3,
	"tax_liquidation":      4,
}

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Quote.validate(); err != nil {
		return err
	}
	if err := c.CorpAction.validate(); err != nil {
		return err
	}
	if err := c.Checkpoint.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	return c.Reconcile.validate()
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug|info|warn|error, got %q", a.LogLevel)
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return fmt.Errorf("app.timezone %q: %w", a.Timezone, err)
	}
	if !money.ValidCurrency(a.DefaultCurrency) {
		return fmt.Errorf("app.default_currency %q is not an ISO currency code", a.DefaultCurrency)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or memory, got %q", s.Driver)
	}
	return nil
}

func (q *QuoteConfig) validate() error {
	switch q.Source {
	case "static":
	case "http":
		if q.HTTP.BaseURL == "" {
			return fmt.Errorf("quote.http.base_url is required when quote.source=http")
		}
		if strings.TrimSpace(q.PricePath) == "" {
			return fmt.Errorf("quote.price_path cannot be empty")
		}
	default:
		return fmt.Errorf("quote.source must be static or http, got %q", q.Source)
	}
	return q.HTTP.validate("quote.http")
}

func (c *CorpActionConfig) validate() error {
	switch c.Source {
	case "store":
	case "http":
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("corp_action.http.base_url is required when corp_action.source=http")
		}
	default:
		return fmt.Errorf("corp_action.source must be store or http, got %q", c.Source)
	}
	return c.HTTP.validate("corp_action.http")
}

func (h *HTTPSourceConfig) validate(prefix string) error {
	if h.TimeoutSeconds < 0 || h.CacheTTLSeconds < 0 || h.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("%s durations must be >= 0", prefix)
	}
	if h.RatePerSecond < 0 || h.Burst < 0 {
		return fmt.Errorf("%s rate limits must be >= 0", prefix)
	}
	if _, ok := symbol.For(h.SymbolFormat); !ok {
		return fmt.Errorf("%s.symbol_format must be plain, suffix or prefix, got %q", prefix, h.SymbolFormat)
	}
	return nil
}

func (c *CheckpointConfig) validate() error {
	switch c.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("checkpoint.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("checkpoint.driver must be memory or sqlite, got %q", c.Driver)
	}
	if c.PollIntervalMillis <= 0 {
		return fmt.Errorf("checkpoint.poll_interval_ms must be > 0")
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	runAt, err := ParseClock(s.RunAt)
	if err != nil {
		return fmt.Errorf("scheduler.run_at: %w", err)
	}
	deadline, err := ParseClock(s.Deadline)
	if err != nil {
		return fmt.Errorf("scheduler.deadline: %w", err)
	}
	if deadline <= runAt {
		return fmt.Errorf("scheduler.deadline %s must be after run_at %s", s.Deadline, s.RunAt)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	return nil
}

func (p *PipelineConfig) validate() error {
	last := -1
	seen := make(map[string]bool, len(p.Stages))
	for _, st := range p.Stages {
		order, ok := stageOrder[st.Name]
		if !ok {
			return fmt.Errorf("pipeline.stages: unknown stage %q", st.Name)
		}
		if seen[st.Name] {
			return fmt.Errorf("pipeline.stages: duplicate stage %q", st.Name)
		}
		if order < last {
			return fmt.Errorf("pipeline.stages: %q is out of order", st.Name)
		}
		if st.TimeoutSeconds < 0 {
			return fmt.Errorf("pipeline.stages.%s.timeout_seconds must be >= 0", st.Name)
		}
		seen[st.Name] = true
		last = order
	}
	return nil
}

func (r *ReconcileConfig) validate() error {
	if r.LookbackDays < 0 || r.PayLagDays < 0 {
		return fmt.Errorf("reconcile.lookback_days and pay_lag_days must be >= 0")
	}
	unbounded := 0
	for i, b := range r.TaxBrackets {
		rate, err := decimal.NewFromString(strings.TrimSpace(b.Rate))
		if err != nil {
			return fmt.Errorf("reconcile.tax_brackets[%d].rate: %w", i, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("reconcile.tax_brackets[%d].rate must be within [0, 1]", i)
		}
		if b.MaxDays < 0 {
			return fmt.Errorf("reconcile.tax_brackets[%d].max_days must be >= 0", i)
		}
		if b.MaxDays == 0 {
			unbounded++
		}
	}
	if unbounded > 1 {
		return fmt.Errorf("reconcile.tax_brackets allows one open-ended bracket, got %d", unbounded)
	}
	return nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
