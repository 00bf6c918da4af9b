package config

import (
	"strings"
)

const (
	defaultAppEnv              = "dev"
	defaultAppLogLevel         = "info"
	defaultAppHTTPAddr         = ":9991"
	defaultAppLogPath          = "data/logs/fundledger.log"
	defaultAppTimezone         = "Asia/Shanghai"
	defaultAppCurrency         = "CNY"
	defaultStoreDriver         = "sqlite"
	defaultStorePath           = "data/db/fundledger.db"
	defaultQuoteSource         = "static"
	defaultQuotePricePath      = "data.price"
	defaultCorpActionSource    = "store"
	defaultCorpActionListPath  = "data"
	defaultCheckpointDriver    = "memory"
	defaultCheckpointPath      = "data/db/checkpoint.db"
	defaultCheckpointPollMs    = 1000
	defaultCheckpointBackoff   = 30
	defaultSchedulerRunAt      = "16:30"
	defaultSchedulerDeadline   = "23:59"
	defaultSchedulerWorkers    = 4
	defaultReconcileLookback   = 20
	defaultReconcilePayLag     = 30
	defaultHTTPTimeout         = 10
	defaultHTTPRate            = 5
	defaultHTTPBurst           = 5
	defaultHTTPCacheTTL        = 30
	defaultHTTPBreakerFailures = 5
	defaultHTTPBreakerCooldown = 60
)

// DefaultStages is the daily order with the ability hook non-critical.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Name: "ts_sync", Critical: true},
		{Name: "ability", Critical: false},
		{Name: "dividend_liquidation", Critical: true},
		{Name: "dividend_finalize", Critical: true},
		{Name: "tax_liquidation", Critical: true},
	}
}

// DefaultTaxBrackets taxes dividends 20% within a month, 10% within a year, then nothing.
func DefaultTaxBrackets() []TaxBracketConfig {
	return []TaxBracketConfig{
		{MaxDays: 30, Rate: "0.2"},
		{MaxDays: 365, Rate: "0.1"},
		{MaxDays: 0, Rate: "0"},
	}
}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Quote.applyDefaults(keys)
	c.CorpAction.applyDefaults(keys)
	c.Checkpoint.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
	c.Pipeline.applyDefaults()
	c.Reconcile.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.timezone", &a.Timezone, defaultAppTimezone),
		stringFieldDefault("app.default_currency", &a.DefaultCurrency, defaultAppCurrency),
	)
	a.DefaultCurrency = strings.ToUpper(strings.TrimSpace(a.DefaultCurrency))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
}

func (q *QuoteConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("quote.source", &q.Source, defaultQuoteSource),
		stringFieldDefault("quote.price_path", &q.PricePath, defaultQuotePricePath),
	)
	q.Source = strings.ToLower(strings.TrimSpace(q.Source))
	q.HTTP.applyDefaults("quote.http", keys)
}

func (c *CorpActionConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("corp_action.source", &c.Source, defaultCorpActionSource),
		stringFieldDefault("corp_action.list_path", &c.ListPath, defaultCorpActionListPath),
		stringFieldDefault("corp_action.from_param", &c.FromParam, "from"),
		stringFieldDefault("corp_action.to_param", &c.ToParam, "to"),
	)
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	c.HTTP.applyDefaults("corp_action.http", keys)
}

func (h *HTTPSourceConfig) applyDefaults(prefix string, keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault(prefix+".symbol_param", &h.SymbolParam, "symbol"),
		stringFieldDefault(prefix+".market_param", &h.MarketParam, "market"),
		intFieldDefault(prefix+".timeout_seconds", &h.TimeoutSeconds, defaultHTTPTimeout),
		intFieldDefault(prefix+".burst", &h.Burst, defaultHTTPBurst),
		intFieldDefault(prefix+".cache_ttl_seconds", &h.CacheTTLSeconds, defaultHTTPCacheTTL),
		intFieldDefault(prefix+".breaker_threshold", &h.BreakerThreshold, defaultHTTPBreakerFailures),
		intFieldDefault(prefix+".breaker_cooldown_seconds", &h.BreakerCooldownSeconds, defaultHTTPBreakerCooldown),
		fieldDefault{
			key:   prefix + ".rate_per_second",
			need:  func() bool { return h.RatePerSecond <= 0 },
			apply: func() { h.RatePerSecond = defaultHTTPRate },
		},
	)
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
}

func (c *CheckpointConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("checkpoint.driver", &c.Driver, defaultCheckpointDriver),
		stringFieldDefault("checkpoint.path", &c.Path, defaultCheckpointPath),
		intFieldDefault("checkpoint.poll_interval_ms", &c.PollIntervalMillis, defaultCheckpointPollMs),
		intFieldDefault("checkpoint.max_backoff_seconds", &c.MaxBackoffSeconds, defaultCheckpointBackoff),
	)
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("scheduler.enabled", &s.Enabled, true),
		stringFieldDefault("scheduler.run_at", &s.RunAt, defaultSchedulerRunAt),
		stringFieldDefault("scheduler.deadline", &s.Deadline, defaultSchedulerDeadline),
		intFieldDefault("scheduler.workers", &s.Workers, defaultSchedulerWorkers),
	)
}

func (p *PipelineConfig) applyDefaults() {
	if len(p.Stages) == 0 {
		p.Stages = DefaultStages()
	}
	for i := range p.Stages {
		p.Stages[i].Name = strings.ToLower(strings.TrimSpace(p.Stages[i].Name))
	}
}

func (r *ReconcileConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("reconcile.lookback_days", &r.LookbackDays, defaultReconcileLookback),
		intFieldDefault("reconcile.pay_lag_days", &r.PayLagDays, defaultReconcilePayLag),
	)
	if len(r.TaxBrackets) == 0 {
		r.TaxBrackets = DefaultTaxBrackets()
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
