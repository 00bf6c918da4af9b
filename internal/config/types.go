package config

import (
	"strings"
	"time"
)

// Config is the root configuration of the fundledger service.
type Config struct {
	App        AppConfig        `toml:"app"`
	Store      StoreConfig      `toml:"store"`
	Calendar   CalendarConfig   `toml:"calendar"`
	Quote      QuoteConfig      `toml:"quote"`
	CorpAction CorpActionConfig `toml:"corp_action"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
}

type AppConfig struct {
	Env             string `toml:"env"`
	LogLevel        string `toml:"log_level"`
	LogPath         string `toml:"log_path"`
	HTTPAddr        string `toml:"http_addr"`
	Timezone        string `toml:"timezone"`
	DefaultCurrency string `toml:"default_currency"`
}

// Location resolves Timezone, falling back to the local zone.
func (a AppConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(strings.TrimSpace(a.Timezone)); err == nil && a.Timezone != "" {
		return loc
	}
	return time.Local
}

type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

type CalendarConfig struct {
	HolidaysPath string `toml:"holidays_path"`
	Watch        bool   `toml:"watch"`
}

// HTTPSourceConfig is shared by the HTTP quote and corporate-action gateways.
type HTTPSourceConfig struct {
	BaseURL         string            `toml:"base_url"`
	Path            string            `toml:"path"`
	Headers         map[string]string `toml:"headers"`
	SymbolParam     string            `toml:"symbol_param"`
	MarketParam     string            `toml:"market_param"`
	// SymbolFormat is plain, suffix (600000.SH) or prefix (sh600000).
	SymbolFormat    string  `toml:"symbol_format"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	RatePerSecond   float64 `toml:"rate_per_second"`
	Burst           int     `toml:"burst"`
	CacheTTLSeconds int     `toml:"cache_ttl_seconds"`
	// BreakerThreshold consecutive failures open the circuit for BreakerCooldownSeconds.
	BreakerThreshold       int `toml:"breaker_threshold"`
	BreakerCooldownSeconds int `toml:"breaker_cooldown_seconds"`
}

func (h HTTPSourceConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

func (h HTTPSourceConfig) CacheTTL() time.Duration {
	return time.Duration(h.CacheTTLSeconds) * time.Second
}

func (h HTTPSourceConfig) BreakerCooldown() time.Duration {
	return time.Duration(h.BreakerCooldownSeconds) * time.Second
}

type QuoteConfig struct {
	// Source is "http" or "static"; static values every position at cost.
	Source string           `toml:"source"`
	HTTP   HTTPSourceConfig `toml:"http"`
	// PricePath is the gjson path of the last price in the response body.
	PricePath string `toml:"price_path"`
}

type CorpActionConfig struct {
	// Source is "store" (imported details) or "http".
	Source string           `toml:"source"`
	HTTP   HTTPSourceConfig `toml:"http"`
	// ListPath is the gjson path of the dividend array in the response body.
	ListPath string `toml:"list_path"`
	// FromParam and ToParam carry the ex-dividend date range.
	FromParam string `toml:"from_param"`
	ToParam   string `toml:"to_param"`
}

type CheckpointConfig struct {
	// Driver is "memory" or "sqlite".
	Driver             string `toml:"driver"`
	Path               string `toml:"path"`
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	MaxBackoffSeconds  int    `toml:"max_backoff_seconds"`
}

func (c CheckpointConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c CheckpointConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`
	// RunAt is the wall-clock start of the daily run, "HH:MM".
	RunAt string `toml:"run_at"`
	// Deadline is the wall-clock end of the daily run, "HH:MM"; stages still waiting
	// are abandoned until the next day.
	Deadline       string `toml:"deadline"`
	Workers        int    `toml:"workers"`
	RunImmediately bool   `toml:"run_immediately"`
}

type PipelineConfig struct {
	Stages []StageConfig `toml:"stages"`
}

type StageConfig struct {
	Name           string `toml:"name"`
	Critical       bool   `toml:"critical"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (s StageConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type ReconcileConfig struct {
	LookbackDays int                `toml:"lookback_days"`
	PayLagDays   int                `toml:"pay_lag_days"`
	TaxBrackets  []TaxBracketConfig `toml:"tax_brackets"`
}

type TaxBracketConfig struct {
	MaxDays int    `toml:"max_days"`
	Rate    string `toml:"rate"`
}

// keySet tracks the config paths that were set explicitly.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default of a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
