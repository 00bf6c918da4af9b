package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAndIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  log_level: debug
reconcile:
  lookback_days: 10
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  timezone: UTC
store:
  driver: memory
reconcile:
  lookback_days: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "UTC", cfg.App.Timezone)
	assert.Equal(t, "CNY", cfg.App.DefaultCurrency)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Reconcile.LookbackDays)
	assert.Equal(t, defaultReconcilePayLag, cfg.Reconcile.PayLagDays)
	assert.Equal(t, DefaultTaxBrackets(), cfg.Reconcile.TaxBrackets)
	assert.Equal(t, DefaultStages(), cfg.Pipeline.Stages)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, defaultSchedulerWorkers, cfg.Scheduler.Workers)
	assert.Equal(t, "static", cfg.Quote.Source)
	assert.Equal(t, defaultHTTPTimeout, cfg.Quote.HTTP.TimeoutSeconds)
}

func TestLoad_ExplicitFalseIsKept(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
scheduler:
  enabled: false
store:
  driver: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
store:
  driver: sqlite
  path: data/a.db
`)
	t.Setenv("FUNDLEDGER_STORE_PATH", "data/b.db")
	t.Setenv("FUNDLEDGER_SCHEDULER_WORKERS", "9")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/b.db", cfg.Store.Path)
	assert.Equal(t, 9, cfg.Scheduler.Workers)
}

func TestLoad_DotEnvBesideConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "store:\n  driver: memory\n")
	writeFile(t, dir, ".env", "FUNDLEDGER_APP_HTTP_ADDR=:7777\n")
	t.Cleanup(func() { os.Unsetenv("FUNDLEDGER_APP_HTTP_ADDR") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.App.HTTPAddr)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"driver":   "store:\n  driver: postgres\n",
		"stage":    "store:\n  driver: memory\npipeline:\n  stages:\n    - name: tax_liquidation\n    - name: ts_sync\n",
		"unknown":  "store:\n  driver: memory\npipeline:\n  stages:\n    - name: robots\n",
		"rate":     "store:\n  driver: memory\nreconcile:\n  tax_brackets:\n    - max_days: 30\n      rate: \"1.5\"\n",
		"deadline": "store:\n  driver: memory\nscheduler:\n  run_at: \"18:00\"\n  deadline: \"17:00\"\n",
		"quote":    "store:\n  driver: memory\nquote:\n  source: http\n",
		"currency": "store:\n  driver: memory\napp:\n  default_currency: XXQ\n",
		"symbol":   "store:\n  driver: memory\nquote:\n  http:\n    symbol_format: binance\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("16:30")
	require.NoError(t, err)
	assert.Equal(t, "16h30m0s", d.String())
	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
