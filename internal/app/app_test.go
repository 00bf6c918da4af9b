package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fundledger/internal/config"
	"fundledger/internal/gateway/quote"
	"fundledger/internal/ledger"
	"fundledger/internal/pipeline"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  timezone: UTC
  log_level: warn
store:
  driver: memory
checkpoint:
  driver: memory
  poll_interval_ms: 5
  max_backoff_seconds: 1
`), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildCore_RunDaily(t *testing.T) {
	cfg := loadTestConfig(t)
	prices := quote.NewStatic()
	prices.Set("600000", "SH", decimal.NewFromInt(11))
	core, err := NewAppBuilder(cfg, WithPrices(prices)).BuildCore(context.Background())
	require.NoError(t, err)
	defer core.Close()
	ctx := context.Background()

	_, err = core.Ledger.OpenAccount(ctx, ledger.OpenAccountRequest{
		ID: "acc", Capital: decimal.NewFromInt(100000), ImportDate: tradingday.MustParse("2025-03-03"),
	})
	require.NoError(t, err)
	_, err = core.Ledger.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "600000", Market: "SH",
		Quantity: decimal.NewFromInt(100), Cost: decimal.NewFromInt(10), TDate: tradingday.MustParse("2025-03-03"),
	})
	require.NoError(t, err)

	day := tradingday.MustParse("2025-03-05")
	rc, err := core.RunDaily(ctx, day)
	require.NoError(t, err)
	results := rc.Results()
	require.Len(t, results, len(pipeline.StageNames()))
	for _, r := range results {
		assert.False(t, r.Skipped, r.Name)
		assert.Equal(t, 1, r.Accounts, r.Name)
		assert.Zero(t, r.Failed, r.Name)
	}

	acc, err := core.Ledger.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, day, acc.TSDataSyncDate)
	snap, err := core.Ledger.DailySnapshot(ctx, "acc", tradingday.MustParse("2025-03-04"))
	require.NoError(t, err)
	require.Len(t, snap.Positions.Holdings, 1)

	first := rc.TraceID
	rc, err = core.RunDaily(ctx, day)
	require.NoError(t, err)
	for _, r := range rc.Results() {
		assert.True(t, r.Skipped, r.Name)
	}

	runs, err := core.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].TraceID, runs[1].TraceID}
	assert.ElementsMatch(t, []string{first, rc.TraceID}, ids)
	assert.False(t, runs[0].Failed())
	assert.NotEmpty(t, runs[0].Stages)
}

func TestBuild_WiresHTTPAndSchedule(t *testing.T) {
	cfg := loadTestConfig(t)
	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer a.Core().Close()
	assert.NotNil(t, a.http)
	require.NotNil(t, a.window)
	assert.Equal(t, "16h30m0s", a.window.runAt.String())
	assert.Equal(t, pipeline.StageNames(), a.Summary.Stages)
}

func TestReconcileConfig(t *testing.T) {
	out, err := reconcileConfig(config.ReconcileConfig{
		LookbackDays: 10,
		PayLagDays:   5,
		TaxBrackets:  []config.TaxBracketConfig{{MaxDays: 30, Rate: "0.2"}, {MaxDays: 0, Rate: "0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, out.LookbackDays)
	require.Len(t, out.TaxBrackets, 2)
	assert.True(t, out.TaxBrackets[0].Rate.Equal(decimal.RequireFromString("0.2")))

	_, err = reconcileConfig(config.ReconcileConfig{TaxBrackets: []config.TaxBracketConfig{{Rate: "abc"}}})
	assert.Error(t, err)
}
