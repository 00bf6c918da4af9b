package timeseries

import (
	"context"
	"testing"
	"time"

	"fundledger/internal/ledger"
	"fundledger/internal/store/memory"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncFixture(t *testing.T) (*Syncer, *ledger.Service) {
	t.Helper()
	ctx := context.Background()
	prices := ledger.PriceFunc(func(context.Context, string, string) (decimal.Decimal, error) { return dec("12"), nil })
	svc := ledger.NewService(memory.New(), prices, tradingday.NewWeekdayCalendar(), nil, ledger.Options{DefaultCurrency: "CNY", Location: time.UTC})
	_, err := svc.OpenAccount(ctx, ledger.OpenAccountRequest{ID: "acc", Capital: dec("1000000"), ImportDate: d1})
	require.NoError(t, err)
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowBuy, Symbol: "SYM", Market: "SH",
		Quantity: dec("10000"), Cost: dec("10"), TDate: d2})
	require.NoError(t, err)
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowSell, Symbol: "SYM", Market: "SH",
		Quantity: dec("5000"), Cost: dec("10"), TDate: d3})
	require.NoError(t, err)
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowWithdraw, Amount: dec("10000"), TDate: d4})
	require.NoError(t, err)
	return NewSyncer(svc), svc
}

func TestSyncer_FirstSyncStartsBeforeImport(t *testing.T) {
	syncer, svc := newSyncFixture(t)
	ctx := context.Background()

	behind, err := syncer.Behind(ctx, d4)
	require.NoError(t, err)
	require.Len(t, behind, 1)

	report, err := syncer.SyncAccount(ctx, "acc", d4)
	require.NoError(t, err)
	assert.Equal(t, tradingday.MustParse("2025-02-28"), report.From)
	assert.Equal(t, 5, report.Days)
	assert.False(t, report.Clamped)

	assets, err := svc.Store().Snapshots().ListAssets(ctx, "acc", tradingday.Date{}, tradingday.Date{})
	require.NoError(t, err)
	require.Len(t, assets, 5)
	got := make([]string, 0, len(assets))
	for _, a := range assets {
		got = append(got, a.Cash.String())
	}
	assert.Equal(t, []string{"0", "1000000", "900000", "950000", "940000"}, got)

	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, d4, acc.TSDataSyncDate)

	behind, err = syncer.Behind(ctx, d4)
	require.NoError(t, err)
	assert.Empty(t, behind)
}

func TestSyncer_RerunIsIdempotent(t *testing.T) {
	syncer, svc := newSyncFixture(t)
	ctx := context.Background()
	_, err := syncer.SyncAccount(ctx, "acc", d4)
	require.NoError(t, err)
	first, err := svc.Store().Snapshots().ListAssets(ctx, "acc", tradingday.Date{}, tradingday.Date{})
	require.NoError(t, err)

	report, err := syncer.SyncAccount(ctx, "acc", d4)
	require.NoError(t, err)
	assert.Zero(t, report.Days)

	_, err = syncer.Rebuild(ctx, "acc", tradingday.MustParse("2025-02-28"), d4)
	require.NoError(t, err)
	second, err := svc.Store().Snapshots().ListAssets(ctx, "acc", tradingday.Date{}, tradingday.Date{})
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Day, second[i].Day)
		assert.True(t, first[i].Cash.Equal(second[i].Cash))
		assert.True(t, first[i].Securities.Equal(second[i].Securities))
	}
}

func TestSyncer_BackdatedFlowRewindsAndResyncs(t *testing.T) {
	syncer, svc := newSyncFixture(t)
	ctx := context.Background()
	_, err := syncer.SyncAccount(ctx, "acc", d4)
	require.NoError(t, err)

	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("45"), TDate: d3})
	require.NoError(t, err)
	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, d2, acc.TSDataSyncDate)

	_, err = syncer.SyncAccount(ctx, "acc", d4)
	require.NoError(t, err)
	assets, err := svc.Store().Snapshots().ListAssets(ctx, "acc", d2, d4)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "900000", assets[0].Cash.String())
	assert.Equal(t, "950045", assets[1].Cash.String())
	assert.Equal(t, "940045", assets[2].Cash.String())
}

func TestSyncer_ClampsStartBeforeHistory(t *testing.T) {
	syncer, svc := newSyncFixture(t)
	ctx := context.Background()
	report, err := syncer.Rebuild(ctx, "acc", tradingday.MustParse("2025-02-03"), d4)
	require.NoError(t, err)
	assert.True(t, report.Clamped)
	assert.Equal(t, tradingday.MustParse("2025-02-28"), report.From)

	snap, err := svc.Store().Snapshots().GetAssets(ctx, "acc", tradingday.MustParse("2025-02-10"))
	require.NoError(t, err)
	assert.Nil(t, snap)
}
