// Package storetest holds the behaviour every store.Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()
	d := decimal.RequireFromString
	day := tradingday.MustParse

	t.Run("account round trip", func(t *testing.T) {
		s := open(t)
		_, err := s.Accounts().Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		acc := types.Account{ID: "acc", Name: "main", Capital: d("1000000"), Cash: d("940000.1234"),
			Securities: d("60000"), Assets: d("1000000.1234"), CommissionRate: d("0.0003"),
			TaxRate: d("0.001"), Currency: "CNY", ImportDate: day("2025-03-03"), TSDataSyncDate: day("2025-03-06")}
		require.NoError(t, s.Accounts().Save(ctx, &acc))
		acc.Cash = d("1")
		require.NoError(t, s.Accounts().Save(ctx, &acc))

		got, err := s.Accounts().Get(ctx, "acc")
		require.NoError(t, err)
		assert.True(t, got.Cash.Equal(d("1")))
		assert.True(t, got.CommissionRate.Equal(d("0.0003")))
		assert.Equal(t, day("2025-03-06"), got.TSDataSyncDate)

		other := types.Account{ID: "fresh"}
		require.NoError(t, s.Accounts().Save(ctx, &other))
		behind, err := s.Accounts().ListBehind(ctx, day("2025-03-06"))
		require.NoError(t, err)
		require.Len(t, behind, 1)
		assert.Equal(t, "fresh", behind[0].ID)
		behind, err = s.Accounts().ListBehind(ctx, day("2025-03-07"))
		require.NoError(t, err)
		assert.Len(t, behind, 2)
	})

	t.Run("position get missing is nil", func(t *testing.T) {
		s := open(t)
		key := types.PositionKey{Symbol: "SYM", Market: "SH"}
		p, err := s.Positions().Get(ctx, "acc", key)
		require.NoError(t, err)
		assert.Nil(t, p)

		pos := types.Position{AccountID: "acc", Symbol: "SYM", Market: "SH", Volume: d("100"),
			AvailableVolume: d("100"), Cost: d("10.0030000001"), FirstBuyDate: day("2025-03-04")}
		require.NoError(t, s.Positions().Save(ctx, &pos))
		p, err = s.Positions().Get(ctx, "acc", key)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.True(t, p.Cost.Equal(d("10.0030000001")))

		require.NoError(t, s.Positions().Delete(ctx, "acc", key))
		list, err := s.Positions().List(ctx, "acc")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("flows ordered by date then seq", func(t *testing.T) {
		s := open(t)
		mk := func(id, tdate string, seq int64, typ types.FlowType, synthetic bool) types.Flow {
			return types.Flow{ID: id, AccountID: "acc", Symbol: "SYM", Market: "SH", Type: typ,
				FundEffect: d("1"), TDate: day(tdate), Seq: seq, Synthetic: synthetic}
		}
		for _, f := range []types.Flow{
			mk("c", "2025-03-05", 1, types.FlowDividend, true),
			mk("a", "2025-03-04", 9, types.FlowDeposit, false),
			mk("b", "2025-03-04", 3, types.FlowSell, false),
		} {
			f := f
			require.NoError(t, s.Flows().Insert(ctx, &f))
		}
		all, err := s.Flows().List(ctx, store.FlowQuery{AccountID: "acc"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

		syn, err := s.Flows().List(ctx, store.FlowQuery{AccountID: "acc", Synthetic: store.Bool(true),
			Types: []types.FlowType{types.FlowDividend}, From: day("2025-03-05")})
		require.NoError(t, err)
		require.Len(t, syn, 1)
		assert.Equal(t, "c", syn[0].ID)

		earliest, err := s.Flows().Earliest(ctx, "acc")
		require.NoError(t, err)
		assert.Equal(t, day("2025-03-04"), earliest)

		require.NoError(t, s.Flows().Delete(ctx, "b"))
		_, err = s.Flows().Get(ctx, "b")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		none, err := s.Flows().Earliest(ctx, "nobody")
		require.NoError(t, err)
		assert.True(t, none.IsZero())
	})

	t.Run("flow keeps reversal data", func(t *testing.T) {
		s := open(t)
		sell := types.Flow{ID: "s1", AccountID: "acc", Symbol: "SYM", Market: "SH", Type: types.FlowSell,
			StkEffect: d("-100"), FundEffect: d("998.9"), Cost: d("9.989"), TDate: day("2025-03-05"),
			PrevCost: d("10.003"), PrevFirstBuyDate: day("2025-03-04")}
		tax := types.Flow{ID: "t1", AccountID: "acc", Symbol: "SYM", Market: "SH", Type: types.FlowTax,
			FundEffect: d("-20"), Cost: d("0.2"), CostAdjustment: d("20"), TDate: day("2025-03-05")}
		require.NoError(t, s.Flows().Insert(ctx, &sell))
		require.NoError(t, s.Flows().Insert(ctx, &tax))

		got, err := s.Flows().Get(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, got.PrevCost.Equal(d("10.003")))
		assert.Equal(t, day("2025-03-04"), got.PrevFirstBuyDate)

		got, err = s.Flows().Get(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, got.CostAdjustment.Equal(d("20")))
		assert.True(t, got.PrevCost.IsZero())
		assert.True(t, got.PrevFirstBuyDate.IsZero())
	})

	t.Run("snapshot upsert replaces", func(t *testing.T) {
		s := open(t)
		snap := types.PositionSnapshot{AccountID: "acc", Day: day("2025-03-04"), Holdings: []types.Holding{
			{Symbol: "SYM", Market: "SH", Volume: d("10000"), MarketValue: d("100000"), FirstBuyDate: day("2025-03-04")},
		}}
		require.NoError(t, s.Snapshots().UpsertPositions(ctx, []types.PositionSnapshot{snap}))
		snap.Holdings[0].Volume = d("5000")
		require.NoError(t, s.Snapshots().UpsertPositions(ctx, []types.PositionSnapshot{snap}))

		got, err := s.Snapshots().GetPositions(ctx, "acc", day("2025-03-04"))
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Len(t, got.Holdings, 1)
		assert.True(t, got.Holdings[0].Volume.Equal(d("5000")))

		assets := []types.AssetSnapshot{
			{AccountID: "acc", Day: day("2025-03-05"), Cash: d("2"), Assets: d("2")},
			{AccountID: "acc", Day: day("2025-03-04"), Cash: d("1"), Assets: d("1")},
		}
		require.NoError(t, s.Snapshots().UpsertAssets(ctx, assets))
		require.NoError(t, s.Snapshots().UpsertAssets(ctx, assets))
		list, err := s.Snapshots().ListAssets(ctx, "acc", day("2025-03-01"), day("2025-03-31"))
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, day("2025-03-04"), list[0].Day)

		missing, err := s.Snapshots().GetAssets(ctx, "acc", day("2025-03-10"))
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		s := open(t)
		acc := types.Account{ID: "acc", Cash: d("10")}
		require.NoError(t, s.Accounts().Save(ctx, &acc))

		err := store.InTx(ctx, s, func(uow store.UnitOfWork) error {
			acc.Cash = d("0")
			if err := uow.Accounts().Save(ctx, &acc); err != nil {
				return err
			}
			f := types.Flow{ID: "f1", AccountID: "acc", Type: types.FlowWithdraw, FundEffect: d("-10"), TDate: day("2025-03-04")}
			if err := uow.Flows().Insert(ctx, &f); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)

		got, err := s.Accounts().Get(ctx, "acc")
		require.NoError(t, err)
		assert.True(t, got.Cash.Equal(d("10")))
		flows, err := s.Flows().List(ctx, store.FlowQuery{AccountID: "acc"})
		require.NoError(t, err)
		assert.Empty(t, flows)
	})

	t.Run("dividends by ex-date", func(t *testing.T) {
		s := open(t)
		details := []types.DividendDetail{
			{Symbol: "SYM", Market: "SH", ExDividendDate: day("2025-06-10"), RecordDate: day("2025-06-09"), CashPerShare: d("0.5")},
			{Symbol: "SYM", Market: "SH", ExDividendDate: day("2025-01-10"), CashPerShare: d("0.2")},
		}
		require.NoError(t, s.Dividends().Upsert(ctx, details))
		details[0].CashPerShare = d("0.6")
		require.NoError(t, s.Dividends().Upsert(ctx, details[:1]))

		got, err := s.Dividends().List(ctx, "SYM", "SH", day("2025-01-01"), day("2025-12-31"))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, day("2025-01-10"), got[0].ExDividendDate)
		assert.True(t, got[1].CashPerShare.Equal(d("0.6")))
	})

	t.Run("run log newest first", func(t *testing.T) {
		s := open(t)
		logs, ok := s.(store.RunLogStore)
		if !ok {
			t.Skip("store keeps no run history")
		}
		base := time.Date(2025, 3, 3, 16, 30, 0, 0, time.UTC)
		for i, id := range []string{"t1", "t2", "t3"} {
			rec := types.RunRecord{TraceID: id, Pipeline: "daily", Day: day("2025-03-03"),
				StartedAt: base.Add(time.Duration(i) * time.Minute), FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
				Stages: []byte(`[{"stage":"ts_sync"}]`)}
			if id == "t2" {
				rec.Error = "quote timeout"
				rec.Warnings = []string{"ts_sync acc: quote timeout"}
			}
			require.NoError(t, logs.RunLogs().Insert(ctx, &rec))
		}
		got, err := logs.RunLogs().List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "t3", got[0].TraceID)
		assert.Equal(t, "t2", got[1].TraceID)
		assert.True(t, got[1].Failed())
		assert.Equal(t, []string{"ts_sync acc: quote timeout"}, got[1].Warnings)
		assert.Equal(t, day("2025-03-03"), got[1].Day)
		assert.JSONEq(t, `[{"stage":"ts_sync"}]`, string(got[0].Stages))
		assert.True(t, got[0].StartedAt.Equal(base.Add(2*time.Minute)))
	})
}
