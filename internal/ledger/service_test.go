package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fundledger/internal/store"
	"fundledger/internal/store/memory"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) GetPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol, market)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

var (
	d1 = tradingday.MustParse("2025-03-03")
	d2 = tradingday.MustParse("2025-03-04")
	d3 = tradingday.MustParse("2025-03-05")
	d4 = tradingday.MustParse("2025-03-06")
)

func fixedPrice(p string) PriceProvider {
	return PriceFunc(func(context.Context, string, string) (decimal.Decimal, error) { return dec(p), nil })
}

func newTestService(t *testing.T, prices PriceProvider) (*Service, store.Store) {
	t.Helper()
	st := memory.New()
	svc := NewService(st, prices, tradingday.NewWeekdayCalendar(), nil, Options{DefaultCurrency: "cny", Location: time.UTC})
	_, err := svc.OpenAccount(context.Background(), OpenAccountRequest{
		ID: "acc", Name: "main", Capital: dec("1000000"), CommissionRate: dec("0.0003"),
		TaxRate: dec("0.001"), ImportDate: d1,
	})
	require.NoError(t, err)
	return svc, st
}

func TestService_OpenAccount(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()

	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "CNY", acc.Currency)
	assert.True(t, acc.Cash.Equal(dec("1000000")))
	assert.True(t, acc.Assets.Equal(dec("1000000")))
	assert.True(t, acc.TSDataSyncDate.IsZero())

	flows, err := st.Flows().List(ctx, store.FlowQuery{AccountID: "acc"})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, types.FlowDeposit, flows[0].Type)

	_, err = svc.OpenAccount(ctx, OpenAccountRequest{ID: "acc"})
	assert.Error(t, err)

	_, err = svc.OpenAccount(ctx, OpenAccountRequest{ID: "bad", Currency: "XXXX"})
	assert.ErrorIs(t, err, types.ErrInvalidFlow)
}

func TestService_BuySellScenario(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()

	buy, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "sym", Market: "sh", Quantity: dec("10000"), Cost: dec("10.003"), TDate: d2,
	})
	require.NoError(t, err)
	assert.Equal(t, "SYM", buy.Symbol)
	assert.True(t, buy.FundEffect.Equal(dec("-100030")))

	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, acc.Cash.Equal(dec("899970")))
	assert.True(t, acc.Securities.Equal(dec("100000")))
	assert.True(t, acc.Assets.Equal(acc.Cash.Add(acc.Securities)))

	pos, err := st.Positions().Get(ctx, "acc", types.PositionKey{Symbol: "SYM", Market: "SH"})
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Volume.Equal(dec("10000")))
	assert.True(t, pos.Cost.Equal(dec("10.003")))

	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowSell, Symbol: "SYM", Market: "SH", Quantity: dec("5000"), Cost: dec("9.989"), TDate: d3,
	})
	require.NoError(t, err)

	acc, err = svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, acc.Cash.Equal(dec("949915")), "cash %s", acc.Cash)
	pos, err = st.Positions().Get(ctx, "acc", types.PositionKey{Symbol: "SYM", Market: "SH"})
	require.NoError(t, err)
	assert.True(t, pos.Volume.Equal(dec("5000")))
	assert.True(t, pos.Cost.Equal(dec("10.003")))
}

func TestService_RejectsBeforeWriting(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()

	_, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowWithdraw, Amount: dec("1000000.0001"), TDate: d2})
	assert.ErrorIs(t, err, types.ErrInsufficientCash)

	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowSell, Symbol: "SYM", Market: "SH", Quantity: dec("1"), Cost: dec("10"), TDate: d2,
	})
	assert.ErrorIs(t, err, types.ErrInsufficientPosition)

	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowBuy, Symbol: "SYM", Quantity: dec("0"), Cost: dec("10"), TDate: d2})
	assert.ErrorIs(t, err, types.ErrInvalidFlow)

	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("1"), TDate: tradingday.MustParse("2025-03-08")})
	assert.ErrorIs(t, err, types.ErrInvalidFlow)

	_, err = svc.ApplyFlow(ctx, "missing", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("1"), TDate: d2})
	assert.ErrorIs(t, err, store.ErrNotFound)

	flows, err := st.Flows().List(ctx, store.FlowQuery{AccountID: "acc"})
	require.NoError(t, err)
	assert.Len(t, flows, 1)
	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, acc.Cash.Equal(dec("1000000")))
}

func TestService_CursorRewindsToDayBeforeFlow(t *testing.T) {
	svc, _ := newTestService(t, fixedPrice("10"))
	ctx := context.Background()
	require.NoError(t, svc.SetSyncDate(ctx, "acc", d4))

	_, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("10"), TDate: d2})
	require.NoError(t, err)
	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, d1, acc.TSDataSyncDate)

	// monday rewinds across the weekend
	require.NoError(t, svc.SetSyncDate(ctx, "acc", tradingday.MustParse("2025-03-12")))
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("10"), TDate: tradingday.MustParse("2025-03-10")})
	require.NoError(t, err)
	acc, err = svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, tradingday.MustParse("2025-03-07"), acc.TSDataSyncDate)
}

func TestService_PostThenRevertRestoresState(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("12"))
	ctx := context.Background()
	_, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "SYM", Market: "SH", Quantity: dec("300"), Cost: dec("10"), TDate: d2,
	})
	require.NoError(t, err)
	require.NoError(t, svc.SetSyncDate(ctx, "acc", d3))

	before, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	beforePos, err := st.Positions().Get(ctx, "acc", types.PositionKey{Symbol: "SYM", Market: "SH"})
	require.NoError(t, err)

	div, err := types.NewDividend("acc", "SYM", "SH", dec("45"), dec("100"), d3)
	require.NoError(t, err)
	div.Synthetic = true
	mid, err := svc.PostFlow(ctx, div, KeepSyncDate())
	require.NoError(t, err)
	assert.True(t, mid.Cash.Equal(before.Cash.Add(dec("45"))))
	assert.Equal(t, d3, mid.TSDataSyncDate)

	after, err := svc.RevertFlow(ctx, div.ID, KeepSyncDate())
	require.NoError(t, err)
	assert.True(t, after.Cash.Equal(before.Cash))
	assert.True(t, after.Securities.Equal(before.Securities))
	assert.True(t, after.Assets.Equal(before.Assets))
	assert.Equal(t, before.TSDataSyncDate, after.TSDataSyncDate)

	afterPos, err := st.Positions().Get(ctx, "acc", types.PositionKey{Symbol: "SYM", Market: "SH"})
	require.NoError(t, err)
	assert.True(t, afterPos.Volume.Equal(beforePos.Volume))
	assert.True(t, afterPos.Cost.Equal(beforePos.Cost))

	// a second revert of the same flow is a no-op
	_, err = svc.RevertFlow(ctx, div.ID, KeepSyncDate())
	require.NoError(t, err)
	again, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, again.Cash.Equal(before.Cash))
}

func TestService_RevertClosingSellRestoresPosition(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()
	key := types.PositionKey{Symbol: "SYM", Market: "SH"}

	_, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "SYM", Market: "SH", Quantity: dec("10000"), Cost: dec("10.003"), TDate: d2,
	})
	require.NoError(t, err)
	sell, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowSell, Symbol: "SYM", Market: "SH", Quantity: dec("10000"), Cost: dec("9.989"), TDate: d3,
	})
	require.NoError(t, err)
	pos, err := st.Positions().Get(ctx, "acc", key)
	require.NoError(t, err)
	assert.Nil(t, pos)

	stored, err := st.Flows().Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.True(t, stored.PrevCost.Equal(dec("10.003")))
	assert.Equal(t, d2, stored.PrevFirstBuyDate)

	acc, err := svc.RevertFlow(ctx, sell.ID)
	require.NoError(t, err)
	assert.True(t, acc.Cash.Equal(dec("899970")), "cash %s", acc.Cash)

	pos, err = st.Positions().Get(ctx, "acc", key)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Volume.Equal(dec("10000")))
	assert.True(t, pos.Cost.Equal(dec("10.003")), "cost %s", pos.Cost)
	assert.Equal(t, d2, pos.FirstBuyDate)
}

func TestService_RevertIsCheckedLikeANewFlow(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()

	deposit, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("100"), TDate: d2})
	require.NoError(t, err)
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowWithdraw, Amount: dec("1000100"), TDate: d2})
	require.NoError(t, err)

	_, err = svc.RevertFlow(ctx, deposit.ID)
	assert.ErrorIs(t, err, types.ErrInsufficientCash)
	_, err = st.Flows().Get(ctx, deposit.ID)
	require.NoError(t, err)
	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, acc.Cash.IsZero(), "cash %s", acc.Cash)

	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("5000"), TDate: d3})
	require.NoError(t, err)
	buy, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "SYM", Market: "SH", Quantity: dec("100"), Cost: dec("10"), TDate: d3,
	})
	require.NoError(t, err)
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowSell, Symbol: "SYM", Market: "SH", Quantity: dec("100"), Cost: dec("10"), TDate: d4,
	})
	require.NoError(t, err)

	_, err = svc.RevertFlow(ctx, buy.ID)
	assert.ErrorIs(t, err, types.ErrInsufficientPosition)
	_, err = st.Flows().Get(ctx, buy.ID)
	assert.NoError(t, err)
}

func TestService_UncheckedRevertClampsShares(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()
	key := types.PositionKey{Symbol: "SYM", Market: "SH"}

	_, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "SYM", Market: "SH", Quantity: dec("100"), Cost: dec("10"), TDate: d2,
	})
	require.NoError(t, err)
	bonus, err := types.NewDividend("acc", "SYM", "SH", decimal.Zero, dec("30"), d3)
	require.NoError(t, err)
	bonus.Synthetic = true
	_, err = svc.PostFlow(ctx, bonus)
	require.NoError(t, err)
	_, err = svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowSell, Symbol: "SYM", Market: "SH", Quantity: dec("130"), Cost: dec("10"), TDate: d4,
	})
	require.NoError(t, err)

	_, err = svc.RevertFlow(ctx, bonus.ID)
	assert.ErrorIs(t, err, types.ErrInsufficientPosition)

	_, err = svc.RevertFlow(ctx, bonus.ID, Unchecked())
	require.NoError(t, err)
	_, err = st.Flows().Get(ctx, bonus.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	pos, err := st.Positions().Get(ctx, "acc", key)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestService_QuoteUnavailableFallsBackToCost(t *testing.T) {
	prices := new(MockPriceProvider)
	prices.On("GetPrice", mock.Anything, "SYM", "SH").Return(decimal.Zero, errors.New("quote down"))
	svc, _ := newTestService(t, prices)
	ctx := context.Background()

	_, err := svc.ApplyFlow(ctx, "acc", types.FlowRequest{
		Type: types.FlowBuy, Symbol: "SYM", Market: "SH", Quantity: dec("10000"), Cost: dec("10.003"), TDate: d2,
	})
	require.NoError(t, err)
	acc, err := svc.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, acc.Securities.Equal(dec("100030")))
	prices.AssertExpectations(t)
}

func TestService_DailySnapshot(t *testing.T) {
	svc, st := newTestService(t, fixedPrice("10"))
	ctx := context.Background()

	_, err := svc.DailySnapshot(ctx, "acc", d2)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Snapshots().UpsertAssets(ctx, []types.AssetSnapshot{{AccountID: "acc", Day: d2, Cash: dec("5"), Assets: dec("5")}}))
	require.NoError(t, st.Snapshots().UpsertPositions(ctx, []types.PositionSnapshot{{AccountID: "acc", Day: d2}}))
	snap, err := svc.DailySnapshot(ctx, "acc", d2)
	require.NoError(t, err)
	assert.True(t, snap.Assets.Cash.Equal(dec("5")))

	live, err := svc.DailySnapshot(ctx, "acc", svc.LastTradingDay())
	require.NoError(t, err)
	assert.True(t, live.Assets.Cash.Equal(dec("1000000")))
}

func TestLocker_SerializesSameAccount(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "acc")
			require.NoError(t, err)
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Held("acc"))

	unlock, err := l.Lock(ctx, "acc")
	require.NoError(t, err)
	defer unlock()
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(cctx, "acc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	other, err := l.Lock(ctx, "other")
	require.NoError(t, err)
	other()
}
