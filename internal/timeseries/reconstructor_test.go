package timeseries

import (
	"testing"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dec = decimal.RequireFromString
	d1  = tradingday.MustParse("2025-03-03")
	d2  = tradingday.MustParse("2025-03-04")
	d3  = tradingday.MustParse("2025-03-05")
	d4  = tradingday.MustParse("2025-03-06")
)

func scenarioInput() Input {
	return Input{
		Anchor: Anchor{
			AccountID:  "acc",
			Day:        d4,
			Cash:       dec("940000"),
			Securities: dec("60000"),
			Holdings: []types.Holding{
				{Symbol: "SYM", Market: "SH", Volume: dec("5000"), MarketValue: dec("60000"), FirstBuyDate: d2},
			},
		},
		Flows: []types.Flow{
			{ID: "buy", AccountID: "acc", Symbol: "SYM", Market: "SH", Type: types.FlowBuy, TDate: d2, Seq: 1,
				StkEffect: dec("10000"), FundEffect: dec("-100000"), Cost: dec("10"), Price: dec("10")},
			{ID: "sell", AccountID: "acc", Symbol: "SYM", Market: "SH", Type: types.FlowSell, TDate: d3, Seq: 2,
				StkEffect: dec("-5000"), FundEffect: dec("50000"), Cost: dec("10"), Price: dec("10")},
			{ID: "withdraw", AccountID: "acc", Type: types.FlowWithdraw, TDate: d4, Seq: 3, FundEffect: dec("-10000")},
		},
		Start:    d1,
		End:      d4,
		Earliest: d1,
	}
}

func cashSeries(res Result) []string {
	out := make([]string, 0, len(res.Assets))
	for _, a := range res.Assets {
		out = append(out, a.Cash.String())
	}
	return out
}

func TestReconstructor_Scenario(t *testing.T) {
	rec := NewReconstructor(tradingday.NewWeekdayCalendar())
	res, err := rec.Run(scenarioInput())
	require.NoError(t, err)
	require.Len(t, res.Assets, 4)
	require.Len(t, res.Positions, 4)

	assert.Equal(t, []string{"1000000", "900000", "950000", "940000"}, cashSeries(res))
	assert.Equal(t, []tradingday.Date{d1, d2, d3, d4},
		[]tradingday.Date{res.Assets[0].Day, res.Assets[1].Day, res.Assets[2].Day, res.Assets[3].Day})

	assert.Empty(t, res.Positions[0].Holdings)
	require.Len(t, res.Positions[1].Holdings, 1)
	assert.True(t, res.Positions[1].Holdings[0].Volume.Equal(dec("10000")))
	assert.True(t, res.Positions[1].Holdings[0].MarketValue.Equal(dec("120000")))
	assert.True(t, res.Positions[2].Holdings[0].Volume.Equal(dec("5000")))

	for _, a := range res.Assets {
		assert.True(t, a.Assets.Equal(a.Cash.Add(a.Securities)), "day %s", a.Day)
	}
	assert.True(t, res.Assets[0].Securities.IsZero())
	assert.True(t, res.Assets[3].Assets.Equal(dec("1000000")))
}

func TestReconstructor_Idempotent(t *testing.T) {
	rec := NewReconstructor(tradingday.NewWeekdayCalendar())
	first, err := rec.Run(scenarioInput())
	require.NoError(t, err)
	second, err := rec.Run(scenarioInput())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReconstructor_NoDriftWithoutFlows(t *testing.T) {
	rec := NewReconstructor(tradingday.NewWeekdayCalendar())
	in := scenarioInput()
	in.Flows = nil
	in.Start = tradingday.MustParse("2025-02-24")
	in.Earliest = tradingday.Date{}

	res, err := rec.Run(in)
	require.NoError(t, err)
	require.Len(t, res.Assets, 9)
	for i, a := range res.Assets {
		assert.True(t, a.Cash.Equal(in.Anchor.Cash))
		assert.True(t, a.Securities.Equal(in.Anchor.Securities))
		require.Len(t, res.Positions[i].Holdings, 1)
		assert.Equal(t, in.Anchor.Holdings[0].Volume.String(), res.Positions[i].Holdings[0].Volume.String())
		assert.Equal(t, in.Anchor.Holdings[0].MarketValue.String(), res.Positions[i].Holdings[0].MarketValue.String())
	}
}

func TestReconstructor_SkipsHolidaysAndWeekends(t *testing.T) {
	cal := tradingday.NewWeekdayCalendar(tradingday.MustParse("2025-03-05"))
	rec := NewReconstructor(cal)
	in := scenarioInput()
	in.Start = tradingday.MustParse("2025-02-28")
	in.Earliest = tradingday.Date{}
	res, err := rec.Run(in)
	require.NoError(t, err)

	var days []string
	for _, a := range res.Assets {
		days = append(days, a.Day.String())
	}
	assert.Equal(t, []string{"2025-02-28", "2025-03-03", "2025-03-04", "2025-03-06"}, days)
	// the sell dated on the holiday is undone together with d4
	assert.Equal(t, []string{"1000000", "1000000", "900000", "940000"}, cashSeries(res))
}

func TestReconstructor_GapTooLarge(t *testing.T) {
	rec := NewReconstructor(tradingday.NewWeekdayCalendar())
	in := scenarioInput()
	in.Earliest = d3
	_, err := rec.Run(in)
	var gap *types.GapTooLargeError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, d3, gap.Earliest)
	assert.ErrorIs(t, err, types.ErrGapTooLarge)

	in.Start = d2
	_, err = rec.Run(in)
	assert.NoError(t, err)
}

func TestReconstructor_SoldOutSymbolUsesPrices(t *testing.T) {
	rec := NewReconstructor(tradingday.NewWeekdayCalendar())
	in := Input{
		Anchor: Anchor{AccountID: "acc", Day: d3, Cash: dec("100")},
		Flows: []types.Flow{
			{AccountID: "acc", Symbol: "OLD", Market: "SZ", Type: types.FlowSell, TDate: d3, Seq: 1,
				StkEffect: dec("-10"), FundEffect: dec("100"), Cost: dec("10"), Price: dec("9.9")},
		},
		Start:  d2,
		End:    d3,
		Prices: map[types.PositionKey]decimal.Decimal{{Symbol: "OLD", Market: "SZ"}: dec("11")},
	}
	res, err := rec.Run(in)
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)
	require.Len(t, res.Positions[0].Holdings, 1)
	assert.True(t, res.Positions[0].Holdings[0].MarketValue.Equal(dec("110")))
	assert.True(t, res.Assets[0].Cash.IsZero())
	assert.True(t, res.Assets[0].Securities.Equal(dec("110")))
	assert.Empty(t, res.Positions[1].Holdings)
}
