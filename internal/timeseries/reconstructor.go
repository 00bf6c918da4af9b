// Package timeseries rebuilds the daily position and asset series of an account by
// walking backward from a trusted anchor through the flow log.
package timeseries

import (
	"sort"

	"fundledger/internal/money"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// Anchor is the known state at the close of Day.
type Anchor struct {
	AccountID  string
	Day        tradingday.Date
	Cash       decimal.Decimal
	Securities decimal.Decimal
	Holdings   []types.Holding
}

// AnchorFrom converts a daily snapshot into an Anchor.
func AnchorFrom(s types.DailySnapshot) Anchor {
	return Anchor{
		AccountID:  s.AccountID,
		Day:        s.Day,
		Cash:       s.Assets.Cash,
		Securities: s.Assets.Securities,
		Holdings:   append([]types.Holding(nil), s.Positions.Holdings...),
	}
}

// Input is everything one reconstruction needs. Flows may contain flows outside
// (Start, End]; they are ignored.
type Input struct {
	Anchor Anchor
	Flows  []types.Flow
	Start  tradingday.Date
	End    tradingday.Date
	// Earliest is the account's first recorded flow; zero when unknown.
	Earliest tradingday.Date
	// Prices values shares that are undone for a symbol the anchor does not hold.
	Prices map[types.PositionKey]decimal.Decimal
}

// Result holds one snapshot of each kind per trading day in [Start, End], ascending.
type Result struct {
	Positions []types.PositionSnapshot
	Assets    []types.AssetSnapshot
}

// Reconstructor is the reverse-flow operator. It is pure: identical inputs always give
// identical results.
type Reconstructor struct {
	cal tradingday.Calendar
}

func NewReconstructor(cal tradingday.Calendar) *Reconstructor {
	return &Reconstructor{cal: cal}
}

type running struct {
	volume      decimal.Decimal
	marketValue decimal.Decimal
	price       decimal.Decimal
	firstBuy    tradingday.Date
	market      string
	symbol      string
}

// Run walks from in.End down to in.Start, emitting the running state for each day
// and then undoing that day's flows.
func (r *Reconstructor) Run(in Input) (Result, error) {
	start, end := in.Start, in.End
	if end.IsZero() {
		end = in.Anchor.Day
	}
	if start.IsZero() || end.Before(start) {
		return Result{}, nil
	}
	if !in.Earliest.IsZero() && start.Before(r.cal.Last(in.Earliest)) {
		return Result{}, &types.GapTooLargeError{Start: start, Earliest: in.Earliest}
	}

	days := r.cal.Between(start, end)
	if len(days) == 0 || days[0] != start {
		// start is always emitted, even when it is not a trading day itself
		days = append([]tradingday.Date{start}, days...)
	}

	byDay := make(map[tradingday.Date][]types.Flow)
	for _, f := range in.Flows {
		if !f.TDate.After(start) || f.TDate.After(end) {
			continue
		}
		byDay[f.TDate] = append(byDay[f.TDate], f)
	}

	cash := in.Anchor.Cash
	securities := in.Anchor.Securities
	state := make(map[types.PositionKey]*running, len(in.Anchor.Holdings))
	for _, h := range in.Anchor.Holdings {
		rs := &running{
			symbol:      h.Symbol,
			market:      h.Market,
			volume:      h.Volume,
			marketValue: h.MarketValue,
			firstBuy:    h.FirstBuyDate,
		}
		if h.Volume.IsPositive() {
			rs.price = h.MarketValue.Div(h.Volume)
		}
		state[h.Key()] = rs
	}

	res := Result{
		Positions: make([]types.PositionSnapshot, len(days)),
		Assets:    make([]types.AssetSnapshot, len(days)),
	}
	// Flows dated between the last emitted trading day and end (a non-trading end) are
	// undone before the first emission.
	for i := len(days) - 1; i >= 0; i-- {
		day := days[i]
		if i == len(days)-1 {
			for _, late := range flowDaysAfter(byDay, day) {
				cash, securities = r.undoDay(byDay[late], state, in.Prices, cash, securities)
			}
		}
		res.Positions[i] = positionSnapshot(in.Anchor.AccountID, day, state)
		res.Assets[i] = types.AssetSnapshot{
			AccountID:  in.Anchor.AccountID,
			Day:        day,
			Cash:       money.Round(cash),
			Securities: money.Round(securities),
			Assets:     money.Round(cash.Add(securities)),
		}
		if i == 0 {
			break
		}
		// undo every flow after the previous emitted day up to and including this one
		prev := days[i-1]
		for d := day; d.After(prev); d = d.AddDays(-1) {
			if flows, ok := byDay[d]; ok {
				cash, securities = r.undoDay(flows, state, in.Prices, cash, securities)
			}
		}
	}
	return res, nil
}

func flowDaysAfter(byDay map[tradingday.Date][]types.Flow, day tradingday.Date) []tradingday.Date {
	var out []tradingday.Date
	for d := range byDay {
		if d.After(day) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out
}

// undoDay reverses one day's flows, latest first.
func (r *Reconstructor) undoDay(flows []types.Flow, state map[types.PositionKey]*running,
	prices map[types.PositionKey]decimal.Decimal, cash, securities decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	ordered := append([]types.Flow(nil), flows...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq > ordered[j].Seq })
	for _, f := range ordered {
		cash = cash.Sub(f.FundEffect)
		if !f.HasSymbol() || f.StkEffect.IsZero() {
			continue
		}
		key := f.Key()
		rs, ok := state[key]
		if !ok {
			// the first-buy date of a holding closed before the anchor is not known
			rs = &running{symbol: f.Symbol, market: f.Market}
			state[key] = rs
		}
		if !rs.price.IsPositive() {
			rs.price = valuationPrice(key, f, prices)
		}
		delta := money.Round(f.StkEffect.Mul(rs.price))
		rs.volume = rs.volume.Sub(f.StkEffect)
		rs.marketValue = rs.marketValue.Sub(delta)
		securities = securities.Sub(delta)
		if rs.volume.IsZero() {
			securities = securities.Sub(rs.marketValue)
			rs.marketValue = money.Zero
		}
	}
	return cash, securities
}

func valuationPrice(key types.PositionKey, f types.Flow, prices map[types.PositionKey]decimal.Decimal) decimal.Decimal {
	if p, ok := prices[key]; ok && p.IsPositive() {
		return p
	}
	if f.Price.IsPositive() {
		return f.Price
	}
	return f.Cost
}

func positionSnapshot(accountID string, day tradingday.Date, state map[types.PositionKey]*running) types.PositionSnapshot {
	holdings := make([]types.Holding, 0, len(state))
	for _, rs := range state {
		if !rs.volume.IsPositive() {
			continue
		}
		holdings = append(holdings, types.Holding{
			Symbol:       rs.symbol,
			Market:       rs.market,
			Volume:       rs.volume,
			MarketValue:  money.Round(rs.marketValue),
			FirstBuyDate: rs.firstBuy,
		})
	}
	types.SortHoldings(holdings)
	return types.PositionSnapshot{AccountID: accountID, Day: day, Holdings: holdings}
}
