package types

import (
	"sort"
	"time"

	"fundledger/internal/money"
	"fundledger/internal/tradingday"

	"github.com/shopspring/decimal"
)

// Position is the current holding of one symbol in one account. A position whose
// volume reaches zero is deleted, never stored as a zero row.
type Position struct {
	AccountID       string          `json:"account_id"`
	Symbol          string          `json:"symbol"`
	Market          string          `json:"market"`
	Volume          decimal.Decimal `json:"volume"`
	AvailableVolume decimal.Decimal `json:"available_volume"`
	Cost            decimal.Decimal `json:"cost"`
	FirstBuyDate    tradingday.Date `json:"first_buy_date"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p Position) Key() PositionKey { return PositionKey{Symbol: p.Symbol, Market: p.Market} }

// MarketValue values the position at price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return money.Round(p.Volume.Mul(price))
}

// Holding is one line of a position snapshot.
type Holding struct {
	Symbol       string          `json:"symbol"`
	Market       string          `json:"market"`
	Volume       decimal.Decimal `json:"volume"`
	MarketValue  decimal.Decimal `json:"market_value"`
	FirstBuyDate tradingday.Date `json:"first_buy_date"`
}

func (h Holding) Key() PositionKey { return PositionKey{Symbol: h.Symbol, Market: h.Market} }

// PositionSnapshot freezes an account's holdings at the close of Day.
type PositionSnapshot struct {
	AccountID string          `json:"account_id"`
	Day       tradingday.Date `json:"day"`
	Holdings  []Holding       `json:"holdings"`
}

// SortHoldings orders holdings by symbol then market so equal snapshots compare equal.
func SortHoldings(h []Holding) {
	sort.Slice(h, func(i, j int) bool {
		if h[i].Symbol != h[j].Symbol {
			return h[i].Symbol < h[j].Symbol
		}
		return h[i].Market < h[j].Market
	})
}

// Securities sums the market value of all holdings.
func (s PositionSnapshot) Securities() decimal.Decimal {
	total := decimal.Zero
	for _, h := range s.Holdings {
		total = total.Add(h.MarketValue)
	}
	return total
}

// AssetSnapshot freezes an account's balances at the close of Day.
type AssetSnapshot struct {
	AccountID  string          `json:"account_id"`
	Day        tradingday.Date `json:"day"`
	Cash       decimal.Decimal `json:"cash"`
	Securities decimal.Decimal `json:"securities"`
	Assets     decimal.Decimal `json:"assets"`
}

// DailySnapshot is the read model of one account on one day.
type DailySnapshot struct {
	AccountID string           `json:"account_id"`
	Day       tradingday.Date  `json:"day"`
	Positions PositionSnapshot `json:"positions"`
	Assets    AssetSnapshot    `json:"assets"`
}
