package types

import (
	"fundledger/internal/tradingday"

	"github.com/shopspring/decimal"
)

// DividendDetail is one authoritative corporate action for a symbol.
type DividendDetail struct {
	Symbol         string          `json:"symbol"`
	Market         string          `json:"market"`
	RecordDate     tradingday.Date `json:"record_date"`
	ExDividendDate tradingday.Date `json:"ex_dividend_date"`
	PayDate        tradingday.Date `json:"pay_date"`
	// CashPerShare is paid for every share held at the close of RecordDate.
	CashPerShare decimal.Decimal `json:"cash_per_share"`
	// SharesPerShare is the bonus/transfer ratio, e.g. 0.3 for 3 shares per 10 held.
	SharesPerShare decimal.Decimal `json:"shares_per_share"`
}

func (d DividendDetail) Key() PositionKey { return PositionKey{Symbol: d.Symbol, Market: d.Market} }

// Empty reports a detail that pays nothing.
func (d DividendDetail) Empty() bool {
	return !d.CashPerShare.IsPositive() && !d.SharesPerShare.IsPositive()
}

// EntitlementDay is the close whose holdings earn the dividend: the record date, or the
// day before the ex-date when no record date is known.
func (d DividendDetail) EntitlementDay(cal tradingday.Calendar) tradingday.Date {
	if !d.RecordDate.IsZero() {
		return tradingday.Floor(cal, d.RecordDate)
	}
	return cal.Last(d.ExDividendDate)
}
