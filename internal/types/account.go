package types

import (
	"strings"
	"time"

	"fundledger/internal/money"
	"fundledger/internal/tradingday"

	"github.com/shopspring/decimal"
)

// Account is the present-day state of one fund account.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Capital        decimal.Decimal `json:"capital"`
	Cash           decimal.Decimal `json:"cash"`
	Securities     decimal.Decimal `json:"securities"`
	Assets         decimal.Decimal `json:"assets"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Currency       string          `json:"currency"`
	ImportDate     tradingday.Date `json:"import_date"`
	// TSDataSyncDate is the last trading day whose snapshots are known to be correct.
	TSDataSyncDate tradingday.Date `json:"ts_data_sync_date"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate checks static account settings.
func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return invalid("account_id", "is required")
	}
	if a.CommissionRate.IsNegative() {
		return invalid("commission_rate", "cannot be negative")
	}
	if a.TaxRate.IsNegative() {
		return invalid("tax_rate", "cannot be negative")
	}
	if a.Currency != "" && !money.ValidCurrency(a.Currency) {
		return invalid("currency", "unknown currency "+a.Currency)
	}
	return nil
}

// SetSecurities stores a new securities total and keeps assets = cash + securities.
func (a *Account) SetSecurities(v decimal.Decimal) {
	a.Securities = money.Round(v)
	a.Assets = money.Round(a.Cash.Add(a.Securities))
}

// AddCash applies a cash effect and keeps assets = cash + securities.
func (a *Account) AddCash(delta decimal.Decimal) {
	a.Cash = money.Round(a.Cash.Add(delta))
	a.Assets = money.Round(a.Cash.Add(a.Securities))
}

// Synced reports whether the sync cursor has been set at least once.
func (a Account) Synced() bool { return !a.TSDataSyncDate.IsZero() }

// AssetSnapshot renders the account balances as a snapshot for day.
func (a Account) AssetSnapshot(day tradingday.Date) AssetSnapshot {
	return AssetSnapshot{
		AccountID:  a.ID,
		Day:        day,
		Cash:       a.Cash,
		Securities: a.Securities,
		Assets:     a.Assets,
	}
}
