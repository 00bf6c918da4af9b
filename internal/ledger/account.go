package ledger

import (
	"context"
	"time"

	"fundledger/internal/logger"
	"fundledger/internal/money"
	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// PriceProvider returns the current market price of a security.
type PriceProvider interface {
	GetPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error)
}

// PriceFunc adapts a function to PriceProvider.
type PriceFunc func(ctx context.Context, symbol, market string) (decimal.Decimal, error)

func (f PriceFunc) GetPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	return f(ctx, symbol, market)
}

type applyOptions struct {
	syncDate  *tradingday.Date
	keep      bool
	unchecked bool
}

type ApplyOption func(*applyOptions)

func collectOptions(opts []ApplyOption) applyOptions {
	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSyncDate sets the sync cursor to d instead of rewinding it to the flow date.
func WithSyncDate(d tradingday.Date) ApplyOption {
	return func(o *applyOptions) { o.syncDate = &d }
}

// KeepSyncDate leaves the sync cursor where it is. Reconciliation uses it while it
// rewrites history it is about to re-derive itself.
func KeepSyncDate() ApplyOption {
	return func(o *applyOptions) { o.keep = true }
}

// Unchecked lets RevertFlow skip the cash and position checks and clamp a share
// reversal to the volume still held. Reconciliation uses it while it replaces flows it
// derived itself, knowing it posts their successors right after.
func Unchecked() ApplyOption {
	return func(o *applyOptions) { o.unchecked = true }
}

// AccountLedger applies the cash side of a flow and marks the account to market.
type AccountLedger struct {
	prices PriceProvider
	cal    tradingday.Calendar
	now    func() time.Time
}

func NewAccountLedger(prices PriceProvider, cal tradingday.Calendar) *AccountLedger {
	return &AccountLedger{prices: prices, cal: cal, now: time.Now}
}

// Apply adds the flow's cash effect, re-marks all current positions and rewinds the
// sync cursor to the trading day before the flow unless an override is given. The
// position side must already be applied when the flow moves shares.
func (l *AccountLedger) Apply(ctx context.Context, positions store.PositionRepository, account *types.Account, flow types.Flow, opts ...ApplyOption) error {
	o := collectOptions(opts)
	account.AddCash(flow.FundEffect)
	if err := l.Liquidate(ctx, positions, account); err != nil {
		return err
	}
	switch {
	case o.keep:
	case o.syncDate != nil:
		account.TSDataSyncDate = *o.syncDate
	case account.Synced() && !flow.TDate.IsZero():
		account.TSDataSyncDate = tradingday.Min(account.TSDataSyncDate, l.cal.Last(flow.TDate))
	}
	return nil
}

// Liquidate recomputes securities and assets from the current positions and live prices.
func (l *AccountLedger) Liquidate(ctx context.Context, positions store.PositionRepository, account *types.Account) error {
	held, err := positions.List(ctx, account.ID)
	if err != nil {
		return err
	}
	account.SetSecurities(l.MarketValue(ctx, held))
	account.UpdatedAt = l.now().UTC()
	return nil
}

// MarketValue sums volume × price over held. A position whose quote is unavailable is
// valued at its cost.
func (l *AccountLedger) MarketValue(ctx context.Context, held []types.Position) decimal.Decimal {
	total := money.Zero
	for _, p := range held {
		total = total.Add(p.MarketValue(l.Price(ctx, p)))
	}
	return total
}

// Price returns the live price of p, falling back to its cost.
func (l *AccountLedger) Price(ctx context.Context, p types.Position) decimal.Decimal {
	if l.prices == nil {
		return p.Cost
	}
	price, err := l.prices.GetPrice(ctx, p.Symbol, p.Market)
	if err != nil || !price.IsPositive() {
		logger.Account(p.AccountID).Warn("quote unavailable, valuing at cost",
			"symbol", p.Symbol, "market", p.Market, "cost", p.Cost.String(), "err", err)
		return p.Cost
	}
	return price
}
