// Package reconcile keeps synthesized dividend and dividend-tax flows consistent with
// the authoritative corporate-action data, then rebuilds the affected daily series.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"fundledger/internal/ledger"
	"fundledger/internal/logger"
	"fundledger/internal/store"
	"fundledger/internal/timeseries"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// CorporateActionProvider returns the dividend details of a symbol whose ex-dividend
// date falls in [from, to]. A lookup that cannot be served returns an error wrapping
// types.ErrExternalData.
type CorporateActionProvider interface {
	GetDividendDetail(ctx context.Context, symbol, market string, from, to tradingday.Date) ([]types.DividendDetail, error)
}

// TaxBracket taxes dividends on shares held at most MaxDays calendar days. MaxDays of
// zero matches any holding period.
type TaxBracket struct {
	MaxDays int             `json:"max_days"`
	Rate    decimal.Decimal `json:"rate"`
}

type Config struct {
	// LookbackDays is how many trading days before the target each run re-derives.
	LookbackDays int
	// PayLagDays widens the corporate-action query so dividends paid inside the window
	// but going ex before it are found again.
	PayLagDays  int
	TaxBrackets []TaxBracket
}

func DefaultConfig() Config {
	return Config{
		LookbackDays: 20,
		PayLagDays:   30,
		TaxBrackets: []TaxBracket{
			{MaxDays: 30, Rate: decimal.RequireFromString("0.2")},
			{MaxDays: 365, Rate: decimal.RequireFromString("0.1")},
			{MaxDays: 0, Rate: decimal.Zero},
		},
	}
}

// Report describes one phase run for one account.
type Report struct {
	AccountID string          `json:"account_id"`
	Phase     string          `json:"phase"`
	From      tradingday.Date `json:"from"`
	To        tradingday.Date `json:"to"`
	Removed   int             `json:"removed"`
	Inserted  int             `json:"inserted"`
	Kept      int             `json:"kept"`
	// Skipped lists the symbols whose corporate-action data was unavailable.
	Skipped []string `json:"skipped,omitempty"`
}

func (r Report) Changed() bool { return r.Removed > 0 || r.Inserted > 0 }

const (
	PhaseDividend = "dividend_liquidation"
	PhaseFinalize = "dividend_finalize"
	PhaseTax      = "tax_liquidation"
)

type Reconciler struct {
	svc     *ledger.Service
	syncer  *timeseries.Syncer
	actions CorporateActionProvider
	cal     tradingday.Calendar
	cfg     Config
}

func New(svc *ledger.Service, syncer *timeseries.Syncer, actions CorporateActionProvider, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.PayLagDays <= 0 {
		cfg.PayLagDays = def.PayLagDays
	}
	if len(cfg.TaxBrackets) == 0 {
		cfg.TaxBrackets = def.TaxBrackets
	}
	cfg.TaxBrackets = sortBrackets(cfg.TaxBrackets)
	return &Reconciler{svc: svc, syncer: syncer, actions: actions, cal: svc.Calendar(), cfg: cfg}
}

// Accounts lists every account the batch phases should visit.
func (r *Reconciler) Accounts(ctx context.Context) ([]types.Account, error) {
	return r.svc.Store().Accounts().List(ctx)
}

// LiquidateDividends is phase A: over the lookback window it replaces every synthetic
// dividend flow with one derived from the corporate-action data, then rebuilds the window.
func (r *Reconciler) LiquidateDividends(ctx context.Context, accountID string, through tradingday.Date) (Report, error) {
	return r.locked(ctx, accountID, func() (Report, error) { return r.liquidateDividends(ctx, accountID, through) })
}

// FinalizeDividendFlows is phase B: it re-derives dividends in [cursor, through],
// re-marks the account and stores the present-day snapshot.
func (r *Reconciler) FinalizeDividendFlows(ctx context.Context, accountID string, through tradingday.Date) (Report, error) {
	return r.locked(ctx, accountID, func() (Report, error) { return r.finalizeDividends(ctx, accountID, through) })
}

// LiquidateTax is phase C: it recomputes the dividend tax owed by every sale in the
// lookback window.
func (r *Reconciler) LiquidateTax(ctx context.Context, accountID string, through tradingday.Date) (Report, error) {
	return r.locked(ctx, accountID, func() (Report, error) { return r.liquidateTax(ctx, accountID, through) })
}

// ReconcileAccount runs phases A, B and C under a single lock.
func (r *Reconciler) ReconcileAccount(ctx context.Context, accountID string, through tradingday.Date) ([]Report, error) {
	unlock, err := r.svc.Locker().Lock(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	steps := []func(context.Context, string, tradingday.Date) (Report, error){
		r.liquidateDividends,
		r.finalizeDividends,
		r.liquidateTax,
	}
	reports := make([]Report, 0, len(steps))
	for _, step := range steps {
		rep, err := step(ctx, accountID, through)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (r *Reconciler) locked(ctx context.Context, accountID string, fn func() (Report, error)) (Report, error) {
	unlock, err := r.svc.Locker().Lock(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	defer unlock()
	return fn()
}

// window is [min(cursor, through - lookback), through], never earlier than the day
// before the import date.
func (r *Reconciler) window(acc types.Account, through tradingday.Date) tradingday.Date {
	floor := r.cal.Last(acc.ImportDate)
	cursor := acc.TSDataSyncDate
	if cursor.IsZero() {
		cursor = floor
	}
	start := tradingday.Min(cursor, tradingday.Back(r.cal, through, r.cfg.LookbackDays))
	return tradingday.Max(start, floor)
}

func (r *Reconciler) liquidateDividends(ctx context.Context, accountID string, through tradingday.Date) (Report, error) {
	acc, err := r.svc.GetAccount(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	from := r.window(acc, through)
	rep, err := r.regenerateDividends(ctx, PhaseDividend, acc, from, through)
	if err != nil {
		return rep, err
	}
	if err := r.rebuild(ctx, accountID, from, through); err != nil {
		return rep, err
	}
	return rep, nil
}

func (r *Reconciler) finalizeDividends(ctx context.Context, accountID string, through tradingday.Date) (Report, error) {
	acc, err := r.svc.GetAccount(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	from := acc.TSDataSyncDate
	if from.IsZero() || from.After(through) {
		from = r.window(acc, through)
	}
	rep, err := r.regenerateDividends(ctx, PhaseFinalize, acc, from, through)
	if err != nil {
		return rep, err
	}
	if rep.Changed() {
		if err := r.rebuild(ctx, accountID, from, through); err != nil {
			return rep, err
		}
	}
	if _, err := r.svc.Liquidate(ctx, accountID); err != nil {
		return rep, err
	}
	return rep, r.storePresentDay(ctx, accountID, through)
}

// storePresentDay writes the live state as the snapshot of through, unless flows dated
// after through mean the live state is not through's close.
func (r *Reconciler) storePresentDay(ctx context.Context, accountID string, through tradingday.Date) error {
	later, err := r.svc.Store().Flows().List(ctx, store.FlowQuery{AccountID: accountID, From: through.AddDays(1)})
	if err != nil {
		return err
	}
	if len(later) > 0 {
		return nil
	}
	snap, err := r.svc.CurrentSnapshot(ctx, accountID, through)
	if err != nil {
		return err
	}
	return store.InTx(ctx, r.svc.Store(), func(uow store.UnitOfWork) error {
		if err := uow.Snapshots().UpsertPositions(ctx, []types.PositionSnapshot{snap.Positions}); err != nil {
			return err
		}
		return uow.Snapshots().UpsertAssets(ctx, []types.AssetSnapshot{snap.Assets})
	})
}

// rebuild reconstructs from the earlier of from and the (possibly rewound) cursor.
func (r *Reconciler) rebuild(ctx context.Context, accountID string, from, through tradingday.Date) error {
	acc, err := r.svc.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	start := tradingday.Min(from, acc.TSDataSyncDate)
	if start.After(through) {
		start = through
	}
	_, err = r.syncer.Rebuild(ctx, accountID, start, through)
	return err
}

// details fetches corporate actions for key. A lookup failure that wraps
// types.ErrExternalData is logged and reported as ok=false.
func (r *Reconciler) details(ctx context.Context, accountID string, key types.PositionKey, from, to tradingday.Date) ([]types.DividendDetail, bool, error) {
	list, err := r.actions.GetDividendDetail(ctx, key.Symbol, key.Market, from, to)
	if errors.Is(err, types.ErrExternalData) {
		logger.Account(accountID).Warn("corporate action data unavailable, skipping symbol",
			"symbol", key.String(), "from", from.String(), "to", to.String(), "error", err)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dividend detail %s: %w", key, err)
	}
	return list, true, nil
}
