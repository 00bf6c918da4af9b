package reconcile

import (
	"context"
	"sort"

	"fundledger/internal/ledger"
	"fundledger/internal/logger"
	"fundledger/internal/money"
	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// regenerateDividends makes the synthetic dividends dated on or after from match the
// ones the corporate-action data implies for [from, through]. Stale flows the data
// still implies are kept as they are; new ones are posted before the rest of the
// stale ones are reverted, so bonus shares sold in the meantime never have to come
// off a position that no longer holds them.
func (r *Reconciler) regenerateDividends(ctx context.Context, phase string, acc types.Account, from, through tradingday.Date) (Report, error) {
	rep := Report{AccountID: acc.ID, Phase: phase, From: from, To: through}
	log := logger.Stage(phase, through.String(), acc.ID)

	stale, err := r.svc.Store().Flows().List(ctx, store.FlowQuery{
		AccountID: acc.ID,
		From:      from,
		Types:     []types.FlowType{types.FlowDividend},
		Synthetic: store.Bool(true),
	})
	if err != nil {
		return rep, err
	}
	book, err := r.holdingBook(ctx, acc.ID)
	if err != nil {
		return rep, err
	}
	queryFrom := tradingday.Back(r.cal, from, r.cfg.PayLagDays)
	keys := book.Symbols(queryFrom)
	for _, f := range stale {
		keys = append(keys, f.Key())
	}
	keys = uniqueKeys(keys)

	// fetch first: a symbol without data keeps its existing dividends
	details := make(map[types.PositionKey][]types.DividendDetail, len(keys))
	for _, key := range keys {
		list, ok, err := r.details(ctx, acc.ID, key, queryFrom, through)
		if err != nil {
			return rep, err
		}
		if !ok {
			rep.Skipped = append(rep.Skipped, key.String())
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ExDividendDate.Before(list[j].ExDividendDate) })
		details[key] = list
	}

	var replaced []types.Flow
	for _, f := range stale {
		if _, ok := details[f.Key()]; ok {
			replaced = append(replaced, f)
			book.Remove(f)
		}
	}
	fresh, err := r.planDividends(acc, keys, details, book, from, through)
	if err != nil {
		return rep, err
	}
	kept := make(map[string]bool, len(replaced))
	var post []types.Flow
	for _, f := range fresh {
		if id := sameDividend(replaced, kept, f); id != "" {
			kept[id] = true
			continue
		}
		post = append(post, f)
	}
	rep.Kept = len(kept)

	for _, f := range post {
		if _, err := r.svc.PostFlow(ctx, f); err != nil {
			return rep, err
		}
		rep.Inserted++
		log.Debug("dividend posted", "symbol", f.Key().String(), "tdate", f.TDate.String(),
			"cash", f.FundEffect.String(), "shares", f.StkEffect.String())
	}
	// newest first so bonus shares come off in the reverse order they went on
	for i := len(replaced) - 1; i >= 0; i-- {
		if kept[replaced[i].ID] {
			continue
		}
		if _, err := r.svc.RevertFlow(ctx, replaced[i].ID, ledger.Unchecked()); err != nil {
			return rep, err
		}
		rep.Removed++
	}
	if rep.Changed() || len(rep.Skipped) > 0 {
		log.Info("dividends reconciled", "from", from.String(), "to", through.String(),
			"removed", rep.Removed, "inserted", rep.Inserted, "kept", rep.Kept, "skipped", len(rep.Skipped))
	}
	return rep, nil
}

// planDividends derives the dividend flows of [from, through] from details, sizing each
// by the volume book says was held on its entitlement day.
func (r *Reconciler) planDividends(acc types.Account, keys []types.PositionKey, details map[types.PositionKey][]types.DividendDetail,
	book *holdingBook, from, through tradingday.Date) ([]types.Flow, error) {
	var out []types.Flow
	for _, key := range keys {
		for _, d := range details[key] {
			if d.Empty() {
				continue
			}
			day := r.dividendDay(d, through)
			if day.Before(from) || day.After(through) {
				continue
			}
			vol := book.VolumeAt(key, d.EntitlementDay(r.cal))
			if !vol.IsPositive() {
				continue
			}
			cash := money.Round(vol.Mul(d.CashPerShare))
			shares := vol.Mul(d.SharesPerShare).Floor()
			if cash.IsZero() && shares.IsZero() {
				continue
			}
			flow, err := types.NewDividend(acc.ID, key.Symbol, key.Market, cash, shares, day)
			if err != nil {
				return nil, err
			}
			flow.Synthetic = true
			flow.Currency = acc.Currency
			book.Add(flow)
			out = append(out, flow)
		}
	}
	return out, nil
}

// sameDividend returns the id of a stored dividend in candidates that books exactly
// what f books and is not yet claimed.
func sameDividend(candidates []types.Flow, claimed map[string]bool, f types.Flow) string {
	for _, c := range candidates {
		if claimed[c.ID] || c.Key() != f.Key() || c.TDate != f.TDate {
			continue
		}
		if c.FundEffect.Equal(f.FundEffect) && c.StkEffect.Equal(f.StkEffect) {
			return c.ID
		}
	}
	return ""
}

// dividendDay books a dividend on its pay date once that has passed, otherwise on the
// ex-dividend date.
func (r *Reconciler) dividendDay(d types.DividendDetail, through tradingday.Date) tradingday.Date {
	if !d.PayDate.IsZero() {
		if pay := tradingday.Ceil(r.cal, d.PayDate); !pay.After(through) {
			return pay
		}
	}
	return tradingday.Ceil(r.cal, d.ExDividendDate)
}

func (r *Reconciler) holdingBook(ctx context.Context, accountID string) (*holdingBook, error) {
	positions, err := r.svc.Store().Positions().List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	flows, err := r.svc.Store().Flows().List(ctx, store.FlowQuery{AccountID: accountID})
	if err != nil {
		return nil, err
	}
	return newHoldingBook(positions, flows), nil
}

// perShare spreads amount over volume, or returns zero when nothing is held.
func perShare(amount, volume decimal.Decimal) decimal.Decimal {
	if !volume.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(volume)
}
