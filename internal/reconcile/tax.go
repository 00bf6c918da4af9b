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

type lot struct {
	acquired tradingday.Date
	volume   decimal.Decimal
}

// fifoMatches replays a symbol's flows in order and returns the lots the sale sellID
// consumed, oldest first.
func fifoMatches(flows []types.Flow, sellID string) []lot {
	var queue []lot
	for _, f := range flows {
		switch {
		case f.StkEffect.IsPositive():
			queue = append(queue, lot{acquired: f.TDate, volume: f.StkEffect})
		case f.StkEffect.IsNegative():
			want := f.StkEffect.Neg()
			var used []lot
			for want.IsPositive() && len(queue) > 0 {
				take := decimal.Min(want, queue[0].volume)
				used = append(used, lot{acquired: queue[0].acquired, volume: take})
				want = want.Sub(take)
				queue[0].volume = queue[0].volume.Sub(take)
				if !queue[0].volume.IsPositive() {
					queue = queue[1:]
				}
			}
			if f.ID == sellID {
				return used
			}
		}
	}
	return nil
}

// rate is the tax rate for a holding period of days.
func (r *Reconciler) rate(days int) decimal.Decimal {
	for _, b := range r.cfg.TaxBrackets {
		if b.MaxDays <= 0 || days <= b.MaxDays {
			return b.Rate
		}
	}
	return decimal.Zero
}

func sortBrackets(brackets []TaxBracket) []TaxBracket {
	out := append([]TaxBracket(nil), brackets...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MaxDays <= 0 || out[j].MaxDays <= 0 {
			return out[j].MaxDays <= 0 && out[i].MaxDays > 0
		}
		return out[i].MaxDays < out[j].MaxDays
	})
	return out
}

// dividendTax is the tax owed on the dividends each consumed lot collected while held.
func (r *Reconciler) dividendTax(sell types.Flow, lots []lot, details []types.DividendDetail) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		perShare := decimal.Zero
		for _, d := range details {
			if l.acquired.Before(d.ExDividendDate) && !d.ExDividendDate.After(sell.TDate) {
				perShare = perShare.Add(d.CashPerShare)
			}
		}
		if perShare.IsZero() {
			continue
		}
		total = total.Add(perShare.Mul(l.volume).Mul(r.rate(sell.TDate.DaysSince(l.acquired))))
	}
	return money.Round(total)
}

func (r *Reconciler) liquidateTax(ctx context.Context, accountID string, through tradingday.Date) (Report, error) {
	acc, err := r.svc.GetAccount(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	from := r.window(acc, through)
	rep := Report{AccountID: accountID, Phase: PhaseTax, From: from, To: through}
	log := logger.Stage(PhaseTax, through.String(), accountID)
	flows := r.svc.Store().Flows()

	stale, err := flows.List(ctx, store.FlowQuery{
		AccountID: accountID,
		From:      from,
		Types:     []types.FlowType{types.FlowTax},
		Synthetic: store.Bool(true),
	})
	if err != nil {
		return rep, err
	}
	sells, err := flows.List(ctx, store.FlowQuery{
		AccountID: accountID,
		From:      from,
		To:        through,
		Types:     []types.FlowType{types.FlowSell},
	})
	if err != nil {
		return rep, err
	}
	byKey := make(map[types.PositionKey][]types.Flow)
	keys := make([]types.PositionKey, 0, len(sells)+len(stale))
	for _, s := range sells {
		byKey[s.Key()] = append(byKey[s.Key()], s)
		keys = append(keys, s.Key())
	}
	for _, f := range stale {
		keys = append(keys, f.Key())
	}
	keys = uniqueKeys(keys)

	histories := make(map[types.PositionKey][]types.Flow, len(keys))
	details := make(map[types.PositionKey][]types.DividendDetail, len(keys))
	for _, key := range keys {
		history, err := flows.List(ctx, store.FlowQuery{AccountID: accountID, Symbol: key.Symbol, Market: key.Market, To: through})
		if err != nil {
			return rep, err
		}
		if len(history) == 0 {
			continue
		}
		list, ok, err := r.details(ctx, accountID, key, history[0].TDate, through)
		if err != nil {
			return rep, err
		}
		if !ok {
			rep.Skipped = append(rep.Skipped, key.String())
			continue
		}
		histories[key], details[key] = history, list
	}

	for i := len(stale) - 1; i >= 0; i-- {
		if _, ok := details[stale[i].Key()]; !ok {
			continue
		}
		if _, err := r.svc.RevertFlow(ctx, stale[i].ID, ledger.Unchecked()); err != nil {
			return rep, err
		}
		rep.Removed++
	}

	for _, key := range keys {
		list, ok := details[key]
		if !ok {
			continue
		}
		for _, sell := range byKey[key] {
			tax := r.dividendTax(sell, fifoMatches(histories[key], sell.ID), list)
			if !tax.IsPositive() {
				continue
			}
			held, err := r.svc.Store().Positions().Get(ctx, accountID, key)
			if err != nil {
				return rep, err
			}
			volume := decimal.Zero
			if held != nil {
				volume = held.Volume
			}
			flow, err := types.NewTax(accountID, key.Symbol, key.Market, tax, perShare(tax, volume), sell.TDate)
			if err != nil {
				return rep, err
			}
			flow.Synthetic = true
			flow.Currency = acc.Currency
			if _, err := r.svc.PostFlow(ctx, flow); err != nil {
				return rep, err
			}
			rep.Inserted++
			log.Debug("dividend tax posted", "symbol", key.String(), "sell", sell.ID, "tax", tax.String())
		}
	}

	if rep.Changed() {
		if err := r.rebuild(ctx, accountID, from, through); err != nil {
			return rep, err
		}
		log.Info("dividend tax reconciled", "from", from.String(), "to", through.String(),
			"removed", rep.Removed, "inserted", rep.Inserted)
	}
	return rep, nil
}
