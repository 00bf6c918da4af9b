package ledger

import (
	"context"
	"time"

	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// PositionUpdateResult reports what PositionLedger.Apply did. Position is nil when the
// holding was deleted or never existed.
type PositionUpdateResult struct {
	Position *types.Position
	Created  bool
	Deleted  bool
	Changed  bool

	// Closed is the position as it stood before a flow deleted it.
	Closed *types.Position
	// Adjustment is the total cost-basis change of a tax flow.
	Adjustment decimal.Decimal
}

// Record copies what a later reversal needs onto flow before it is stored.
func (r PositionUpdateResult) Record(flow types.Flow) types.Flow {
	if flow.Reversal {
		return flow
	}
	if r.Deleted && r.Closed != nil {
		flow.PrevCost = r.Closed.Cost
		flow.PrevFirstBuyDate = r.Closed.FirstBuyDate
	}
	if flow.Type == types.FlowTax {
		flow.CostAdjustment = r.Adjustment
	}
	return flow
}

// PositionLedger applies the share side of a flow.
type PositionLedger struct {
	now func() time.Time
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{now: time.Now}
}

// Apply updates the position touched by flow with exactly one upsert or delete.
// Flows that do not move shares or cost (deposits, cash dividends) write nothing.
func (l *PositionLedger) Apply(ctx context.Context, positions store.PositionRepository, flow types.Flow) (PositionUpdateResult, error) {
	if !flow.HasSymbol() {
		return PositionUpdateResult{}, nil
	}
	cur, err := positions.Get(ctx, flow.AccountID, flow.Key())
	if err != nil {
		return PositionUpdateResult{}, err
	}
	res, err := NextPosition(cur, flow)
	if err != nil {
		return PositionUpdateResult{}, err
	}
	switch {
	case !res.Changed:
		return res, nil
	case res.Deleted:
		return res, positions.Delete(ctx, flow.AccountID, flow.Key())
	default:
		res.Position.UpdatedAt = l.now().UTC()
		return res, positions.Save(ctx, res.Position)
	}
}

// NextPosition computes the position after flow without touching storage.
//
// Acquisitions move the cost to the volume-weighted average and reversals of
// acquisitions run the same formula backwards. Reductions keep cost. Undoing a
// reduction that closed the position reopens it at the recorded PrevCost, so a flow
// followed by its negation is a no-op.
func NextPosition(cur *types.Position, flow types.Flow) (PositionUpdateResult, error) {
	res := PositionUpdateResult{Position: clonePosition(cur)}
	if flow.Type == types.FlowTax {
		return taxAdjust(res, cur, flow), nil
	}

	stk := flow.StkEffect
	if stk.IsZero() {
		return res, nil
	}
	reopen := flow.Reversal && stk.IsPositive() && !flow.PrevFirstBuyDate.IsZero()
	if cur == nil {
		if stk.IsNegative() {
			return res, &types.InsufficientPositionError{
				AccountID: flow.AccountID, Symbol: flow.Symbol, Held: decimal.Zero, Requested: stk.Neg(),
			}
		}
		res.Position = &types.Position{
			AccountID:       flow.AccountID,
			Symbol:          flow.Symbol,
			Market:          flow.Market,
			Volume:          stk,
			AvailableVolume: stk,
			Cost:            flow.Cost,
			FirstBuyDate:    flow.TDate,
		}
		if reopen {
			res.Position.Cost = flow.PrevCost
			res.Position.FirstBuyDate = flow.PrevFirstBuyDate
		}
		res.Created = true
		res.Changed = true
		return res, nil
	}

	next := res.Position
	volume := cur.Volume.Add(stk)
	if volume.IsNegative() {
		return PositionUpdateResult{}, &types.InsufficientPositionError{
			AccountID: flow.AccountID, Symbol: flow.Symbol, Held: cur.Volume, Requested: stk.Neg(),
		}
	}
	res.Changed = true
	if volume.IsZero() {
		res.Position = nil
		res.Deleted = true
		res.Closed = clonePosition(cur)
		return res, nil
	}
	switch {
	case reopen:
		// shares bought after the close merge with the reopened lot
		next.Cost = cur.Cost.Mul(cur.Volume).Add(flow.PrevCost.Mul(stk)).Div(volume)
		next.FirstBuyDate = tradingday.Min(cur.FirstBuyDate, flow.PrevFirstBuyDate)
	case stk.IsPositive() != flow.Reversal:
		next.Cost = cur.Cost.Mul(cur.Volume).Add(flow.Cost.Mul(stk)).Div(volume)
	}
	next.Volume = volume
	next.AvailableVolume = cur.AvailableVolume.Add(stk)
	if next.AvailableVolume.IsNegative() {
		next.AvailableVolume = decimal.Zero
	}
	if next.AvailableVolume.GreaterThan(volume) {
		next.AvailableVolume = volume
	}
	return res, nil
}

// taxAdjust spreads a tax flow over the shares held now. The charge adds Cost per
// share; its reversal takes the recorded total back out over the current volume, so a
// buy in between does not leave a residue.
func taxAdjust(res PositionUpdateResult, cur *types.Position, flow types.Flow) PositionUpdateResult {
	if cur == nil || !cur.Volume.IsPositive() {
		return res
	}
	if flow.Reversal {
		if flow.CostAdjustment.IsZero() {
			return res
		}
		res.Position.Cost = cur.Cost.Sub(flow.CostAdjustment.Div(cur.Volume))
		res.Changed = true
		return res
	}
	if flow.Cost.IsZero() {
		return res
	}
	res.Position.Cost = cur.Cost.Add(flow.Cost)
	res.Adjustment = flow.Cost.Mul(cur.Volume)
	res.Changed = true
	return res
}

func clonePosition(p *types.Position) *types.Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
