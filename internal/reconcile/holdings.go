package reconcile

import (
	"sort"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// holdingBook answers "how many shares were held at the close of day" by walking back
// from the present positions through the flows dated after that day. Flows posted
// during a run are added so later entitlement days see them.
type holdingBook struct {
	current map[types.PositionKey]decimal.Decimal
	flows   []types.Flow
}

func newHoldingBook(positions []types.Position, flows []types.Flow) *holdingBook {
	b := &holdingBook{current: make(map[types.PositionKey]decimal.Decimal, len(positions))}
	for _, p := range positions {
		b.current[p.Key()] = p.Volume
	}
	for _, f := range flows {
		if f.HasSymbol() && !f.StkEffect.IsZero() {
			b.flows = append(b.flows, f)
		}
	}
	return b
}

// VolumeAt returns the volume of key held at the close of day.
func (b *holdingBook) VolumeAt(key types.PositionKey, day tradingday.Date) decimal.Decimal {
	vol := b.current[key]
	for _, f := range b.flows {
		if f.Key() == key && f.TDate.After(day) {
			vol = vol.Sub(f.StkEffect)
		}
	}
	if vol.IsNegative() {
		return decimal.Zero
	}
	return vol
}

// Add records a flow that was just applied to the live positions.
func (b *holdingBook) Add(f types.Flow) {
	if !f.HasSymbol() || f.StkEffect.IsZero() {
		return
	}
	b.current[f.Key()] = b.current[f.Key()].Add(f.StkEffect)
	b.flows = append(b.flows, f)
}

// Remove takes back a stored flow that is about to be replaced.
func (b *holdingBook) Remove(f types.Flow) {
	if !f.HasSymbol() || f.StkEffect.IsZero() {
		return
	}
	b.current[f.Key()] = b.current[f.Key()].Sub(f.StkEffect)
	for i := range b.flows {
		if b.flows[i].ID == f.ID {
			b.flows = append(b.flows[:i], b.flows[i+1:]...)
			return
		}
	}
}

// Symbols lists every key held now or moved by a flow dated after from.
func (b *holdingBook) Symbols(from tradingday.Date) []types.PositionKey {
	seen := make(map[types.PositionKey]struct{})
	var out []types.PositionKey
	add := func(k types.PositionKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for k, v := range b.current {
		if v.IsPositive() {
			add(k)
		}
	}
	for _, f := range b.flows {
		if !f.TDate.Before(from) {
			add(f.Key())
		}
	}
	sortKeys(out)
	return out
}

func sortKeys(keys []types.PositionKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

func uniqueKeys(keys []types.PositionKey) []types.PositionKey {
	seen := make(map[types.PositionKey]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sortKeys(out)
	return out
}
