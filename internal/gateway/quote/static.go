package quote

import (
	"context"
	"sync"

	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// Static serves prices set by hand. Unknown symbols are reported unavailable,
// which makes the ledger value them at cost.
type Static struct {
	mu     sync.RWMutex
	prices map[types.PositionKey]decimal.Decimal
}

func NewStatic() *Static {
	return &Static{prices: make(map[types.PositionKey]decimal.Decimal)}
}

func (s *Static) Set(symbol, market string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[types.PositionKey{Symbol: symbol, Market: market}] = price
}

func (s *Static) GetPrice(_ context.Context, symbol, market string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[types.PositionKey{Symbol: symbol, Market: market}]
	if !ok {
		return decimal.Zero, types.Unavailable("static quote", symbol, nil)
	}
	return price, nil
}
