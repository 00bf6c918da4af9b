// Package corpaction supplies dividend and bonus-share details to reconciliation.
package corpaction

import (
	"context"

	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"
)

// Store serves details previously imported into the dividend table.
type Store struct {
	repo store.DividendRepository
}

func NewStore(repo store.DividendRepository) *Store {
	return &Store{repo: repo}
}

func (s *Store) GetDividendDetail(ctx context.Context, symbol, market string, from, to tradingday.Date) ([]types.DividendDetail, error) {
	details, err := s.repo.List(ctx, symbol, market, from, to)
	if err != nil {
		return nil, types.Unavailable("dividend store", symbol, err)
	}
	return details, nil
}
