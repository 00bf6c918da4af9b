package store

import (
	"context"
	"errors"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"
)

// ErrNotFound is returned by lookups that require the record to exist.
var ErrNotFound = errors.New("record not found")

// Repositories groups the ledger repositories. A Store serves them outside any
// transaction, a UnitOfWork serves them inside one.
type Repositories interface {
	Accounts() AccountRepository
	Positions() PositionRepository
	Flows() FlowRepository
	Snapshots() SnapshotRepository
	Dividends() DividendRepository
}

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	Repositories
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction. It is a no-op after Commit.
	Rollback() error
}

// Store is the entry point for database access.
type Store interface {
	Repositories
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// AccountRepository handles fund account persistence.
type AccountRepository interface {
	// Get returns ErrNotFound when the account does not exist.
	Get(ctx context.Context, id string) (*types.Account, error)
	Save(ctx context.Context, account *types.Account) error
	List(ctx context.Context) ([]types.Account, error)
	// ListBehind returns accounts whose sync cursor is unset or before day.
	ListBehind(ctx context.Context, day tradingday.Date) ([]types.Account, error)
}

// PositionRepository handles open positions, one row per (account, symbol, market).
type PositionRepository interface {
	// Get returns nil, nil when the position does not exist.
	Get(ctx context.Context, accountID string, key types.PositionKey) (*types.Position, error)
	List(ctx context.Context, accountID string) ([]types.Position, error)
	Save(ctx context.Context, position *types.Position) error
	Delete(ctx context.Context, accountID string, key types.PositionKey) error
}

// FlowQuery filters a flow listing. Zero fields match everything.
type FlowQuery struct {
	AccountID string
	From      tradingday.Date
	To        tradingday.Date
	Types     []types.FlowType
	Symbol    string
	Market    string
	Synthetic *bool
}

// FlowRepository handles the append-mostly flow log.
type FlowRepository interface {
	Insert(ctx context.Context, flow *types.Flow) error
	// Get returns ErrNotFound when the flow does not exist.
	Get(ctx context.Context, id string) (*types.Flow, error)
	Delete(ctx context.Context, id string) error
	// List returns matching flows ordered by trade date then sequence.
	List(ctx context.Context, q FlowQuery) ([]types.Flow, error)
	// Earliest returns the oldest trade date of an account, zero when it has no flows.
	Earliest(ctx context.Context, accountID string) (tradingday.Date, error)
}

// SnapshotRepository handles the daily time series. Upserts replace whole rows.
type SnapshotRepository interface {
	UpsertPositions(ctx context.Context, snaps []types.PositionSnapshot) error
	UpsertAssets(ctx context.Context, snaps []types.AssetSnapshot) error
	// GetPositions returns nil, nil when no snapshot exists for the day.
	GetPositions(ctx context.Context, accountID string, day tradingday.Date) (*types.PositionSnapshot, error)
	// GetAssets returns nil, nil when no snapshot exists for the day.
	GetAssets(ctx context.Context, accountID string, day tradingday.Date) (*types.AssetSnapshot, error)
	ListPositions(ctx context.Context, accountID string, from, to tradingday.Date) ([]types.PositionSnapshot, error)
	ListAssets(ctx context.Context, accountID string, from, to tradingday.Date) ([]types.AssetSnapshot, error)
}

// DividendRepository keeps imported corporate actions, keyed by (symbol, market, ex-date).
type DividendRepository interface {
	Upsert(ctx context.Context, details []types.DividendDetail) error
	// List returns details whose ex-dividend date is within [from, to], ascending.
	List(ctx context.Context, symbol, market string, from, to tradingday.Date) ([]types.DividendDetail, error)
}

// RunLogRepository keeps the history of pipeline runs. It lives outside the
// UnitOfWork: a run is logged even when its stages rolled back.
type RunLogRepository interface {
	Insert(ctx context.Context, rec *types.RunRecord) error
	// List returns the newest runs first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]types.RunRecord, error)
}

// RunLogStore is implemented by stores that can keep a run history.
type RunLogStore interface {
	RunLogs() RunLogRepository
}

// InTx runs fn inside a UnitOfWork, committing when fn succeeds and rolling back otherwise.
func InTx(ctx context.Context, s Store, fn func(uow UnitOfWork) error) (err error) {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback()
			panic(p)
		}
		if err != nil {
			_ = uow.Rollback()
		}
	}()
	if err = fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}

// Match reports whether f satisfies q. Store implementations share it so their
// filtering rules cannot diverge.
func (q FlowQuery) Match(f types.Flow) bool {
	if q.AccountID != "" && f.AccountID != q.AccountID {
		return false
	}
	if !q.From.IsZero() && f.TDate.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && f.TDate.After(q.To) {
		return false
	}
	if q.Symbol != "" && f.Symbol != q.Symbol {
		return false
	}
	if q.Market != "" && f.Market != q.Market {
		return false
	}
	if q.Synthetic != nil && f.Synthetic != *q.Synthetic {
		return false
	}
	if len(q.Types) > 0 {
		ok := false
		for _, t := range q.Types {
			if f.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Bool returns a pointer to v, for FlowQuery.Synthetic.
func Bool(v bool) *bool { return &v }
