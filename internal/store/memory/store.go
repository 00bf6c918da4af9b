// Package memory is an in-process Store used by tests and the dry-run mode of ledgerctl.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"
)

type state struct {
	accounts  map[string]types.Account
	positions map[string]map[types.PositionKey]types.Position
	flows     map[string]types.Flow
	posSnaps  map[string]map[tradingday.Date]types.PositionSnapshot
	assetSnap map[string]map[tradingday.Date]types.AssetSnapshot
	dividends map[types.PositionKey]map[tradingday.Date]types.DividendDetail
}

func newState() *state {
	return &state{
		accounts:  make(map[string]types.Account),
		positions: make(map[string]map[types.PositionKey]types.Position),
		flows:     make(map[string]types.Flow),
		posSnaps:  make(map[string]map[tradingday.Date]types.PositionSnapshot),
		assetSnap: make(map[string]map[tradingday.Date]types.AssetSnapshot),
		dividends: make(map[types.PositionKey]map[tradingday.Date]types.DividendDetail),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for acc, m := range s.positions {
		cp := make(map[types.PositionKey]types.Position, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out.positions[acc] = cp
	}
	for k, v := range s.flows {
		out.flows[k] = v
	}
	for acc, m := range s.posSnaps {
		cp := make(map[tradingday.Date]types.PositionSnapshot, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out.posSnaps[acc] = cp
	}
	for acc, m := range s.assetSnap {
		cp := make(map[tradingday.Date]types.AssetSnapshot, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out.assetSnap[acc] = cp
	}
	for key, m := range s.dividends {
		cp := make(map[tradingday.Date]types.DividendDetail, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out.dividends[key] = cp
	}
	return out
}

// Store keeps all ledger data in maps. A UnitOfWork holds the write lock for its whole
// lifetime and restores a copy of the state on rollback.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state

	runs runLog
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Accounts() store.AccountRepository   { return &accountRepo{repo{s: s}} }
func (s *Store) Positions() store.PositionRepository { return &positionRepo{repo{s: s}} }
func (s *Store) Flows() store.FlowRepository         { return &flowRepo{repo{s: s}} }
func (s *Store) Snapshots() store.SnapshotRepository { return &snapshotRepo{repo{s: s}} }
func (s *Store) Dividends() store.DividendRepository { return &dividendRepo{repo{s: s}} }
func (s *Store) RunLogs() store.RunLogRepository     { return &s.runs }

func (s *Store) Begin(ctx context.Context) (store.UnitOfWork, error) {
	s.txMu.Lock()
	if err := ctx.Err(); err != nil {
		s.txMu.Unlock()
		return nil, err
	}
	s.mu.RLock()
	backup := s.st.clone()
	s.mu.RUnlock()
	return &unitOfWork{s: s, backup: backup}, nil
}

func (s *Store) Close() error { return nil }

type unitOfWork struct {
	s      *Store
	backup *state
	done   bool
}

func (u *unitOfWork) Accounts() store.AccountRepository   { return &accountRepo{repo{s: u.s, inTx: true}} }
func (u *unitOfWork) Positions() store.PositionRepository { return &positionRepo{repo{s: u.s, inTx: true}} }
func (u *unitOfWork) Flows() store.FlowRepository         { return &flowRepo{repo{s: u.s, inTx: true}} }
func (u *unitOfWork) Snapshots() store.SnapshotRepository { return &snapshotRepo{repo{s: u.s, inTx: true}} }
func (u *unitOfWork) Dividends() store.DividendRepository { return &dividendRepo{repo{s: u.s, inTx: true}} }

func (u *unitOfWork) Commit() error {
	if u.done {
		return fmt.Errorf("unit of work already finished")
	}
	u.done = true
	u.s.txMu.Unlock()
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.s.mu.Lock()
	u.s.st = u.backup
	u.s.mu.Unlock()
	u.s.txMu.Unlock()
	return nil
}

type repo struct {
	s    *Store
	inTx bool
}

// write runs fn under the data lock, and under the transaction lock when called
// outside a UnitOfWork so that it cannot interleave with one.
func (r repo) write(fn func(st *state) error) error {
	if !r.inTx {
		r.s.txMu.Lock()
		defer r.s.txMu.Unlock()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return fn(r.s.st)
}

func (r repo) read(fn func(st *state) error) error {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return fn(r.s.st)
}

type accountRepo struct{ repo }

func (r *accountRepo) Get(_ context.Context, id string) (*types.Account, error) {
	var out *types.Account
	err := r.read(func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return fmt.Errorf("account %s: %w", id, store.ErrNotFound)
		}
		out = &acc
		return nil
	})
	return out, err
}

func (r *accountRepo) Save(_ context.Context, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("account cannot be nil")
	}
	return r.write(func(st *state) error {
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r *accountRepo) List(_ context.Context) ([]types.Account, error) {
	return r.list(func(types.Account) bool { return true })
}

func (r *accountRepo) ListBehind(_ context.Context, day tradingday.Date) ([]types.Account, error) {
	return r.list(func(a types.Account) bool {
		return a.TSDataSyncDate.IsZero() || a.TSDataSyncDate.Before(day)
	})
}

func (r *accountRepo) list(keep func(types.Account) bool) ([]types.Account, error) {
	var out []types.Account
	_ = r.read(func(st *state) error {
		for _, a := range st.accounts {
			if keep(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type positionRepo struct{ repo }

func (r *positionRepo) Get(_ context.Context, accountID string, key types.PositionKey) (*types.Position, error) {
	var out *types.Position
	_ = r.read(func(st *state) error {
		if p, ok := st.positions[accountID][key]; ok {
			out = &p
		}
		return nil
	})
	return out, nil
}

func (r *positionRepo) List(_ context.Context, accountID string) ([]types.Position, error) {
	var out []types.Position
	_ = r.read(func(st *state) error {
		for _, p := range st.positions[accountID] {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Market < out[j].Market
	})
	return out, nil
}

func (r *positionRepo) Save(_ context.Context, position *types.Position) error {
	if position == nil {
		return fmt.Errorf("position cannot be nil")
	}
	return r.write(func(st *state) error {
		m, ok := st.positions[position.AccountID]
		if !ok {
			m = make(map[types.PositionKey]types.Position)
			st.positions[position.AccountID] = m
		}
		m[position.Key()] = *position
		return nil
	})
}

func (r *positionRepo) Delete(_ context.Context, accountID string, key types.PositionKey) error {
	return r.write(func(st *state) error {
		delete(st.positions[accountID], key)
		return nil
	})
}

type flowRepo struct{ repo }

func (r *flowRepo) Insert(_ context.Context, flow *types.Flow) error {
	if flow == nil {
		return fmt.Errorf("flow cannot be nil")
	}
	return r.write(func(st *state) error {
		if _, exists := st.flows[flow.ID]; exists {
			return fmt.Errorf("flow %s already exists", flow.ID)
		}
		f := *flow
		f.Reversal = false
		st.flows[f.ID] = f
		return nil
	})
}

func (r *flowRepo) Get(_ context.Context, id string) (*types.Flow, error) {
	var out *types.Flow
	err := r.read(func(st *state) error {
		f, ok := st.flows[id]
		if !ok {
			return fmt.Errorf("flow %s: %w", id, store.ErrNotFound)
		}
		out = &f
		return nil
	})
	return out, err
}

func (r *flowRepo) Delete(_ context.Context, id string) error {
	return r.write(func(st *state) error {
		delete(st.flows, id)
		return nil
	})
}

func (r *flowRepo) List(_ context.Context, q store.FlowQuery) ([]types.Flow, error) {
	var out []types.Flow
	_ = r.read(func(st *state) error {
		for _, f := range st.flows {
			if q.Match(f) {
				out = append(out, f)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TDate.Compare(out[j].TDate); c != 0 {
			return c < 0
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *flowRepo) Earliest(_ context.Context, accountID string) (tradingday.Date, error) {
	var earliest tradingday.Date
	_ = r.read(func(st *state) error {
		for _, f := range st.flows {
			if f.AccountID == accountID {
				earliest = tradingday.Min(earliest, f.TDate)
			}
		}
		return nil
	})
	return earliest, nil
}

type snapshotRepo struct{ repo }

func (r *snapshotRepo) UpsertPositions(_ context.Context, snaps []types.PositionSnapshot) error {
	return r.write(func(st *state) error {
		for _, s := range snaps {
			m, ok := st.posSnaps[s.AccountID]
			if !ok {
				m = make(map[tradingday.Date]types.PositionSnapshot)
				st.posSnaps[s.AccountID] = m
			}
			s.Holdings = append([]types.Holding{}, s.Holdings...)
			m[s.Day] = s
		}
		return nil
	})
}

func (r *snapshotRepo) UpsertAssets(_ context.Context, snaps []types.AssetSnapshot) error {
	return r.write(func(st *state) error {
		for _, s := range snaps {
			m, ok := st.assetSnap[s.AccountID]
			if !ok {
				m = make(map[tradingday.Date]types.AssetSnapshot)
				st.assetSnap[s.AccountID] = m
			}
			m[s.Day] = s
		}
		return nil
	})
}

func (r *snapshotRepo) GetPositions(_ context.Context, accountID string, day tradingday.Date) (*types.PositionSnapshot, error) {
	var out *types.PositionSnapshot
	_ = r.read(func(st *state) error {
		if s, ok := st.posSnaps[accountID][day]; ok {
			s.Holdings = append([]types.Holding{}, s.Holdings...)
			out = &s
		}
		return nil
	})
	return out, nil
}

func (r *snapshotRepo) GetAssets(_ context.Context, accountID string, day tradingday.Date) (*types.AssetSnapshot, error) {
	var out *types.AssetSnapshot
	_ = r.read(func(st *state) error {
		if s, ok := st.assetSnap[accountID][day]; ok {
			out = &s
		}
		return nil
	})
	return out, nil
}

func (r *snapshotRepo) ListPositions(_ context.Context, accountID string, from, to tradingday.Date) ([]types.PositionSnapshot, error) {
	var out []types.PositionSnapshot
	_ = r.read(func(st *state) error {
		for day, s := range st.posSnaps[accountID] {
			if inRange(day, from, to) {
				s.Holdings = append([]types.Holding{}, s.Holdings...)
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (r *snapshotRepo) ListAssets(_ context.Context, accountID string, from, to tradingday.Date) ([]types.AssetSnapshot, error) {
	var out []types.AssetSnapshot
	_ = r.read(func(st *state) error {
		for day, s := range st.assetSnap[accountID] {
			if inRange(day, from, to) {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

type dividendRepo struct{ repo }

func (r *dividendRepo) Upsert(_ context.Context, details []types.DividendDetail) error {
	return r.write(func(st *state) error {
		for _, d := range details {
			m, ok := st.dividends[d.Key()]
			if !ok {
				m = make(map[tradingday.Date]types.DividendDetail)
				st.dividends[d.Key()] = m
			}
			m[d.ExDividendDate] = d
		}
		return nil
	})
}

func (r *dividendRepo) List(_ context.Context, symbol, market string, from, to tradingday.Date) ([]types.DividendDetail, error) {
	var out []types.DividendDetail
	_ = r.read(func(st *state) error {
		for day, d := range st.dividends[types.PositionKey{Symbol: symbol, Market: market}] {
			if inRange(day, from, to) {
				out = append(out, d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExDividendDate.Before(out[j].ExDividendDate) })
	return out, nil
}

func inRange(day, from, to tradingday.Date) bool {
	if !from.IsZero() && day.Before(from) {
		return false
	}
	if !to.IsZero() && day.After(to) {
		return false
	}
	return true
}

// runLog is append-only and not part of transactions.
type runLog struct {
	mu      sync.Mutex
	records []types.RunRecord
}

func (l *runLog) Insert(_ context.Context, rec *types.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.TraceID == rec.TraceID {
			return fmt.Errorf("run %s already logged", rec.TraceID)
		}
	}
	l.records = append(l.records, *rec)
	return nil
}

func (l *runLog) List(_ context.Context, limit int) ([]types.RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.RunRecord, len(l.records))
	copy(out, l.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.RunLogStore = (*Store)(nil)
)
