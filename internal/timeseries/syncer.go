package timeseries

import (
	"context"
	"errors"
	"fmt"

	"fundledger/internal/ledger"
	"fundledger/internal/logger"
	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// Report summarizes one account sync.
type Report struct {
	AccountID string          `json:"account_id"`
	From      tradingday.Date `json:"from"`
	To        tradingday.Date `json:"to"`
	Days      int             `json:"days"`
	// Clamped is set when the requested start predated the account's history.
	Clamped bool `json:"clamped,omitempty"`
}

// Syncer keeps every account's daily series complete up to a target day and
// advances the sync cursor once the series is written.
type Syncer struct {
	svc *ledger.Service
	rec *Reconstructor
	cal tradingday.Calendar
}

func NewSyncer(svc *ledger.Service) *Syncer {
	return &Syncer{svc: svc, rec: NewReconstructor(svc.Calendar()), cal: svc.Calendar()}
}

// Behind lists the accounts whose cursor is before target.
func (s *Syncer) Behind(ctx context.Context, target tradingday.Date) ([]types.Account, error) {
	return s.svc.Store().Accounts().ListBehind(ctx, target)
}

// SyncAccount reconstructs [cursor, target] for one account. A never-synced account
// starts at the trading day before its import date.
func (s *Syncer) SyncAccount(ctx context.Context, accountID string, target tradingday.Date) (Report, error) {
	unlock, err := s.svc.Locker().Lock(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	defer unlock()

	acc, err := s.svc.GetAccount(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	start := acc.TSDataSyncDate
	if start.IsZero() {
		start = s.cal.Last(acc.ImportDate)
	}
	if !start.Before(target) {
		return Report{AccountID: accountID, From: start, To: target}, nil
	}
	return s.Rebuild(ctx, accountID, start, target)
}

// Rebuild rewrites the snapshots of [start, target] from the present-day anchor and
// moves the cursor to target. The caller must hold the account lock.
func (s *Syncer) Rebuild(ctx context.Context, accountID string, start, target tradingday.Date) (Report, error) {
	log := logger.Account(accountID)
	flows, err := s.svc.Store().Flows().List(ctx, store.FlowQuery{AccountID: accountID, From: start.AddDays(1)})
	if err != nil {
		return Report{}, err
	}
	earliest, err := s.svc.Store().Flows().Earliest(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	end := target
	for _, f := range flows {
		end = tradingday.Max(end, f.TDate)
	}
	anchor, err := s.svc.CurrentSnapshot(ctx, accountID, end)
	if err != nil {
		return Report{}, err
	}

	in := Input{
		Anchor:   AnchorFrom(anchor),
		Flows:    flows,
		Start:    start,
		End:      end,
		Earliest: earliest,
		Prices:   s.prices(ctx, accountID, anchor, flows),
	}
	report := Report{AccountID: accountID, From: start, To: target}
	res, err := s.rec.Run(in)
	var gap *types.GapTooLargeError
	if errors.As(err, &gap) {
		in.Start = s.cal.Last(gap.Earliest)
		report.From, report.Clamped = in.Start, true
		log.Warn("sync start predates history, clamping", "start", start.String(), "earliest", gap.Earliest.String())
		res, err = s.rec.Run(in)
	}
	if err != nil {
		return Report{}, fmt.Errorf("reconstruct %s [%s, %s]: %w", accountID, in.Start, end, err)
	}

	positions := make([]types.PositionSnapshot, 0, len(res.Positions))
	for _, p := range res.Positions {
		if !p.Day.After(target) {
			positions = append(positions, p)
		}
	}
	assets := make([]types.AssetSnapshot, 0, len(res.Assets))
	for _, a := range res.Assets {
		if !a.Day.After(target) {
			assets = append(assets, a)
		}
	}
	err = store.InTx(ctx, s.svc.Store(), func(uow store.UnitOfWork) error {
		if err := uow.Snapshots().UpsertPositions(ctx, positions); err != nil {
			return err
		}
		if err := uow.Snapshots().UpsertAssets(ctx, assets); err != nil {
			return err
		}
		acc, err := uow.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}
		acc.TSDataSyncDate = target
		return uow.Accounts().Save(ctx, acc)
	})
	if err != nil {
		return Report{}, err
	}
	report.Days = len(assets)
	log.Info("time series synced", "from", report.From.String(), "to", target.String(), "days", report.Days)
	return report, nil
}

// prices looks up live quotes for symbols that appear in flows but are no longer held.
func (s *Syncer) prices(ctx context.Context, accountID string, anchor types.DailySnapshot, flows []types.Flow) map[types.PositionKey]decimal.Decimal {
	held := make(map[types.PositionKey]struct{}, len(anchor.Positions.Holdings))
	for _, h := range anchor.Positions.Holdings {
		held[h.Key()] = struct{}{}
	}
	out := make(map[types.PositionKey]decimal.Decimal)
	for _, f := range flows {
		if !f.HasSymbol() || f.StkEffect.IsZero() {
			continue
		}
		key := f.Key()
		if _, ok := held[key]; ok {
			continue
		}
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = s.svc.AccountLedger().Price(ctx, types.Position{
			AccountID: accountID, Symbol: f.Symbol, Market: f.Market, Cost: f.Cost,
		})
	}
	return out
}
