package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundledger/internal/logger"
	"fundledger/internal/money"
	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// Options tunes a Service.
type Options struct {
	DefaultCurrency string
	Location        *time.Location
}

// Service is the write path of the ledger: ApplyFlow, DailySnapshot and the
// single-flow steps the reconciler is built from.
type Service struct {
	store     store.Store
	fees      FeeCalculator
	positions *PositionLedger
	accounts  *AccountLedger
	cal       tradingday.Calendar
	locker    *Locker
	opts      Options
}

func NewService(st store.Store, prices PriceProvider, cal tradingday.Calendar, locker *Locker, opts Options) *Service {
	if locker == nil {
		locker = NewLocker()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	opts.DefaultCurrency = money.NormalizeCurrency(opts.DefaultCurrency)
	return &Service{
		store:     st,
		positions: NewPositionLedger(),
		accounts:  NewAccountLedger(prices, cal),
		cal:       cal,
		locker:    locker,
		opts:      opts,
	}
}

func (s *Service) Store() store.Store              { return s.store }
func (s *Service) Calendar() tradingday.Calendar   { return s.cal }
func (s *Service) Locker() *Locker                 { return s.locker }
func (s *Service) AccountLedger() *AccountLedger   { return s.accounts }
func (s *Service) PositionLedger() *PositionLedger { return s.positions }
func (s *Service) Today() tradingday.Date          { return tradingday.Today(s.opts.Location) }
func (s *Service) LastTradingDay() tradingday.Date { return tradingday.Floor(s.cal, s.Today()) }
func (s *Service) Location() *time.Location        { return s.opts.Location }

// ErrAccountExists is returned by OpenAccount for a duplicate id.
var ErrAccountExists = errors.New("account already exists")

// OpenAccountRequest creates a fund account funded with Capital on ImportDate.
type OpenAccountRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Capital        decimal.Decimal `json:"capital"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Currency       string          `json:"currency"`
	ImportDate     tradingday.Date `json:"import_date"`
}

// OpenAccount stores a new account and books its capital as a deposit.
func (s *Service) OpenAccount(ctx context.Context, req OpenAccountRequest) (types.Account, error) {
	acc := types.Account{
		ID:             strings.TrimSpace(req.ID),
		Name:           strings.TrimSpace(req.Name),
		Capital:        money.Round(req.Capital),
		CommissionRate: req.CommissionRate,
		TaxRate:        req.TaxRate,
		Currency:       money.NormalizeCurrency(req.Currency),
		ImportDate:     req.ImportDate,
	}
	if acc.Currency == "" {
		acc.Currency = s.opts.DefaultCurrency
	}
	if acc.ImportDate.IsZero() {
		acc.ImportDate = s.LastTradingDay()
	}
	acc.ImportDate = tradingday.Ceil(s.cal, acc.ImportDate)
	if err := acc.Validate(); err != nil {
		return types.Account{}, err
	}
	if acc.Capital.IsNegative() {
		return types.Account{}, &types.InvalidFlowError{Field: "capital", Reason: "cannot be negative"}
	}

	unlock, err := s.locker.Lock(ctx, acc.ID)
	if err != nil {
		return types.Account{}, err
	}
	defer unlock()

	err = store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		if _, err := uow.Accounts().Get(ctx, acc.ID); err == nil {
			return fmt.Errorf("%w: %s", ErrAccountExists, acc.ID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		acc.UpdatedAt = time.Now().UTC()
		if !acc.Capital.IsPositive() {
			return uow.Accounts().Save(ctx, &acc)
		}
		deposit, err := types.NewDeposit(acc.ID, acc.Capital, acc.ImportDate)
		if err != nil {
			return err
		}
		deposit.Currency = acc.Currency
		return s.post(ctx, uow, &acc, deposit)
	})
	if err != nil {
		return types.Account{}, err
	}
	logger.Account(acc.ID).Info("account opened", "capital", money.Format(acc.Capital, acc.Currency),
		"import_date", acc.ImportDate.String())
	return acc, nil
}

// GetAccount returns the present-day account state.
func (s *Service) GetAccount(ctx context.Context, accountID string) (types.Account, error) {
	acc, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return types.Account{}, err
	}
	return *acc, nil
}

// ApplyFlow validates a request, prices it, and applies it to position and account in
// one unit of work. Nothing is written when validation fails.
func (s *Service) ApplyFlow(ctx context.Context, accountID string, req types.FlowRequest) (types.Flow, error) {
	req = req.Normalize()
	if !req.Type.Valid() {
		return types.Flow{}, &types.InvalidFlowError{Field: "type", Reason: "unknown flow type " + string(req.Type)}
	}
	if req.TDate.IsZero() {
		req.TDate = s.LastTradingDay()
	}
	if !s.cal.IsTradingDay(req.TDate) {
		return types.Flow{}, &types.InvalidFlowError{Field: "tdate", Reason: req.TDate.String() + " is not a trading day"}
	}

	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return types.Flow{}, err
	}
	defer unlock()

	var out types.Flow
	err = store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		acc, err := uow.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}
		flow, err := s.buildFlow(*acc, req)
		if err != nil {
			return err
		}
		if err := s.check(ctx, uow, *acc, flow); err != nil {
			return err
		}
		if err := s.post(ctx, uow, acc, flow); err != nil {
			return err
		}
		out = flow
		return nil
	})
	if err != nil {
		return types.Flow{}, err
	}
	logger.Flow(accountID, out.ID).Info("flow applied", "type", string(out.Type),
		"symbol", out.Symbol, "tdate", out.TDate.String(), "fundeffect", out.FundEffect.String(),
		"stkeffect", out.StkEffect.String())
	return out, nil
}

func (s *Service) buildFlow(acc types.Account, req types.FlowRequest) (types.Flow, error) {
	var (
		flow types.Flow
		err  error
	)
	switch req.Type {
	case types.FlowBuy, types.FlowSell:
		flow, err = s.fees.Calculate(acc, req)
		if err == nil {
			flow.Stamp()
		}
	case types.FlowDeposit:
		flow, err = types.NewDeposit(acc.ID, req.Amount, req.TDate)
	case types.FlowWithdraw:
		flow, err = types.NewWithdraw(acc.ID, req.Amount, req.TDate)
	case types.FlowDividend:
		flow, err = types.NewDividend(acc.ID, req.Symbol, req.Market, req.Amount, req.Quantity, req.TDate)
	case types.FlowTax:
		flow, err = types.NewTax(acc.ID, req.Symbol, req.Market, req.Amount, req.Cost, req.TDate)
	}
	if err != nil {
		return types.Flow{}, err
	}
	flow.Currency = acc.Currency
	if err := flow.Validate(); err != nil {
		return types.Flow{}, err
	}
	return flow, nil
}

// check rejects flows that would leave negative cash or sell more than is available.
func (s *Service) check(ctx context.Context, repos store.Repositories, acc types.Account, flow types.Flow) error {
	if acc.Cash.Add(flow.FundEffect).IsNegative() {
		return &types.InsufficientCashError{AccountID: acc.ID, Cash: acc.Cash, Requested: flow.FundEffect.Neg()}
	}
	if !flow.StkEffect.IsNegative() {
		return nil
	}
	pos, err := repos.Positions().Get(ctx, acc.ID, flow.Key())
	if err != nil {
		return err
	}
	available := money.Zero
	if pos != nil {
		available = pos.AvailableVolume
	}
	if flow.StkEffect.Neg().GreaterThan(available) {
		return &types.InsufficientPositionError{AccountID: acc.ID, Symbol: flow.Symbol, Held: available, Requested: flow.StkEffect.Neg()}
	}
	return nil
}

// post applies flow to position and account inside repos and inserts it together with
// what a later reversal needs.
func (s *Service) post(ctx context.Context, repos store.Repositories, acc *types.Account, flow types.Flow, opts ...ApplyOption) error {
	res, err := s.positions.Apply(ctx, repos.Positions(), flow)
	if err != nil {
		return err
	}
	flow = res.Record(flow)
	if err := repos.Flows().Insert(ctx, &flow); err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return s.applyCash(ctx, repos, acc, flow, opts...)
}

func (s *Service) applyEffects(ctx context.Context, repos store.Repositories, acc *types.Account, flow types.Flow, opts ...ApplyOption) error {
	if _, err := s.positions.Apply(ctx, repos.Positions(), flow); err != nil {
		return err
	}
	return s.applyCash(ctx, repos, acc, flow, opts...)
}

func (s *Service) applyCash(ctx context.Context, repos store.Repositories, acc *types.Account, flow types.Flow, opts ...ApplyOption) error {
	if err := s.accounts.Apply(ctx, repos.Positions(), acc, flow, opts...); err != nil {
		return err
	}
	return repos.Accounts().Save(ctx, acc)
}

// PostFlow stores an already built flow (a synthesized dividend or tax) and applies it
// in its own unit of work. The caller must hold the account lock.
func (s *Service) PostFlow(ctx context.Context, flow types.Flow, opts ...ApplyOption) (types.Account, error) {
	flow.Stamp()
	if err := flow.Validate(); err != nil {
		return types.Account{}, err
	}
	var out types.Account
	err := store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		acc, err := uow.Accounts().Get(ctx, flow.AccountID)
		if err != nil {
			return err
		}
		if flow.Currency == "" {
			flow.Currency = acc.Currency
		}
		if err := s.post(ctx, uow, acc, flow, opts...); err != nil {
			return err
		}
		out = *acc
		return nil
	})
	return out, err
}

// RevertFlow deletes a stored flow and applies its exact negation in one unit of work.
// The negation is checked like a new flow, so undoing a deposit that was already spent
// fails with InsufficientCashError and writes nothing. Deleting an already deleted flow
// is a no-op. The caller must hold the account lock.
func (s *Service) RevertFlow(ctx context.Context, flowID string, opts ...ApplyOption) (types.Account, error) {
	o := collectOptions(opts)
	var (
		out      types.Account
		reverted *types.Flow
	)
	err := store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		flow, err := uow.Flows().Get(ctx, flowID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		acc, err := uow.Accounts().Get(ctx, flow.AccountID)
		if err != nil {
			return err
		}
		undo := flow.Negate()
		if o.unchecked {
			undo, err = s.clampShares(ctx, uow, undo)
		} else {
			err = s.check(ctx, uow, *acc, undo)
		}
		if err != nil {
			return err
		}
		if err := uow.Flows().Delete(ctx, flowID); err != nil {
			return err
		}
		if err := s.applyEffects(ctx, uow, acc, undo, opts...); err != nil {
			return fmt.Errorf("revert flow %s: %w", flowID, err)
		}
		out, reverted = *acc, flow
		return nil
	})
	if err != nil {
		return types.Account{}, err
	}
	if reverted != nil {
		logger.Flow(reverted.AccountID, reverted.ID).Debug("flow reverted", "type", string(reverted.Type),
			"symbol", reverted.Symbol, "tdate", reverted.TDate.String())
	}
	return out, nil
}

// clampShares limits a share reversal to the volume still held. The shares missing were
// sold after the reverted flow added them; they are logged and left out.
func (s *Service) clampShares(ctx context.Context, repos store.Repositories, undo types.Flow) (types.Flow, error) {
	if !undo.StkEffect.IsNegative() {
		return undo, nil
	}
	pos, err := repos.Positions().Get(ctx, undo.AccountID, undo.Key())
	if err != nil {
		return undo, err
	}
	held := money.Zero
	if pos != nil {
		held = pos.Volume
	}
	want := undo.StkEffect.Neg()
	if !want.GreaterThan(held) {
		return undo, nil
	}
	logger.Flow(undo.AccountID, undo.ID).Warn("reversal exceeds held shares, clamping",
		"symbol", undo.Key().String(), "held", held.String(), "shortfall", want.Sub(held).String())
	undo.StkEffect = held.Neg()
	return undo, nil
}

// Liquidate re-marks the account's securities and assets
// from current positions and live prices. The caller must hold the account lock.
func (s *Service) Liquidate(ctx context.Context, accountID string) (types.Account, error) {
	var out types.Account
	err := store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		acc, err := uow.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}
		if err := s.accounts.Liquidate(ctx, uow.Positions(), acc); err != nil {
			return err
		}
		if err := uow.Accounts().Save(ctx, acc); err != nil {
			return err
		}
		out = *acc
		return nil
	})
	return out, err
}

// SetSyncDate moves the account's sync cursor. The caller must hold the account lock.
func (s *Service) SetSyncDate(ctx context.Context, accountID string, day tradingday.Date) error {
	return store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		acc, err := uow.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}
		acc.TSDataSyncDate = day
		return uow.Accounts().Save(ctx, acc)
	})
}

// CurrentSnapshot values the account's present positions at live prices. It is the
// anchor every backward reconstruction starts from.
func (s *Service) CurrentSnapshot(ctx context.Context, accountID string, day tradingday.Date) (types.DailySnapshot, error) {
	acc, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return types.DailySnapshot{}, err
	}
	held, err := s.store.Positions().List(ctx, accountID)
	if err != nil {
		return types.DailySnapshot{}, err
	}
	holdings := make([]types.Holding, 0, len(held))
	for _, p := range held {
		holdings = append(holdings, types.Holding{
			Symbol:       p.Symbol,
			Market:       p.Market,
			Volume:       p.Volume,
			MarketValue:  p.MarketValue(s.accounts.Price(ctx, p)),
			FirstBuyDate: p.FirstBuyDate,
		})
	}
	types.SortHoldings(holdings)
	positions := types.PositionSnapshot{AccountID: accountID, Day: day, Holdings: holdings}
	securities := positions.Securities()
	return types.DailySnapshot{
		AccountID: accountID,
		Day:       day,
		Positions: positions,
		Assets: types.AssetSnapshot{
			AccountID:  accountID,
			Day:        day,
			Cash:       acc.Cash,
			Securities: securities,
			Assets:     money.Round(acc.Cash.Add(securities)),
		},
	}, nil
}

// DailySnapshot returns the account as of day. Days past the sync cursor that have no stored
// snapshot yet are served from the live state when day is the current trading day.
func (s *Service) DailySnapshot(ctx context.Context, accountID string, day tradingday.Date) (types.DailySnapshot, error) {
	acc, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return types.DailySnapshot{}, err
	}
	pos, err := s.store.Snapshots().GetPositions(ctx, accountID, day)
	if err != nil {
		return types.DailySnapshot{}, err
	}
	assets, err := s.store.Snapshots().GetAssets(ctx, accountID, day)
	if err != nil {
		return types.DailySnapshot{}, err
	}
	if pos != nil && assets != nil {
		return types.DailySnapshot{AccountID: accountID, Day: day, Positions: *pos, Assets: *assets}, nil
	}
	if !day.Before(s.LastTradingDay()) && !day.After(s.Today()) && (!acc.Synced() || acc.TSDataSyncDate.Before(day)) {
		return s.CurrentSnapshot(ctx, accountID, day)
	}
	return types.DailySnapshot{}, fmt.Errorf("snapshot %s@%s: %w", accountID, day, store.ErrNotFound)
}
