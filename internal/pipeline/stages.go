package pipeline

import (
	"context"
	"time"

	"fundledger/internal/logger"
	"fundledger/internal/reconcile"
	"fundledger/internal/timeseries"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"
)

const (
	StageTSSync   = "ts_sync"
	StageAbility  = "ability"
	StageDividend = reconcile.PhaseDividend
	StageFinalize = reconcile.PhaseFinalize
	StageTax      = reconcile.PhaseTax
)

// StageNames is the daily order.
func StageNames() []string {
	return []string{StageTSSync, StageAbility, StageDividend, StageFinalize, StageTax}
}

// AbilityCalculator computes per-account performance figures once the day's series
// is complete.
type AbilityCalculator interface {
	Calculate(ctx context.Context, accountID string, day tradingday.Date) error
}

// LogAbility only records that the step ran.
type LogAbility struct{}

func (LogAbility) Calculate(_ context.Context, accountID string, day tradingday.Date) error {
	logger.Stage(StageAbility, day.String(), accountID).Debug("ability calculation skipped")
	return nil
}

type funcStage struct {
	meta StageMeta
	fn   func(ctx context.Context, day tradingday.Date, acc types.Account) error
}

func (s funcStage) Meta() StageMeta { return s.meta }

func (s funcStage) Handle(ctx context.Context, day tradingday.Date, acc types.Account) error {
	return s.fn(ctx, day, acc)
}

// NewStage adapts fn into a Stage.
func NewStage(meta StageMeta, fn func(ctx context.Context, day tradingday.Date, acc types.Account) error) Stage {
	return funcStage{meta: meta, fn: fn}
}

func SyncStage(s *timeseries.Syncer, order int, critical bool, timeout time.Duration) Stage {
	return NewStage(StageMeta{Name: StageTSSync, Order: order, Critical: critical, Timeout: timeout},
		func(ctx context.Context, day tradingday.Date, acc types.Account) error {
			_, err := s.SyncAccount(ctx, acc.ID, day)
			return err
		})
}

func AbilityStage(calc AbilityCalculator, order int, critical bool, timeout time.Duration) Stage {
	if calc == nil {
		calc = LogAbility{}
	}
	return NewStage(StageMeta{Name: StageAbility, Order: order, Critical: critical, Timeout: timeout},
		func(ctx context.Context, day tradingday.Date, acc types.Account) error {
			return calc.Calculate(ctx, acc.ID, day)
		})
}

func DividendStage(r *reconcile.Reconciler, order int, critical bool, timeout time.Duration) Stage {
	return NewStage(StageMeta{Name: StageDividend, Order: order, Critical: critical, Timeout: timeout},
		func(ctx context.Context, day tradingday.Date, acc types.Account) error {
			_, err := r.LiquidateDividends(ctx, acc.ID, day)
			return err
		})
}

func FinalizeStage(r *reconcile.Reconciler, order int, critical bool, timeout time.Duration) Stage {
	return NewStage(StageMeta{Name: StageFinalize, Order: order, Critical: critical, Timeout: timeout},
		func(ctx context.Context, day tradingday.Date, acc types.Account) error {
			_, err := r.FinalizeDividendFlows(ctx, acc.ID, day)
			return err
		})
}

func TaxStage(r *reconcile.Reconciler, order int, critical bool, timeout time.Duration) Stage {
	return NewStage(StageMeta{Name: StageTax, Order: order, Critical: critical, Timeout: timeout},
		func(ctx context.Context, day tradingday.Date, acc types.Account) error {
			_, err := r.LiquidateTax(ctx, acc.ID, day)
			return err
		})
}
