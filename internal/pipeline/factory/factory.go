package factory

import (
	"fmt"
	"strings"

	"fundledger/internal/config"
	"fundledger/internal/pipeline"
	"fundledger/internal/reconcile"
	"fundledger/internal/timeseries"
)

// Factory turns stage config entries into pipeline stages.
type Factory struct {
	Syncer     *timeseries.Syncer
	Ability    pipeline.AbilityCalculator
	Reconciler *reconcile.Reconciler
}

func (f *Factory) Build(cfg config.StageConfig, order int) (pipeline.Stage, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch name {
	case pipeline.StageTSSync:
		if f.Syncer == nil {
			return nil, fmt.Errorf("%s requires a syncer", name)
		}
		return pipeline.SyncStage(f.Syncer, order, cfg.Critical, cfg.Timeout()), nil
	case pipeline.StageAbility:
		return pipeline.AbilityStage(f.Ability, order, cfg.Critical, cfg.Timeout()), nil
	case pipeline.StageDividend, pipeline.StageFinalize, pipeline.StageTax:
		if f.Reconciler == nil {
			return nil, fmt.Errorf("%s requires a reconciler", name)
		}
		switch name {
		case pipeline.StageDividend:
			return pipeline.DividendStage(f.Reconciler, order, cfg.Critical, cfg.Timeout()), nil
		case pipeline.StageFinalize:
			return pipeline.FinalizeStage(f.Reconciler, order, cfg.Critical, cfg.Timeout()), nil
		default:
			return pipeline.TaxStage(f.Reconciler, order, cfg.Critical, cfg.Timeout()), nil
		}
	default:
		return nil, fmt.Errorf("unknown stage: %s", cfg.Name)
	}
}

// BuildAll builds the stages in config order.
func (f *Factory) BuildAll(cfgs []config.StageConfig) ([]pipeline.Stage, error) {
	out := make([]pipeline.Stage, 0, len(cfgs))
	for i, cfg := range cfgs {
		st, err := f.Build(cfg, i)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
