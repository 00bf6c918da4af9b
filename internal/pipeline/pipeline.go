package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fundledger/internal/checkpoint"
	"fundledger/internal/logger"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"golang.org/x/sync/errgroup"
)

// AccountLister supplies the accounts each stage visits.
type AccountLister interface {
	List(ctx context.Context) ([]types.Account, error)
}

// Pipeline runs the daily stages in order. Each stage is gated by a checkpoint flag:
// it waits for the previous stage's flag and runs at most once per day.
type Pipeline struct {
	name     string
	stages   []Stage
	gate     *checkpoint.Gate
	accounts AccountLister
	workers  int
}

// New sorts stages by their Order.
func New(name string, gate *checkpoint.Gate, accounts AccountLister, workers int, stages ...Stage) *Pipeline {
	list := make([]Stage, 0, len(stages))
	for _, st := range stages {
		if st != nil {
			list = append(list, st)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Meta().Order < list[j].Meta().Order })
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{name: name, stages: list, gate: gate, accounts: accounts, workers: workers}
}

func (p *Pipeline) Name() string { return p.name }

// Stages lists the stage names in run order.
func (p *Pipeline) Stages() []string {
	out := make([]string, 0, len(p.stages))
	for _, st := range p.stages {
		out = append(out, st.Meta().Name)
	}
	return out
}

// Run executes every stage for day. It stops at the first stage that cannot be marked;
// the next run resumes there.
func (p *Pipeline) Run(ctx context.Context, day tradingday.Date) (*RunContext, error) {
	rc := NewRunContext(day)
	prev := ""
	for _, st := range p.stages {
		meta := st.Meta()
		started := time.Now()
		var res StageResult
		err := p.gate.Run(ctx, day, meta.Name, prev, func(ctx context.Context) error {
			var err error
			res, err = p.runStage(ctx, rc, day, st)
			return err
		})
		res.Name, res.Elapsed = meta.Name, time.Since(started)
		prev = meta.Name
		if errors.Is(err, checkpoint.ErrSkipped) {
			res.Skipped = true
			rc.addResult(res)
			logger.Debugf("[pipeline] %s %s@%s already done", p.name, meta.Name, day)
			continue
		}
		rc.addResult(res)
		if err != nil {
			logger.Errorf("[pipeline] %s %s@%s failed: %v", p.name, meta.Name, day, err)
			return rc, fmt.Errorf("stage %s: %w", meta.Name, err)
		}
		logger.Infof("[pipeline] %s %s@%s done: accounts=%d failed=%d elapsed=%s",
			p.name, meta.Name, day, res.Accounts, res.Failed, res.Elapsed.Round(time.Millisecond))
	}
	return rc, nil
}

func (p *Pipeline) runStage(ctx context.Context, rc *RunContext, day tradingday.Date, st Stage) (StageResult, error) {
	meta := st.Meta()
	accounts, err := p.accounts.List(ctx)
	if err != nil {
		return StageResult{}, err
	}
	var (
		mu       sync.Mutex
		failures []error
		visited  int
	)
	var group errgroup.Group
	group.SetLimit(p.workers)
	for _, acc := range accounts {
		if acc.ImportDate.After(day) {
			continue
		}
		visited++
		acc := acc
		group.Go(func() error {
			runCtx := ctx
			if meta.Timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, meta.Timeout)
				defer cancel()
			}
			if err := st.Handle(runCtx, day, acc); err != nil {
				sErr := &StageError{Stage: meta.Name, AccountID: acc.ID, Critical: meta.Critical, Err: err}
				mu.Lock()
				failures = append(failures, sErr)
				mu.Unlock()
				rc.AddWarning(sErr.Error())
				logger.Stage(meta.Name, day.String(), acc.ID).Warn("stage failed", "error", err)
			}
			return nil
		})
	}
	_ = group.Wait()

	res := StageResult{Accounts: visited, Failed: len(failures)}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(failures) == 0 || !meta.Critical || len(failures) < visited {
		return res, nil
	}
	return res, errors.Join(failures...)
}
