package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundledger/internal/config"
	"fundledger/internal/logger"
	"fundledger/internal/pipeline"
	"fundledger/internal/scheduler"
	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"
	ledgerhttp "fundledger/internal/transport/http/ledger"

	"golang.org/x/sync/errgroup"
)

type dailyWindow struct {
	runAt    time.Duration
	deadline time.Duration
}

// App runs the daily batch on a wall-clock schedule next to the HTTP API.
type App struct {
	cfg     *config.Config
	core    *Core
	http    *ledgerhttp.Server
	window  *dailyWindow
	Summary *StartupSummary
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Core exposes the wired services.
func (a *App) Core() *Core {
	if a == nil {
		return nil
	}
	return a.core
}

// Run serves until ctx is cancelled, then closes the stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.core == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.core.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.http == nil && a.window == nil {
		return fmt.Errorf("nothing to run: scheduler disabled and no http_addr")
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("ledger http server error: %w", err)
			}
			return nil
		})
	}
	if a.window != nil {
		group.Go(func() error {
			s := scheduler.NewDailyScheduler(ctx, a.window.runAt, a.window.deadline, a.cfg.App.Location())
			s.RunImmediately = a.cfg.Scheduler.RunImmediately
			s.Start(a.runScheduled)
			return nil
		})
	}
	return group.Wait()
}

func (a *App) runScheduled(ctx context.Context, now time.Time) {
	day := tradingday.FromTime(now.In(a.cfg.App.Location()))
	if !a.core.Calendar.IsTradingDay(day) {
		logger.Infof("daily pipeline: %s is not a trading day, skip", day)
		return
	}
	if _, err := a.core.RunDaily(ctx, day); err != nil {
		logger.Errorf("daily pipeline %s failed: %v", day, err)
	}
}

// RunDaily runs every pipeline stage for day.
func (c *Core) RunDaily(ctx context.Context, day tradingday.Date) (*pipeline.RunContext, error) {
	rc, err := c.Pipeline.Run(ctx, day)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warnf("daily pipeline %s hit the deadline; unfinished stages resume on the next run", day)
	}
	if rc != nil {
		for _, w := range rc.Warnings() {
			logger.Warnf("daily pipeline %s trace=%s: %s", day, rc.TraceID, w)
		}
		c.logRun(rc, err)
	}
	return rc, err
}

func (c *Core) runLogs() store.RunLogRepository {
	if logs, ok := c.Store.(store.RunLogStore); ok {
		return logs.RunLogs()
	}
	return nil
}

func (c *Core) logRun(rc *pipeline.RunContext, runErr error) {
	logs := c.runLogs()
	if logs == nil {
		return
	}
	rec := rc.Record(c.Pipeline.Name(), runErr)
	// the run ctx may already be past its deadline
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := logs.Insert(ctx, &rec); err != nil {
		logger.Warnf("record pipeline run %s failed: %v", rec.TraceID, err)
	}
}

// RecentRuns lists the newest pipeline runs, or nothing when the store keeps no history.
func (c *Core) RecentRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	logs := c.runLogs()
	if logs == nil {
		return nil, nil
	}
	return logs.List(ctx, limit)
}
