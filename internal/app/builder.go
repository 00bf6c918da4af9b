package app

import (
	"context"
	"fmt"
	"strings"

	"fundledger/internal/checkpoint"
	"fundledger/internal/config"
	"fundledger/internal/gateway/corpaction"
	"fundledger/internal/gateway/quote"
	"fundledger/internal/ledger"
	"fundledger/internal/logger"
	"fundledger/internal/pipeline"
	"fundledger/internal/pipeline/factory"
	"fundledger/internal/reconcile"
	"fundledger/internal/store"
	"fundledger/internal/store/memory"
	"fundledger/internal/store/sqlite"
	"fundledger/internal/timeseries"
	"fundledger/internal/tradingday"
	ledgerhttp "fundledger/internal/transport/http/ledger"

	"github.com/shopspring/decimal"
)

// Core holds the services shared by the daemon and the command-line tool.
type Core struct {
	Config     *config.Config
	Calendar   *tradingday.WeekdayCalendar
	Store      store.Store
	Ledger     *ledger.Service
	Syncer     *timeseries.Syncer
	Reconciler *reconcile.Reconciler
	Importer   *corpaction.Importer
	Gate       *checkpoint.Gate
	Pipeline   *pipeline.Pipeline

	closers []func() error
}

// Close releases the stores in reverse order of opening.
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

type AppBuilder struct {
	cfg *config.Config

	storeOverride      store.Store
	pricesOverride     ledger.PriceProvider
	actionsOverride    reconcile.CorporateActionProvider
	checkpointOverride checkpoint.Store
}

type AppBuilderOption func(*AppBuilder)

func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = st }
}

func WithPrices(p ledger.PriceProvider) AppBuilderOption {
	return func(b *AppBuilder) { b.pricesOverride = p }
}

func WithCorporateActions(p reconcile.CorporateActionProvider) AppBuilderOption {
	return func(b *AppBuilder) { b.actionsOverride = p }
}

func WithCheckpointStore(s checkpoint.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.checkpointOverride = s }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// BuildCore wires storage, gateways, ledger, reconciliation and the daily pipeline.
func (b *AppBuilder) BuildCore(ctx context.Context) (*Core, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	core := &Core{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = core.Close()
		}
	}()

	cal, err := tradingday.LoadCalendar(cfg.Calendar.HolidaysPath, cfg.Calendar.Watch)
	if err != nil {
		return nil, err
	}
	core.Calendar = cal

	if core.Store, err = b.openStore(cfg.Store); err != nil {
		return nil, err
	}
	core.closers = append(core.closers, core.Store.Close)

	prices, err := b.priceProvider(cfg.Quote)
	if err != nil {
		return nil, err
	}
	actions, err := b.corporateActions(cfg.CorpAction, core.Store.Dividends())
	if err != nil {
		return nil, err
	}
	rcfg, err := reconcileConfig(cfg.Reconcile)
	if err != nil {
		return nil, err
	}

	core.Ledger = ledger.NewService(core.Store, prices, cal, ledger.NewLocker(), ledger.Options{
		DefaultCurrency: cfg.App.DefaultCurrency,
		Location:        cfg.App.Location(),
	})
	core.Syncer = timeseries.NewSyncer(core.Ledger)
	core.Reconciler = reconcile.New(core.Ledger, core.Syncer, actions, rcfg)
	if core.Importer, err = corpaction.NewImporter(core.Store.Dividends()); err != nil {
		return nil, err
	}

	cpStore, closeCP, err := b.checkpointStore(cfg.Checkpoint)
	if err != nil {
		return nil, err
	}
	if closeCP != nil {
		core.closers = append(core.closers, closeCP)
	}
	core.Gate = checkpoint.NewGate(cpStore, checkpoint.Options{
		PollInterval: cfg.Checkpoint.PollInterval(),
		MaxBackoff:   cfg.Checkpoint.MaxBackoff(),
		Location:     cfg.App.Location(),
	})

	f := &factory.Factory{Syncer: core.Syncer, Ability: pipeline.LogAbility{}, Reconciler: core.Reconciler}
	stages, err := f.BuildAll(cfg.Pipeline.Stages)
	if err != nil {
		return nil, err
	}
	core.Pipeline = pipeline.New("daily", core.Gate, core.Store.Accounts(), cfg.Scheduler.Workers, stages...)
	logger.Infof("pipeline stages: %s", strings.Join(core.Pipeline.Stages(), " -> "))
	ok = true
	return core, nil
}

// Build wires the core plus the scheduler and the HTTP server.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	core, err := b.BuildCore(ctx)
	if err != nil {
		return nil, err
	}
	cfg := b.cfg
	app := &App{cfg: cfg, core: core, Summary: newStartupSummary(cfg, core)}
	if cfg.Scheduler.Enabled {
		runAt, err := config.ParseClock(cfg.Scheduler.RunAt)
		if err != nil {
			_ = core.Close()
			return nil, err
		}
		deadline, err := config.ParseClock(cfg.Scheduler.Deadline)
		if err != nil {
			_ = core.Close()
			return nil, err
		}
		app.window = &dailyWindow{runAt: runAt, deadline: deadline}
	}
	if strings.TrimSpace(cfg.App.HTTPAddr) != "" {
		server, err := ledgerhttp.NewServer(ledgerhttp.ServerConfig{
			Addr: cfg.App.HTTPAddr,
			Deps: ledgerhttp.Deps{
				Ledger:     core.Ledger,
				Syncer:     core.Syncer,
				Reconciler: core.Reconciler,
				Dividends:  core.Importer,
				Runs:       core.runLogs(),
			},
		})
		if err != nil {
			_ = core.Close()
			return nil, fmt.Errorf("init ledger http failed: %w", err)
		}
		app.http = server
	}
	return app, nil
}

func (b *AppBuilder) openStore(cfg config.StoreConfig) (store.Store, error) {
	if b.storeOverride != nil {
		return b.storeOverride, nil
	}
	switch cfg.Driver {
	case "memory":
		logger.Warnf("store driver is memory: ledger state is lost on exit")
		return memory.New(), nil
	case "sqlite":
		st, err := sqlite.NewSqliteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger store %s failed: %w", cfg.Path, err)
		}
		logger.Infof("ledger store: sqlite %s", cfg.Path)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (b *AppBuilder) priceProvider(cfg config.QuoteConfig) (ledger.PriceProvider, error) {
	if b.pricesOverride != nil {
		return b.pricesOverride, nil
	}
	switch cfg.Source {
	case "http":
		p, err := quote.NewHTTP(cfg)
		if err != nil {
			return nil, fmt.Errorf("init quote gateway failed: %w", err)
		}
		logger.Infof("quote source: http %s", cfg.HTTP.BaseURL)
		return p, nil
	default:
		logger.Infof("quote source: static, positions are valued at cost")
		return quote.NewStatic(), nil
	}
}

func (b *AppBuilder) corporateActions(cfg config.CorpActionConfig, dividends store.DividendRepository) (reconcile.CorporateActionProvider, error) {
	if b.actionsOverride != nil {
		return b.actionsOverride, nil
	}
	switch cfg.Source {
	case "http":
		p, err := corpaction.NewHTTP(cfg, dividends)
		if err != nil {
			return nil, fmt.Errorf("init corporate action gateway failed: %w", err)
		}
		logger.Infof("corporate action source: http %s", cfg.HTTP.BaseURL)
		return p, nil
	default:
		return corpaction.NewStore(dividends), nil
	}
}

func (b *AppBuilder) checkpointStore(cfg config.CheckpointConfig) (checkpoint.Store, func() error, error) {
	if b.checkpointOverride != nil {
		return b.checkpointOverride, nil, nil
	}
	if cfg.Driver == "sqlite" {
		s, err := checkpoint.NewSQLStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open checkpoint store %s failed: %w", cfg.Path, err)
		}
		if n, err := s.Prune(context.Background()); err == nil && n > 0 {
			logger.Debugf("pruned %d expired checkpoints", n)
		}
		return s, s.Close, nil
	}
	return checkpoint.NewMemoryStore(), nil, nil
}

func reconcileConfig(cfg config.ReconcileConfig) (reconcile.Config, error) {
	out := reconcile.Config{LookbackDays: cfg.LookbackDays, PayLagDays: cfg.PayLagDays}
	for _, b := range cfg.TaxBrackets {
		rate, err := decimal.NewFromString(strings.TrimSpace(b.Rate))
		if err != nil {
			return reconcile.Config{}, fmt.Errorf("reconcile.tax_brackets rate %q: %w", b.Rate, err)
		}
		out.TaxBrackets = append(out.TaxBrackets, reconcile.TaxBracket{MaxDays: b.MaxDays, Rate: rate})
	}
	return out, nil
}
