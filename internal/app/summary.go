package app

import (
	"fmt"
	"strings"

	"fundledger/internal/config"
)

// StartupSummary is printed once when the daemon starts.
type StartupSummary struct {
	Env        string
	Store      string
	Timezone   string
	Quote      string
	CorpAction string
	Checkpoint string
	Schedule   string
	Stages     []string
	Reconcile  string
	HTTPAddr   string
}

func newStartupSummary(cfg *config.Config, core *Core) *StartupSummary {
	s := &StartupSummary{
		Env:        cfg.App.Env,
		Store:      describeSource(cfg.Store.Driver, cfg.Store.Path),
		Timezone:   cfg.App.Location().String(),
		Quote:      describeSource(cfg.Quote.Source, cfg.Quote.HTTP.BaseURL),
		CorpAction: describeSource(cfg.CorpAction.Source, cfg.CorpAction.HTTP.BaseURL),
		Checkpoint: describeSource(cfg.Checkpoint.Driver, cfg.Checkpoint.Path),
		Schedule:   "disabled",
		Reconcile: fmt.Sprintf("lookback=%d pay_lag=%d brackets=%d",
			cfg.Reconcile.LookbackDays, cfg.Reconcile.PayLagDays, len(cfg.Reconcile.TaxBrackets)),
		HTTPAddr: cfg.App.HTTPAddr,
	}
	if cfg.Scheduler.Enabled {
		s.Schedule = fmt.Sprintf("%s-%s workers=%d", cfg.Scheduler.RunAt, cfg.Scheduler.Deadline, cfg.Scheduler.Workers)
	}
	if core != nil && core.Pipeline != nil {
		s.Stages = core.Pipeline.Stages()
	}
	return s
}

func describeSource(kind, target string) string {
	if kind == "memory" || kind == "static" || kind == "store" || strings.TrimSpace(target) == "" {
		return kind
	}
	return kind + " " + target
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("fundledger startup summary")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  env:         %s\n", orDash(s.Env))
	fmt.Printf("  timezone:    %s\n", s.Timezone)
	fmt.Printf("  store:       %s\n", s.Store)
	fmt.Printf("  quote:       %s\n", s.Quote)
	fmt.Printf("  corp action: %s\n", s.CorpAction)
	fmt.Printf("  checkpoint:  %s\n", s.Checkpoint)
	fmt.Printf("  schedule:    %s\n", s.Schedule)
	fmt.Printf("  stages:      %s\n", orDash(strings.Join(s.Stages, " -> ")))
	fmt.Printf("  reconcile:   %s\n", s.Reconcile)
	fmt.Printf("  http:        %s\n", orDash(s.HTTPAddr))
	fmt.Println(strings.Repeat("=", 60))
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
