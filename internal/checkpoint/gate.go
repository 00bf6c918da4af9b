// Package checkpoint records which daily phases have completed so that later phases
// can wait for earlier ones, across goroutines and processes sharing a Store.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundledger/internal/logger"
	"fundledger/internal/tradingday"
)

// Store is a string key/value store with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const (
	keyPrefix = "fundledger:checkpoint"
	doneValue = "1"
	// minTTL keeps flags for past days around long enough for a catch-up run.
	minTTL = time.Hour
)

// Key is the flag key of phase on day.
func Key(day tradingday.Date, phase string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, day, phase)
}

type Options struct {
	PollInterval time.Duration
	MaxBackoff   time.Duration
	Location     *time.Location
}

// Gate orders phases by flag: a phase runs once per day and only after its predecessor.
type Gate struct {
	store Store
	opts  Options
	now   func() time.Time
}

func NewGate(store Store, opts Options) *Gate {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxBackoff < opts.PollInterval {
		opts.MaxBackoff = 30 * opts.PollInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Gate{store: store, opts: opts, now: time.Now}
}

// Mark sets phase's flag for day. The flag expires at the end of day.
func (g *Gate) Mark(ctx context.Context, day tradingday.Date, phase string) error {
	if err := g.store.Set(ctx, Key(day, phase), doneValue, g.ttl(day)); err != nil {
		return fmt.Errorf("mark %s@%s: %w", phase, day, err)
	}
	logger.Debugf("checkpoint marked: %s@%s", phase, day)
	return nil
}

func (g *Gate) ttl(day tradingday.Date) time.Duration {
	eod := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, g.opts.Location)
	if ttl := eod.Sub(g.now()); ttl > minTTL {
		return ttl
	}
	return minTTL
}

// Done reports whether phase has been marked for day.
func (g *Gate) Done(ctx context.Context, day tradingday.Date, phase string) (bool, error) {
	v, ok, err := g.store.Get(ctx, Key(day, phase))
	if err != nil {
		return false, err
	}
	return ok && v == doneValue, nil
}

// Wait polls until phase is marked for day, backing off exponentially, or ctx ends.
func (g *Gate) Wait(ctx context.Context, day tradingday.Date, phase string) error {
	delay := g.opts.PollInterval
	for {
		done, err := g.Done(ctx, day, phase)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for %s@%s: %w", phase, day, ctx.Err())
		case <-timer.C:
		}
		if delay *= 2; delay > g.opts.MaxBackoff {
			delay = g.opts.MaxBackoff
		}
	}
}

// ErrSkipped is returned by Run when the phase was already done.
var ErrSkipped = errors.New("checkpoint: phase already done")

// Run executes fn for phase unless it is already done, after waiting for after (when
// non-empty), and marks the phase only when fn succeeds.
func (g *Gate) Run(ctx context.Context, day tradingday.Date, phase, after string, fn func(context.Context) error) error {
	done, err := g.Done(ctx, day, phase)
	if err != nil {
		return err
	}
	if done {
		return ErrSkipped
	}
	if after != "" {
		if err := g.Wait(ctx, day, after); err != nil {
			return err
		}
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return g.Mark(ctx, day, phase)
}
