package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fundledger/internal/tradingday"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = tradingday.MustParse("2025-03-03")

func fastGate(s Store) *Gate {
	return NewGate(s, Options{PollInterval: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond, Location: time.UTC})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "fundledger:checkpoint:2025-03-03:ts_sync", Key(day, "ts_sync"))
}

func TestGate_MarkAndDone(t *testing.T) {
	g := fastGate(NewMemoryStore())
	ctx := context.Background()

	done, err := g.Done(ctx, day, "ts_sync")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, g.Mark(ctx, day, "ts_sync"))
	done, err = g.Done(ctx, day, "ts_sync")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = g.Done(ctx, day.AddDays(1), "ts_sync")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestGate_WaitReturnsOnceMarked(t *testing.T) {
	g := fastGate(NewMemoryStore())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = g.Mark(context.Background(), day, "ability")
	}()
	require.NoError(t, g.Wait(ctx, day, "ability"))
}

func TestGate_WaitHonoursDeadline(t *testing.T) {
	g := fastGate(NewMemoryStore())
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, day, "ability")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_Run(t *testing.T) {
	g := fastGate(NewMemoryStore())
	ctx := context.Background()
	calls := 0
	fail := errors.New("boom")

	err := g.Run(ctx, day, "dividend_liquidation", "", func(context.Context) error {
		calls++
		return fail
	})
	assert.ErrorIs(t, err, fail)
	done, _ := g.Done(ctx, day, "dividend_liquidation")
	assert.False(t, done)

	err = g.Run(ctx, day, "dividend_liquidation", "", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	err = g.Run(ctx, day, "dividend_liquidation", "", func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, 2, calls)
}

func TestGate_TTLFloorsAtMinimum(t *testing.T) {
	g := fastGate(NewMemoryStore())
	g.now = func() time.Time { return time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC) }
	assert.Equal(t, 12*time.Hour, g.ttl(day))
	assert.Equal(t, minTTL, g.ttl(day.AddDays(-5)))
}

func TestSQLStore(t *testing.T) {
	s, err := NewSQLStore(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "1", time.Hour))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Set(ctx, "k", "2", time.Hour))
	v, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	now := time.Now()
	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLStore_SharedAcrossGates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	a, err := NewSQLStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewSQLStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	require.NoError(t, fastGate(a).Mark(ctx, day, "ts_sync"))
	done, err := fastGate(b).Done(ctx, day, "ts_sync")
	require.NoError(t, err)
	assert.True(t, done)
}
