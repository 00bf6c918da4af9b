package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	b := New("quote", 2, time.Minute)
	b.nowFn = func() time.Time { return now }
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Do(func() error { return boom }, nil), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(func() error { return boom }, nil), boom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	assert.ErrorIs(t, b.Do(func() error { called = true; return nil }, nil), ErrOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one probe while half-open")
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	b := New("corp", 1, time.Second)
	b.nowFn = func() time.Time { return now }
	b.RecordFailure()
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	notFound := errors.New("not found")
	b := New("quote", 1, time.Minute)
	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return notFound }, func(err error) bool { return errors.Is(err, notFound) })
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_NilRunsThrough(t *testing.T) {
	var b *Breaker
	assert.NoError(t, b.Do(func() error { return nil }, nil))
}
