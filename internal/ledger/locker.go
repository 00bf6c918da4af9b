package ledger

import (
	"context"
	"sync"
)

// Locker hands out one exclusive slot per account so that the HTTP apply path and the
// batch phases never mutate the same account at the same time.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock blocks until the account is free or ctx is done. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[accountID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[accountID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.release(accountID, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(accountID, s)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(accountID string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, accountID)
	}
	l.mu.Unlock()
}

// Held reports how many callers hold or wait for accountID.
func (l *Locker) Held(accountID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[accountID]; ok {
		return s.refs
	}
	return 0
}
