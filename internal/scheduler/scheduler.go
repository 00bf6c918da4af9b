package scheduler

import (
	"context"
	"time"

	"fundledger/internal/logger"
)

// DailyScheduler fires a task once per calendar day at RunAt (an offset from local
// midnight) and hands it a context that expires at Deadline on the same day.
type DailyScheduler struct {
	RunAt    time.Duration
	Deadline time.Duration
	Location *time.Location
	// RunImmediately fires once at start even outside the daily window.
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewDailyScheduler(ctx context.Context, runAt, deadline time.Duration, loc *time.Location) *DailyScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	if loc == nil {
		loc = time.Local
	}
	return &DailyScheduler{RunAt: runAt, Deadline: deadline, Location: loc, ctx: ctx, nowFn: time.Now}
}

// Start blocks until ctx is done. A process started inside today's window runs at once.
func (s *DailyScheduler) Start(task func(ctx context.Context, now time.Time)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("DailyScheduler: task is nil, exit")
		return
	}
	if s.Deadline <= s.RunAt {
		logger.Warnf("DailyScheduler: deadline=%s not after run_at=%s, exit", s.Deadline, s.RunAt)
		return
	}
	now := s.now()
	logger.Infof("DailyScheduler: started run_at=%s deadline=%s tz=%s run_immediately=%v",
		s.RunAt, s.Deadline, s.Location, s.RunImmediately)

	start, end := s.window(now)
	switch {
	case !now.Before(start) && now.Before(end):
		logger.Infof("DailyScheduler: inside today's window, running now")
		s.fire(task, now, end)
	case s.RunImmediately:
		logger.Infof("DailyScheduler: RunImmediately=true, execute once before the first window")
		s.fire(task, now, now.Add(s.Deadline-s.RunAt))
	}

	for {
		next := s.nextRun(s.now())
		logger.Infof("DailyScheduler: next run at %s (in %s)", next.Format(time.RFC3339), next.Sub(s.now()).Truncate(time.Second))
		if !s.waitUntil(next) {
			return
		}
		_, end := s.window(next)
		s.fire(task, next, end)
	}
}

func (s *DailyScheduler) fire(task func(ctx context.Context, now time.Time), at, deadline time.Time) {
	ctx, cancel := context.WithDeadline(s.ctx, deadline)
	defer cancel()
	started := s.now()
	task(ctx, at)
	logger.Infof("DailyScheduler: run finished in %s", s.now().Sub(started).Truncate(time.Millisecond))
}

func (s *DailyScheduler) now() time.Time {
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	return s.nowFn().In(s.Location)
}

// window is today's [run_at, deadline) in the scheduler's zone.
func (s *DailyScheduler) window(now time.Time) (time.Time, time.Time) {
	now = now.In(s.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.Location)
	return midnight.Add(s.RunAt), midnight.Add(s.Deadline)
}

// nextRun is the first run_at strictly after now.
func (s *DailyScheduler) nextRun(now time.Time) time.Time {
	start, _ := s.window(now)
	if start.After(now) {
		return start
	}
	now = now.In(s.Location)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.Location)
	return tomorrow.Add(s.RunAt)
}

func (s *DailyScheduler) waitUntil(target time.Time) bool {
	wait := target.Sub(s.now())
	if wait <= 0 {
		select {
		case <-s.ctx.Done():
			logger.Infof("DailyScheduler: ctx done, exit")
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(wait)
	select {
	case <-s.ctx.Done():
		timer.Stop()
		logger.Infof("DailyScheduler: ctx done, exit")
		return false
	case <-timer.C:
		return true
	}
}
