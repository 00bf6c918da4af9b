package tradingday

import (
	"sort"
	"sync"
	"time"
)

// maxScan bounds the search for the neighbouring trading day; no real exchange
// closes for more than a few weeks in a row.
const maxScan = 370

// Calendar answers trading-day questions. All ledger date arithmetic goes through it.
type Calendar interface {
	IsTradingDay(d Date) bool
	// Next returns the first trading day strictly after d.
	Next(d Date) Date
	// Last returns the last trading day strictly before d.
	Last(d Date) Date
	// Between returns every trading day in [start, end], ascending.
	Between(start, end Date) []Date
}

// Floor returns d when it is a trading day, else the trading day before it.
func Floor(cal Calendar, d Date) Date {
	if cal.IsTradingDay(d) {
		return d
	}
	return cal.Last(d)
}

// Ceil returns d when it is a trading day, else the trading day after it.
func Ceil(cal Calendar, d Date) Date {
	if cal.IsTradingDay(d) {
		return d
	}
	return cal.Next(d)
}

// Back walks n trading days back from d (n <= 0 returns Floor(d)).
func Back(cal Calendar, d Date, n int) Date {
	out := Floor(cal, d)
	for i := 0; i < n; i++ {
		out = cal.Last(out)
	}
	return out
}

// WeekdayCalendar treats Monday to Friday as trading days minus a holiday set.
// The holiday set can be swapped at runtime.
type WeekdayCalendar struct {
	mu       sync.RWMutex
	holidays map[Date]struct{}
}

func NewWeekdayCalendar(holidays ...Date) *WeekdayCalendar {
	c := &WeekdayCalendar{}
	c.SetHolidays(holidays)
	return c
}

// SetHolidays replaces the holiday set.
func (c *WeekdayCalendar) SetHolidays(days []Date) {
	set := make(map[Date]struct{}, len(days))
	for _, d := range days {
		if d.IsZero() {
			continue
		}
		set[d] = struct{}{}
	}
	c.mu.Lock()
	c.holidays = set
	c.mu.Unlock()
}

// Holidays returns the configured holidays, ascending.
func (c *WeekdayCalendar) Holidays() []Date {
	c.mu.RLock()
	out := make([]Date, 0, len(c.holidays))
	for d := range c.holidays {
		out = append(out, d)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *WeekdayCalendar) IsTradingDay(d Date) bool {
	if d.IsZero() {
		return false
	}
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	c.mu.RLock()
	_, closed := c.holidays[d]
	c.mu.RUnlock()
	return !closed
}

func (c *WeekdayCalendar) Next(d Date) Date {
	cur := d
	for i := 0; i < maxScan; i++ {
		cur = cur.AddDays(1)
		if c.IsTradingDay(cur) {
			return cur
		}
	}
	return cur
}

func (c *WeekdayCalendar) Last(d Date) Date {
	cur := d
	for i := 0; i < maxScan; i++ {
		cur = cur.AddDays(-1)
		if c.IsTradingDay(cur) {
			return cur
		}
	}
	return cur
}

func (c *WeekdayCalendar) Between(start, end Date) []Date {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil
	}
	out := make([]Date, 0, end.DaysSince(start)+1)
	for cur := start; !cur.After(end); cur = cur.AddDays(1) {
		if c.IsTradingDay(cur) {
			out = append(out, cur)
		}
	}
	return out
}

var _ Calendar = (*WeekdayCalendar)(nil)
