// Package tradingday provides a day-granular Date and the trading-day calendar
// every ledger date computation goes through.
package tradingday

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

const readDateFormat = "2006-1-2" // permissive read format, accepts 2025-7-1

// DateFormat is the canonical ISO-8601 representation, also used as the storage format.
const DateFormat = "2006-01-02"

// Date represents a calendar day with no time of day.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date for the given year, month, and day.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// FromTime truncates t to its calendar day in t's location.
func FromTime(t time.Time) Date { return New(t.Date()) }

// Today returns the current day in loc (UTC when loc is nil).
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return FromTime(time.Now().In(loc))
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

func (d Date) Year() int                 { return d.y }
func (d Date) Month() time.Month         { return d.m }
func (d Date) Day() int                  { return d.d }
func (d Date) Weekday() time.Weekday     { return d.Time().Weekday() }
func (d Date) IsZero() bool              { return d.y == 0 && d.m == 0 && d.d == 0 }
func (d Date) Before(x Date) bool        { return d.Time().Before(x.Time()) }
func (d Date) After(x Date) bool         { return d.Time().After(x.Time()) }
func (d Date) AddDays(n int) Date        { return New(d.y, d.m, d.d+n) }
func (d Date) DaysSince(x Date) int      { return int(d.Time().Sub(x.Time()).Hours() / 24) }
func (d Date) Compare(x Date) int        { return d.Time().Compare(x.Time()) }
func (d Date) Within(from, to Date) bool { return !d.Before(from) && !d.After(to) }

// String formats the date as 2006-01-02; the zero Date renders as "".
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(DateFormat)
}

// Min returns the earlier of a and b, ignoring zero values.
func Min(a, b Date) Date {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}

// Max returns the later of a and b.
func Max(a, b Date) Date {
	if b.After(a) {
		return b
	}
	return a
}

// Parse parses a Date. It is lenient and also accepts a full timestamp prefix.
func Parse(str string) (Date, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return Date{}, nil
	}
	if len(str) > len(DateFormat) && (str[len(DateFormat)] == 'T' || str[len(DateFormat)] == ' ') {
		str = str[:len(DateFormat)]
	}
	on, err := time.Parse(readDateFormat, str)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", str, DateFormat, err)
	}
	return New(on.Date()), nil
}

// MustParse is like Parse but panics on error.
func MustParse(str string) Date {
	d, err := Parse(str)
	if err != nil {
		panic(err.Error())
	}
	return d
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Value stores the date as its canonical string so range queries sort lexically.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case time.Time:
		*d = New(v.Date())
		return nil
	default:
		return fmt.Errorf("tradingday: cannot scan %T into Date", src)
	}
}
