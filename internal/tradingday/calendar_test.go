package tradingday

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayCalendar(t *testing.T) {
	// 2025-04-04 is a Friday holiday.
	cal := NewWeekdayCalendar(MustParse("2025-04-04"))

	assert.True(t, cal.IsTradingDay(MustParse("2025-04-03")))
	assert.False(t, cal.IsTradingDay(MustParse("2025-04-04")))
	assert.False(t, cal.IsTradingDay(MustParse("2025-04-05")))
	assert.False(t, cal.IsTradingDay(Date{}))

	assert.Equal(t, MustParse("2025-04-07"), cal.Next(MustParse("2025-04-03")))
	assert.Equal(t, MustParse("2025-04-03"), cal.Last(MustParse("2025-04-07")))
	assert.Equal(t, []Date{MustParse("2025-04-03"), MustParse("2025-04-07")},
		cal.Between(MustParse("2025-04-03"), MustParse("2025-04-07")))
	assert.Nil(t, cal.Between(MustParse("2025-04-07"), MustParse("2025-04-03")))

	assert.Equal(t, MustParse("2025-04-03"), Floor(cal, MustParse("2025-04-06")))
	assert.Equal(t, MustParse("2025-04-07"), Ceil(cal, MustParse("2025-04-05")))
	assert.Equal(t, MustParse("2025-04-02"), Back(cal, MustParse("2025-04-07"), 2))

	cal.SetHolidays(nil)
	assert.True(t, cal.IsTradingDay(MustParse("2025-04-04")))
	assert.Empty(t, cal.Holidays())
}

func TestDate(t *testing.T) {
	d, err := Parse("2025-03-03T09:30:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", d.String())
	assert.Equal(t, MustParse("2025-03-31"), d.AddDays(28))
	assert.Equal(t, 28, MustParse("2025-03-31").DaysSince(d))
	assert.True(t, d.Within(d, d))

	zero, err := Parse(" ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
	_, err = Parse("03/03/2025")
	assert.Error(t, err)

	assert.Equal(t, d, Min(Date{}, d))
	assert.Equal(t, d, Min(d, MustParse("2025-03-04")))
	assert.Equal(t, MustParse("2025-03-04"), Max(d, MustParse("2025-03-04")))

	var back Date
	require.NoError(t, back.Scan("2025-03-03"))
	assert.Equal(t, d, back)
	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLoadCalendar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays:\n  - 2025-05-01\n  - 2025-05-02\n"), 0o644))

	cal, err := LoadCalendar(path, false)
	require.NoError(t, err)
	assert.Len(t, cal.Holidays(), 2)
	assert.Equal(t, MustParse("2025-05-05"), cal.Next(MustParse("2025-04-30")))

	plain, err := LoadCalendar("", false)
	require.NoError(t, err)
	assert.True(t, plain.IsTradingDay(MustParse("2025-05-01")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("holidays:\n  - first of may\n"), 0o644))
	_, err = LoadCalendar(bad, false)
	assert.Error(t, err)
}
