package tradingday

import (
	"fmt"
	"strings"

	"fundledger/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoadCalendar builds a WeekdayCalendar from a holiday file of the form
//
//	holidays:
//	  - 2025-01-01
//	  - 2025-10-01
//
// and keeps it in sync with the file while the process runs. An empty path yields a
// plain weekday calendar.
func LoadCalendar(path string, watch bool) (*WeekdayCalendar, error) {
	cal := NewWeekdayCalendar()
	path = strings.TrimSpace(path)
	if path == "" {
		return cal, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read holiday calendar failed: %w", err)
	}
	days, err := parseHolidays(v)
	if err != nil {
		return nil, err
	}
	cal.SetHolidays(days)
	logger.Infof("trading calendar loaded path=%s holidays=%d", path, len(days))
	if !watch {
		return cal, nil
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		days, err := parseHolidays(v)
		if err != nil {
			logger.Errorf("trading calendar reload failed path=%s op=%s err=%v", evt.Name, evt.Op, err)
			return
		}
		cal.SetHolidays(days)
		logger.Infof("trading calendar reloaded path=%s holidays=%d", evt.Name, len(days))
	})
	v.WatchConfig()
	return cal, nil
}

func parseHolidays(v *viper.Viper) ([]Date, error) {
	raw := v.GetStringSlice("holidays")
	out := make([]Date, 0, len(raw))
	for _, item := range raw {
		d, err := Parse(item)
		if err != nil {
			return nil, fmt.Errorf("holidays: %w", err)
		}
		if !d.IsZero() {
			out = append(out, d)
		}
	}
	return out, nil
}
