package dataset

import (
	"strconv"
	"strings"
	"time"

	"NextClose/internal/model"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"20060102",
}

// ParseDate coerces a market-data date string to a UTC calendar date.
// ok is false for anything it cannot read; callers drop those rows.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return model.Day(time.Unix(ts, 0).UTC()), true
	}
	return time.Time{}, false
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}

// NextForecastDate returns the date to forecast after present. ISO days 5
// and 6 jump to present+(8-day); every other day moves one day ahead, so
// Friday, Saturday and Sunday all land on the following Monday.
func NextForecastDate(present time.Time) time.Time {
	day := ISOWeekday(present)
	if day == 5 || day == 6 {
		return present.AddDate(0, 0, 8-day)
	}
	return present.AddDate(0, 0, 1)
}
