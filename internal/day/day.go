// Package day models the calendar-day processing unit: a year plus a
// day-of-year, with the parsing and placeholder expansion used by the window
// resolver, hooks, payload commands, and relocation targets.
package day

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dayrun/internal/services"
)

const secondsPerDay = 24 * 60 * 60

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// Day identifies one calendar day by year and day-of-year (1-based).
type Day struct {
	Year int
	DOY  int
}

// New returns the day for year/doy, normalizing out-of-range day numbers
// into neighbouring years.
func New(year, doy int) Day {
	return FromTime(time.Date(year, time.January, doy, 0, 0, 0, 0, time.UTC))
}

// FromTime returns the UTC calendar day containing t.
func FromTime(t time.Time) Day {
	u := t.UTC()
	return Day{Year: u.Year(), DOY: u.YearDay()}
}

// Time returns UTC midnight at the start of the day.
func (d Day) Time() time.Time {
	return time.Date(d.Year, time.January, d.DOY, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero value.
func (d Day) IsZero() bool {
	return d.Year == 0 && d.DOY == 0
}

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	return New(d.Year, d.DOY+n)
}

// Sub returns the number of whole days from other to d.
func (d Day) Sub(other Day) int {
	return int((d.Time().Unix() - other.Time().Unix()) / secondsPerDay)
}

func (d Day) Before(other Day) bool { return d.Sub(other) < 0 }

func (d Day) After(other Day) bool { return d.Sub(other) > 0 }

// String formats the day as YYYY-DDD.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%03d", d.Year, d.DOY)
}

// ISO formats the day as YYYY-MM-DD.
func (d Day) ISO() string {
	return d.Time().Format("2006-01-02")
}

// GPSWeek returns the GPS week number and day-of-week (0 = Sunday).
func (d Day) GPSWeek() (week, dow int) {
	days := int((d.Time().Unix() - gpsEpoch.Unix()) / secondsPerDay)
	if days < 0 {
		return 0, 0
	}
	return days / 7, days % 7
}

// Valid reports whether DOY is within the year.
func (d Day) Valid() bool {
	return d.Year > 0 && d.DOY >= 1 && d.DOY <= DaysInYear(d.Year)
}

// DaysInYear returns 365 or 366.
func DaysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// Parse interprets value relative to today. Accepted forms: YYYY-DDD,
// YYYY.DDD, YYYYDDD, YYYY-MM-DD, "today", "yesterday", and -N (N days ago).
func Parse(value string, today Day) (Day, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch {
	case trimmed == "":
		return Day{}, invalid(value, "empty value")
	case trimmed == "today":
		return today, nil
	case trimmed == "yesterday":
		return today.AddDays(-1), nil
	case strings.HasPrefix(trimmed, "-"):
		n, err := strconv.Atoi(trimmed[1:])
		if err != nil || n < 0 {
			return Day{}, invalid(value, "relative offset must be -N")
		}
		return today.AddDays(-n), nil
	}

	if t, err := time.Parse("2006-01-02", trimmed); err == nil {
		return FromTime(t), nil
	}

	var yearPart, doyPart string
	switch {
	case len(trimmed) == 8 && (trimmed[4] == '-' || trimmed[4] == '.'):
		yearPart, doyPart = trimmed[:4], trimmed[5:]
	case len(trimmed) == 7:
		yearPart, doyPart = trimmed[:4], trimmed[4:]
	default:
		return Day{}, invalid(value, "expected YYYY-DDD, YYYY-MM-DD, today, yesterday or -N")
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Day{}, invalid(value, "year is not numeric")
	}
	doy, err := strconv.Atoi(doyPart)
	if err != nil {
		return Day{}, invalid(value, "day-of-year is not numeric")
	}
	d := Day{Year: year, DOY: doy}
	if !d.Valid() {
		return Day{}, invalid(value, fmt.Sprintf("day-of-year %d outside 1..%d", doy, DaysInYear(year)))
	}
	return d, nil
}

// MustParse is Parse for literals in tests and defaults; it panics on error.
func MustParse(value string) Day {
	d, err := Parse(value, Day{})
	if err != nil {
		panic(err)
	}
	return d
}

func invalid(value, reason string) error {
	return services.Wrap(services.ErrConfiguration, "day", "parse", fmt.Sprintf("%q: %s", value, reason), nil)
}
