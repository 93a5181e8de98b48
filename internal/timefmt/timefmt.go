// Package timefmt parses and formats the fixed-pattern date, date-time and
// duration tokens used by the event package format.
//
//   - dates:      dd-MM-yyyy          (e.g. "01-01-2010")
//   - date-times: dd-MM-yyyy HH:mm    (e.g. "01-01-2010 10:30")
//   - durations:  H:MM                (hours unbounded, minutes zero-padded)
//
// All functions are pure. Parsing interprets tokens in the given location;
// a nil location means time.Local.
package timefmt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the Go layout for dd-MM-yyyy.
	DateLayout = "02-01-2006"
	// DateTimeLayout is the Go layout for dd-MM-yyyy HH:mm.
	DateTimeLayout = "02-01-2006 15:04"
	// StartLayout is used for short start-time labels (HH:mm).
	StartLayout = "15:04"
)

// ErrFormat is returned for tokens that do not match the expected pattern.
var ErrFormat = errors.New("timefmt: malformed token")

func locOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// ParseDate parses a dd-MM-yyyy token into midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), locOrLocal(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrFormat, s)
	}
	return t, nil
}

// ParseDateTime parses a dd-MM-yyyy HH:mm token in loc. Single-digit hours
// ("01-01-2010 0:00") are accepted as well.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(s), locOrLocal(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date-time %q", ErrFormat, s)
	}
	return t, nil
}

// ParseDuration parses an H:MM token: exactly two ':'-separated groups of
// decimal digits, minutes below 60.
func ParseDuration(s string) (time.Duration, error) {
	tokens := strings.Split(strings.TrimSpace(s), ":")
	if len(tokens) != 2 || !isDigits(tokens[0]) || !isDigits(tokens[1]) {
		return 0, fmt.Errorf("%w: duration %q", ErrFormat, s)
	}
	hours, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q", ErrFormat, s)
	}
	mins, err := strconv.ParseInt(tokens[1], 10, 64)
	if err != nil || mins > 59 {
		return 0, fmt.Errorf("%w: duration %q", ErrFormat, s)
	}
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, nil
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatDate formats t as dd-MM-yyyy in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(locOrLocal(loc)).Format(DateLayout)
}

// FormatDateTime formats t as dd-MM-yyyy HH:mm in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(locOrLocal(loc)).Format(DateTimeLayout)
}

// FormatDuration formats d as H:MM. Sub-minute precision is dropped.
func FormatDuration(d time.Duration) string {
	hours := d / time.Hour
	mins := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%d:%02d", hours, mins)
}

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(locOrLocal(loc))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
