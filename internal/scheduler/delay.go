package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidClock is returned for a notification time that is not "HH:MM".
var ErrInvalidClock = errors.New("invalid notification time")

var clockPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

const daysPerWeek = 7

// ParseClock parses a 24h "HH:MM" string.
func ParseClock(s string) (hour, minute int, err error) {
	if !clockPattern.MatchString(s) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, _ = strconv.Atoi(s[:2])
	minute, _ = strconv.Atoi(s[3:])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hour, minute, nil
}

func atClock(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

// DelayUntilNextTime is the time from now until the next hour:minute. A
// target equal to now has already passed and rolls to tomorrow.
func DelayUntilNextTime(hour, minute int, now time.Time) time.Duration {
	target := atClock(now, hour, minute)
	if target.After(now) {
		return target.Sub(now)
	}
	return atClock(now.AddDate(0, 0, 1), hour, minute).Sub(now)
}

// DelayUntilNextWeekday is the time from now until the next hour:minute
// falling on weekday. A target equal to now rolls a full week forward.
func DelayUntilNextWeekday(weekday time.Weekday, hour, minute int, now time.Time) time.Duration {
	days := (int(weekday) - int(now.Weekday()) + daysPerWeek) % daysPerWeek
	target := atClock(now.AddDate(0, 0, days), hour, minute)
	if target.After(now) {
		return target.Sub(now)
	}
	return atClock(now.AddDate(0, 0, daysPerWeek), hour, minute).Sub(now)
}
