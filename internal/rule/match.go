// Package rule decides whether a recurrence rule applies on a calendar date
// and renders rules for display and ICS export.
package rule

import (
	"slices"
	"time"

	"trashcal/internal/model"
)

const daysPerWeek = 7

// Matches reports whether r applies on the calendar date of date (in date's
// own location). It never fails: malformed rules simply do not match.
func Matches(date time.Time, r model.Rule) bool {
	switch v := r.(type) {
	case model.Weekly:
		return date.Weekday() == v.DayOfWeek
	case model.Biweekly:
		return matchesBiweekly(date, v)
	case model.NthWeekday:
		return matchesNthWeekday(date, v)
	case model.SpecificDates:
		return slices.Contains(v.Dates, model.FormatDate(date))
	default:
		return false
	}
}

func matchesBiweekly(date time.Time, r model.Biweekly) bool {
	if date.Weekday() != r.DayOfWeek {
		return false
	}
	ref, err := model.ParseDate(r.ReferenceDate, date.Location())
	if err != nil {
		return false
	}
	offset := WeekOffset(date, ref)
	return ((offset%2)+2)%2 == 0
}

func matchesNthWeekday(date time.Time, r model.NthWeekday) bool {
	day := date.Weekday()
	occurrence := Occurrence(date)
	for _, p := range r.Patterns {
		if p.DayOfWeek == day && slices.Contains(p.WeekNumbers, occurrence) {
			return true
		}
	}
	return false
}

// Occurrence returns which repetition of its weekday date is within its
// month: days 1-7 are 1, 8-14 are 2, and so on up to 5.
func Occurrence(date time.Time) int {
	return (date.Day() + daysPerWeek - 1) / daysPerWeek
}

// WeekStart returns midnight of the Sunday on or before t.
func WeekStart(t time.Time) time.Time {
	d := model.DateOnly(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// WeekOffset is the signed number of Sunday-start week boundaries between
// the weeks containing a and b (positive when a is later).
func WeekOffset(a, b time.Time) int {
	return (civilDays(WeekStart(a)) - civilDays(WeekStart(b))) / daysPerWeek
}

// civilDays counts calendar days since the Unix epoch, ignoring zone and DST.
func civilDays(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
