// Package schedule aggregates entries per day and builds the derived views
// (today/tomorrow, week, month grid, upcoming one-off dates).
package schedule

import (
	"sort"
	"time"

	"trashcal/internal/model"
	"trashcal/internal/rule"
)

const (
	DaysInWeek = 7
	// DaysInMonthGrid is six Sunday-start weeks, enough for any month.
	DaysInMonthGrid = 42
	// DefaultUpcomingLimit caps the upcoming specific-dates list.
	DefaultUpcomingLimit = 30
)

// EntriesOn returns the entries whose rule matches date, in input order.
func EntriesOn(date time.Time, entries []model.Entry) []model.Entry {
	out := make([]model.Entry, 0)
	for _, e := range entries {
		if rule.Matches(date, e.Rule) {
			out = append(out, e)
		}
	}
	return out
}

// Day is one calendar day with its matching entries.
type Day struct {
	Date    time.Time
	Entries []model.Entry
}

// TodayTomorrow is the dashboard pair of days.
type TodayTomorrow struct {
	Today    Day
	Tomorrow Day
}

// TodayAndTomorrow evaluates entries for now's date and the following date.
func TodayAndTomorrow(now time.Time, entries []model.Entry) TodayTomorrow {
	today := model.DateOnly(now)
	tomorrow := today.AddDate(0, 0, 1)
	return TodayTomorrow{
		Today:    Day{Date: today, Entries: EntriesOn(today, entries)},
		Tomorrow: Day{Date: tomorrow, Entries: EntriesOn(tomorrow, entries)},
	}
}

// WeekStart returns the Sunday on or before t.
func WeekStart(t time.Time) time.Time {
	return rule.WeekStart(t)
}

// Week returns seven consecutive days beginning at start's date. Pass
// WeekStart(now) for the calendar week, or now for a rolling week.
func Week(start time.Time, entries []model.Entry) []Day {
	first := model.DateOnly(start)
	days := make([]Day, DaysInWeek)
	for i := range days {
		d := first.AddDate(0, 0, i)
		days[i] = Day{Date: d, Entries: EntriesOn(d, entries)}
	}
	return days
}

// MonthCell is one cell of the month grid.
type MonthCell struct {
	Day
	InMonth bool
}

// Month returns the 42-cell grid for the month containing anyDay, starting
// the Sunday on or before the 1st.
func Month(anyDay time.Time, entries []model.Entry) []MonthCell {
	y, m, _ := anyDay.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, anyDay.Location())
	gridStart := WeekStart(first)

	cells := make([]MonthCell, DaysInMonthGrid)
	for i := range cells {
		d := gridStart.AddDate(0, 0, i)
		cells[i] = MonthCell{
			Day:     Day{Date: d, Entries: EntriesOn(d, entries)},
			InMonth: d.Month() == m,
		}
	}
	return cells
}

// UpcomingDate pairs a one-off collection date with the entry that owns it.
type UpcomingDate struct {
	Date  string
	Entry model.Entry
}

// Upcoming flattens every SpecificDates entry into dates on or after today,
// sorted ascending, capped at limit (DefaultUpcomingLimit when limit <= 0).
func Upcoming(today time.Time, entries []model.Entry, limit int) []UpcomingDate {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	todayISO := model.FormatDate(today)

	out := make([]UpcomingDate, 0)
	for _, e := range entries {
		dates, ok := e.Rule.(model.SpecificDates)
		if !ok {
			continue
		}
		for _, d := range dates.Dates {
			// ISO dates compare correctly as strings.
			if d >= todayISO {
				out = append(out, UpcomingDate{Date: d, Entry: e})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
