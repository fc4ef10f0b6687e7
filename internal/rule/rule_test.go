package rule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trashcal/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeeklyMatchesOnlyItsWeekday(t *testing.T) {
	start := day(2026, time.January, 1)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		r := model.Weekly{DayOfWeek: wd}
		for i := 0; i < 28; i++ {
			d := start.AddDate(0, 0, i)
			assert.Equal(t, d.Weekday() == wd, Matches(d, r), "weekday %d on %s", wd, d)
		}
	}
}

func TestBiweekly(t *testing.T) {
	// 2026-01-06 is a Tuesday.
	r := model.Biweekly{DayOfWeek: time.Tuesday, ReferenceDate: "2026-01-06"}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"reference date", day(2026, time.January, 6), true},
		{"one week later", day(2026, time.January, 13), false},
		{"two weeks later", day(2026, time.January, 20), true},
		{"ten weeks later", day(2026, time.March, 17), true},
		{"one week earlier across year", day(2025, time.December, 30), false},
		{"two weeks earlier across year", day(2025, time.December, 23), true},
		{"three weeks earlier", day(2025, time.December, 16), false},
		{"wrong weekday in matching week", day(2026, time.January, 7), false},
		{"a year later, even offset", day(2027, time.January, 5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.date, r))
		})
	}
}

func TestBiweeklyReferenceOnOtherWeekday(t *testing.T) {
	// Reference is a Thursday; the Tuesday of that same Sunday-start week has offset 0.
	r := model.Biweekly{DayOfWeek: time.Tuesday, ReferenceDate: "2026-01-08"}
	assert.True(t, Matches(day(2026, time.January, 6), r))
	assert.False(t, Matches(day(2026, time.January, 13), r))
}

func TestBiweeklyMalformedReferenceNeverMatches(t *testing.T) {
	r := model.Biweekly{DayOfWeek: time.Tuesday, ReferenceDate: "not-a-date"}
	assert.False(t, Matches(day(2026, time.January, 6), r))
}

func TestWeekOffsetIsSigned(t *testing.T) {
	assert.Equal(t, 0, WeekOffset(day(2026, time.January, 10), day(2026, time.January, 4)))
	assert.Equal(t, 1, WeekOffset(day(2026, time.January, 11), day(2026, time.January, 10)))
	assert.Equal(t, -1, WeekOffset(day(2025, time.December, 31), day(2026, time.January, 4)))
	assert.Equal(t, 52, WeekOffset(day(2027, time.January, 3), day(2026, time.January, 4)))
}

func TestOccurrence(t *testing.T) {
	// March 2026 has 31 days and starts on a Sunday.
	require.Equal(t, time.Sunday, day(2026, time.March, 1).Weekday())
	assert.Equal(t, 1, Occurrence(day(2026, time.March, 1)))
	assert.Equal(t, 1, Occurrence(day(2026, time.March, 7)))
	assert.Equal(t, 2, Occurrence(day(2026, time.March, 8)))
	assert.Equal(t, 5, Occurrence(day(2026, time.March, 29)))
	assert.Equal(t, 5, Occurrence(day(2026, time.March, 31)))
}

func TestNthWeekdayFirstAndThirdWednesday(t *testing.T) {
	r := model.NthWeekday{Patterns: []model.NthPattern{{DayOfWeek: time.Wednesday, WeekNumbers: []int{3, 1}}}}

	var matched []int
	for d := 1; d <= 31; d++ {
		if Matches(day(2026, time.March, d), r) {
			matched = append(matched, d)
		}
	}
	assert.Equal(t, []int{4, 18}, matched)
}

func TestNthWeekdayMultiplePatterns(t *testing.T) {
	r := model.NthWeekday{Patterns: []model.NthPattern{
		{DayOfWeek: time.Tuesday, WeekNumbers: []int{2, 4}},
		{DayOfWeek: time.Wednesday, WeekNumbers: []int{1}},
	}}

	var matched []int
	for d := 1; d <= 31; d++ {
		if Matches(day(2026, time.March, d), r) {
			matched = append(matched, d)
		}
	}
	// Tuesdays: 3, 10, 17, 24, 31. Wednesdays: 4, ...
	assert.Equal(t, []int{4, 10, 24}, matched)
}

func TestNthWeekdayEmptyWeekNumbersNeverMatch(t *testing.T) {
	r := model.NthWeekday{Patterns: []model.NthPattern{{DayOfWeek: time.Wednesday}}}
	for d := 1; d <= 31; d++ {
		assert.False(t, Matches(day(2026, time.March, d), r))
	}
}

func TestSpecificDates(t *testing.T) {
	r := model.SpecificDates{Dates: []string{"2026-02-14", "2026-12-31"}}
	assert.True(t, Matches(day(2026, time.February, 14), r))
	assert.True(t, Matches(time.Date(2026, time.December, 31, 23, 59, 0, 0, time.UTC), r))
	assert.False(t, Matches(day(2026, time.February, 15), r))

	assert.False(t, Matches(day(2026, time.February, 14), model.SpecificDates{}))
}

func TestNilRuleNeverMatches(t *testing.T) {
	assert.False(t, Matches(day(2026, time.February, 14), nil))
}

func TestExpandAgreesWithMatches(t *testing.T) {
	rules := []model.Rule{
		model.Weekly{DayOfWeek: time.Friday},
		model.Biweekly{DayOfWeek: time.Monday, ReferenceDate: "2025-11-03"},
		model.Biweekly{DayOfWeek: time.Thursday, ReferenceDate: "2026-06-02"},
		model.NthWeekday{Patterns: []model.NthPattern{
			{DayOfWeek: time.Tuesday, WeekNumbers: []int{2, 4}},
			{DayOfWeek: time.Saturday, WeekNumbers: []int{5}},
		}},
		model.SpecificDates{Dates: []string{"2026-05-05", "2026-01-02", "2027-02-01"}},
	}

	from := day(2025, time.December, 1)
	to := day(2027, time.March, 31)

	for _, r := range rules {
		t.Run(string(r.Type())+" "+Describe(r), func(t *testing.T) {
			var want []string
			for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
				if Matches(d, r) {
					want = append(want, model.FormatDate(d))
				}
			}
			var got []string
			for _, d := range Expand(r, from, to) {
				got = append(got, model.FormatDate(d))
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestRRuleString(t *testing.T) {
	s, ok := RRuleString(model.Biweekly{DayOfWeek: time.Tuesday, ReferenceDate: "2026-01-06"}, day(2026, time.March, 1))
	require.True(t, ok)
	assert.Contains(t, s, "FREQ=WEEKLY")
	assert.Contains(t, s, "INTERVAL=2")
	assert.Contains(t, s, "BYDAY=TU")

	s, ok = RRuleString(model.NthWeekday{Patterns: []model.NthPattern{{DayOfWeek: time.Wednesday, WeekNumbers: []int{3, 1}}}}, day(2026, time.March, 1))
	require.True(t, ok)
	assert.Contains(t, s, "FREQ=MONTHLY")
	assert.True(t, strings.Contains(s, "+1WE,+3WE") || strings.Contains(s, "1WE,3WE"), s)

	_, ok = RRuleString(model.SpecificDates{Dates: []string{"2026-01-01"}}, day(2026, time.March, 1))
	assert.False(t, ok)
}

func TestDescribeAndBadge(t *testing.T) {
	nth := model.NthWeekday{Patterns: []model.NthPattern{
		{DayOfWeek: time.Tuesday, WeekNumbers: []int{4, 2, 2}},
		{DayOfWeek: time.Wednesday, WeekNumbers: []int{1}},
	}}

	assert.Equal(t, "毎週 火曜日", Describe(model.Weekly{DayOfWeek: time.Tuesday}))
	assert.Equal(t, "隔週 金曜日", Describe(model.Biweekly{DayOfWeek: time.Friday, ReferenceDate: "2026-01-02"}))
	assert.Equal(t, "第2・第4 火曜日 + 第1 水曜日", Describe(nth))
	assert.Equal(t, "指定日 (2日)", Describe(model.SpecificDates{Dates: []string{"2026-01-01", "2026-02-01"}}))

	assert.Equal(t, "", Badge(model.Weekly{DayOfWeek: time.Tuesday}))
	assert.Equal(t, "隔週", Badge(model.Biweekly{}))
	assert.Equal(t, "第1・第2・第4", Badge(nth))
	assert.Equal(t, "指定日", Badge(model.SpecificDates{}))
}
