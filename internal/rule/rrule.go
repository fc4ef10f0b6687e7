package rule

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"trashcal/internal/model"
)

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Option converts r into an RFC 5545 recurrence anchored at or before from.
// SpecificDates (and malformed rules) have no recurrence form; ok is false.
func Option(r model.Rule, from time.Time) (opt rrule.ROption, ok bool) {
	start := model.DateOnly(from)

	switch v := r.(type) {
	case model.Weekly:
		if model.ValidateRule(v) != nil {
			return opt, false
		}
		return rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   WeekStart(start),
			Byweekday: []rrule.Weekday{rruleWeekdays[v.DayOfWeek]},
			Wkst:      rrule.SU,
		}, true

	case model.Biweekly:
		if model.ValidateRule(v) != nil {
			return opt, false
		}
		ref, _ := model.ParseDate(v.ReferenceDate, from.Location())
		// Anchor on the reference week's occurrence so INTERVAL=2 keeps parity.
		anchor := WeekStart(ref).AddDate(0, 0, int(v.DayOfWeek))
		if off := WeekOffset(anchor, start); off > 0 {
			anchor = anchor.AddDate(0, 0, -daysPerWeek*(off+off%2))
		}
		return rrule.ROption{
			Freq:      rrule.WEEKLY,
			Interval:  2,
			Dtstart:   anchor,
			Byweekday: []rrule.Weekday{rruleWeekdays[v.DayOfWeek]},
			Wkst:      rrule.SU,
		}, true

	case model.NthWeekday:
		if model.ValidateRule(v) != nil {
			return opt, false
		}
		var days []rrule.Weekday
		for _, p := range v.Patterns {
			for _, n := range SortedWeekNumbers(p.WeekNumbers) {
				days = append(days, rruleWeekdays[p.DayOfWeek].Nth(n))
			}
		}
		monthStart := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		return rrule.ROption{
			Freq:      rrule.MONTHLY,
			Dtstart:   monthStart,
			Byweekday: days,
			Wkst:      rrule.SU,
		}, true

	default:
		return opt, false
	}
}

// RRuleString renders the RRULE value (without DTSTART) for r.
func RRuleString(r model.Rule, from time.Time) (string, bool) {
	opt, ok := Option(r, from)
	if !ok {
		return "", false
	}
	return opt.RRuleString(), true
}

// Expand lists the dates in [from, to] on which r applies, ascending.
func Expand(r model.Rule, from, to time.Time) []time.Time {
	from = model.DateOnly(from)
	to = model.DateOnly(to)
	if to.Before(from) {
		return nil
	}

	if v, isDates := r.(model.SpecificDates); isDates {
		var out []time.Time
		for _, s := range v.Dates {
			d, err := model.ParseDate(s, from.Location())
			if err != nil || d.Before(from) || d.After(to) {
				continue
			}
			out = append(out, d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
		return slicesCompactTimes(out)
	}

	opt, ok := Option(r, from)
	if !ok {
		return nil
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil
	}
	return rr.Between(from, to, true)
}

func slicesCompactTimes(ts []time.Time) []time.Time {
	if len(ts) < 2 {
		return ts
	}
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}
