package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "trashcal/internal/log"
	"trashcal/internal/model"
)

const defaultMaxOccurrences = 1000

// Occurrence is one collection day of one event.
type Occurrence struct {
	FeedID  string
	UID     string
	Summary string
	Date    time.Time
}

// ExpandConfig bounds an expansion. From and To are inclusive dates.
type ExpandConfig struct {
	From, To       time.Time
	Location       *time.Location
	MaxOccurrences int
}

// Expand turns events into collection days within the configured window,
// applying RRULE, RDATE, EXDATE and RECURRENCE-ID overrides. The result is
// sorted by date then summary.
func Expand(events []Event, cfg ExpandConfig) ([]Occurrence, error) {
	if cfg.To.Before(cfg.From) {
		return nil, errors.New("expand: To is before From")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}
	from := dateIn(cfg.From, cfg.Location)
	to := dateIn(cfg.To, cfg.Location)

	base := make(map[string][]Event)
	overrides := make(map[string][]Event)
	var order []string
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := base[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	out := make([]Occurrence, 0)
	for _, uid := range order {
		moved := make(map[string]bool)
		for _, ov := range overrides[uid] {
			moved[model.FormatDate(dateIn(*ov.RecurrenceID, cfg.Location))] = true
		}

		for _, ev := range base[uid] {
			for _, d := range eventDates(ev, from, to, cfg) {
				if moved[model.FormatDate(d)] {
					continue
				}
				out = append(out, Occurrence{FeedID: ev.Feed.ID, UID: uid, Summary: ev.Summary, Date: d})
			}
		}
		for _, ov := range overrides[uid] {
			d := dateIn(ov.Start, cfg.Location)
			if !d.Before(from) && !d.After(to) {
				out = append(out, Occurrence{FeedID: ov.Feed.ID, UID: uid, Summary: ov.Summary, Date: d})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Summary < out[j].Summary
	})
	return out, nil
}

func eventDates(ev Event, from, to time.Time, cfg ExpandConfig) []time.Time {
	var times []time.Time
	if ev.RawRRule == "" {
		times = append(times, ev.Start)
		times = append(times, ev.RDates...)
	} else {
		r, err := rrule.StrToRRule(ev.RawRRule)
		if err != nil {
			appLog.Warn("ics: bad RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "err", err.Error())
			return nil
		}
		r.DTStart(ev.Start)

		var set rrule.Set
		set.RRule(r)
		for _, rd := range ev.RDates {
			set.RDate(rd)
		}
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}
		// Through the end of the last day, in the event's own zone.
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		times = set.Between(from.In(ev.Start.Location()), end.In(ev.Start.Location()), true)
		if len(times) > cfg.MaxOccurrences {
			appLog.Warn("ics: occurrences truncated", "uid", ev.UID, "cap", cfg.MaxOccurrences)
			times = times[:cfg.MaxOccurrences]
		}
	}

	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		d := dateIn(t, cfg.Location)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// dateIn is the calendar date of t as seen in loc, at midnight.
func dateIn(t time.Time, loc *time.Location) time.Time {
	return model.DateOnly(t.In(loc))
}
