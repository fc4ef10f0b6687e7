package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "trashcal/internal/log"
)

// Event is a VEVENT reduced to what collection calendars carry: a summary
// naming the waste category, a start date and an optional recurrence.
type Event struct {
	Feed Feed

	UID     string
	Summary string
	Start   time.Time
	AllDay  bool

	RawRRule string
	ExDates  []time.Time
	RDates   []time.Time
	// RecurrenceID is set on an override of one instance of a recurring event.
	RecurrenceID *time.Time
}

// Parse reads an ICS payload. Events that cannot be read are logged and
// skipped; loc is used for floating and date-only values.
func Parse(feed Feed, body []byte, loc *time.Location) ([]Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(feed, ve, loc)
		if err != nil {
			appLog.Warn("ics: skipping event", "feed", feed.ID, "err", err.Error())
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics: parsed feed", "feed", feed.ID, "events", len(events))
	return events, nil
}

func parseEvent(feed Feed, ve *ical.VEvent, loc *time.Location) (Event, error) {
	ev := Event{Feed: feed}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = strings.TrimSpace(p.Value)
	}
	if ev.Summary == "" {
		return ev, errors.New("missing SUMMARY")
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtstart)
	if ev.AllDay {
		t, err := parseValue(dtstart.Value, loc)
		if err != nil {
			return ev, err
		}
		ev.Start = t
	} else {
		t, err := ve.GetStartAt()
		if err != nil {
			return ev, err
		}
		ev.Start = t.In(loc)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RawRRule = p.Value
	}
	ev.ExDates = parseList(ve.GetProperties(ical.ComponentPropertyExdate), loc)
	ev.RDates = parseList(ve.GetProperties("RDATE"), loc)

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseValue(p.Value, loc); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseList(props []*ical.IANAProperty, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range props {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseValue(part, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseValue reads the DATE and DATE-TIME forms that appear in EXDATE,
// RDATE and RECURRENCE-ID values.
func parseValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), err
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
