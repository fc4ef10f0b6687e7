package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "trashcal/internal/log"
	"trashcal/internal/model"
	"trashcal/internal/rule"
)

const (
	productID = "-//trashcal//Trash Collection//JA"
	uidDomain = "@trashcal"
)

// Export renders s as an iCalendar document of all-day events. Recurring
// rules become one VEVENT with an RRULE starting at the first collection on
// or after from; SpecificDates become one VEVENT per date.
func Export(s model.Schedule, from time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	stamp := time.Now().UTC()
	for _, e := range s.Entries {
		switch r := e.Rule.(type) {
		case model.SpecificDates:
			for _, ds := range r.Dates {
				d, err := model.ParseDate(ds, from.Location())
				if err != nil {
					appLog.Warn("ics: export skipping bad date", "entry", e.ID, "date", ds)
					continue
				}
				addEvent(cal, e.ID+"-"+d.Format("20060102")+uidDomain, e.Trash, d, stamp)
			}
		default:
			rr, ok := rule.RRuleString(r, from)
			if !ok {
				appLog.Warn("ics: export skipping entry without recurrence", "entry", e.ID)
				continue
			}
			first := rule.Expand(r, from, from.AddDate(1, 0, 0))
			if len(first) == 0 {
				continue
			}
			ev := addEvent(cal, e.ID+uidDomain, e.Trash, first[0], stamp)
			ev.SetProperty(ical.ComponentPropertyRrule, rr)
		}
	}
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, uid string, trash model.TrashCategory, day, stamp time.Time) *ical.VEvent {
	ev := cal.AddEvent(uid)
	ev.SetDtStampTime(stamp)
	ev.SetAllDayStartAt(day)
	ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
	ev.SetSummary(trash.Label())
	return ev
}
