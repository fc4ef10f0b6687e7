package ics

import (
	"strings"
	"time"

	"trashcal/internal/model"
	"trashcal/internal/schedule"
)

// minInferDates is the fewest dates from which a weekly or biweekly
// cadence is inferred instead of listing the dates.
const minInferDates = 4

// iconKeywords maps summary substrings to icon keys. Order matters: the
// first match wins, so the more specific keywords come first.
var iconKeywords = []struct {
	keyword string
	icon    string
}{
	{"燃えない", "nonburn"},
	{"不燃", "nonburn"},
	{"燃える", "burn"},
	{"可燃", "burn"},
	{"プラ", "plastic"},
	{"ペットボトル", "bottle"},
	{"ビン", "bottle"},
	{"びん", "bottle"},
	{"缶", "can"},
	{"かん", "can"},
	{"古紙", "paper"},
	{"紙", "paper"},
	{"古布", "cloth"},
	{"衣類", "cloth"},
	{"粗大", "oversized"},
	{"有害", "hazardous"},
	{"電池", "battery"},
	{"資源", "recycle"},
	{"restmüll", "nonburn"},
	{"biomüll", "burn"},
	{"papier", "paper"},
	{"gelb", "plastic"},
	{"glas", "bottle"},
	{"sperrmüll", "oversized"},
	{"schadstoff", "hazardous"},
}

// GuessIcon picks an icon key for a category name, or "other".
func GuessIcon(name string) string {
	lower := strings.ToLower(name)
	for _, k := range iconKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.icon
		}
	}
	return "other"
}

// categoryFor reads back a summary written by Export ("🔥 燃えるゴミ"),
// falling back to keyword guessing for third-party feeds.
func categoryFor(summary string) model.TrashCategory {
	for key, icon := range model.Icons {
		if name, ok := strings.CutPrefix(summary, icon+" "); ok && name != "" {
			return model.TrashCategory{Name: name, Icon: key}
		}
	}
	return model.TrashCategory{Name: summary, Icon: GuessIcon(summary)}
}

// Propose groups occurrences by summary into one entry per category, in
// order of first collection. A category whose dates fall on one weekday
// at a constant 7 or 14 day spacing becomes a Weekly or Biweekly rule;
// anything else keeps its explicit dates.
func Propose(occ []Occurrence) model.Schedule {
	var names []string
	dates := make(map[string][]time.Time)
	for _, o := range occ {
		if _, ok := dates[o.Summary]; !ok {
			names = append(names, o.Summary)
		}
		ds := dates[o.Summary]
		if n := len(ds); n > 0 && ds[n-1].Equal(o.Date) {
			continue
		}
		dates[o.Summary] = append(ds, o.Date)
	}

	entries := make([]model.Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, model.Entry{
			ID:    schedule.NewID(),
			Trash: categoryFor(name),
			Rule:  inferRule(dates[name]),
		})
	}
	return model.NewSchedule(entries...)
}

// inferRule expects ascending, distinct dates.
func inferRule(ds []time.Time) model.Rule {
	if len(ds) >= minInferDates {
		if gap, ok := constantGap(ds); ok && ds[0].Weekday() == ds[len(ds)-1].Weekday() {
			switch gap {
			case 7:
				return model.Weekly{DayOfWeek: ds[0].Weekday()}
			case 14:
				return model.Biweekly{DayOfWeek: ds[0].Weekday(), ReferenceDate: model.FormatDate(ds[0])}
			}
		}
	}
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = model.FormatDate(d)
	}
	return model.SpecificDates{Dates: out}
}

func constantGap(ds []time.Time) (int, bool) {
	gap := daysBetween(ds[0], ds[1])
	for i := 2; i < len(ds); i++ {
		if daysBetween(ds[i-1], ds[i]) != gap {
			return 0, false
		}
	}
	return gap, true
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
