package rule

import (
	"slices"
	"strconv"
	"strings"

	"trashcal/internal/model"
)

// Describe renders r as a one-line Japanese description, e.g.
// "毎週 火曜日" or "第2・第4 火曜日 + 第1 水曜日".
func Describe(r model.Rule) string {
	switch v := r.(type) {
	case model.Weekly:
		return model.RuleTypeLabels[model.RuleWeekly] + " " + model.DayName(v.DayOfWeek)
	case model.Biweekly:
		return model.RuleTypeLabels[model.RuleBiweekly] + " " + model.DayName(v.DayOfWeek)
	case model.NthWeekday:
		parts := make([]string, 0, len(v.Patterns))
		for _, p := range v.Patterns {
			parts = append(parts, weekNumberLabel(p.WeekNumbers)+" "+model.DayName(p.DayOfWeek))
		}
		return strings.Join(parts, " + ")
	case model.SpecificDates:
		return model.RuleTypeLabels[model.RuleSpecificDates] + " (" + strconv.Itoa(len(v.Dates)) + "日)"
	default:
		return ""
	}
}

// Badge is the short tag shown next to an entry. Weekly rules have none.
func Badge(r model.Rule) string {
	switch v := r.(type) {
	case model.Weekly:
		return ""
	case model.Biweekly:
		return model.RuleTypeLabels[model.RuleBiweekly]
	case model.NthWeekday:
		var all []int
		for _, p := range v.Patterns {
			all = append(all, p.WeekNumbers...)
		}
		return weekNumberLabel(all)
	case model.SpecificDates:
		return model.RuleTypeLabels[model.RuleSpecificDates]
	default:
		return ""
	}
}

// SortedWeekNumbers returns nums sorted ascending without duplicates.
func SortedWeekNumbers(nums []int) []int {
	out := slices.Clone(nums)
	slices.Sort(out)
	return slices.Compact(out)
}

func weekNumberLabel(nums []int) string {
	sorted := SortedWeekNumbers(nums)
	labels := make([]string, len(sorted))
	for i, n := range sorted {
		labels[i] = "第" + strconv.Itoa(n)
	}
	return strings.Join(labels, "・")
}
