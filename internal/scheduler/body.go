package scheduler

import (
	"strings"
	"time"

	"trashcal/internal/model"
	"trashcal/internal/schedule"
)

const (
	WeeklyTitle    = "今週のゴミ出しスケジュール"
	DayBeforeTitle = "明日のゴミ出し"

	labelSep = "、"
)

// WeeklyBody lists the seven days from start as "曜日: labels" lines.
// Days without collection are omitted; an empty week yields "".
func WeeklyBody(entries []model.Entry, start time.Time) string {
	var lines []string
	for _, d := range schedule.Week(start, entries) {
		if len(d.Entries) == 0 {
			continue
		}
		lines = append(lines, model.DayName(d.Date.Weekday())+": "+labels(d.Entries))
	}
	return strings.Join(lines, "\n")
}

// DayBeforeBody joins the labels of tomorrow's entries.
func DayBeforeBody(entries []model.Entry) string {
	return labels(entries)
}

func labels(entries []model.Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Trash.Label()
	}
	return strings.Join(parts, labelSep)
}
