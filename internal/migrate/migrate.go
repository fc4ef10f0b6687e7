// Package migrate upgrades persisted schedules to the current V2 shape.
//
// Two legacy shapes are recognized: the V1 weekday map
// {"0".."6": {name, icon}} and V2 entries whose nthWeekday rule still
// carries a flat dayOfWeek/weekNumbers pair instead of a patterns list.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	appLog "trashcal/internal/log"
	"trashcal/internal/model"
)

// ErrUnrecognizedSchedule is returned for a blob that is not a JSON object.
var ErrUnrecognizedSchedule = errors.New("unrecognized schedule shape")

// DefaultV1 is the schedule used when nothing has been stored yet.
var DefaultV1 = []byte(`{` +
	`"0":{"name":"","icon":""},` +
	`"1":{"name":"","icon":""},` +
	`"2":{"name":"燃えるゴミ","icon":"burn"},` +
	`"3":{"name":"ビン・缶・ペットボトル","icon":"bottle"},` +
	`"4":{"name":"資源ゴミ","icon":"recycle"},` +
	`"5":{"name":"燃えるゴミ","icon":"burn"},` +
	`"6":{"name":"","icon":""}}`)

// Result describes what Normalize had to do.
type Result struct {
	FromV1        bool
	LegacyNth     int
	Discarded     int
	IDsAssigned   int
	IgnoredV1Keys []string
}

// Changed reports whether the normalized schedule differs from the input.
func (r Result) Changed() bool {
	return r.FromV1 || r.LegacyNth > 0 || r.Discarded > 0 || r.IDsAssigned > 0
}

// Lossy reports whether some input could not be carried over.
func (r Result) Lossy() bool {
	return r.Discarded > 0 || len(r.IgnoredV1Keys) > 0
}

// IsUpToDate reports whether migration already ran for appVersion.
func IsUpToDate(marker, appVersion string) bool {
	return appVersion != "" && marker == appVersion
}

// Normalize converts raw into a V2 schedule.
func Normalize(raw []byte) (model.Schedule, Result, error) {
	var res Result

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return model.NewSchedule(), res, fmt.Errorf("%w: %v", ErrUnrecognizedSchedule, err)
	}
	if top == nil {
		return model.NewSchedule(), res, fmt.Errorf("%w: null", ErrUnrecognizedSchedule)
	}

	if isV2(top) {
		s, err := normalizeV2(top, &res)
		return s, res, err
	}
	return normalizeV1(top, &res), res, nil
}

func isV2(top map[string]json.RawMessage) bool {
	v, ok := top["version"]
	if !ok {
		return false
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return false
	}
	return n == model.ScheduleVersion
}

func normalizeV1(top map[string]json.RawMessage, res *Result) model.Schedule {
	res.FromV1 = true
	for k := range top {
		if n, err := strconv.Atoi(k); err != nil || n < 0 || n > 6 || strconv.Itoa(n) != k {
			res.IgnoredV1Keys = append(res.IgnoredV1Keys, k)
		}
	}
	slices.Sort(res.IgnoredV1Keys)
	for _, k := range res.IgnoredV1Keys {
		appLog.Warn("migrate: ignoring non-weekday key in v1 schedule", "key", k)
	}

	entries := make([]model.Entry, 0)
	for d := 0; d <= 6; d++ {
		v, ok := top[strconv.Itoa(d)]
		if !ok {
			continue
		}
		var trash model.TrashCategory
		if err := json.Unmarshal(v, &trash); err != nil {
			appLog.Warn("migrate: skipping malformed v1 day", "day", d, "err", err.Error())
			continue
		}
		if trash.Name == "" {
			continue
		}
		entries = append(entries, model.Entry{
			ID:    uuid.NewString(),
			Trash: trash,
			Rule:  model.Weekly{DayOfWeek: time.Weekday(d)},
		})
	}
	return model.NewSchedule(entries...)
}

type rawEntry struct {
	ID    string              `json:"id"`
	Trash model.TrashCategory `json:"trash"`
	Rule  json.RawMessage     `json:"rule"`
}

type legacyNth struct {
	DayOfWeek   int   `json:"dayOfWeek"`
	WeekNumbers []int `json:"weekNumbers"`
}

func normalizeV2(top map[string]json.RawMessage, res *Result) (model.Schedule, error) {
	var raws []json.RawMessage
	if v, ok := top["entries"]; ok {
		if err := json.Unmarshal(v, &raws); err != nil {
			return model.NewSchedule(), fmt.Errorf("%w: entries: %v", ErrUnrecognizedSchedule, err)
		}
	}

	entries := make([]model.Entry, 0, len(raws))
	for i, data := range raws {
		var re rawEntry
		if err := json.Unmarshal(data, &re); err != nil {
			res.Discarded++
			appLog.Warn("migrate: dropping malformed entry", "index", i, "err", err.Error())
			continue
		}

		r, err := model.UnmarshalRule(re.Rule)
		if errors.Is(err, model.ErrLegacyNthWeekday) {
			var old legacyNth
			if err = json.Unmarshal(re.Rule, &old); err == nil {
				r = model.NthWeekday{Patterns: []model.NthPattern{{
					DayOfWeek:   time.Weekday(old.DayOfWeek),
					WeekNumbers: old.WeekNumbers,
				}}}
				res.LegacyNth++
			}
		}
		if err != nil {
			res.Discarded++
			appLog.Warn("migrate: dropping entry with unreadable rule", "index", i, "id", re.ID, "err", err.Error())
			continue
		}

		if re.ID == "" {
			re.ID = uuid.NewString()
			res.IDsAssigned++
		}
		entries = append(entries, model.Entry{ID: re.ID, Trash: re.Trash, Rule: r})
	}
	return model.NewSchedule(entries...), nil
}
