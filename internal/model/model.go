package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ScheduleVersion is the version tag of the current persisted schedule shape.
const ScheduleVersion = 2

// ISODate is the layout used for every calendar date in rules and views.
const ISODate = "2006-01-02"

// TrashCategory is the display-only description of what is collected.
// Icon is a key into Icons; unknown keys render blank.
type TrashCategory struct {
	Name string `json:"name" yaml:"name"`
	Icon string `json:"icon" yaml:"icon"`
}

// Entry pairs a category with the rule deciding when it is collected.
// ID is assigned once and kept across edits of the same entry.
type Entry struct {
	ID    string
	Trash TrashCategory
	Rule  Rule
}

type entryJSON struct {
	ID    string          `json:"id"`
	Trash TrashCategory   `json:"trash"`
	Rule  json.RawMessage `json:"rule"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	rule, err := MarshalRule(e.Rule)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	return json.Marshal(entryJSON{ID: e.ID, Trash: e.Trash, Rule: rule})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r, err := UnmarshalRule(raw.Rule)
	if err != nil {
		return fmt.Errorf("entry %s: %w", raw.ID, err)
	}
	e.ID = raw.ID
	e.Trash = raw.Trash
	e.Rule = r
	return nil
}

// Schedule is the current (V2) persisted shape: an ordered entry list.
type Schedule struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// NewSchedule returns an empty V2 schedule.
func NewSchedule(entries ...Entry) Schedule {
	if entries == nil {
		entries = []Entry{}
	}
	return Schedule{Version: ScheduleVersion, Entries: entries}
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	type plain Schedule
	if s.Entries == nil {
		s.Entries = []Entry{}
	}
	return json.Marshal(plain(s))
}

// Clone returns a deep copy so callers can edit entries without aliasing.
func (s Schedule) Clone() Schedule {
	out := Schedule{Version: s.Version, Entries: make([]Entry, len(s.Entries))}
	for i, e := range s.Entries {
		out.Entries[i] = Entry{ID: e.ID, Trash: e.Trash, Rule: CloneRule(e.Rule)}
	}
	return out
}

// Validation errors reported by Schedule.Validate.
var (
	ErrDuplicateID     = errors.New("duplicate entry id")
	ErrEmptyID         = errors.New("empty entry id")
	ErrEmptyName       = errors.New("empty trash name")
	ErrInvalidWeekday  = errors.New("day of week out of range 0..6")
	ErrInvalidWeekNum  = errors.New("week number out of range 1..5")
	ErrInvalidDate     = errors.New("malformed ISO date")
	ErrMissingRule     = errors.New("entry has no rule")
	ErrInvalidVersion  = errors.New("unsupported schedule version")
	ErrEmptyPatterns   = errors.New("nth-weekday rule has no patterns")
	ErrEmptyDateSet    = errors.New("specific-dates rule has no dates")
	ErrEmptyWeekNumber = errors.New("nth-weekday pattern has no week numbers")
)

// Validate reports every problem found in s. The evaluator tolerates all of
// them (a broken rule never matches); Validate exists for write paths.
func (s Schedule) Validate() error {
	var errs []error
	if s.Version != ScheduleVersion {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidVersion, s.Version))
	}
	seen := make(map[string]bool, len(s.Entries))
	for i, e := range s.Entries {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, ErrEmptyID))
		} else if seen[e.ID] {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, e.ID, ErrDuplicateID))
		}
		seen[e.ID] = true
		if e.Trash.Name == "" {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, e.ID, ErrEmptyName))
		}
		if err := ValidateRule(e.Rule); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, e.ID, err))
		}
	}
	return errors.Join(errs...)
}

// NotificationSettings controls the two alert channels.
type NotificationSettings struct {
	Enabled                   bool   `json:"enabled"`
	WeeklyNotificationTime    string `json:"weeklyNotificationTime"`
	DayBeforeNotificationTime string `json:"dayBeforeNotificationTime"`
}

const (
	DefaultWeeklyTime    = "07:00"
	DefaultDayBeforeTime = "20:00"
)

// DefaultNotificationSettings returns enabled, 07:00 weekly, 20:00 day-before.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:                   true,
		WeeklyNotificationTime:    DefaultWeeklyTime,
		DayBeforeNotificationTime: DefaultDayBeforeTime,
	}
}

// DateOnly truncates t to midnight of its calendar day in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatDate renders the calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(ISODate)
}

// ParseDate parses YYYY-MM-DD into midnight in loc (time.Local if nil).
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(ISODate, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}
