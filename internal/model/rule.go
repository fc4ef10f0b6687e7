package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RuleType is the JSON discriminator of a Rule.
type RuleType string

const (
	RuleWeekly        RuleType = "weekly"
	RuleBiweekly      RuleType = "biweekly"
	RuleNthWeekday    RuleType = "nthWeekday"
	RuleSpecificDates RuleType = "specificDates"
)

// Rule is a closed sum type: Weekly, Biweekly, NthWeekday or SpecificDates.
// Consumers switch on the concrete type.
type Rule interface {
	Type() RuleType
	isRule()
}

// Weekly matches every occurrence of DayOfWeek.
type Weekly struct {
	DayOfWeek time.Weekday
}

// Biweekly matches DayOfWeek on weeks an even number of Sunday-start
// calendar weeks away from the week containing ReferenceDate (YYYY-MM-DD).
type Biweekly struct {
	DayOfWeek     time.Weekday
	ReferenceDate string
}

// NthPattern is one weekday plus the occurrences-in-month (1..5) it recurs on.
type NthPattern struct {
	DayOfWeek   time.Weekday `json:"dayOfWeek"`
	WeekNumbers []int        `json:"weekNumbers"`
}

// NthWeekday matches when any pattern's weekday and occurrence-in-month fit.
type NthWeekday struct {
	Patterns []NthPattern
}

// SpecificDates matches exactly the listed YYYY-MM-DD dates.
type SpecificDates struct {
	Dates []string
}

func (Weekly) Type() RuleType        { return RuleWeekly }
func (Biweekly) Type() RuleType      { return RuleBiweekly }
func (NthWeekday) Type() RuleType    { return RuleNthWeekday }
func (SpecificDates) Type() RuleType { return RuleSpecificDates }

func (Weekly) isRule()        {}
func (Biweekly) isRule()      {}
func (NthWeekday) isRule()    {}
func (SpecificDates) isRule() {}

// Wire shapes. Field order is fixed so that re-encoding is byte-stable.
type weeklyJSON struct {
	Type      RuleType     `json:"type"`
	DayOfWeek time.Weekday `json:"dayOfWeek"`
}

type biweeklyJSON struct {
	Type          RuleType     `json:"type"`
	DayOfWeek     time.Weekday `json:"dayOfWeek"`
	ReferenceDate string       `json:"referenceDate"`
}

type nthWeekdayJSON struct {
	Type     RuleType     `json:"type"`
	Patterns []NthPattern `json:"patterns"`
}

type specificDatesJSON struct {
	Type  RuleType `json:"type"`
	Dates []string `json:"dates"`
}

func (r Weekly) MarshalJSON() ([]byte, error) {
	return json.Marshal(weeklyJSON{Type: RuleWeekly, DayOfWeek: r.DayOfWeek})
}

func (r Biweekly) MarshalJSON() ([]byte, error) {
	return json.Marshal(biweeklyJSON{Type: RuleBiweekly, DayOfWeek: r.DayOfWeek, ReferenceDate: r.ReferenceDate})
}

func (r NthWeekday) MarshalJSON() ([]byte, error) {
	patterns := make([]NthPattern, len(r.Patterns))
	for i, p := range r.Patterns {
		nums := p.WeekNumbers
		if nums == nil {
			nums = []int{}
		}
		patterns[i] = NthPattern{DayOfWeek: p.DayOfWeek, WeekNumbers: nums}
	}
	return json.Marshal(nthWeekdayJSON{Type: RuleNthWeekday, Patterns: patterns})
}

func (r SpecificDates) MarshalJSON() ([]byte, error) {
	dates := r.Dates
	if dates == nil {
		dates = []string{}
	}
	return json.Marshal(specificDatesJSON{Type: RuleSpecificDates, Dates: dates})
}

// Decoding errors returned by UnmarshalRule.
var (
	ErrUnknownRuleType  = errors.New("unknown rule type")
	ErrLegacyNthWeekday = errors.New("nthWeekday rule in legacy flat shape")
	ErrNilRule          = errors.New("nil rule")
)

// MarshalRule encodes r with its type discriminator.
func MarshalRule(r Rule) ([]byte, error) {
	switch v := r.(type) {
	case Weekly:
		return v.MarshalJSON()
	case Biweekly:
		return v.MarshalJSON()
	case NthWeekday:
		return v.MarshalJSON()
	case SpecificDates:
		return v.MarshalJSON()
	case nil:
		return nil, ErrNilRule
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRuleType, r)
	}
}

// UnmarshalRule decodes a current-shape rule. Legacy flat nthWeekday rules
// (dayOfWeek without patterns) are rejected with ErrLegacyNthWeekday;
// package migrate rewrites them. An nthWeekday rule with neither field
// fails with ErrEmptyPatterns.
func UnmarshalRule(data []byte) (Rule, error) {
	var head struct {
		Type      RuleType        `json:"type"`
		DayOfWeek json.RawMessage `json:"dayOfWeek"`
		Patterns  json.RawMessage `json:"patterns"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case RuleWeekly:
		var v weeklyJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return Weekly{DayOfWeek: v.DayOfWeek}, nil
	case RuleBiweekly:
		var v biweeklyJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return Biweekly{DayOfWeek: v.DayOfWeek, ReferenceDate: v.ReferenceDate}, nil
	case RuleNthWeekday:
		if head.Patterns == nil {
			if head.DayOfWeek == nil {
				return nil, ErrEmptyPatterns
			}
			return nil, ErrLegacyNthWeekday
		}
		var v nthWeekdayJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return NthWeekday{Patterns: v.Patterns}, nil
	case RuleSpecificDates:
		var v specificDatesJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return SpecificDates{Dates: v.Dates}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, head.Type)
	}
}

// CloneRule deep-copies the slices held by r.
func CloneRule(r Rule) Rule {
	switch v := r.(type) {
	case NthWeekday:
		patterns := make([]NthPattern, len(v.Patterns))
		for i, p := range v.Patterns {
			patterns[i] = NthPattern{DayOfWeek: p.DayOfWeek, WeekNumbers: append([]int(nil), p.WeekNumbers...)}
		}
		return NthWeekday{Patterns: patterns}
	case SpecificDates:
		return SpecificDates{Dates: append([]string(nil), v.Dates...)}
	default:
		return r
	}
}

// ValidateRule checks ranges and date formats of r.
func ValidateRule(r Rule) error {
	switch v := r.(type) {
	case Weekly:
		return validWeekday(v.DayOfWeek)
	case Biweekly:
		if err := validWeekday(v.DayOfWeek); err != nil {
			return err
		}
		if _, err := ParseDate(v.ReferenceDate, time.UTC); err != nil {
			return err
		}
		return nil
	case NthWeekday:
		if len(v.Patterns) == 0 {
			return ErrEmptyPatterns
		}
		for _, p := range v.Patterns {
			if err := validWeekday(p.DayOfWeek); err != nil {
				return err
			}
			if len(p.WeekNumbers) == 0 {
				return ErrEmptyWeekNumber
			}
			for _, n := range p.WeekNumbers {
				if n < 1 || n > 5 {
					return fmt.Errorf("%w: %d", ErrInvalidWeekNum, n)
				}
			}
		}
		return nil
	case SpecificDates:
		if len(v.Dates) == 0 {
			return ErrEmptyDateSet
		}
		for _, d := range v.Dates {
			if _, err := ParseDate(d, time.UTC); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return ErrMissingRule
	default:
		return fmt.Errorf("%w: %T", ErrUnknownRuleType, r)
	}
}

func validWeekday(d time.Weekday) error {
	if d < time.Sunday || d > time.Saturday {
		return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
	}
	return nil
}
