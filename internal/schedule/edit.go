package schedule

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"trashcal/internal/model"
)

// ErrEntryNotFound is returned when an edit targets an unknown id.
var ErrEntryNotFound = errors.New("entry not found")

// NewID returns a fresh random entry identifier.
func NewID() string {
	return uuid.NewString()
}

// Add appends a new entry with a fresh id and returns the new schedule and id.
func Add(s model.Schedule, trash model.TrashCategory, r model.Rule) (model.Schedule, string) {
	out := s.Clone()
	id := NewID()
	out.Entries = append(out.Entries, model.Entry{ID: id, Trash: trash, Rule: model.CloneRule(r)})
	return out, id
}

// Replace swaps the category and rule of entry id, keeping id and position.
func Replace(s model.Schedule, id string, trash model.TrashCategory, r model.Rule) (model.Schedule, error) {
	i := indexOf(s, id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	out := s.Clone()
	out.Entries[i] = model.Entry{ID: id, Trash: trash, Rule: model.CloneRule(r)}
	return out, nil
}

// Remove deletes entry id.
func Remove(s model.Schedule, id string) (model.Schedule, error) {
	i := indexOf(s, id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	out := s.Clone()
	out.Entries = slices.Delete(out.Entries, i, i+1)
	return out, nil
}

// AcceptProposal turns a proposed schedule into a storable one, giving every
// entry a fresh id.
func AcceptProposal(proposal model.Schedule) model.Schedule {
	out := proposal.Clone()
	out.Version = model.ScheduleVersion
	for i := range out.Entries {
		out.Entries[i].ID = NewID()
	}
	return out
}

// Find returns the entry with id.
func Find(s model.Schedule, id string) (model.Entry, bool) {
	i := indexOf(s, id)
	if i < 0 {
		return model.Entry{}, false
	}
	return s.Entries[i], true
}

func indexOf(s model.Schedule, id string) int {
	return slices.IndexFunc(s.Entries, func(e model.Entry) bool { return e.ID == id })
}
