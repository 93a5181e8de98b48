package model

import (
	"fmt"
	"slices"
	"time"
)

// Location is a stage, hall or room of an event.
type Location struct {
	ShortName string
	Metadata  *Metadata

	name  string
	event *Event
	days  []*DayProgram
}

// Name returns the location name, unique within its event.
func (l *Location) Name() string { return l.name }

// Event returns the owning event.
func (l *Location) Event() *Event { return l.event }

// DayPrograms returns the day programs in insertion order.
func (l *Location) DayPrograms() []*DayProgram {
	return slices.Clone(l.days)
}

// AddDay appends a day program starting at dayStart. Day starts are unique
// within a location. Callers append days chronologically.
func (l *Location) AddDay(dayStart time.Time) (*DayProgram, error) {
	if l.FindDayProgram(dayStart) != nil {
		return nil, fmt.Errorf("%w: %s at %q", ErrDuplicateDay, dayStart.Format(time.DateOnly), l.name)
	}
	d := &DayProgram{start: dayStart, location: l}
	l.days = append(l.days, d)
	return d, nil
}

// FindDayProgram returns the day program starting at dayStart, or nil.
func (l *Location) FindDayProgram(dayStart time.Time) *DayProgram {
	for _, d := range l.days {
		if d.start.Equal(dayStart) {
			return d
		}
	}
	return nil
}

// FirstRelevantDayProgram returns the first day program, in list order,
// that still has a relevant session at t, or nil.
func (l *Location) FirstRelevantDayProgram(t time.Time) *DayProgram {
	for _, d := range l.days {
		if d.HasRelevantSessions(t) {
			return d
		}
	}
	return nil
}

// URL returns the location metadata URL, or "".
func (l *Location) URL() string {
	if l.Metadata == nil {
		return ""
	}
	return l.Metadata.URL
}

// Description returns the location metadata description, or "".
func (l *Location) Description() string {
	if l.Metadata == nil {
		return ""
	}
	return l.Metadata.Description
}
