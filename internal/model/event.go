package model

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Event is the root aggregate. It owns its locations and announcements and
// the registry of version chains created by Session.Change.
type Event struct {
	URI       string
	Name      string
	ShortName string
	// Version is a monotonic package counter; 0 means unversioned.
	Version int64
	// VersionTime is the publication time of Version; zero means unset.
	VersionTime time.Time
	Metadata    *Metadata

	locations     []*Location
	announcements []*Announcement

	chains    map[int]*versionChain
	nextChain int
}

// NewEvent creates an empty event.
func NewEvent(name string) *Event {
	return &Event{Name: name}
}

// AddLocation appends a new location. Names are unique within an event
// (case-sensitive); a duplicate leaves the event unchanged.
func (e *Event) AddLocation(name string) (*Location, error) {
	if e.FindLocation(name) != nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateLocation, name)
	}
	l := &Location{name: name, event: e}
	e.locations = append(e.locations, l)
	return l, nil
}

// FindLocation returns the location with the given name, or nil.
func (e *Event) FindLocation(name string) *Location {
	for _, l := range e.locations {
		if l.name == name {
			return l
		}
	}
	return nil
}

// Locations returns the locations in display order.
func (e *Event) Locations() []*Location {
	return slices.Clone(e.locations)
}

// LocationNames returns location names in display order.
func (e *Event) LocationNames() []string {
	names := make([]string, 0, len(e.locations))
	for _, l := range e.locations {
		names = append(names, l.name)
	}
	return names
}

// Dates returns the distinct day starts of all day programs, ascending.
func (e *Event) Dates() []time.Time {
	var dates []time.Time
	for _, l := range e.locations {
		for _, d := range l.days {
			if !slices.ContainsFunc(dates, d.start.Equal) {
				dates = append(dates, d.start)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DayProgramsByDate returns the day programs of all locations starting at day.
func (e *Event) DayProgramsByDate(day time.Time) []*DayProgram {
	var out []*DayProgram
	for _, l := range e.locations {
		if d := l.FindDayProgram(day); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// URL returns the event metadata URL, or "".
func (e *Event) URL() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.URL
}

// Description returns the event metadata description, or "".
func (e *Event) Description() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.Description
}

// AddAnnouncement appends a copy of a and returns it.
func (e *Event) AddAnnouncement(a Announcement) *Announcement {
	stored := a
	e.announcements = append(e.announcements, &stored)
	return &stored
}

// Announcements returns all announcements in insertion order.
func (e *Event) Announcements() []*Announcement {
	return slices.Clone(e.announcements)
}

// ActiveAnnouncements returns the announcements active at t ordered by
// their Order key; equal keys keep insertion order.
func (e *Event) ActiveAnnouncements(t time.Time) []*Announcement {
	var out []*Announcement
	for _, a := range e.announcements {
		if a.ActiveAt(t) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ActiveAnnouncementsText joins the texts of the announcements active at t
// into a single ticker line.
func (e *Event) ActiveAnnouncementsText(t time.Time) string {
	var b strings.Builder
	for _, a := range e.ActiveAnnouncements(t) {
		b.WriteString(a.Text)
		b.WriteString(" ✰ ")
	}
	return b.String()
}

// Announcement is a brief event-wide message shown on every display of the event.
type Announcement struct {
	Active bool
	// ActiveFrom and ActiveTo bound the active window; zero means unbounded.
	ActiveFrom time.Time
	ActiveTo   time.Time
	Text       string
	Order      int
}

// ActiveAt reports whether the announcement is shown at t:
// Active && ActiveFrom <= t && ActiveTo >= t, with zero bounds ignored.
func (a *Announcement) ActiveAt(t time.Time) bool {
	if !a.Active {
		return false
	}
	if !a.ActiveFrom.IsZero() && a.ActiveFrom.After(t) {
		return false
	}
	if !a.ActiveTo.IsZero() && a.ActiveTo.Before(t) {
		return false
	}
	return true
}
