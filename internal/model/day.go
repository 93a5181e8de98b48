package model

import (
	"slices"
	"time"
)

// DayProgram is the list of sessions of one location on one calendar day.
type DayProgram struct {
	start    time.Time
	location *Location
	sessions []*Session
}

// DayStart returns midnight of the program's day.
func (d *DayProgram) DayStart() time.Time { return d.start }

// Location returns the owning location.
func (d *DayProgram) Location() *Location { return d.location }

// Sessions returns the sessions in insertion (chronological) order.
func (d *DayProgram) Sessions() []*Session {
	return slices.Clone(d.sessions)
}

// AddSession creates a session and appends it to the day.
func (d *DayProgram) AddSession(name string, start time.Time, duration time.Duration) (*Session, error) {
	s := NewSession(name, start, duration)
	if err := d.AppendSession(s); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendSession appends a detached session. Order and overlap are not
// checked; the caller appends in non-decreasing start order.
func (d *DayProgram) AppendSession(s *Session) error {
	if s.day != nil {
		return ErrAttached
	}
	if s.duration < 0 {
		return ErrNegativeDuration
	}
	s.day = d
	d.sessions = append(d.sessions, s)
	return nil
}

// insertSession attaches a detached session after every session starting
// at or before it, keeping the day in start order.
func (d *DayProgram) insertSession(s *Session) error {
	if s.day != nil {
		return ErrAttached
	}
	if s.duration < 0 {
		return ErrNegativeDuration
	}
	i := len(d.sessions)
	for i > 0 && d.sessions[i-1].start.After(s.start) {
		i--
	}
	s.day = d
	d.sessions = slices.Insert(d.sessions, i, s)
	return nil
}

// LastSession returns the chronologically last session, or nil for an empty day.
func (d *DayProgram) LastSession() *Session {
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// HasRelevantSessions reports whether any session is still relevant at t.
// Only the last session is checked: when it has ended, every earlier one has too.
func (d *DayProgram) HasRelevantSessions(t time.Time) bool {
	last := d.LastSession()
	return last != nil && last.IsRelevant(t)
}

// RelevantSessions returns the sessions relevant at t, in day order.
func (d *DayProgram) RelevantSessions(t time.Time) []*Session {
	var out []*Session
	for _, s := range d.sessions {
		if s.IsRelevant(t) {
			out = append(out, s)
		}
	}
	return out
}

// PreviousProgram returns the day program preceding d in its location, or nil.
func (d *DayProgram) PreviousProgram() *DayProgram {
	days := d.location.days
	for i := 1; i < len(days); i++ {
		if days[i] == d {
			return days[i-1]
		}
	}
	return nil
}

func (d *DayProgram) event() *Event {
	if d == nil || d.location == nil {
		return nil
	}
	return d.location.event
}
