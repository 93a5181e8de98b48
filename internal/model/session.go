package model

import (
	"slices"
	"time"

	"openair/internal/timefmt"
)

// Role is a session's position in a version chain.
type Role int

const (
	// Unversioned sessions never took part in a change.
	Unversioned Role = iota
	// RoleOld is the superseded, originally planned session.
	RoleOld
	// RoleNew is the rescheduled session replacing a RoleOld one.
	RoleNew
)

// versionChain is an old/new pair. Sessions only store the chain id and
// their role; the partner is resolved through the event's registry.
type versionChain struct {
	old, new *Session
}

// Session is one program item on one day at one location.
type Session struct {
	Metadata *Metadata

	name      string
	shortName string
	start     time.Time
	duration  time.Duration
	cancelled bool

	day   *DayProgram
	chain int
	role  Role
}

// NewSession creates a detached session. Attach it with DayProgram.AppendSession.
func NewSession(name string, start time.Time, duration time.Duration) *Session {
	return &Session{name: name, start: start, duration: duration}
}

func (s *Session) Name() string { return s.name }
func (s *Session) ShortName() string { return s.shortName }
func (s *Session) Start() time.Time { return s.start }
func (s *Session) Duration() time.Duration { return s.duration }
func (s *Session) End() time.Time { return s.start.Add(s.duration) }
func (s *Session) IsCancelled() bool { return s.cancelled }

// DayProgram returns the day the session currently belongs to, or nil.
func (s *Session) DayProgram() *DayProgram { return s.day }

// Location returns the session's location, or nil for a detached session.
func (s *Session) Location() *Location {
	if s.day == nil {
		return nil
	}
	return s.day.location
}

// FormattedStart returns the start time as HH:mm.
func (s *Session) FormattedStart() string {
	return s.start.Format(timefmt.StartLayout)
}

// SetName renames the session and its version partner, keeping the title
// identical across the chain.
func (s *Session) SetName(name string) {
	s.name = name
	if p := s.partner(); p != nil {
		p.name = name
	}
}

// SetShortName sets the short name of the session and its version partner.
func (s *Session) SetShortName(shortName string) {
	s.shortName = shortName
	if p := s.partner(); p != nil {
		p.shortName = shortName
	}
}

// Cancel marks the session cancelled. It is idempotent.
func (s *Session) Cancel() { s.cancelled = true }

// URL returns the session metadata URL, or "".
func (s *Session) URL() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.URL
}

// Description returns the session metadata description, or "".
func (s *Session) Description() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.Description
}

// IsRelevant reports whether the session has not ended at t (running or upcoming).
func (s *Session) IsRelevant(t time.Time) bool {
	return t.Before(s.End())
}

// IsRunning reports whether start <= t <= end.
func (s *Session) IsRunning(t time.Time) bool {
	return !s.start.After(t) && !s.End().Before(t)
}

// Role returns the session's version role.
func (s *Session) Role() Role { return s.role }

// IsOldVersion reports whether the session was superseded by a change.
func (s *Session) IsOldVersion() bool { return s.role == RoleOld }

// IsNewVersion reports whether the session replaces an older one.
func (s *Session) IsNewVersion() bool { return s.role == RoleNew }

// IsMoved reports whether the session is part of a version chain.
func (s *Session) IsMoved() bool { return s.role != Unversioned }

// HasChanges reports whether the session is versioned or cancelled.
func (s *Session) HasChanges() bool { return s.IsMoved() || s.cancelled }

// IsMovedDifferentDay reports whether the version partner lives in another day program.
func (s *Session) IsMovedDifferentDay() bool {
	p := s.partner()
	return p != nil && p.day != s.day
}

// OldVersion returns the session this one superseded, or nil.
func (s *Session) OldVersion() *Session {
	if s.role != RoleNew {
		return nil
	}
	return s.partner()
}

// NewVersion returns the session superseding this one, or nil.
func (s *Session) NewVersion() *Session {
	if s.role != RoleOld {
		return nil
	}
	return s.partner()
}

func (s *Session) partner() *Session {
	if s.role == Unversioned {
		return nil
	}
	e := s.day.event()
	if e == nil {
		return nil
	}
	c := e.chains[s.chain]
	if c == nil {
		return nil
	}
	if s.role == RoleOld {
		return c.new
	}
	return c.old
}

// Change reschedules the session. A new session carrying the same name,
// short name and metadata is created with the given start and duration
// (nil keeps the current value), linked as the new version of s and
// inserted into day (nil keeps the current day) at its start position. Sessions already in a chain
// cannot be changed again.
func (s *Session) Change(day *DayProgram, start *time.Time, duration *time.Duration) (*Session, error) {
	if s.role != Unversioned {
		return nil, ErrAlreadyVersioned
	}
	if s.day == nil {
		return nil, ErrNoDay
	}
	target := s.day
	if day != nil {
		if day.event() != s.day.event() {
			return nil, ErrForeignDay
		}
		target = day
	}
	newStart := s.start
	if start != nil {
		newStart = *start
	}
	newDuration := s.duration
	if duration != nil {
		newDuration = *duration
	}
	if newDuration < 0 {
		return nil, ErrNegativeDuration
	}

	ns := NewSession(s.name, newStart, newDuration)
	ns.shortName = s.shortName
	ns.Metadata = s.Metadata.clone()
	if err := target.insertSession(ns); err != nil {
		return nil, err
	}
	if err := LinkVersions(s, ns); err != nil {
		target.sessions = slices.DeleteFunc(target.sessions, func(x *Session) bool { return x == ns })
		return nil, err
	}
	return ns, nil
}

// LinkVersions records that newer supersedes old. Both sessions must be
// attached to day programs of the same event and be unversioned.
func LinkVersions(old, newer *Session) error {
	if old.role != Unversioned || newer.role != Unversioned || old == newer {
		return ErrAlreadyVersioned
	}
	if old.day == nil || newer.day == nil {
		return ErrNoDay
	}
	e := old.day.event()
	if e == nil {
		return ErrNoDay
	}
	if newer.day.event() != e {
		return ErrForeignDay
	}
	if e.chains == nil {
		e.chains = make(map[int]*versionChain)
	}
	e.nextChain++
	e.chains[e.nextChain] = &versionChain{old: old, new: newer}
	old.chain, old.role = e.nextChain, RoleOld
	newer.chain, newer.role = e.nextChain, RoleNew
	return nil
}
