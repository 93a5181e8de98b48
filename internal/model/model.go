// Package model is the festival program entity graph:
//
//	Event → Location → DayProgram → Session
//
// Ownership runs strictly downwards; every child keeps a non-owning
// back-reference to its parent. A graph is built once (by the codec, an
// importer or seed data) and afterwards only changes through Session.Change,
// Session.Cancel and the renaming setters. ReducedVersion produces an
// independent, link-free copy showing one side of every version chain.
//
// Sessions inside a DayProgram must be appended in non-decreasing start
// order. Nothing here sorts or validates that order; the relevance scan
// depends on it.
package model

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateLocation is returned by Event.AddLocation for a name that is already taken.
	ErrDuplicateLocation = errors.New("model: duplicate location name")
	// ErrDuplicateDay is returned by Location.AddDay for a day start that already exists.
	ErrDuplicateDay = errors.New("model: duplicate day program")
	// ErrAlreadyVersioned is returned when changing or linking a session that is already part of a version chain.
	ErrAlreadyVersioned = errors.New("model: session already versioned")
	// ErrNoDay is returned when an operation needs the session to belong to a day program.
	ErrNoDay = errors.New("model: session is not attached to a day program")
	// ErrForeignDay is returned when the target day program belongs to another event.
	ErrForeignDay = errors.New("model: day program belongs to another event")
	// ErrAttached is returned when appending a session that already belongs to a day program.
	ErrAttached = errors.New("model: session already attached to a day program")
	// ErrNegativeDuration is returned for sessions with a negative duration.
	ErrNegativeDuration = errors.New("model: negative session duration")
)

// Metadata holds optional descriptive data of an event, location or session.
// A nil *Metadata means the entity has none.
type Metadata struct {
	URL         string
	Description string
}

func (m *Metadata) clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Side selects one side of every version chain.
type Side int

const (
	// NewSide shows the program as it currently stands.
	NewSide Side = iota
	// OldSide shows the program as it was originally planned.
	OldSide
)

func (s Side) String() string {
	if s == OldSide {
		return "old"
	}
	return "new"
}

// Clock returns the reference "now". Projectors and the signage loop take a
// Clock instead of calling time.Now directly.
type Clock func() time.Time

// ShiftedClock returns a clock running shift ahead of (or behind) the wall clock.
func ShiftedClock(shift time.Duration) Clock {
	return func() time.Time { return time.Now().Add(shift) }
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
