package display

import (
	"time"

	"openair/internal/model"
)

// View selects which sessions a location program lists.
type View int

const (
	// Raw lists every session, old versions and cancelled ones included.
	Raw View = iota
	// New lists the program as it currently stands.
	New
	// Old lists the program as originally planned.
	Old
)

// ItemKind tags a ProgramItem.
type ItemKind int

const (
	// DayHeader opens the rows of one day program.
	DayHeader ItemKind = iota
	// SessionRow lists one session.
	SessionRow
)

// ProgramItem is one row of a location program: a day header (Day set) or a
// session row (Session set).
type ProgramItem struct {
	Kind    ItemKind
	Day     *model.DayProgram
	Session *model.Session
	// Running and Relevant are evaluated at the program's time; always false for headers.
	Running  bool
	Relevant bool
}

// LocationProgram is the flattened program of one location.
type LocationProgram struct {
	Location   *model.Location
	Time       time.Time
	Items      []ProgramItem
	NextChange *time.Time
}

// ProjectLocation flattens l into day headers each followed by that day's
// sessions, and computes when the list must be refreshed: the start of the
// first relevant session on l's first relevant day, or its end if it has
// already started. NextChange is nil when nothing relevant is left.
func ProjectLocation(l *model.Location, t time.Time, v View) *LocationProgram {
	src := l
	switch v {
	case New:
		src = l.Event().ReducedVersion(model.NewSide).FindLocation(l.Name())
	case Old:
		src = l.Event().ReducedVersion(model.OldSide).FindLocation(l.Name())
	}

	lp := &LocationProgram{Location: src, Time: t}
	for _, dp := range src.DayPrograms() {
		lp.Items = append(lp.Items, ProgramItem{Kind: DayHeader, Day: dp})
		for _, s := range dp.Sessions() {
			lp.Items = append(lp.Items, ProgramItem{
				Kind:     SessionRow,
				Day:      dp,
				Session:  s,
				Running:  s.IsRunning(t),
				Relevant: s.IsRelevant(t),
			})
		}
	}

	if dp := src.FirstRelevantDayProgram(t); dp != nil {
		first := dp.RelevantSessions(t)[0]
		next := first.End()
		if first.Start().After(t) {
			next = first.Start()
		}
		lp.NextChange = &next
	}
	return lp
}
