// Package display turns an event into read-only snapshots for screens: the
// multi-location overview and the single-location program list. Every
// snapshot carries the instant at which it goes stale.
package display

import (
	"errors"
	"fmt"
	"time"

	"openair/internal/model"
)

// ErrUnknownLocation is returned when an overview names a location the event does not have.
var ErrUnknownLocation = errors.New("display: unknown location")

// OverviewParams selects what an overview shows.
type OverviewParams struct {
	// Locations are the location names to show, in display order. Empty means
	// every location of the event.
	Locations []string
	// MaxSessions caps the sessions listed per location; 0 or less means no cap.
	MaxSessions int
	// NoticePeriod is how long after the previous day's program ended the
	// date notice stays up.
	NoticePeriod time.Duration
}

// OverviewItem is one location's column of an overview.
type OverviewItem struct {
	Location *model.Location
	// Active is set when the location's soonest relevant day is the globally
	// soonest one. Inactive items have no sessions.
	Active   bool
	Sessions []*model.Session

	at time.Time
}

// Running reports whether the first listed session is on stage at the snapshot time.
func (i OverviewItem) Running() bool {
	return len(i.Sessions) > 0 && i.Sessions[0].IsRunning(i.at)
}

// OverviewSnapshot is the result of one overview projection.
type OverviewSnapshot struct {
	Time  time.Time
	Items []OverviewItem
	// NextChange is when the snapshot must be recomputed; nil when nothing
	// relevant is left.
	NextChange *time.Time
	// DateNotice is the day the shown program belongs to when viewers should
	// be told it is not today's; nil otherwise.
	DateNotice    *time.Time
	Announcements []*model.Announcement
}

// Overview projects the current (new) side of an event. The reduced copy is
// built once and shared by every projection.
type Overview struct {
	reduced *model.Event
}

// NewOverview prepares e for overview projections. Later changes to e are
// not seen by the returned Overview.
func NewOverview(e *model.Event) *Overview {
	return &Overview{reduced: e.ReducedVersion(model.NewSide)}
}

// Event returns the reduced event the overview projects.
func (o *Overview) Event() *model.Event { return o.reduced }

// ProjectOverview is a one-shot NewOverview(e).Project(t, p).
func ProjectOverview(e *model.Event, t time.Time, p OverviewParams) (*OverviewSnapshot, error) {
	return NewOverview(e).Project(t, p)
}

// Project computes the overview at t.
func (o *Overview) Project(t time.Time, p OverviewParams) (*OverviewSnapshot, error) {
	locations, err := o.resolve(p.Locations)
	if err != nil {
		return nil, err
	}

	days := make([]*model.DayProgram, len(locations))
	var minDay *time.Time
	for i, l := range locations {
		days[i] = l.FirstRelevantDayProgram(t)
		if days[i] == nil {
			continue
		}
		if ds := days[i].DayStart(); minDay == nil || ds.Before(*minDay) {
			minDay = &ds
		}
	}

	snap := &OverviewSnapshot{
		Time:          t,
		Items:         make([]OverviewItem, len(locations)),
		Announcements: o.reduced.ActiveAnnouncements(t),
	}
	for i, l := range locations {
		item := OverviewItem{Location: l, at: t}
		dp := days[i]
		if dp != nil && dp.DayStart().Equal(*minDay) {
			item.Active = true
			item.Sessions = dp.RelevantSessions(t)
			if p.MaxSessions > 0 && len(item.Sessions) > p.MaxSessions {
				item.Sessions = item.Sessions[:p.MaxSessions]
			}
			if next := nextChange(dp, t); next != nil && (snap.NextChange == nil || next.Before(*snap.NextChange)) {
				snap.NextChange = next
			}
		}
		snap.Items[i] = item
	}

	if minDay != nil {
		applyDateNotice(snap, *minDay, days, p.NoticePeriod)
	}
	return snap, nil
}

func (o *Overview) resolve(names []string) ([]*model.Location, error) {
	if len(names) == 0 {
		return o.reduced.Locations(), nil
	}
	out := make([]*model.Location, 0, len(names))
	for _, n := range names {
		l := o.reduced.FindLocation(n)
		if l == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLocation, n)
		}
		out = append(out, l)
	}
	return out, nil
}

// applyDateNotice sets the date notice while minDay has not started yet, or
// while the previous day's program ended less than period ago. In the second
// case the next change is pulled in to the notice's switch-off instant,
// which is never earlier than minDay.
func applyDateNotice(snap *OverviewSnapshot, minDay time.Time, days []*model.DayProgram, period time.Duration) {
	var switchOff *time.Time
	for _, dp := range days {
		if dp == nil || !dp.DayStart().Equal(minDay) {
			continue
		}
		prev := dp.PreviousProgram()
		if prev == nil || prev.LastSession() == nil {
			continue
		}
		end := prev.LastSession().End().Add(period)
		if switchOff == nil || end.After(*switchOff) {
			switchOff = &end
		}
	}

	dayNotStarted := snap.Time.Before(minDay)
	justEnded := switchOff != nil && switchOff.After(snap.Time)
	if !dayNotStarted && !justEnded {
		return
	}
	snap.DateNotice = &minDay
	if !justEnded {
		return
	}
	off := *switchOff
	if off.Before(minDay) {
		off = minDay
	}
	if snap.NextChange == nil || snap.NextChange.After(off) {
		snap.NextChange = &off
	}
}

// nextChange is the end of the first relevant session when it is running,
// its start otherwise, or nil when the day has nothing relevant left.
func nextChange(dp *model.DayProgram, t time.Time) *time.Time {
	if !dp.HasRelevantSessions(t) {
		return nil
	}
	first := dp.RelevantSessions(t)[0]
	next := first.Start()
	if first.IsRunning(t) {
		next = first.End()
	}
	return &next
}
