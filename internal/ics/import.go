package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "openair/internal/log"
	"openair/internal/model"
	"openair/internal/timefmt"
)

// DefaultLocation names the location of VEVENTs without a LOCATION.
const DefaultLocation = "Main"

// defaultHorizon bounds open-ended recurrences when no range is given.
const defaultHorizon = 366 * 24 * time.Hour

// ErrNoSessions is returned when a calendar yields no timed occurrence.
var ErrNoSessions = errors.New("ics: calendar has no timed events")

// ImportConfig controls how a calendar becomes a festival program.
type ImportConfig struct {
	// Name overrides the calendar name as the event name.
	Name string
	// URI is stored as the event URI.
	URI string
	// Location is the festival timezone; days are cut at its midnight.
	Location *time.Location
	// DefaultLocation names the stage of VEVENTs without LOCATION.
	DefaultLocation string
	// RangeStart and RangeEnd bound expansion. When RangeStart is zero the
	// earliest DTSTART is used; when RangeEnd is zero the window spans a year.
	RangeStart time.Time
	RangeEnd   time.Time
	// MaxOccurrencesPerEvent caps the expansion of a single RRULE.
	MaxOccurrencesPerEvent int
}

// Import parses an ICS payload into a festival program. Every timed
// occurrence becomes a session at the location named by its LOCATION and
// on the day containing its start. An override moving an instance becomes
// a version pair: the planned instance is the old version, the override the
// new one. STATUS:CANCELLED occurrences are cancelled sessions. All-day
// events carry no schedule and are skipped.
func Import(label string, body []byte, cfg ImportConfig) (*model.Event, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultLocation == "" {
		cfg.DefaultLocation = DefaultLocation
	}

	feed, err := Parse(label, body, cfg.Location)
	if err != nil {
		return nil, err
	}

	rangeStart, rangeEnd := cfg.RangeStart, cfg.RangeEnd
	if rangeStart.IsZero() {
		for i, ev := range feed.Events {
			if i == 0 || ev.Start.Before(rangeStart) {
				rangeStart = ev.Start
			}
		}
	}
	if rangeEnd.IsZero() {
		rangeEnd = rangeStart.Add(defaultHorizon)
	}

	res, err := ExpandOccurrences(feed.Events, ExpandConfig{
		DisplayLocation:        cfg.Location,
		RangeStart:             rangeStart,
		RangeEnd:               rangeEnd,
		MaxOccurrencesPerEvent: cfg.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = feed.Name
	}
	if name == "" {
		name = label
	}
	e := model.NewEvent(name)
	e.URI = cfg.URI

	b := &builder{event: e, cfg: cfg}
	skipped := 0
	for _, occ := range res.Occurrences {
		if occ.AllDay {
			skipped++
			continue
		}
		b.plan(occ)
	}
	if len(b.items) == 0 {
		return nil, ErrNoSessions
	}
	if err := b.build(); err != nil {
		return nil, fmt.Errorf("ics: import %s: %w", label, err)
	}

	appLog.Info("ics import completed", "source", label, "event", name,
		"locations", len(e.Locations()), "sessions", len(b.items), "all_day_skipped", skipped)
	return e, nil
}

type item struct {
	occ  Occurrence
	pair int // index into builder.pairs, -1 when unversioned
	old  bool
}

// builder lays out occurrences as sessions. Items are sorted by start
// before appending so every day program stays in start order.
type builder struct {
	event *model.Event
	cfg   ImportConfig
	items []item
	pairs [][2]*model.Session // old, new
}

func (b *builder) plan(occ Occurrence) {
	if occ.Moved == nil {
		b.items = append(b.items, item{occ: occ, pair: -1})
		return
	}
	planned := occ
	planned.Start = *occ.Moved
	planned.End = planned.Start.Add(occ.End.Sub(occ.Start))
	planned.Moved = nil
	planned.Cancelled = false

	idx := len(b.pairs)
	b.pairs = append(b.pairs, [2]*model.Session{})
	b.items = append(b.items, item{occ: planned, pair: idx, old: true}, item{occ: occ, pair: idx})
}

func (b *builder) build() error {
	sort.SliceStable(b.items, func(i, j int) bool {
		return b.items[i].occ.Start.Before(b.items[j].occ.Start)
	})
	for _, it := range b.items {
		s, err := b.append(it.occ)
		if err != nil {
			return err
		}
		if it.pair < 0 {
			continue
		}
		if it.old {
			b.pairs[it.pair][0] = s
		} else {
			b.pairs[it.pair][1] = s
		}
	}
	for _, p := range b.pairs {
		if err := model.LinkVersions(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) append(occ Occurrence) (*model.Session, error) {
	name := occ.Location
	if name == "" {
		name = b.cfg.DefaultLocation
	}
	l := b.event.FindLocation(name)
	if l == nil {
		var err error
		if l, err = b.event.AddLocation(name); err != nil {
			return nil, err
		}
	}
	dayStart := timefmt.DayStart(occ.Start, b.cfg.Location)
	d := l.FindDayProgram(dayStart)
	if d == nil {
		var err error
		if d, err = l.AddDay(dayStart); err != nil {
			return nil, err
		}
	}
	s, err := d.AddSession(occ.Summary, occ.Start, occ.End.Sub(occ.Start))
	if err != nil {
		return nil, err
	}
	if occ.Description != "" || occ.URL != "" {
		s.Metadata = &model.Metadata{URL: occ.URL, Description: occ.Description}
	}
	if occ.Cancelled {
		s.Cancel()
	}
	return s, nil
}
