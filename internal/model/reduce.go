package model

// ReducedVersion returns an independent copy of the event showing only one
// side of every version chain:
//
//   - OldSide keeps unchanged sessions, old versions and every cancelled session.
//   - NewSide keeps unchanged sessions and new versions, cancelled or not.
//
// The copy carries no version links or cancellation flags. Day programs left
// without sessions are dropped; locations are always kept.
func (e *Event) ReducedVersion(side Side) *Event {
	out := &Event{
		URI:         e.URI,
		Name:        e.Name,
		ShortName:   e.ShortName,
		Version:     e.Version,
		VersionTime: e.VersionTime,
		Metadata:    e.Metadata.clone(),
	}
	for _, a := range e.announcements {
		out.AddAnnouncement(*a)
	}
	for _, l := range e.locations {
		rl := &Location{
			name:      l.name,
			ShortName: l.ShortName,
			Metadata:  l.Metadata.clone(),
			event:     out,
		}
		out.locations = append(out.locations, rl)
		for _, d := range l.days {
			rd := &DayProgram{start: d.start, location: rl}
			for _, s := range d.sessions {
				if !keepOnSide(s, side) {
					continue
				}
				rd.sessions = append(rd.sessions, &Session{
					Metadata:  s.Metadata.clone(),
					name:      s.name,
					shortName: s.shortName,
					start:     s.start,
					duration:  s.duration,
					day:       rd,
				})
			}
			if len(rd.sessions) > 0 {
				rl.days = append(rl.days, rd)
			}
		}
	}
	return out
}

func keepOnSide(s *Session, side Side) bool {
	if !s.HasChanges() {
		return true
	}
	if side == OldSide {
		return s.role == RoleOld || s.cancelled
	}
	return s.role == RoleNew
}
