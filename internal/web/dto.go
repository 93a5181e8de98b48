package web

import (
	"time"

	"openair/internal/display"
	"openair/internal/model"
)

// overviewDTO is the JSON response shape for /api/overview.
type overviewDTO struct {
	Time          time.Time         `json:"time"`
	NextChange    *time.Time        `json:"next_change,omitempty"`
	DateNotice    *time.Time        `json:"date_notice,omitempty"`
	Items         []overviewItemDTO `json:"items"`
	Announcements []announcementDTO `json:"announcements"`
}

type overviewItemDTO struct {
	Location string       `json:"location"`
	Active   bool         `json:"active"`
	Running  bool         `json:"running"`
	Sessions []sessionDTO `json:"sessions"`
}

// sessionDTO is a JSON-friendly view of a session.
type sessionDTO struct {
	Name       string    `json:"name"`
	ShortName  string    `json:"short_name,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	StartLabel string    `json:"start_label"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	OldVersion bool      `json:"old_version,omitempty"`
	NewVersion bool      `json:"new_version,omitempty"`
	Running    bool      `json:"running,omitempty"`
	Relevant   bool      `json:"relevant,omitempty"`
	URL        string    `json:"url,omitempty"`
}

type programItemDTO struct {
	Kind    string      `json:"kind"`
	Day     *time.Time  `json:"day,omitempty"`
	Session *sessionDTO `json:"session,omitempty"`
}

// programDTO is the JSON response shape for /api/locations/{name}.
type programDTO struct {
	Location   string           `json:"location"`
	Time       time.Time        `json:"time"`
	NextChange *time.Time       `json:"next_change,omitempty"`
	Items      []programItemDTO `json:"items"`
}

type announcementDTO struct {
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type storedEventDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Version int64  `json:"version"`
	Active  bool   `json:"active"`
}

func sessionDTOFrom(s *model.Session) sessionDTO {
	return sessionDTO{
		Name:       s.Name(),
		ShortName:  s.ShortName(),
		Start:      s.Start(),
		End:        s.End(),
		StartLabel: s.FormattedStart(),
		Cancelled:  s.IsCancelled(),
		OldVersion: s.IsOldVersion(),
		NewVersion: s.IsNewVersion(),
		URL:        s.URL(),
	}
}

func announcementDTOFrom(a *model.Announcement) announcementDTO {
	return announcementDTO{Text: a.Text, Order: a.Order}
}

func (s *Server) overviewDTO(snap *display.OverviewSnapshot) overviewDTO {
	out := overviewDTO{
		Time:          snap.Time,
		NextChange:    snap.NextChange,
		DateNotice:    snap.DateNotice,
		Items:         make([]overviewItemDTO, 0, len(snap.Items)),
		Announcements: make([]announcementDTO, 0, len(snap.Announcements)),
	}
	for _, it := range snap.Items {
		item := overviewItemDTO{
			Location: it.Location.Name(),
			Active:   it.Active,
			Running:  it.Running(),
			Sessions: make([]sessionDTO, 0, len(it.Sessions)),
		}
		for _, sess := range it.Sessions {
			dto := sessionDTOFrom(sess)
			dto.Running = sess.IsRunning(snap.Time)
			dto.Relevant = true
			item.Sessions = append(item.Sessions, dto)
		}
		out.Items = append(out.Items, item)
	}
	for _, a := range snap.Announcements {
		out.Announcements = append(out.Announcements, announcementDTOFrom(a))
	}
	return out
}

func programDTOFrom(p *display.LocationProgram) programDTO {
	out := programDTO{
		Location:   p.Location.Name(),
		Time:       p.Time,
		NextChange: p.NextChange,
		Items:      make([]programItemDTO, 0, len(p.Items)),
	}
	for _, it := range p.Items {
		switch it.Kind {
		case display.DayHeader:
			day := it.Day.DayStart()
			out.Items = append(out.Items, programItemDTO{Kind: "day", Day: &day})
		case display.SessionRow:
			dto := sessionDTOFrom(it.Session)
			dto.Running, dto.Relevant = it.Running, it.Relevant
			out.Items = append(out.Items, programItemDTO{Kind: "session", Session: &dto})
		}
	}
	return out
}
