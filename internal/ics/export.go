package ics

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "openair/internal/log"
	"openair/internal/model"
)

// ProductID is the PRODID of exported calendars.
const ProductID = "-//openair//festival program//EN"

// ExportOptions controls Export.
type ExportOptions struct {
	// Side selects the current program (NewSide) or the original plan (OldSide).
	Side model.Side
	// Stamp is written as DTSTAMP; zero means time.Now.
	Stamp time.Time
}

// Export writes one side of the program as an iCalendar document. Every
// session becomes a VEVENT with LOCATION set to its location name. On the
// new side a rescheduled session keeps the UID of its planned version with
// SEQUENCE 1, and cancelled sessions carry STATUS:CANCELLED.
func Export(w io.Writer, e *model.Event, opts ExportOptions) error {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetName(e.Name)
	if d := e.Description(); d != "" {
		cal.SetDescription(d)
	}

	count := 0
	for _, l := range e.Locations() {
		for _, d := range l.DayPrograms() {
			for _, s := range d.Sessions() {
				if opts.Side == model.NewSide && s.IsOldVersion() {
					continue
				}
				if opts.Side == model.OldSide && s.IsNewVersion() {
					continue
				}

				origin, seq := s, 0
				if old := s.OldVersion(); old != nil {
					origin, seq = old, 1
				}
				ev := cal.AddEvent(sessionUID(e, origin))
				ev.SetDtStampTime(stamp)
				ev.SetStartAt(s.Start())
				ev.SetEndAt(s.End())
				ev.SetSummary(s.Name())
				ev.SetLocation(l.Name())
				ev.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(seq))
				if desc := s.Description(); desc != "" {
					ev.SetDescription(desc)
				}
				if u := s.URL(); u != "" {
					ev.SetURL(u)
				}
				if opts.Side == model.NewSide && s.IsCancelled() {
					ev.SetStatus(ical.ObjectStatusCancelled)
				}
				count++
			}
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return err
	}
	appLog.Debug("ics export completed", "event", e.Name, "side", opts.Side.String(), "sessions", count)
	return nil
}

// sessionUID derives a stable UID from the event uri, location and the
// session's planned start and name.
func sessionUID(e *model.Event, s *model.Session) string {
	h := sha1.New()
	io.WriteString(h, e.URI)
	io.WriteString(h, "\x00"+s.Location().Name())
	io.WriteString(h, "\x00"+s.Start().UTC().Format(time.RFC3339))
	io.WriteString(h, "\x00"+s.Name())
	return hex.EncodeToString(h.Sum(nil))[:20] + "@openair"
}
