package codec

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"openair/internal/model"
	"openair/internal/timefmt"
)

// Wire structures. Attributes are pointers so that absence can be told
// apart from an empty value when decoding.

type xmlEvent struct {
	XMLName       xml.Name
	URI           *string           `xml:"uri,attr,omitempty"`
	Name          *string           `xml:"name,attr"`
	ShortName     *string           `xml:"shortName,attr,omitempty"`
	Version       *string           `xml:"version,attr,omitempty"`
	VersionTime   *string           `xml:"versionTime,attr,omitempty"`
	Program       xmlProgram        `xml:"program"`
	Metadata      *xmlMetadata      `xml:"metadata"`
	Announcements *xmlAnnouncements `xml:"announcements"`
}

type xmlProgram struct {
	Locations []xmlLocation `xml:"location"`
}

type xmlLocation struct {
	Name      *string  `xml:"name,attr"`
	ShortName *string  `xml:"shortName,attr,omitempty"`
	ID        *string  `xml:"id,attr,omitempty"`
	Days      []xmlDay `xml:"day"`
}

type xmlDay struct {
	Date     *string      `xml:"date,attr"`
	Sessions []xmlSession `xml:"session"`
}

type xmlSession struct {
	Start      *string `xml:"start,attr"`
	Duration   *string `xml:"duration,attr"`
	Name       *string `xml:"name,attr"`
	ShortName  *string `xml:"shortName,attr,omitempty"`
	Cancelled  *string `xml:"cancelled,attr,omitempty"`
	ID         *string `xml:"id,attr,omitempty"`
	OldVersion *string `xml:"oldVersion,attr,omitempty"`
}

type xmlMetadata struct {
	Event     *xmlMeta  `xml:"event"`
	Locations []xmlMeta `xml:"location"`
	Sessions  []xmlMeta `xml:"session"`
}

type xmlMeta struct {
	ID          *string `xml:"id,attr,omitempty"`
	URL         *string `xml:"url,attr,omitempty"`
	Description *string `xml:"description,attr,omitempty"`
}

type xmlAnnouncements struct {
	Items []xmlAnnouncement `xml:"announcement"`
}

type xmlAnnouncement struct {
	Active     *string `xml:"active,attr,omitempty"`
	ActiveFrom *string `xml:"activeFrom,attr,omitempty"`
	ActiveTo   *string `xml:"activeTo,attr,omitempty"`
	Order      *string `xml:"order,attr,omitempty"`
	Text       *string `xml:"text,attr"`
}

func ptr(s string) *string { return &s }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func metaOf(id string, m *model.Metadata) xmlMeta {
	return xmlMeta{ID: optional(id), URL: optional(m.URL), Description: optional(m.Description)}
}

func (c *Codec) toDocument(e *model.Event) *xmlEvent {
	loc := c.loc()
	doc := &xmlEvent{
		XMLName:   xml.Name{Space: Namespace, Local: "event"},
		URI:       optional(e.URI),
		Name:      ptr(e.Name),
		ShortName: optional(e.ShortName),
	}
	if e.Version != 0 {
		doc.Version = ptr(strconv.FormatInt(e.Version, 10))
	}
	if !e.VersionTime.IsZero() {
		doc.VersionTime = ptr(timefmt.FormatDateTime(e.VersionTime, loc))
	}

	meta := &xmlMetadata{}
	if e.Metadata != nil {
		m := metaOf("", e.Metadata)
		meta.Event = &m
	}

	next := 1
	// partner session -> id already assigned to its counterpart
	shared := make(map[*model.Session]string)
	written := make(map[string]bool)

	for _, l := range e.Locations() {
		xl := xmlLocation{Name: ptr(l.Name()), ShortName: optional(l.ShortName)}
		if l.Metadata != nil {
			id := fmt.Sprintf("st%d", next)
			next++
			xl.ID = ptr(id)
			meta.Locations = append(meta.Locations, metaOf(id, l.Metadata))
		}
		for _, d := range l.DayPrograms() {
			xd := xmlDay{Date: ptr(timefmt.FormatDate(d.DayStart(), loc))}
			for _, s := range d.Sessions() {
				xs := xmlSession{
					Start:     ptr(timefmt.FormatDateTime(s.Start(), loc)),
					Duration:  ptr(timefmt.FormatDuration(s.Duration())),
					Name:      ptr(s.Name()),
					ShortName: optional(s.ShortName()),
				}
				if s.IsCancelled() {
					xs.Cancelled = ptr("true")
				}
				id, ok := shared[s]
				if !ok && (s.Metadata != nil || s.IsMoved()) {
					id = fmt.Sprintf("sh%d", next)
					next++
				}
				if id != "" {
					xs.ID = ptr(id)
					if s.Metadata != nil && !written[id] {
						written[id] = true
						meta.Sessions = append(meta.Sessions, metaOf(id, s.Metadata))
					}
					switch {
					case s.IsOldVersion():
						shared[s.NewVersion()] = id
						xs.OldVersion = ptr("true")
					case s.IsNewVersion():
						shared[s.OldVersion()] = id
					}
				}
				xd.Sessions = append(xd.Sessions, xs)
			}
			xl.Days = append(xl.Days, xd)
		}
		doc.Program.Locations = append(doc.Program.Locations, xl)
	}
	if meta.Event != nil || len(meta.Locations) > 0 || len(meta.Sessions) > 0 {
		doc.Metadata = meta
	}

	if as := e.Announcements(); len(as) > 0 {
		doc.Announcements = &xmlAnnouncements{}
		for _, a := range as {
			xa := xmlAnnouncement{Text: ptr(a.Text)}
			if a.Active {
				xa.Active = ptr("true")
			}
			if !a.ActiveFrom.IsZero() {
				xa.ActiveFrom = ptr(timefmt.FormatDateTime(a.ActiveFrom, loc))
			}
			if !a.ActiveTo.IsZero() {
				xa.ActiveTo = ptr(timefmt.FormatDateTime(a.ActiveTo, loc))
			}
			if a.Order != 0 {
				xa.Order = ptr(strconv.Itoa(a.Order))
			}
			doc.Announcements.Items = append(doc.Announcements.Items, xa)
		}
	}
	return doc
}

// decoder carries the state of one decode call.
type decoder struct {
	loc      *time.Location
	locMeta  map[string]*model.Metadata
	sessMeta map[string]*model.Metadata
	pending  map[string]pendingSession
	paired   map[string]bool
}

type pendingSession struct {
	session *model.Session
	flag    *bool
}

func (c *Codec) fromDocument(doc *xmlEvent) (*model.Event, error) {
	d := &decoder{
		loc:      c.loc(),
		locMeta:  make(map[string]*model.Metadata),
		sessMeta: make(map[string]*model.Metadata),
		pending:  make(map[string]pendingSession),
		paired:   make(map[string]bool),
	}

	name, err := required("event", "name", doc.Name)
	if err != nil {
		return nil, err
	}
	e := model.NewEvent(name)
	e.URI = value(doc.URI)
	e.ShortName = value(doc.ShortName)
	if doc.Version != nil {
		v, err := strconv.ParseInt(*doc.Version, 10, 64)
		if err != nil {
			return nil, &DecodeError{Element: "event", Attr: "version", Err: ErrBadValue}
		}
		e.Version = v
	}
	if doc.VersionTime != nil {
		t, err := timefmt.ParseDateTime(*doc.VersionTime, d.loc)
		if err != nil {
			return nil, &DecodeError{Element: "event", Attr: "versionTime", Err: ErrBadValue}
		}
		e.VersionTime = t
	}

	if doc.Metadata != nil {
		if m := doc.Metadata.Event; m != nil {
			e.Metadata = &model.Metadata{URL: value(m.URL), Description: value(m.Description)}
		}
		for i, m := range doc.Metadata.Locations {
			id, err := required(fmt.Sprintf("metadata/location[%d]", i+1), "id", m.ID)
			if err != nil {
				return nil, err
			}
			d.locMeta[id] = &model.Metadata{URL: value(m.URL), Description: value(m.Description)}
		}
		for i, m := range doc.Metadata.Sessions {
			id, err := required(fmt.Sprintf("metadata/session[%d]", i+1), "id", m.ID)
			if err != nil {
				return nil, err
			}
			d.sessMeta[id] = &model.Metadata{URL: value(m.URL), Description: value(m.Description)}
		}
	}

	for i := range doc.Program.Locations {
		if err := d.location(e, fmt.Sprintf("location[%d]", i+1), &doc.Program.Locations[i]); err != nil {
			return nil, err
		}
	}

	if doc.Announcements != nil {
		for i := range doc.Announcements.Items {
			a, err := d.announcement(fmt.Sprintf("announcements/announcement[%d]", i+1), &doc.Announcements.Items[i])
			if err != nil {
				return nil, err
			}
			e.AddAnnouncement(a)
		}
	}
	return e, nil
}

func (d *decoder) location(e *model.Event, path string, xl *xmlLocation) error {
	name, err := required(path, "name", xl.Name)
	if err != nil {
		return err
	}
	l, err := e.AddLocation(name)
	if err != nil {
		return &DecodeError{Element: path, Attr: "name", Err: err}
	}
	l.ShortName = value(xl.ShortName)
	if xl.ID != nil {
		if m, ok := d.locMeta[*xl.ID]; ok {
			c := *m
			l.Metadata = &c
		}
	}
	for i := range xl.Days {
		if err := d.day(l, fmt.Sprintf("%s/day[%d]", path, i+1), &xl.Days[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) day(l *model.Location, path string, xd *xmlDay) error {
	raw, err := required(path, "date", xd.Date)
	if err != nil {
		return err
	}
	start, err := timefmt.ParseDate(raw, d.loc)
	if err != nil {
		return &DecodeError{Element: path, Attr: "date", Err: ErrBadValue}
	}
	day, err := l.AddDay(start)
	if err != nil {
		return &DecodeError{Element: path, Attr: "date", Err: err}
	}
	for i := range xd.Sessions {
		if err := d.session(day, fmt.Sprintf("%s/session[%d]", path, i+1), &xd.Sessions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) session(day *model.DayProgram, path string, xs *xmlSession) error {
	name, err := required(path, "name", xs.Name)
	if err != nil {
		return err
	}
	rawStart, err := required(path, "start", xs.Start)
	if err != nil {
		return err
	}
	start, err := timefmt.ParseDateTime(rawStart, d.loc)
	if err != nil {
		return &DecodeError{Element: path, Attr: "start", Err: ErrBadValue}
	}
	rawDuration, err := required(path, "duration", xs.Duration)
	if err != nil {
		return err
	}
	duration, err := timefmt.ParseDuration(rawDuration)
	if err != nil {
		return &DecodeError{Element: path, Attr: "duration", Err: ErrBadValue}
	}

	s, err := day.AddSession(name, start, duration)
	if err != nil {
		return &DecodeError{Element: path, Err: err}
	}
	s.SetShortName(value(xs.ShortName))
	if xs.Cancelled != nil {
		cancelled, err := strconv.ParseBool(*xs.Cancelled)
		if err != nil {
			return &DecodeError{Element: path, Attr: "cancelled", Err: ErrBadValue}
		}
		if cancelled {
			s.Cancel()
		}
	}

	var flag *bool
	if xs.OldVersion != nil {
		old, err := strconv.ParseBool(*xs.OldVersion)
		if err != nil {
			return &DecodeError{Element: path, Attr: "oldVersion", Err: ErrBadValue}
		}
		flag = &old
	}
	if xs.ID == nil {
		return nil
	}
	id := *xs.ID
	if m, ok := d.sessMeta[id]; ok {
		c := *m
		s.Metadata = &c
	}
	return d.link(path, id, s, flag)
}

// link pairs the second session carrying id with the first one. An explicit
// oldVersion on the current element wins, then one on the first element;
// without either the first element is the old version.
func (d *decoder) link(path, id string, s *model.Session, flag *bool) error {
	if d.paired[id] {
		return &DecodeError{Element: path, Attr: "id", Err: fmt.Errorf("%w: id %q used by more than two sessions", ErrVersionPair, id)}
	}
	first, ok := d.pending[id]
	if !ok {
		d.pending[id] = pendingSession{session: s, flag: flag}
		return nil
	}
	delete(d.pending, id)
	d.paired[id] = true

	var currentOld bool
	switch {
	case flag != nil:
		if first.flag != nil && *first.flag == *flag {
			return &DecodeError{Element: path, Attr: "oldVersion", Err: fmt.Errorf("%w: both sessions of %q carry oldVersion=%t", ErrVersionPair, id, *flag)}
		}
		currentOld = *flag
	case first.flag != nil:
		currentOld = !*first.flag
	}

	old, newer := first.session, s
	if currentOld {
		old, newer = s, first.session
	}
	if err := model.LinkVersions(old, newer); err != nil {
		return &DecodeError{Element: path, Attr: "id", Err: fmt.Errorf("%w: %w", ErrVersionPair, err)}
	}
	return nil
}

func (d *decoder) announcement(path string, xa *xmlAnnouncement) (model.Announcement, error) {
	var a model.Announcement
	text, err := required(path, "text", xa.Text)
	if err != nil {
		return a, err
	}
	a.Text = text
	if xa.Active != nil {
		if a.Active, err = strconv.ParseBool(*xa.Active); err != nil {
			return a, &DecodeError{Element: path, Attr: "active", Err: ErrBadValue}
		}
	}
	if xa.ActiveFrom != nil {
		if a.ActiveFrom, err = timefmt.ParseDateTime(*xa.ActiveFrom, d.loc); err != nil {
			return a, &DecodeError{Element: path, Attr: "activeFrom", Err: ErrBadValue}
		}
	}
	if xa.ActiveTo != nil {
		if a.ActiveTo, err = timefmt.ParseDateTime(*xa.ActiveTo, d.loc); err != nil {
			return a, &DecodeError{Element: path, Attr: "activeTo", Err: ErrBadValue}
		}
	}
	if xa.Order != nil {
		if a.Order, err = strconv.Atoi(*xa.Order); err != nil {
			return a, &DecodeError{Element: path, Attr: "order", Err: ErrBadValue}
		}
	}
	return a, nil
}

func required(element, attr string, v *string) (string, error) {
	if v == nil {
		return "", &DecodeError{Element: element, Attr: attr, Err: ErrMissingAttr}
	}
	return *v, nil
}

func value(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
