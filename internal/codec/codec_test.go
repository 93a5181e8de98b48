package codec

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"openair/internal/model"
)

var utc = &Codec{Location: time.UTC}

func at(day, hour, min int) time.Time {
	return time.Date(2010, time.January, day, hour, min, 0, 0, time.UTC)
}

func sampleEvent(t *testing.T) *model.Event {
	t.Helper()
	e := model.Demo(time.UTC)
	e.VersionTime = at(1, 8, 15)
	e.Metadata = &model.Metadata{URL: "http://example.org", Description: "Open air festival"}
	a := e.FindLocation("Stage A")
	a.ShortName = "A"
	a.Metadata = &model.Metadata{Description: "Main stage"}
	first := a.DayPrograms()[0].Sessions()[0]
	first.SetShortName("A1")
	first.Metadata = &model.Metadata{URL: "http://example.org/a1"}
	e.AddAnnouncement(model.Announcement{Active: true, Text: "Gates open at 9", Order: 2})
	e.AddAnnouncement(model.Announcement{Active: false, Text: "Rain plan", ActiveFrom: at(1, 0, 0), ActiveTo: at(2, 23, 59)})
	return e
}

func encode(t *testing.T, e *model.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := utc.Encode(&buf, e); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	orig := sampleEvent(t)
	got, err := utc.Decode(bytes.NewReader(encode(t, orig)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Name != orig.Name || got.ShortName != orig.ShortName || got.URI != orig.URI {
		t.Errorf("event header = %q/%q/%q", got.Name, got.ShortName, got.URI)
	}
	if got.Version != 1 || !got.VersionTime.Equal(orig.VersionTime) {
		t.Errorf("version = %d at %v", got.Version, got.VersionTime)
	}
	if got.URL() != "http://example.org" || got.Description() != "Open air festival" {
		t.Errorf("event metadata = %q %q", got.URL(), got.Description())
	}

	gl, ol := got.Locations(), orig.Locations()
	if len(gl) != len(ol) {
		t.Fatalf("len(locations) = %d, want %d", len(gl), len(ol))
	}
	for i := range ol {
		if gl[i].Name() != ol[i].Name() || gl[i].ShortName != ol[i].ShortName || gl[i].Description() != ol[i].Description() {
			t.Errorf("location %d = %q", i, gl[i].Name())
		}
		gd, od := gl[i].DayPrograms(), ol[i].DayPrograms()
		if len(gd) != len(od) {
			t.Fatalf("%s: len(days) = %d, want %d", ol[i].Name(), len(gd), len(od))
		}
		for j := range od {
			if !gd[j].DayStart().Equal(od[j].DayStart()) {
				t.Errorf("%s day %d starts %v, want %v", ol[i].Name(), j, gd[j].DayStart(), od[j].DayStart())
			}
			gs, os := gd[j].Sessions(), od[j].Sessions()
			if len(gs) != len(os) {
				t.Fatalf("%s day %d: len(sessions) = %d, want %d", ol[i].Name(), j, len(gs), len(os))
			}
			for k := range os {
				g, o := gs[k], os[k]
				if g.Name() != o.Name() || g.ShortName() != o.ShortName() || !g.Start().Equal(o.Start()) ||
					g.Duration() != o.Duration() || g.IsCancelled() != o.IsCancelled() || g.Role() != o.Role() ||
					g.URL() != o.URL() {
					t.Errorf("session %s differs after round trip", o.Name())
				}
			}
		}
	}

	day2 := got.FindLocation("Stage B").FindDayProgram(at(2, 0, 0)).Sessions()
	old, moved := day2[1], day2[3]
	if !old.IsOldVersion() || old.NewVersion() != moved {
		t.Fatalf("B5 old version not linked to its replacement")
	}
	if !moved.IsNewVersion() || moved.OldVersion() != old {
		t.Fatalf("B5 new version not linked back")
	}
	if !moved.Start().Equal(at(2, 15, 30)) {
		t.Errorf("moved start = %v", moved.Start())
	}
	if !day2[2].IsCancelled() {
		t.Errorf("B6 lost its cancellation")
	}

	as := got.Announcements()
	if len(as) != 2 || as[0].Text != "Gates open at 9" || !as[0].Active || as[0].Order != 2 {
		t.Fatalf("announcements = %+v", as)
	}
	if as[1].Active || !as[1].ActiveFrom.Equal(at(1, 0, 0)) || !as[1].ActiveTo.Equal(at(2, 23, 59)) {
		t.Errorf("second announcement = %+v", as[1])
	}
}

func TestEncode_WireFormat(t *testing.T) {
	out := string(encode(t, sampleEvent(t)))

	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<event xmlns="` + Namespace + `"`,
		`versionTime="01-01-2010 08:15"`,
		`<location name="Stage A" shortName="A" id="st1">`,
		`<day date="01-01-2010">`,
		`start="01-01-2010 10:00" duration="1:00" name="Performance A1" shortName="A1" id="sh2"`,
		`name="Performance B5" id="sh3" oldVersion="true"`,
		`start="02-01-2010 15:30" duration="1:00" name="Performance B5" id="sh3"></session>`,
		`name="Performance B6" cancelled="true"`,
		`<location id="st1" description="Main stage">`,
		`<session id="sh2" url="http://example.org/a1">`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded document lacks %s\n%s", want, out)
		}
	}
	if n := strings.Count(out, `oldVersion=`); n != 1 {
		t.Errorf("oldVersion written %d times, want 1", n)
	}
	if strings.Contains(out, `cancelled="false"`) {
		t.Errorf("cancelled written for a live session")
	}
}

const header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

func doc(program string) string {
	return header + `<event xmlns="` + Namespace + `" name="Test"><program>` + program + `</program></event>`
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    error
		attr    string
		element string
	}{
		{
			name: "event name missing",
			in:   header + `<event><program/></event>`,
			want: ErrMissingAttr, attr: "name", element: "event",
		},
		{
			name: "location name missing",
			in:   doc(`<location/>`),
			want: ErrMissingAttr, attr: "name", element: "location[1]",
		},
		{
			name: "day date missing",
			in:   doc(`<location name="A"><day/></location>`),
			want: ErrMissingAttr, attr: "date", element: "location[1]/day[1]",
		},
		{
			name: "session start missing",
			in:   doc(`<location name="A"><day date="01-01-2010"><session name="x" duration="1:00"/></day></location>`),
			want: ErrMissingAttr, attr: "start", element: "location[1]/day[1]/session[1]",
		},
		{
			name: "session duration malformed",
			in:   doc(`<location name="A"><day date="01-01-2010"><session name="x" start="01-01-2010 10:00" duration="1:00:00"/></day></location>`),
			want: ErrBadValue, attr: "duration", element: "location[1]/day[1]/session[1]",
		},
		{
			name: "day date malformed",
			in:   doc(`<location name="A"><day date="2010-01-01"/></location>`),
			want: ErrBadValue, attr: "date", element: "location[1]/day[1]",
		},
		{
			name: "duplicate location",
			in:   doc(`<location name="A"/><location name="A"/>`),
			want: model.ErrDuplicateLocation, attr: "name", element: "location[2]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := utc.Decode(strings.NewReader(tt.in))
			if e != nil {
				t.Errorf("partial event returned")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err %T is not a *DecodeError", err)
			}
			if de.Attr != tt.attr || de.Element != tt.element {
				t.Errorf("DecodeError at %s/%s, want %s/%s", de.Element, de.Attr, tt.element, tt.attr)
			}
		})
	}
}

func TestDecode_RootElement(t *testing.T) {
	if _, err := utc.Decode(strings.NewReader(`<program/>`)); !errors.Is(err, ErrRootElement) {
		t.Errorf("err = %v, want ErrRootElement", err)
	}
}

func pair(first, second string) string {
	return doc(`<location name="A"><day date="01-01-2010">` +
		`<session name="x" start="01-01-2010 10:00" duration="1:00" id="sh1"` + first + `/>` +
		`<session name="x" start="01-01-2010 12:00" duration="1:00" id="sh1"` + second + `/>` +
		`</day></location>`)
}

func TestDecode_VersionPairs(t *testing.T) {
	tests := []struct {
		name          string
		first, second string
		firstIsOld    bool
	}{
		{"flag on first", ` oldVersion="true"`, ``, true},
		{"flag on second", ``, ` oldVersion="true"`, false},
		{"no flag", ``, ``, true},
		{"explicit false on second", ``, ` oldVersion="false"`, true},
		{"explicit false on first", ` oldVersion="false"`, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := utc.Decode(strings.NewReader(pair(tt.first, tt.second)))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			ss := e.FindLocation("A").DayPrograms()[0].Sessions()
			if ss[0].IsOldVersion() != tt.firstIsOld || ss[1].IsOldVersion() == tt.firstIsOld {
				t.Errorf("first old = %v, second old = %v", ss[0].IsOldVersion(), ss[1].IsOldVersion())
			}
			if !ss[0].IsMoved() || !ss[1].IsMoved() {
				t.Errorf("sessions not linked")
			}
		})
	}

	t.Run("both flagged", func(t *testing.T) {
		_, err := utc.Decode(strings.NewReader(pair(` oldVersion="true"`, ` oldVersion="true"`)))
		if !errors.Is(err, ErrVersionPair) {
			t.Errorf("err = %v, want ErrVersionPair", err)
		}
	})

	t.Run("id used three times", func(t *testing.T) {
		in := doc(`<location name="A"><day date="01-01-2010">` +
			`<session name="x" start="01-01-2010 10:00" duration="1:00" id="sh1"/>` +
			`<session name="x" start="01-01-2010 11:00" duration="1:00" id="sh1"/>` +
			`<session name="x" start="01-01-2010 12:00" duration="1:00" id="sh1"/>` +
			`</day></location>`)
		if _, err := utc.Decode(strings.NewReader(in)); !errors.Is(err, ErrVersionPair) {
			t.Errorf("err = %v, want ErrVersionPair", err)
		}
	})

	t.Run("metadata without partner", func(t *testing.T) {
		in := header + `<event name="Test"><program><location name="A"><day date="01-01-2010">` +
			`<session name="x" start="01-01-2010 10:00" duration="1:00" id="sh1"/>` +
			`</day></location></program><metadata><session id="sh1" url="u" description="d"/></metadata></event>`
		e, err := utc.Decode(strings.NewReader(in))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		s := e.FindLocation("A").DayPrograms()[0].Sessions()[0]
		if s.IsMoved() || s.URL() != "u" || s.Description() != "d" {
			t.Errorf("session moved=%v url=%q description=%q", s.IsMoved(), s.URL(), s.Description())
		}
	})
}

func TestZip(t *testing.T) {
	orig := sampleEvent(t)

	t.Run("round trip", func(t *testing.T) {
		var buf bytes.Buffer
		if err := utc.EncodeZip(&buf, orig); err != nil {
			t.Fatalf("EncodeZip: %v", err)
		}
		e, err := utc.DecodeZip(&buf)
		if err != nil {
			t.Fatalf("DecodeZip: %v", err)
		}
		if e.Name != orig.Name || len(e.Locations()) != 3 {
			t.Errorf("decoded %q with %d locations", e.Name, len(e.Locations()))
		}
	})

	t.Run("leading entries skipped", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, _ := zw.Create("README.txt")
		_, _ = w.Write([]byte("not the event"))
		w, _ = zw.Create(EntryName)
		_, _ = w.Write(encode(t, orig))
		if err := zw.Close(); err != nil {
			t.Fatalf("zip close: %v", err)
		}
		e, err := utc.DecodeZip(&buf)
		if err != nil {
			t.Fatalf("DecodeZip: %v", err)
		}
		if e.Name != "Super Event" {
			t.Errorf("Name = %q", e.Name)
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, _ := zw.Create("other.xml")
		_, _ = w.Write(encode(t, orig))
		_ = zw.Close()
		if _, err := utc.DecodeZip(&buf); !errors.Is(err, ErrMissingEntry) {
			t.Errorf("err = %v, want ErrMissingEntry", err)
		}
	})

	t.Run("not a zip", func(t *testing.T) {
		if _, err := utc.DecodeZip(strings.NewReader("plain text")); err == nil {
			t.Errorf("expected error for non-zip input")
		}
	})
}
