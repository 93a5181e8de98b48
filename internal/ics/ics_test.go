package ics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"openair/internal/model"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN", "X-WR-CALNAME:Summer Fest"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:one@test",
		"SEQUENCE:2",
		"DTSTART:20240601T100000Z",
		"DTEND:20240601T113000Z",
		"SUMMARY:Opening",
		"LOCATION:Main Stage",
		"URL:http://example.com/opening",
		"STATUS:CANCELLED",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:allday@test",
		"DTSTART;VALUE=DATE:20240602",
		"SUMMARY:Camping",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTART:20240601T100000Z",
		"SUMMARY:No uid",
		"END:VEVENT",
	)
	feed, err := Parse("test", body, time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if feed.Name != "Summer Fest" {
		t.Errorf("Name = %q", feed.Name)
	}
	if len(feed.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2 (event without UID skipped)", len(feed.Events))
	}

	ev := feed.Events[0]
	if ev.UID != "one@test" || ev.Seq != 2 || ev.Summary != "Opening" || ev.Location != "Main Stage" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Cancelled || ev.URL != "http://example.com/opening" {
		t.Errorf("cancelled=%v url=%q", ev.Cancelled, ev.URL)
	}
	if !ev.Start.Equal(utc(2024, 6, 1, 10, 0)) || !ev.End.Equal(utc(2024, 6, 1, 11, 30)) {
		t.Errorf("start/end = %v / %v", ev.Start, ev.End)
	}

	allDay := feed.Events[1]
	if !allDay.AllDay || !allDay.End.Equal(utc(2024, 6, 3, 0, 0)) {
		t.Errorf("all-day event = %+v", allDay)
	}

	if _, err := Parse("empty", []byte("  \r\n"), time.UTC); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse(empty) = %v, want ErrEmpty", err)
	}
}

func TestExpandOccurrences(t *testing.T) {
	start := utc(2024, 6, 1, 10, 0)
	rid := utc(2024, 6, 2, 10, 0)
	events := []ParsedEvent{
		{
			UID: "daily", Summary: "Yoga", Start: start, End: start.Add(time.Hour),
			RawRRule: "FREQ=DAILY;COUNT=4",
			ExDates:  []time.Time{utc(2024, 6, 4, 10, 0)},
		},
		{
			UID: "daily", Summary: "Yoga", Start: utc(2024, 6, 2, 18, 0), End: utc(2024, 6, 2, 19, 0),
			Recurrence: &rid, IsOverride: true,
		},
		{UID: "once", Summary: "Talk", Start: utc(2024, 6, 1, 9, 0), End: utc(2024, 6, 1, 9, 45)},
		{UID: "outside", Summary: "Later", Start: utc(2025, 1, 1, 9, 0), End: utc(2025, 1, 1, 10, 0)},
	}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(2024, 6, 1, 0, 0),
		RangeEnd:        utc(2024, 7, 1, 0, 0),
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}

	want := []struct {
		uid   string
		start time.Time
		moved bool
	}{
		{"once", utc(2024, 6, 1, 9, 0), false},
		{"daily", utc(2024, 6, 1, 10, 0), false},
		{"daily", utc(2024, 6, 2, 18, 0), true},
		{"daily", utc(2024, 6, 3, 10, 0), false},
	}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %+v", len(res.Occurrences), len(want), res.Occurrences)
	}
	for i, w := range want {
		got := res.Occurrences[i]
		if got.UID != w.uid || !got.Start.Equal(w.start) || (got.Moved != nil) != w.moved {
			t.Errorf("occurrence %d = %s %v moved=%v, want %s %v moved=%v", i, got.UID, got.Start, got.Moved != nil, w.uid, w.start, w.moved)
		}
	}
	if m := res.Occurrences[2].Moved; m == nil || !m.Equal(rid) {
		t.Errorf("moved from = %v, want %v", m, rid)
	}

	if _, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: start, RangeEnd: start.Add(-time.Hour)}); err == nil {
		t.Errorf("inverted range accepted")
	}
}

func TestExpandOccurrences_Cap(t *testing.T) {
	start := utc(2024, 1, 1, 8, 0)
	res, err := ExpandOccurrences([]ParsedEvent{
		{UID: "forever", Start: start, End: start.Add(time.Hour), RawRRule: "FREQ=DAILY"},
	}, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             start,
		RangeEnd:               start.AddDate(1, 0, 0),
		MaxOccurrencesPerEvent: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Occurrences) != 10 || len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "forever" {
		t.Errorf("occurrences=%d truncated=%v", len(res.Occurrences), res.TruncatedEvents)
	}
}

func TestImport(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:yoga@test",
		"DTSTART:20240601T100000Z",
		"DTEND:20240601T110000Z",
		"RRULE:FREQ=DAILY;COUNT=3",
		"SUMMARY:Yoga",
		"LOCATION:Meadow",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:yoga@test",
		"SEQUENCE:1",
		"RECURRENCE-ID:20240602T100000Z",
		"DTSTART:20240602T180000Z",
		"DTEND:20240602T190000Z",
		"SUMMARY:Yoga",
		"LOCATION:Meadow",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:band@test",
		"DTSTART:20240602T120000Z",
		"DTEND:20240602T133000Z",
		"SUMMARY:The Band",
		"DESCRIPTION:Loud.",
		"STATUS:CANCELLED",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:camp@test",
		"DTSTART;VALUE=DATE:20240601",
		"SUMMARY:Camping",
		"END:VEVENT",
	)

	e, err := Import("summer.ics", body, ImportConfig{Location: time.UTC, URI: "http://example.com/summer"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if e.Name != "Summer Fest" || e.URI != "http://example.com/summer" {
		t.Errorf("event = %q %q", e.Name, e.URI)
	}

	meadow := e.FindLocation("Meadow")
	if meadow == nil {
		t.Fatalf("locations = %v, want Meadow", e.LocationNames())
	}
	if n := len(meadow.DayPrograms()); n != 3 {
		t.Fatalf("Meadow has %d days, want 3", n)
	}
	day2 := meadow.FindDayProgram(utc(2024, 6, 2, 0, 0)).Sessions()
	if len(day2) != 2 {
		t.Fatalf("Meadow day 2 has %d sessions, want 2", len(day2))
	}
	if !day2[0].IsOldVersion() || day2[0].NewVersion() != day2[1] || !day2[1].Start().Equal(utc(2024, 6, 2, 18, 0)) {
		t.Errorf("moved instance not versioned: %s %v / %s %v", day2[0].Name(), day2[0].Role(), day2[1].Name(), day2[1].Role())
	}

	fallback := e.FindLocation(DefaultLocation)
	if fallback == nil {
		t.Fatalf("locations = %v, want %s for events without LOCATION", e.LocationNames(), DefaultLocation)
	}
	band := fallback.DayPrograms()[0].Sessions()[0]
	if !band.IsCancelled() || band.Description() != "Loud." || band.Duration() != 90*time.Minute {
		t.Errorf("band = cancelled=%v desc=%q dur=%v", band.IsCancelled(), band.Description(), band.Duration())
	}

	if _, err := Import("allday.ics", calendar(
		"BEGIN:VEVENT", "UID:a@test", "DTSTART;VALUE=DATE:20240601", "SUMMARY:Camping", "END:VEVENT",
	), ImportConfig{Location: time.UTC}); !errors.Is(err, ErrNoSessions) {
		t.Errorf("Import(all-day only) = %v, want ErrNoSessions", err)
	}
}

func TestExport(t *testing.T) {
	e := model.Demo(time.UTC)
	stamp := utc(2009, 12, 1, 0, 0)

	var buf bytes.Buffer
	if err := Export(&buf, e, ExportOptions{Side: model.NewSide, Stamp: stamp}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "PRODID:" + ProductID, "SUMMARY:Performance B5", "STATUS:CANCELLED", "LOCATION:Stage C"} {
		if !strings.Contains(out, want) {
			t.Errorf("export lacks %q", want)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 15 {
		t.Errorf("new side has %d VEVENTs, want 15", n)
	}

	// the exported calendar imports back as the current program
	got, err := Import("demo.ics", buf.Bytes(), ImportConfig{Location: time.UTC})
	if err != nil {
		t.Fatalf("Import(export): %v", err)
	}
	if got.Name != e.Name || len(got.Locations()) != 3 {
		t.Errorf("reimported %q with %v", got.Name, got.LocationNames())
	}
	stageB := got.FindLocation("Stage B").FindDayProgram(utc(2010, 1, 2, 0, 0)).Sessions()
	var names []string
	for _, s := range stageB {
		names = append(names, s.FormattedStart()+" "+s.Name())
	}
	if strings.Join(names, ", ") != "10:00 Performance B4, 13:00 Performance B6, 15:30 Performance B5" {
		t.Errorf("Stage B day 2 = %v", names)
	}
	if !stageB[1].IsCancelled() {
		t.Errorf("B6 not cancelled after round trip")
	}

	buf.Reset()
	if err := Export(&buf, e, ExportOptions{Side: model.OldSide, Stamp: stamp}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "STATUS:CANCELLED") || !strings.Contains(buf.String(), "DTSTART:20100102T113000Z") {
		t.Errorf("old side should show the original plan:\n%s", buf.String())
	}
}
