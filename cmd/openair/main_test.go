package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"openair/internal/display"
	"openair/internal/model"
)

func TestParseSideAndView(t *testing.T) {
	sides := []struct {
		in      string
		want    model.Side
		wantErr bool
	}{
		{"", model.NewSide, false},
		{"new", model.NewSide, false},
		{"OLD", model.OldSide, false},
		{"both", model.NewSide, true},
	}
	for _, tt := range sides {
		got, err := parseSide(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSide(%q) = %v, %v", tt.in, got, err)
		}
	}

	views := []struct {
		in      string
		want    display.View
		wantErr bool
	}{
		{"", display.Raw, false},
		{"new", display.New, false},
		{"old", display.Old, false},
		{"sideways", display.Raw, true},
	}
	for _, tt := range views {
		got, err := parseView(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseView(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestPrintProgram(t *testing.T) {
	e := model.Demo(time.UTC)
	at := time.Date(2010, 1, 2, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printProgram(&buf, display.ProjectLocation(e.FindLocation("Stage B"), at, display.Raw))
	out := buf.String()
	for _, want := range []string{
		"Stage B\n",
		"11:30  Performance B5 [moved to 15:30]",
		"15:30  Performance B5 [moved from 11:30]",
		"Performance B6 [cancelled]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("program lacks %q:\n%s", want, out)
		}
	}
}

func TestPrintOverview(t *testing.T) {
	e := model.Demo(time.UTC)
	e.AddAnnouncement(model.Announcement{Active: true, Text: "Gates close at midnight"})
	at := time.Date(2010, 1, 2, 12, 0, 0, 0, time.UTC)
	snap, err := display.NewOverview(e).Project(at, display.OverviewParams{MaxSessions: 2})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printOverview(&buf, e, snap)
	out := buf.String()
	for _, want := range []string{
		"Super Event at 02-01-2010 12:00",
		"Stage C (inactive)",
		"Gates close at midnight",
		"next change 02-01-2010 12:30",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("overview lacks %q:\n%s", want, out)
		}
	}
}
