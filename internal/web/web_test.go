package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"openair/internal/codec"
	"openair/internal/config"
	"openair/internal/model"
	"openair/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.DataDir = t.TempDir()
	return cfg
}

func day2Noon() model.Clock {
	return model.FixedClock(time.Date(2010, 1, 2, 12, 0, 0, 0, time.UTC))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthAndBasicAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "crew", Password: "stage"}
	h := NewServer(cfg, model.Demo(time.UTC), WithClock(day2Noon())).Handler()

	if rec := get(t, h, "/health"); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/health = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/api/overview"); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/overview without credentials = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/overview", nil)
	req.SetBasicAuth("crew", "stage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/overview with credentials = %d, want 200", rec.Code)
	}
}

func TestOverviewAPI(t *testing.T) {
	h := NewServer(testConfig(t), model.Demo(time.UTC), WithClock(day2Noon())).Handler()

	rec := get(t, h, "/api/overview")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got overviewDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(got.Items))
	}
	if got.NextChange == nil || !got.NextChange.Equal(time.Date(2010, 1, 2, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("next_change = %v, want 12:30", got.NextChange)
	}
	stageC := got.Items[2]
	if stageC.Location != "Stage C" || stageC.Active || len(stageC.Sessions) != 0 {
		t.Errorf("Stage C item = %+v, want inactive", stageC)
	}
	if a := got.Items[0]; !a.Active || !a.Running || a.Sessions[0].Name != "Performance A5" {
		t.Errorf("Stage A item = %+v", a)
	}

	tests := []struct {
		target string
		status int
	}{
		{"/api/overview?locations=Stage%20B&max=1", http.StatusOK},
		{"/api/overview?locations=Nowhere", http.StatusNotFound},
		{"/api/overview?at=yesterday", http.StatusBadRequest},
		{"/api/overview?at=01-01-2010%2009:00", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if rec := get(t, h, tt.target); rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	// B4 is over and B6 is cancelled, so the moved B5 is next on Stage B
	rec = get(t, h, "/api/overview?locations=Stage%20B&max=1")
	var one overviewDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil {
		t.Fatal(err)
	}
	if len(one.Items) != 1 || len(one.Items[0].Sessions) != 1 {
		t.Fatalf("Stage B with max=1 = %+v", one.Items)
	}
	if s := one.Items[0].Sessions[0]; s.Name != "Performance B5" || s.StartLabel != "15:30" {
		t.Errorf("next on Stage B = %s at %s", s.Name, s.StartLabel)
	}
}

func TestLocationProgramAPI(t *testing.T) {
	h := NewServer(testConfig(t), model.Demo(time.UTC), WithClock(day2Noon())).Handler()

	views := map[string]int{"": 9, "raw": 9, "new": 7, "old": 8}
	for view, items := range views {
		rec := get(t, h, "/api/locations/Stage%20B?view="+view)
		if rec.Code != http.StatusOK {
			t.Fatalf("view %q: status %d", view, rec.Code)
		}
		var got programDTO
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if len(got.Items) != items {
			t.Errorf("view %q: %d items, want %d", view, len(got.Items), items)
		}
		if got.Items[0].Kind != "day" || got.Items[1].Kind != "session" {
			t.Errorf("view %q: first items %q, %q", view, got.Items[0].Kind, got.Items[1].Kind)
		}
	}

	if rec := get(t, h, "/api/locations/Stage%20B?view=sideways"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad view = %d, want 400", rec.Code)
	}
	if rec := get(t, h, "/api/locations/Nowhere"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown location = %d, want 404", rec.Code)
	}

	rec := get(t, h, "/api/locations")
	var names []string
	_ = json.Unmarshal(rec.Body.Bytes(), &names)
	if strings.Join(names, ",") != "Stage A,Stage B,Stage C" {
		t.Errorf("locations = %v", names)
	}
}

func TestAnnouncementsAPI(t *testing.T) {
	e := model.Demo(time.UTC)
	e.AddAnnouncement(model.Announcement{Active: true, Text: "second", Order: 2})
	e.AddAnnouncement(model.Announcement{Active: true, Text: "first", Order: 1})
	e.AddAnnouncement(model.Announcement{Active: false, Text: "hidden"})
	h := NewServer(testConfig(t), e, WithClock(day2Noon())).Handler()

	var got []announcementDTO
	if err := json.Unmarshal(get(t, h, "/api/announcements").Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("announcements = %+v", got)
	}
}

func TestPagesAndDownloads(t *testing.T) {
	h := NewServer(testConfig(t), model.Demo(time.UTC), WithClock(day2Noon())).Handler()

	tests := []struct {
		target      string
		status      int
		contentType string
		contains    string
	}{
		{"/overview", http.StatusOK, "text/html", `data-ready="true"`},
		{"/event.html", http.StatusOK, "text/html", "<h1>Super Event</h1>"},
		{"/data/htmloutput.css", http.StatusOK, "text/css", "cancelled"},
		{"/event.ics", http.StatusOK, "text/calendar", "STATUS:CANCELLED"},
		{"/event.ics?side=old", http.StatusOK, "text/calendar", "BEGIN:VCALENDAR"},
		{"/event.ics?side=both", http.StatusBadRequest, "application/json", "side"},
		{"/preview.png", http.StatusNotFound, "", ""},
		{"/", http.StatusFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body lacks %q", tt.contains)
			}
		})
	}

	rec := get(t, h, "/event.zip")
	e, err := codec.DecodeZip(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("DecodeZip(/event.zip): %v", err)
	}
	if e.Name != "Super Event" {
		t.Errorf("downloaded event %q", e.Name)
	}
}

func TestEventsAPI(t *testing.T) {
	cfg := testConfig(t)
	if rec := get(t, NewServer(cfg, model.Demo(time.UTC)).Handler(), "/api/events"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/api/events without store = %d, want 503", rec.Code)
	}

	ctx := context.Background()
	records, err := store.OpenRecords(ctx, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { records.Close() })
	lib := store.NewLibrary(records, t.TempDir(), &codec.Codec{Location: time.UTC})
	demo, _, err := lib.EnsureActive(ctx, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	other := model.NewEvent("Winter Fest")
	other.URI = "http://example.com/winter"
	if _, err := other.AddLocation("Hall"); err != nil {
		t.Fatal(err)
	}
	winter, err := lib.Install(ctx, other, false)
	if err != nil {
		t.Fatal(err)
	}

	var activated *model.Event
	srv := NewServer(cfg, model.Demo(time.UTC), WithLibrary(lib), OnActivate(func(e *model.Event) { activated = e }))
	h := srv.Handler()

	var list []storedEventDTO
	if err := json.Unmarshal(get(t, h, "/api/events").Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != demo.ID || !list[0].Active {
		t.Fatalf("events = %+v", list)
	}

	post := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		return rec
	}
	rec := post("/api/events/" + strconv.FormatInt(winter.ID, 10) + "/activate")
	if rec.Code != http.StatusOK {
		t.Fatalf("activate = %d: %s", rec.Code, rec.Body.String())
	}
	if activated == nil || activated.Name != "Winter Fest" {
		t.Errorf("OnActivate got %v", activated)
	}
	body, _ := io.ReadAll(get(t, h, "/api/locations").Body)
	if !strings.Contains(string(body), "Hall") {
		t.Errorf("server still serves the old event: %s", body)
	}

	if rec := post("/api/events/999/activate"); rec.Code != http.StatusNotFound {
		t.Errorf("activate unknown = %d, want 404", rec.Code)
	}
	if rec := post("/api/events/abc/activate"); rec.Code != http.StatusBadRequest {
		t.Errorf("activate bad id = %d, want 400", rec.Code)
	}
}
