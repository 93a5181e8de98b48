package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"openair/internal/codec"
	"openair/internal/config"
	"openair/internal/display"
	appLog "openair/internal/log"
	"openair/internal/model"
	"openair/internal/report"
	"openair/internal/store"
	"openair/internal/timefmt"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"hhmm": func(t time.Time) string { return t.Format(timefmt.StartLayout) },
}).ParseFS(templatesFS, "templates/*.html"))

// Server provides the HTTP API and pages over the active event.
type Server struct {
	cfg   *config.Config
	loc   *time.Location
	clock model.Clock
	lib   *store.Library
	mux   *http.ServeMux

	// onActivate is called after an event was activated through the API.
	onActivate func(*model.Event)

	mu       sync.RWMutex
	event    *model.Event
	overview *display.Overview
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used as "now" by every projection.
func WithClock(c model.Clock) Option { return func(s *Server) { s.clock = c } }

// WithLibrary enables the /api/events endpoints.
func WithLibrary(lib *store.Library) Option { return func(s *Server) { s.lib = lib } }

// OnActivate registers a callback for events activated through the API.
func OnActivate(fn func(*model.Event)) Option { return func(s *Server) { s.onActivate = fn } }

// NewServer constructs a new Server serving e.
func NewServer(cfg *config.Config, e *model.Event, opts ...Option) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		loc = time.Local
	}
	s := &Server{
		cfg:   cfg,
		loc:   loc,
		clock: time.Now,
		mux:   http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.SetEvent(e)
	s.registerRoutes()
	return s
}

// SetEvent replaces the served event.
func (s *Server) SetEvent(e *model.Event) {
	ov := display.NewOverview(e)
	s.mu.Lock()
	s.event, s.overview = e, ov
	s.mu.Unlock()
}

func (s *Server) current() (*model.Event, *display.Overview) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.event, s.overview
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// empty credentials disable auth
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="OpenAir", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/overview", s.handleOverview)
	s.mux.HandleFunc("GET /api/locations", s.handleLocations)
	s.mux.HandleFunc("GET /api/locations/{name}", s.handleLocationProgram)
	s.mux.HandleFunc("GET /api/announcements", s.handleAnnouncements)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/events/{id}/activate", s.handleActivate)

	s.mux.HandleFunc("GET /overview", s.handleOverviewPage)
	s.mux.HandleFunc("GET /event.html", s.handleReport)
	s.mux.HandleFunc("GET /"+report.StylesheetPath, s.handleStylesheet)
	s.mux.HandleFunc("GET /event.ics", s.handleICS)
	s.mux.HandleFunc("GET /event.zip", s.handlePackage)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/overview", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// now returns the projection instant: ?at=dd-MM-yyyy HH:mm when given,
// otherwise the server clock.
func (s *Server) now(r *http.Request) (time.Time, error) {
	at := r.URL.Query().Get("at")
	if at == "" {
		return s.clock(), nil
	}
	return timefmt.ParseDateTime(at, s.loc)
}

// overviewParams starts from the configured overview and applies
// ?locations=a,b and ?max=n.
func (s *Server) overviewParams(r *http.Request) display.OverviewParams {
	p := display.OverviewParams{
		Locations:    s.cfg.Overview.Locations,
		MaxSessions:  s.cfg.Overview.MaxSessions,
		NoticePeriod: s.cfg.NoticePeriod(),
	}
	q := r.URL.Query()
	if v := q.Get("locations"); v != "" {
		p.Locations = splitList(v)
	}
	if v := q.Get("max"); v != "" {
		p.MaxSessions = parseIntDefault(v, p.MaxSessions)
	}
	return p
}

func (s *Server) snapshot(r *http.Request) (*display.OverviewSnapshot, int, error) {
	t, err := s.now(r)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	_, ov := s.current()
	snap, err := ov.Project(t, s.overviewParams(r))
	if errors.Is(err, display.ErrUnknownLocation) {
		return nil, http.StatusNotFound, err
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return snap, http.StatusOK, nil
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap, status, err := s.snapshot(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.overviewDTO(snap))
}

func (s *Server) handleOverviewPage(w http.ResponseWriter, r *http.Request) {
	snap, status, err := s.snapshot(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	e, _ := s.current()
	refresh := 60
	if snap.NextChange != nil {
		if d := int(snap.NextChange.Sub(snap.Time).Seconds()) + 1; d > 0 && d < refresh {
			refresh = d
		}
	}
	data := struct {
		Title   string
		Refresh int
		Snap    *display.OverviewSnapshot
		Notice  string
		Ticker  string
	}{
		Title:   e.Name,
		Refresh: refresh,
		Snap:    snap,
		Ticker:  e.ActiveAnnouncementsText(snap.Time),
	}
	if snap.DateNotice != nil {
		data.Notice = snap.DateNotice.In(s.loc).Format("Monday, 02 January 2006")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "overview.html", data); err != nil {
		appLog.Error("overview page render failed", err)
	}
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	e, _ := s.current()
	writeJSON(w, http.StatusOK, e.LocationNames())
}

func (s *Server) handleLocationProgram(w http.ResponseWriter, r *http.Request) {
	e, _ := s.current()
	l := e.FindLocation(r.PathValue("name"))
	if l == nil {
		writeError(w, http.StatusNotFound, "unknown location")
		return
	}
	view, ok := parseView(r.URL.Query().Get("view"))
	if !ok {
		writeError(w, http.StatusBadRequest, "view must be raw, new or old")
		return
	}
	t, err := s.now(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, programDTOFrom(display.ProjectLocation(l, t, view)))
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	t, err := s.now(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, _ := s.current()
	out := make([]announcementDTO, 0)
	for _, a := range e.ActiveAnnouncements(t) {
		out = append(out, announcementDTOFrom(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	list, err := s.lib.Records.List(r.Context())
	if err != nil {
		appLog.Error("api events: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	out := make([]storedEventDTO, 0, len(list))
	for _, se := range list {
		out = append(out, storedEventDTO{ID: se.ID, Name: se.Name, URI: se.URI, Version: se.Version, Active: se.Active})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ctx := r.Context()
	if err := s.lib.Records.SetActive(ctx, id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown event")
		return
	} else if err != nil {
		appLog.Error("api activate failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to activate event")
		return
	}
	se, e, err := s.lib.Active(ctx)
	if err != nil {
		appLog.Error("api activate: load failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	s.SetEvent(e)
	if s.onActivate != nil {
		s.onActivate(e)
	}
	appLog.Info("event activated", "id", se.ID, "name", se.Name)
	writeJSON(w, http.StatusOK, storedEventDTO{ID: se.ID, Name: se.Name, URI: se.URI, Version: se.Version, Active: se.Active})
}

func (s *Server) handlePackage(w http.ResponseWriter, _ *http.Request) {
	e, _ := s.current()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="event.zip"`)
	c := &codec.Codec{Location: s.loc}
	if err := c.EncodeZip(w, e); err != nil {
		appLog.Error("package download failed", err)
	}
}

// handlePreview serves the last captured overview PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	// http.ServeFile answers 404 for a missing capture.
	http.ServeFile(w, r, s.cfg.CaptureOutput())
}

func parseView(v string) (display.View, bool) {
	switch strings.ToLower(v) {
	case "", "raw":
		return display.Raw, true
	case "new":
		return display.New, true
	case "old":
		return display.Old, true
	}
	return display.Raw, false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
