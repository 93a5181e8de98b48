package web

import (
	"net/http"
	"strings"

	"openair/internal/ics"
	appLog "openair/internal/log"
	"openair/internal/model"
	"openair/internal/report"
)

// handleReport serves the whole program as HTML.
func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	e, _ := s.current()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.Render(w, e, s.loc); err != nil {
		appLog.Error("report render failed", err)
	}
}

// handleStylesheet serves the report stylesheet at its relative path.
func (s *Server) handleStylesheet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(report.Stylesheet())
}

// handleICS serves one side of the program as iCalendar: ?side=new (default) or old.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	side := model.NewSide
	switch strings.ToLower(r.URL.Query().Get("side")) {
	case "", "new":
	case "old":
		side = model.OldSide
	default:
		writeError(w, http.StatusBadRequest, "side must be new or old")
		return
	}
	e, _ := s.current()
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := ics.Export(w, e, ics.ExportOptions{Side: side}); err != nil {
		appLog.Error("ics export failed", err)
	}
}
