// Package report renders the whole festival program as a static HTML page:
// one table per date with a column per location, listing the current
// version of every session.
package report

import (
	"embed"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"openair/internal/model"
)

//go:embed templates/*.html templates/*.css
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// StylesheetPath is the stylesheet location relative to the report page.
const StylesheetPath = "data/htmloutput.css"

const dayLayout = "Mon, Jan 02. 2006"

// Page is the template data of a report.
type Page struct {
	Title      string
	Stylesheet string
	Days       []Day
	Locations  []string
}

// Day is one date of the program.
type Day struct {
	Date  time.Time
	Label string
	// Cells has one entry per location; a nil cell means the location has
	// no program that day.
	Cells []*Cell
}

// Cell lists a location's sessions of one day.
type Cell struct {
	Rows []Row
}

// Row is one session line.
type Row struct {
	Start, End string
	Title      string
	Cancelled  bool
	Moved      bool
}

// Class returns the CSS class of the row.
func (r Row) Class() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Moved:
		return "moved"
	}
	return ""
}

// Build lays the event out for rendering. Old versions are omitted; new
// versions are marked moved. Times are shown in loc (time.Local when nil).
func Build(e *model.Event, loc *time.Location, stylesheet string) Page {
	if loc == nil {
		loc = time.Local
	}
	p := Page{Title: e.Name, Stylesheet: stylesheet, Locations: e.LocationNames()}
	for _, date := range e.Dates() {
		day := Day{Date: date, Label: date.In(loc).Format(dayLayout)}
		for _, l := range e.Locations() {
			dp := l.FindDayProgram(date)
			if dp == nil {
				day.Cells = append(day.Cells, nil)
				continue
			}
			cell := &Cell{}
			for _, s := range dp.Sessions() {
				if s.IsOldVersion() {
					continue
				}
				title := s.ShortName()
				if title == "" {
					title = s.Name()
				}
				cell.Rows = append(cell.Rows, Row{
					Start:     s.Start().In(loc).Format("15:04"),
					End:       s.End().In(loc).Format("15:04"),
					Title:     title,
					Cancelled: s.IsCancelled(),
					Moved:     s.IsMoved(),
				})
			}
			day.Cells = append(day.Cells, cell)
		}
		p.Days = append(p.Days, day)
	}
	return p
}

// Render writes the report page of e to w.
func Render(w io.Writer, e *model.Event, loc *time.Location) error {
	return templates.ExecuteTemplate(w, "event.html", Build(e, loc, StylesheetPath))
}

// Stylesheet returns the report stylesheet.
func Stylesheet() []byte {
	b, _ := templatesFS.ReadFile("templates/htmloutput.css")
	return b
}

// WriteDir writes event.html and data/htmloutput.css into dir.
func WriteDir(dir string, e *model.Event, loc *time.Location) error {
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(StylesheetPath)), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, StylesheetPath), Stylesheet(), 0o644); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "event.html"))
	if err != nil {
		return err
	}
	if err := Render(f, e, loc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
