package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"openair/internal/display"
	"openair/internal/ics"
	appLog "openair/internal/log"
	"openair/internal/model"
	"openair/internal/report"
	"openair/internal/store"
	"openair/internal/timefmt"
)

var reportCmd = &cobra.Command{
	Use:   "report [package]",
	Short: "Write the static HTML program of an event",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEvent(cmd.Context(), args)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if err := report.WriteDir(out, e, loc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Join(out, "event.html"))
		return nil
	},
}

var exportICSCmd = &cobra.Command{
	Use:   "export-ics [package]",
	Short: "Export one side of an event program as iCalendar",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sideFlag, _ := cmd.Flags().GetString("side")
		side, err := parseSide(sideFlag)
		if err != nil {
			return err
		}
		e, err := loadEvent(cmd.Context(), args)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := ics.Export(&buf, e, ics.ExportOptions{Side: side}); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		return writeOutput(cmd.OutOrStdout(), out, buf.Bytes())
	},
}

var importICSCmd = &cobra.Command{
	Use:   "import-ics <calendar.ics>",
	Short: "Turn an iCalendar file into an event package",
	Long: `import-ics builds a festival program from a calendar: every timed
VEVENT becomes a session on the stage named by its LOCATION. The event is
installed into the store, or written as a zip package with --out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		uri, _ := cmd.Flags().GetString("uri")
		e, err := ics.Import(filepath.Base(args[0]), body, ics.ImportConfig{Name: name, URI: uri, Location: loc})
		if err != nil {
			return err
		}

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			c, err := newCodec()
			if err != nil {
				return err
			}
			if err := store.SaveEvent(out, e, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d locations)\n", out, len(e.Locations()))
			return nil
		}

		lib, closeLib, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer closeLib()
		activate, _ := cmd.Flags().GetBool("activate")
		se, err := lib.Install(ctx, e, activate)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %d (%s, %d locations)\n", se.ID, se.Name, len(e.Locations()))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [package]",
	Short: "Print the overview or a location program at a given time",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		at := model.ShiftedClock(cfg.TimeShift)()
		if v, _ := cmd.Flags().GetString("at"); v != "" {
			if at, err = timefmt.ParseDateTime(v, loc); err != nil {
				return err
			}
		}
		e, err := loadEvent(cmd.Context(), args)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if name, _ := cmd.Flags().GetString("location"); name != "" {
			l := e.FindLocation(name)
			if l == nil {
				return fmt.Errorf("%w: %q", display.ErrUnknownLocation, name)
			}
			viewFlag, _ := cmd.Flags().GetString("view")
			view, err := parseView(viewFlag)
			if err != nil {
				return err
			}
			printProgram(w, display.ProjectLocation(l, at.In(loc), view))
			return nil
		}

		snap, err := display.NewOverview(e).Project(at.In(loc), display.OverviewParams{
			Locations:    cfg.Overview.Locations,
			MaxSessions:  cfg.Overview.MaxSessions,
			NoticePeriod: cfg.NoticePeriod(),
		})
		if err != nil {
			return err
		}
		printOverview(w, e, snap)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("out", "./report", "output directory")
	exportICSCmd.Flags().String("side", "new", "program side: new or old")
	exportICSCmd.Flags().String("out", "", "output file (default stdout)")
	importICSCmd.Flags().String("name", "", "event name (default: calendar name)")
	importICSCmd.Flags().String("uri", "", "event uri stored with the package")
	importICSCmd.Flags().Bool("activate", false, "make the imported event active")
	importICSCmd.Flags().String("out", "", "write a zip package instead of installing")
	inspectCmd.Flags().String("at", "", "time as dd-MM-yyyy HH:mm (default now)")
	inspectCmd.Flags().String("location", "", "print this location's program instead of the overview")
	inspectCmd.Flags().String("view", "raw", "location program view: raw, new or old")

	rootCmd.AddCommand(reportCmd, exportICSCmd, importICSCmd, inspectCmd)
}

// loadEvent reads the package named in args (.xml documents or zip
// packages), or the active event of the store. Without an active event the
// demo event is used.
func loadEvent(ctx context.Context, args []string) (*model.Event, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		if strings.EqualFold(filepath.Ext(args[0]), ".xml") {
			f, err := os.Open(args[0])
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return c.Decode(f)
		}
		return store.LoadEvent(args[0], c)
	}

	lib, closeLib, err := openLibrary(ctx)
	if err != nil {
		return nil, err
	}
	defer closeLib()
	_, e, err := lib.Active(ctx)
	if errors.Is(err, store.ErrNotFound) {
		appLog.Info("no active event, using the demo event")
		return model.Demo(c.Location), nil
	}
	return e, err
}

func parseSide(v string) (model.Side, error) {
	switch strings.ToLower(v) {
	case "", "new":
		return model.NewSide, nil
	case "old":
		return model.OldSide, nil
	}
	return model.NewSide, fmt.Errorf("unknown side %q (want new or old)", v)
}

func parseView(v string) (display.View, error) {
	switch strings.ToLower(v) {
	case "", "raw":
		return display.Raw, nil
	case "new":
		return display.New, nil
	case "old":
		return display.Old, nil
	}
	return display.Raw, fmt.Errorf("unknown view %q (want raw, new or old)", v)
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	appLog.Info("wrote file", "path", path, "bytes", len(data))
	return nil
}

func printOverview(w io.Writer, e *model.Event, snap *display.OverviewSnapshot) {
	fmt.Fprintf(w, "%s at %s\n", e.Name, snap.Time.Format(timefmt.DateTimeLayout))
	if snap.DateNotice != nil {
		fmt.Fprintf(w, "program of %s\n", snap.DateNotice.Format("Mon 02-01-2006"))
	}
	for _, it := range snap.Items {
		state := ""
		if !it.Active {
			state = " (inactive)"
		}
		fmt.Fprintf(w, "\n%s%s\n", it.Location.Name(), state)
		for i, s := range it.Sessions {
			mark := " "
			if i == 0 && it.Running() {
				mark = ">"
			}
			printSession(w, mark, s)
		}
	}
	if text := e.ActiveAnnouncementsText(snap.Time); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
	if snap.NextChange != nil {
		fmt.Fprintf(w, "\nnext change %s\n", snap.NextChange.Format(timefmt.DateTimeLayout))
	}
}

func printProgram(w io.Writer, p *display.LocationProgram) {
	fmt.Fprintln(w, p.Location.Name())
	for _, it := range p.Items {
		if it.Kind == display.DayHeader {
			fmt.Fprintf(w, "\n%s\n", it.Day.DayStart().Format("Mon 02-01-2006"))
			continue
		}
		mark := " "
		switch {
		case it.Running:
			mark = ">"
		case !it.Relevant:
			mark = "."
		}
		printSession(w, mark, it.Session)
	}
	if p.NextChange != nil {
		fmt.Fprintf(w, "\nnext change %s\n", p.NextChange.Format(timefmt.DateTimeLayout))
	}
}

func printSession(w io.Writer, mark string, s *model.Session) {
	var notes []string
	if s.IsCancelled() {
		notes = append(notes, "cancelled")
	}
	switch {
	case s.IsOldVersion():
		notes = append(notes, "moved to "+s.NewVersion().FormattedStart())
	case s.IsNewVersion():
		notes = append(notes, "moved from "+s.OldVersion().FormattedStart())
	}
	line := fmt.Sprintf("%s %s  %s", mark, s.FormattedStart(), s.Name())
	if len(notes) > 0 {
		line += " [" + strings.Join(notes, ", ") + "]"
	}
	fmt.Fprintln(w, line)
}
