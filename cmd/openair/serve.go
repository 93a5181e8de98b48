package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"openair/internal/capture"
	"openair/internal/display"
	"openair/internal/fetch"
	appLog "openair/internal/log"
	"openair/internal/model"
	"openair/internal/refresh"
	"openair/internal/signage"
	"openair/internal/store"
	"openair/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI, the signage loop and the package refresher",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address; overrides config")
	serveCmd.Flags().Bool("no-refresh", false, "do not download configured sources")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("no_refresh", serveCmd.Flags().Lookup("no-refresh"))
	rootCmd.AddCommand(serveCmd)
}

// daemon routes a newly active event to every consumer.
type daemon struct {
	lib  *store.Library
	loop *signage.Loop
	srv  *web.Server
	// retarget carries the package path the watcher should follow next.
	retarget chan string
}

func runServe(cmd *cobra.Command, _ []string) error {
	if v := viper.GetString("listen"); v != "" {
		cfg.Listen = v
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("openair starting", "version", version, "listen", cfg.Listen, "data_dir", cfg.DataDir)

	lib, closeLib, err := openLibrary(ctx)
	if err != nil {
		return err
	}
	defer closeLib()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	active, e, err := lib.EnsureActive(ctx, loc)
	if err != nil {
		return err
	}
	appLog.Info("active event", "id", active.ID, "name", active.Name, "version", active.Version)

	clock := model.ShiftedClock(cfg.TimeShift)
	params := display.OverviewParams{
		Locations:    cfg.Overview.Locations,
		MaxSessions:  cfg.Overview.MaxSessions,
		NoticePeriod: cfg.NoticePeriod(),
	}

	d := &daemon{lib: lib, retarget: make(chan string, 1)}
	d.loop = signage.NewLoop(e, clock, params, renderFunc())
	d.srv = web.NewServer(cfg, e,
		web.WithClock(clock),
		web.WithLibrary(lib),
		web.OnActivate(d.activated),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.srv.ListenAndServe(gctx) })
	g.Go(func() error { return d.loop.Run(gctx) })
	g.Go(func() error { return d.watch(gctx, active.Path) })
	if !viper.GetBool("no_refresh") && len(cfg.Sources) > 0 {
		r := &refresh.Refresher{
			Fetcher:        fetch.NewFetcher(cfg.CacheDir(), nil),
			Library:        lib,
			Sources:        cfg.Sources,
			Location:       loc,
			OnActiveChange: d.apply,
		}
		g.Go(func() error { return r.Run(gctx, cfg.RefreshCron) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	appLog.Info("openair exiting")
	return err
}

// renderFunc picks the signage render hook: a headless screenshot of the
// overview page when capture is enabled, a log line otherwise.
func renderFunc() signage.RenderFunc {
	if !cfg.Capture.Enabled {
		return func(_ context.Context, snap *display.OverviewSnapshot) error {
			appLog.Debug("overview projected", "items", len(snap.Items), "next_change", snap.NextChange)
			return nil
		}
	}
	r := &capture.Renderer{Options: capture.CaptureOptions{
		URL:        cfg.CaptureURL(),
		OutputPath: cfg.CaptureOutput(),
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
	}}
	return r.Render
}

// apply hands e to the web server and the signage loop.
func (d *daemon) apply(e *model.Event) {
	d.srv.SetEvent(e)
	d.loop.SetEvent(e)
	appLog.Info("serving event", "name", e.Name, "version", e.Version)
}

// activated runs after the web API switched the active event. The server
// already serves e; the loop and the watcher follow.
func (d *daemon) activated(e *model.Event) {
	d.loop.SetEvent(e)
	se, err := d.lib.Records.Active(context.Background())
	if err != nil {
		appLog.Error("lookup active record", err)
		return
	}
	// only the latest path matters; drop one nobody picked up yet
	select {
	case <-d.retarget:
	default:
	}
	select {
	case d.retarget <- se.Path:
	default:
	}
}

// watch reloads the active package whenever its file is replaced, following
// the active path across activations.
func (d *daemon) watch(ctx context.Context, path string) error {
	for {
		w, err := store.NewWatcher(path)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			w.Stop()
			return err
		}
		appLog.Debug("watching package", "path", path)

		next, err := d.follow(ctx, w)
		w.Stop()
		if err != nil {
			return err
		}
		path = next
	}
}

func (d *daemon) follow(ctx context.Context, w *store.Watcher) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case p := <-d.retarget:
			return p, nil
		case p, ok := <-w.Changes:
			if !ok {
				return "", errors.New("package watcher closed")
			}
			e, err := store.LoadEvent(p, d.lib.Codec)
			if err != nil {
				appLog.Warn("changed package is unreadable, keeping current event", "path", p, "err", err)
				continue
			}
			d.apply(e)
		}
	}
}
