// Package refresh downloads the configured sources and installs what changed
// into the package library, either on demand or on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"openair/internal/config"
	"openair/internal/fetch"
	"openair/internal/ics"
	appLog "openair/internal/log"
	"openair/internal/model"
	"openair/internal/store"
)

// Refresher keeps the library in step with the configured sources.
type Refresher struct {
	Fetcher  *fetch.Fetcher
	Library  *store.Library
	Sources  []config.Source
	Location *time.Location
	// OnActiveChange is called with the active event after a refresh
	// installed a new version of it.
	OnActiveChange func(*model.Event)
}

// Outcome summarizes one refresh.
type Outcome struct {
	Installed []store.StoredEvent
	// ActiveChanged is set when the active record was rewritten.
	ActiveChanged bool
	Errors        []error
}

// Once fetches every source and installs new versions. Per-source failures
// are collected in Outcome.Errors and do not stop the other sources.
func (r *Refresher) Once(ctx context.Context) Outcome {
	var out Outcome
	if len(r.Sources) == 0 {
		return out
	}

	bySource := make(map[string]config.Source, len(r.Sources))
	srcs := make([]fetch.Source, 0, len(r.Sources))
	for _, s := range r.Sources {
		bySource[s.ID] = s
		srcs = append(srcs, fetch.Source{ID: s.ID, URL: s.URL})
	}

	results, errs := r.Fetcher.FetchAll(ctx, srcs)
	out.Errors = append(out.Errors, errs...)

	for _, res := range results {
		src := bySource[res.Source.ID]
		se, installed, err := r.install(ctx, src, res)
		if err != nil {
			appLog.Error("refresh: install failed", err, "source", src.ID)
			out.Errors = append(out.Errors, fmt.Errorf("install %s: %w", src.ID, err))
			continue
		}
		if !installed {
			continue
		}
		out.Installed = append(out.Installed, se)
		if se.Active {
			out.ActiveChanged = true
		}
	}

	if out.ActiveChanged && r.OnActiveChange != nil {
		_, e, err := r.Library.Active(ctx)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("reload active event: %w", err))
		} else {
			r.OnActiveChange(e)
		}
	}
	appLog.Info("refresh completed", "sources", len(r.Sources), "installed", len(out.Installed), "errors", len(out.Errors))
	return out
}

func (r *Refresher) install(ctx context.Context, src config.Source, res fetch.Result) (store.StoredEvent, bool, error) {
	if src.Format != config.FormatICS {
		return r.Library.InstallPackage(ctx, res.Body, src.Activate)
	}

	// Calendars carry no version; an unchanged download is skipped once a
	// record for the feed exists.
	if res.FromCache {
		existing, err := r.Library.Records.FindByURI(ctx, src.URL)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.StoredEvent{}, false, err
		}
	}
	e, err := ics.Import(src.ID, res.Body, ics.ImportConfig{
		Name:     src.Name,
		URI:      src.URL,
		Location: r.Location,
	})
	if err != nil {
		return store.StoredEvent{}, false, err
	}
	se, err := r.Library.Install(ctx, e, src.Activate)
	return se, err == nil, err
}

// Run refreshes once, then on every tick of the cron spec until ctx is done.
func (r *Refresher) Run(ctx context.Context, spec string) error {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() { r.Once(ctx) }); err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", spec, err)
	}

	r.Once(ctx)
	c.Start()
	appLog.Info("refresh scheduled", "cron", spec)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
