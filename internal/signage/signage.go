// Package signage drives an unattended overview display. It re-projects
// the overview whenever the displayed content can change and hands each
// snapshot to a render hook.
package signage

import (
	"context"
	"sync"
	"time"

	"openair/internal/display"
	appLog "openair/internal/log"
	"openair/internal/model"
)

const (
	// DefaultFallback is the longest sleep between two renders.
	DefaultFallback = 15 * time.Minute
	// minWake keeps a burst of equal change instants from spinning.
	minWake = time.Second
)

// RenderFunc receives every fresh snapshot.
type RenderFunc func(ctx context.Context, snap *display.OverviewSnapshot) error

// Loop re-renders the overview at the snapshot's next-change instant.
type Loop struct {
	Clock  model.Clock
	Params display.OverviewParams
	// Fallback bounds the sleep when nothing changes sooner.
	Fallback time.Duration
	Render   RenderFunc

	mu       sync.RWMutex
	overview *display.Overview
	last     *display.OverviewSnapshot
	wake     chan struct{}
}

// NewLoop creates a loop projecting e. A nil clock uses the wall clock.
func NewLoop(e *model.Event, clock model.Clock, params display.OverviewParams, render RenderFunc) *Loop {
	if clock == nil {
		clock = time.Now
	}
	return &Loop{
		Clock:    clock,
		Params:   params,
		Fallback: DefaultFallback,
		Render:   render,
		overview: display.NewOverview(e),
		wake:     make(chan struct{}, 1),
	}
}

// SetEvent replaces the projected event and triggers an immediate render.
func (l *Loop) SetEvent(e *model.Event) {
	ov := display.NewOverview(e)
	l.mu.Lock()
	l.overview = ov
	l.mu.Unlock()
	l.Poke()
}

// Poke wakes the loop for an immediate render.
func (l *Loop) Poke() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Snapshot projects the overview at the loop's clock.
func (l *Loop) Snapshot() (*display.OverviewSnapshot, error) {
	l.mu.RLock()
	ov := l.overview
	l.mu.RUnlock()
	return ov.Project(l.Clock(), l.Params)
}

// Last returns the most recently rendered snapshot, or nil.
func (l *Loop) Last() *display.OverviewSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Run renders until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	fallback := l.Fallback
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	appLog.Info("signage loop started", "fallback", fallback.String())

	for {
		wait := fallback
		snap, err := l.Snapshot()
		if err != nil {
			appLog.Error("signage: projection failed", err)
		} else {
			l.mu.Lock()
			l.last = snap
			l.mu.Unlock()
			if l.Render != nil {
				if err := l.Render(ctx, snap); err != nil {
					appLog.Error("signage: render failed", err)
				}
			}
			wait = NextWake(snap, fallback)
			appLog.Debug("signage: rendered", "items", len(snap.Items), "next_wake", wait.String())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			appLog.Info("signage loop stopped")
			return ctx.Err()
		case <-l.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// NextWake returns how long to sleep after rendering snap: until its next
// change instant, at least minWake and at most fallback.
func NextWake(snap *display.OverviewSnapshot, fallback time.Duration) time.Duration {
	if snap == nil || snap.NextChange == nil {
		return fallback
	}
	d := snap.NextChange.Sub(snap.Time)
	switch {
	case d < minWake:
		return minWake
	case d > fallback:
		return fallback
	}
	return d
}
