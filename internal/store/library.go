package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"openair/internal/codec"
	appLog "openair/internal/log"
	"openair/internal/model"
)

// Library ties the record store to the package directory.
type Library struct {
	Records *Records
	// Dir is where packages are written.
	Dir   string
	Codec *codec.Codec
}

// NewLibrary returns a library writing packages into dir.
func NewLibrary(records *Records, dir string, c *codec.Codec) *Library {
	return &Library{Records: records, Dir: dir, Codec: c}
}

// Install writes e as a package and records it. A record with the same
// source uri is updated in place; otherwise a new one is inserted.
func (l *Library) Install(ctx context.Context, e *model.Event, activate bool) (StoredEvent, error) {
	var buf bytes.Buffer
	if err := l.Codec.EncodeZip(&buf, e); err != nil {
		return StoredEvent{}, err
	}
	return l.record(ctx, e, buf.Bytes(), activate)
}

// InstallPackage validates a downloaded zip package and installs it unless
// the library already holds the same or a newer version from that uri. The
// bytes are stored as received.
func (l *Library) InstallPackage(ctx context.Context, data []byte, activate bool) (StoredEvent, bool, error) {
	e, err := l.Codec.DecodeZip(bytes.NewReader(data))
	if err != nil {
		return StoredEvent{}, false, err
	}
	if e.URI != "" && e.Version != 0 {
		existing, err := l.Records.FindByURI(ctx, e.URI)
		switch {
		case err == nil && existing.Version >= e.Version:
			appLog.Debug("store: package up to date", "uri", e.URI, "version", e.Version)
			return existing, false, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return StoredEvent{}, false, err
		}
	}
	se, err := l.record(ctx, e, data, activate)
	return se, err == nil, err
}

func (l *Library) record(ctx context.Context, e *model.Event, data []byte, activate bool) (StoredEvent, error) {
	path := filepath.Join(l.Dir, PackageFileName(e.URI, e.Name))
	if err := writeAtomic(path, data); err != nil {
		return StoredEvent{}, err
	}

	se := StoredEvent{Name: e.Name, URI: e.URI, Path: path, Version: e.Version, Active: activate}
	var existing StoredEvent
	var err error
	if e.URI != "" {
		existing, err = l.Records.FindByURI(ctx, e.URI)
	} else {
		err = ErrNotFound
	}
	switch {
	case err == nil:
		se.ID = existing.ID
		se.Active = activate || existing.Active
		err = l.Records.Update(ctx, se)
	case errors.Is(err, ErrNotFound):
		err = l.Records.Insert(ctx, &se)
	}
	if err != nil {
		return StoredEvent{}, err
	}
	appLog.Info("store: installed event package", "name", se.Name, "version", se.Version, "path", se.Path, "active", se.Active)
	return se, nil
}

// Active returns the active record and its decoded event.
func (l *Library) Active(ctx context.Context) (StoredEvent, *model.Event, error) {
	se, err := l.Records.Active(ctx)
	if err != nil {
		return StoredEvent{}, nil, err
	}
	e, err := LoadEvent(se.Path, l.Codec)
	if err != nil {
		return se, nil, err
	}
	return se, e, nil
}

// EnsureActive returns the active event, installing the demo event as the
// active one when no record is active yet.
func (l *Library) EnsureActive(ctx context.Context, loc *time.Location) (StoredEvent, *model.Event, error) {
	se, e, err := l.Active(ctx)
	if !errors.Is(err, ErrNotFound) {
		return se, e, err
	}
	appLog.Info("store: no active event, installing demo event")
	demo := model.Demo(loc)
	if se, err = l.Install(ctx, demo, true); err != nil {
		return StoredEvent{}, nil, fmt.Errorf("store: install demo: %w", err)
	}
	return se, demo, nil
}
