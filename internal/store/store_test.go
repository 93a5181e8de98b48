package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"openair/internal/codec"
	"openair/internal/model"
)

var utc = &codec.Codec{Location: time.UTC}

func testRecords(t *testing.T) *Records {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "events.db")
	r, err := OpenRecords(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenRecords(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecords_CRUD(t *testing.T) {
	ctx := context.Background()
	r := testRecords(t)

	if _, err := r.Active(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Active on empty store: %v, want ErrNotFound", err)
	}

	b := StoredEvent{Name: "Beta", URI: "http://x/b", Path: "/p/b.zip", Version: 2}
	a := StoredEvent{Name: "Alpha", URI: "http://x/a", Path: "/p/a.zip", Version: 1, Active: true}
	for _, se := range []*StoredEvent{&b, &a} {
		if err := r.Insert(ctx, se); err != nil {
			t.Fatalf("Insert(%s): %v", se.Name, err)
		}
		if se.ID == 0 {
			t.Errorf("Insert(%s) did not set ID", se.Name)
		}
	}

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Alpha" || list[1].Name != "Beta" {
		t.Fatalf("List = %+v, want Alpha, Beta", list)
	}

	active, err := r.Active(ctx)
	if err != nil || active.ID != a.ID {
		t.Fatalf("Active = %+v, %v", active, err)
	}

	if err := r.SetActive(ctx, b.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if active, _ := r.Active(ctx); active.ID != b.ID {
		t.Errorf("Active after SetActive = %d, want %d", active.ID, b.ID)
	}
	if got, _ := r.Get(ctx, a.ID); got.Active {
		t.Errorf("previous active record still active")
	}

	b.Version = 3
	b.Active = true
	if err := r.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := r.FindByURI(ctx, "http://x/b"); got.Version != 3 {
		t.Errorf("FindByURI version = %d, want 3", got.Version)
	}

	if err := r.Update(ctx, StoredEvent{ID: 999, Name: "ghost", Path: "/"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: %v, want ErrNotFound", err)
	}
	n, err := r.DeleteAll(ctx)
	if err != nil || n != 1 {
		t.Errorf("DeleteAll = %d, %v", n, err)
	}
}

func TestSaveLoadEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg", "event.zip")
	e := model.Demo(time.UTC)
	if err := SaveEvent(path, e, utc); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	got, err := LoadEvent(path, utc)
	if err != nil {
		t.Fatalf("LoadEvent: %v", err)
	}
	if got.Name != e.Name || len(got.Locations()) != 3 {
		t.Errorf("loaded %q with %d locations", got.Name, len(got.Locations()))
	}
	if _, err := LoadEvent(filepath.Join(t.TempDir(), "missing.zip"), utc); err == nil {
		t.Errorf("LoadEvent of a missing file succeeded")
	}
}

func TestLibrary(t *testing.T) {
	ctx := context.Background()
	lib := NewLibrary(testRecords(t), t.TempDir(), utc)

	se, e, err := lib.EnsureActive(ctx, time.UTC)
	if err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	if !se.Active || se.Name != "Super Event" || e == nil {
		t.Fatalf("demo not installed: %+v", se)
	}
	if _, err := os.Stat(se.Path); err != nil {
		t.Fatalf("demo package missing: %v", err)
	}

	// installing again from the same uri updates the record in place
	newer := model.Demo(time.UTC)
	newer.Version = 2
	var buf bytes.Buffer
	if err := utc.EncodeZip(&buf, newer); err != nil {
		t.Fatalf("EncodeZip: %v", err)
	}
	got, installed, err := lib.InstallPackage(ctx, buf.Bytes(), false)
	if err != nil || !installed {
		t.Fatalf("InstallPackage v2 = %v, %v", installed, err)
	}
	if got.ID != se.ID || got.Version != 2 || !got.Active {
		t.Errorf("record after update = %+v", got)
	}

	_, installed, err = lib.InstallPackage(ctx, buf.Bytes(), false)
	if err != nil || installed {
		t.Errorf("re-installing the same version: installed=%v err=%v", installed, err)
	}

	if _, _, err := lib.InstallPackage(ctx, []byte("garbage"), false); err == nil {
		t.Errorf("InstallPackage accepted a non-zip payload")
	}

	list, _ := lib.Records.List(ctx)
	if len(list) != 1 {
		t.Errorf("len(List) = %d, want 1", len(list))
	}

	_, active, err := lib.Active(ctx)
	if err != nil || active.Version != 2 {
		t.Errorf("Active event version = %v, %v", active, err)
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event.zip")
	if err := SaveEvent(path, model.Demo(time.UTC), utc); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	// unrelated files are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := SaveEvent(path, model.Demo(time.UTC), utc); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-w.Changes:
		if got != filepath.Clean(path) {
			t.Errorf("change for %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported for a replaced package")
	}
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "event.zip"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("Start succeeded on a missing directory")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a failed Start")
	}
	if _, ok := <-w.Changes; ok {
		t.Errorf("Changes still open after Stop")
	}
}
