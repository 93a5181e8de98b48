package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"openair/internal/codec"
	"openair/internal/model"
)

// LoadEvent decodes the zip package at path.
func LoadEvent(path string, c *codec.Codec) (*model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open package: %w", err)
	}
	defer f.Close()

	e, err := c.DecodeZip(f)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", path, err)
	}
	return e, nil
}

// SaveEvent encodes e as a zip package and atomically replaces path.
func SaveEvent(path string, e *model.Event, c *codec.Codec) error {
	var buf bytes.Buffer
	if err := c.EncodeZip(&buf, e); err != nil {
		return err
	}
	return writeAtomic(path, buf.Bytes())
}

// PackageFileName derives a stable file name for a package from its source
// uri, falling back to the event name.
func PackageFileName(uri, name string) string {
	key := uri
	if key == "" {
		key = name
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8]) + ".zip"
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write package: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync package: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close package: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("store: replace package: %w", err)
	}
	return nil
}
