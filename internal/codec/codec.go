// Package codec reads and writes event packages: a single XML document
// (root element "event" with "program", "metadata" and "announcements"
// sections) optionally wrapped as the entry "event.xml" of a zip archive.
//
// Metadata is not inlined in the program. Locations and sessions carrying
// metadata get a synthetic id (st<n>, sh<n>) from one counter shared by
// both kinds, and the records live in the metadata section. The two
// sessions of a version chain share one id; the old one is flagged with
// oldVersion="true".
package codec

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	appLog "openair/internal/log"
	"openair/internal/model"
)

// Namespace is the XML namespace of the root element.
const Namespace = "http://michal.linhard.sk/openair/event"

// EntryName is the name of the document inside a zip package.
const EntryName = "event.xml"

var (
	// ErrMissingAttr is wrapped by DecodeError when a required attribute is absent.
	ErrMissingAttr = errors.New("missing required attribute")
	// ErrBadValue is wrapped by DecodeError when an attribute cannot be parsed.
	ErrBadValue = errors.New("malformed attribute value")
	// ErrVersionPair is wrapped by DecodeError when session ids do not form valid old/new pairs.
	ErrVersionPair = errors.New("invalid version pair")
	// ErrMissingEntry is returned by DecodeZip when the archive has no event.xml entry.
	ErrMissingEntry = errors.New("codec: zip archive has no " + EntryName + " entry")
	// ErrRootElement is returned when the document root is not an event element.
	ErrRootElement = errors.New("codec: root element is not event")
)

// DecodeError reports where a document was rejected. No partial event is
// returned alongside it.
type DecodeError struct {
	// Element is the path of the offending element, e.g. "location[2]/day[1]/session[3]".
	Element string
	// Attr is the offending attribute, or "" when the element as a whole was rejected.
	Attr string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Attr == "" {
		return fmt.Sprintf("codec: %s: %v", e.Element, e.Err)
	}
	return fmt.Sprintf("codec: %s attribute %q: %v", e.Element, e.Attr, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Codec encodes and decodes events. Location is the time zone wall-clock
// attributes are read in and written for; nil means time.Local.
type Codec struct {
	Location *time.Location
}

var std = &Codec{}

// Encode writes e as an XML document using time.Local.
func Encode(w io.Writer, e *model.Event) error { return std.Encode(w, e) }

// Decode reads an XML document using time.Local.
func Decode(r io.Reader) (*model.Event, error) { return std.Decode(r) }

// EncodeZip writes e as a zip package using time.Local.
func EncodeZip(w io.Writer, e *model.Event) error { return std.EncodeZip(w, e) }

// DecodeZip reads a zip package using time.Local.
func DecodeZip(r io.Reader) (*model.Event, error) { return std.DecodeZip(r) }

func (c *Codec) loc() *time.Location {
	if c == nil || c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Encode writes e as an indented UTF-8 XML document.
func (c *Codec) Encode(w io.Writer, e *model.Event) error {
	doc := c.toDocument(e)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("codec: write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Decode parses an XML document into a new event. Any error aborts the
// whole decode.
func (c *Codec) Decode(r io.Reader) (*model.Event, error) {
	var doc xmlEvent
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("codec: parse xml: %w", err)
	}
	if doc.XMLName.Local != "event" {
		return nil, ErrRootElement
	}
	e, err := c.fromDocument(&doc)
	if err != nil {
		return nil, err
	}
	appLog.Debug("codec: decoded event", "name", e.Name, "version", e.Version, "locations", len(e.Locations()))
	return e, nil
}

// EncodeZip writes a zip archive whose only entry is the XML document.
func (c *Codec) EncodeZip(w io.Writer, e *model.Event) error {
	zw := zip.NewWriter(w)
	fw, err := zw.Create(EntryName)
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("codec: create zip entry: %w", err)
	}
	if err := c.Encode(fw, e); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("codec: close zip: %w", err)
	}
	return nil
}

// DecodeZip reads a zip archive and decodes its first entry named
// event.xml. Entries before it are skipped.
func (c *Codec) DecodeZip(r io.Reader) (*model.Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: read package: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("codec: open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != EntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("codec: open %s: %w", EntryName, err)
		}
		defer rc.Close()
		return c.Decode(rc)
	}
	return nil, ErrMissingEntry
}
