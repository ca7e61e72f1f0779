// Package epub reads and writes the EPUB zip container: it locates the OPF
// package document through META-INF/container.xml, exposes the spine in
// reading order, and rewrites named entries.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	containerPath = "META-INF/container.xml"
	mimetypePath  = "mimetype"
	mimetype      = "application/epub+zip"
)

// Item is a manifest entry. Path is relative to the container root.
type Item struct {
	ID        string
	Href      string
	MediaType string
	Path      string
}

// IsDocument reports whether the item is an (X)HTML content document.
func (i Item) IsDocument() bool {
	return i.MediaType == "application/xhtml+xml" || i.MediaType == "text/html"
}

type Book struct {
	OPFPath  string
	Manifest map[string]Item
	Spine    []Item

	names   []string
	entries map[string][]byte
}

type containerXML struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageXML struct {
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// Open reads the EPUB at filename.
func Open(filename string) (*Book, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read epub: %w", err)
	}
	return Read(data)
}

// Read parses an EPUB held in memory.
func Read(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	b := &Book{entries: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", f.Name, err)
		}
		b.names = append(b.names, f.Name)
		b.entries[f.Name] = content
	}

	if err := b.loadPackage(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Book) loadPackage() error {
	raw, ok := b.entries[containerPath]
	if !ok {
		return fmt.Errorf("missing %s", containerPath)
	}
	var c containerXML
	if err := xml.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", containerPath, err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return fmt.Errorf("no rootfile in %s", containerPath)
	}
	b.OPFPath = c.Rootfiles[0].FullPath

	opf, ok := b.entries[b.OPFPath]
	if !ok {
		return fmt.Errorf("missing package document %s", b.OPFPath)
	}
	var pkg packageXML
	if err := xml.Unmarshal(opf, &pkg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", b.OPFPath, err)
	}

	base := path.Dir(b.OPFPath)
	b.Manifest = make(map[string]Item, len(pkg.Manifest))
	for _, it := range pkg.Manifest {
		href := it.Href
		if unescaped, err := url.PathUnescape(href); err == nil {
			href = unescaped
		}
		b.Manifest[it.ID] = Item{
			ID:        it.ID,
			Href:      it.Href,
			MediaType: it.MediaType,
			Path:      strings.TrimPrefix(path.Join(base, href), "./"),
		}
	}

	b.Spine = b.Spine[:0]
	for _, ref := range pkg.Spine {
		it, ok := b.Manifest[ref.IDRef]
		if !ok {
			return fmt.Errorf("spine references unknown item %q", ref.IDRef)
		}
		b.Spine = append(b.Spine, it)
	}
	return nil
}

// Documents returns the spine items that are content documents, in
// reading order.
func (b *Book) Documents() []Item {
	var out []Item
	for _, it := range b.Spine {
		if it.IsDocument() {
			out = append(out, it)
		}
	}
	return out
}

// Entry returns the bytes of a named entry.
func (b *Book) Entry(name string) ([]byte, error) {
	data, ok := b.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry not found: %s", name)
	}
	return data, nil
}

// SetEntry replaces or adds a named entry.
func (b *Book) SetEntry(name string, data []byte) {
	if _, ok := b.entries[name]; !ok {
		b.names = append(b.names, name)
	}
	b.entries[name] = data
}

// Write serializes the container. The mimetype entry is written first and
// uncompressed, as the OCF format requires.
func (b *Book) Write(w io.Writer) error {
	zw := zip.NewWriter(w)

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: mimetypePath, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to write mimetype: %w", err)
	}
	content := []byte(mimetype)
	if existing, ok := b.entries[mimetypePath]; ok {
		content = existing
	}
	if _, err := mt.Write(content); err != nil {
		return fmt.Errorf("failed to write mimetype: %w", err)
	}

	for _, name := range b.names {
		if name == mimetypePath {
			continue
		}
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create entry %s: %w", name, err)
		}
		if _, err := fw.Write(b.entries[name]); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
	}

	return zw.Close()
}

// Save writes the container to filename, creating parent directories.
func (b *Book) Save(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(filename, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write epub: %w", err)
	}
	return nil
}
