// Package container provides read access to the ZIP package that carries a
// 3MF model: named-entry lookup and byte extraction over an in-memory archive.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/Faultbox/mesh3mf/pkg/encoding"
)

// MaxEntrySize caps the decompressed size of a single entry.
const MaxEntrySize = 1 << 30

// Container errors.
var (
	ErrCorruptArchive = errors.New("corrupt archive")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrEntryTooLarge  = errors.New("entry exceeds size limit")
)

// Archive represents an opened 3MF package. It is immutable once opened.
type Archive struct {
	entries []*Entry
	byName  map[string]*Entry
}

// Entry represents a file entry in the archive.
type Entry struct {
	Name             string
	CompressedSize   uint64
	UncompressedSize uint64
	Method           uint16
	file             *zip.File
}

// Open opens an in-memory ZIP archive.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	archive := &Archive{
		entries: make([]*Entry, 0, len(zr.File)),
		byName:  make(map[string]*Entry, len(zr.File)),
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizePath(encoding.EntryName(f.Name, f.NonUTF8))
		if name == "" {
			continue
		}
		if _, dup := archive.byName[name]; dup {
			// First occurrence wins, as with most ZIP readers.
			continue
		}

		entry := &Entry{
			Name:             name,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
			Method:           f.Method,
			file:             f,
		}
		archive.entries = append(archive.entries, entry)
		archive.byName[name] = entry
	}

	return archive, nil
}

// List returns all file paths in archive order.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		result = append(result, e.Name)
	}
	return result
}

// Entries returns entry metadata in archive order.
func (a *Archive) Entries() []Entry {
	result := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		result = append(result, *e)
	}
	return result
}

// Contains checks if a file exists. Paths are case-sensitive.
func (a *Archive) Contains(path string) bool {
	_, ok := a.byName[normalizePath(path)]
	return ok
}

// Match returns the paths accepted by keep, in archive order.
func (a *Archive) Match(keep func(path string) bool) []string {
	var result []string
	for _, e := range a.entries {
		if keep(e.Name) {
			result = append(result, e.Name)
		}
	}
	return result
}

// Read decompresses a file from the archive.
func (a *Archive) Read(path string) ([]byte, error) {
	entry, ok := a.byName[normalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	if entry.UncompressedSize > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, entry.Name, entry.UncompressedSize)
	}

	rc, err := entry.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrCorruptArchive, entry.Name, err)
	}
	defer rc.Close()

	// The declared size can lie; read one byte past it to notice.
	result, err := io.ReadAll(io.LimitReader(rc, int64(entry.UncompressedSize)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptArchive, entry.Name, err)
	}
	if uint64(len(result)) > entry.UncompressedSize {
		return nil, fmt.Errorf("%w: %s is larger than declared", ErrCorruptArchive, entry.Name)
	}
	return result, nil
}

// normalizePath converts backslashes, drops a leading slash and cleans dot
// segments. Case is preserved: package part names are case-sensitive.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}
