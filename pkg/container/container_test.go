package container

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/Faultbox/mesh3mf/internal/fixture"
)

func testArchive(t *testing.T) *Archive {
	t.Helper()
	data := fixture.Archive(
		fixture.File{Name: "[Content_Types].xml", Data: []byte("<Types/>")},
		fixture.File{Name: "3D/3dmodel.model", Data: []byte("<model/>")},
		fixture.File{Name: "_rels/.rels", Data: []byte("<Relationships/>")},
		fixture.File{Name: "Metadata/thumbnail.png", Data: []byte("PNG")},
	)
	archive, err := Open(data)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	return archive
}

func TestOpen(t *testing.T) {
	archive := testArchive(t)
	if n := len(archive.List()); n != 4 {
		t.Errorf("expected 4 entries, got %d", n)
	}
}

func TestOpenCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("this is not a zip archive at all")},
		{"truncated", fixture.Archive(fixture.File{Name: "a", Data: []byte("b")})[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.data)
			if !errors.Is(err, ErrCorruptArchive) {
				t.Errorf("expected ErrCorruptArchive, got %v", err)
			}
		})
	}
}

func TestListPreservesOrder(t *testing.T) {
	archive := testArchive(t)
	want := []string{"[Content_Types].xml", "3D/3dmodel.model", "_rels/.rels", "Metadata/thumbnail.png"}
	got := archive.List()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestContains(t *testing.T) {
	archive := testArchive(t)

	tests := []struct {
		path string
		want bool
	}{
		{"3D/3dmodel.model", true},
		{"/3D/3dmodel.model", true},
		{"3D\\3dmodel.model", true},
		{"3D/./3dmodel.model", true},
		{"3d/3dmodel.model", false}, // case-sensitive
		{"nonexistent/file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := archive.Contains(tt.path); got != tt.want {
				t.Errorf("Contains(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestRead(t *testing.T) {
	archive := testArchive(t)

	data, err := archive.Read("3D/3dmodel.model")
	if err != nil {
		t.Fatalf("failed to read entry: %v", err)
	}
	if string(data) != "<model/>" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestReadNotFound(t *testing.T) {
	archive := testArchive(t)

	_, err := archive.Read("3D/missing.model")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestReadStored(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.CreateHeader(&zip.FileHeader{Name: "3D/stored.model", Method: zip.Store})
	if err != nil {
		t.Fatalf("creating entry: %v", err)
	}
	fw.Write([]byte("stored content"))
	w.Close()

	archive, err := Open(buf.Bytes())
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	data, err := archive.Read("3D/stored.model")
	if err != nil {
		t.Fatalf("failed to read entry: %v", err)
	}
	if string(data) != "stored content" {
		t.Errorf("unexpected content: %q", data)
	}
	if e := archive.Entries()[0]; e.Method != zip.Store {
		t.Errorf("expected Store method, got %d", e.Method)
	}
}

func TestSkipsDirectories(t *testing.T) {
	data := fixture.Archive(
		fixture.File{Name: "3D/"},
		fixture.File{Name: "3D/3dmodel.model", Data: []byte("<model/>")},
	)
	archive, err := Open(data)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	if got := archive.List(); len(got) != 1 || got[0] != "3D/3dmodel.model" {
		t.Errorf("expected only the model entry, got %v", got)
	}
}

func TestMatch(t *testing.T) {
	archive := testArchive(t)

	got := archive.Match(func(p string) bool { return len(p) > 3 && p[:3] == "3D/" })
	if len(got) != 1 || got[0] != "3D/3dmodel.model" {
		t.Errorf("Match() = %v", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/3D/3dmodel.model", "3D/3dmodel.model"},
		{"3D\\Objects\\part.model", "3D/Objects/part.model"},
		{"3D//a/../b.model", "3D/b.model"},
		{"/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
