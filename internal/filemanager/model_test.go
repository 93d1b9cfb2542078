package filemanager

import (
	"os"
	"path/filepath"
	"testing"
)

func TestToEntriesSortsDirsFirstThenName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "zdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	entries := toEntries(des)

	if entries[0].Name != ".." {
		t.Fatalf("expected first entry to be .., got %q", entries[0].Name)
	}
	if !entries[1].IsDir || entries[1].Name != "zdir" {
		t.Fatalf("expected zdir to sort before files, got %+v", entries[1])
	}
	if entries[2].Name != "a.txt" || entries[3].Name != "b.txt" {
		t.Fatalf("expected files sorted by name, got %+v", entries[2:4])
	}
}

func TestSelectedPathDotDotGoesToParent(t *testing.T) {
	m := Model{Cwd: "/a/b/c", Entries: []Entry{{Name: "..", IsDir: true}}, Cursor: 0}
	if got := selectedPath(m); got != "/a/b" {
		t.Fatalf("expected /a/b, got %q", got)
	}
}

func TestSelectedPathJoinsChildEntry(t *testing.T) {
	m := Model{Cwd: "/a/b", Entries: []Entry{{Name: "..", IsDir: true}, {Name: "sub", IsDir: true}}, Cursor: 1}
	if got := selectedPath(m); got != filepath.Join("/a/b", "sub") {
		t.Fatalf("expected /a/b/sub, got %q", got)
	}
}

func TestSelectedPathOutOfRangeFallsBackToCwd(t *testing.T) {
	m := Model{Cwd: "/a/b", Entries: nil, Cursor: 3}
	if got := selectedPath(m); got != "/a/b" {
		t.Fatalf("expected fallback to cwd, got %q", got)
	}
}

func TestNoWidgetsDefaults(t *testing.T) {
	var w noWidgets
	if w.Confirm("delete everything?") {
		t.Fatal("expected noWidgets.Confirm to default to false")
	}
	if err := w.OpenImagePreview("x.png"); err != errUnsupportedPreview {
		t.Fatalf("expected errUnsupportedPreview, got %v", err)
	}
}
