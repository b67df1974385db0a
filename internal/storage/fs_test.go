package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempWorkspace(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, nil)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func write(t *testing.T, s *FS, path, text string) {
	t.Helper()
	if err := s.WriteTextAtomic(context.Background(), path, text); err != nil {
		t.Fatalf("WriteTextAtomic(%s): %v", path, err)
	}
}

func TestWriteAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := "# Hello\nWorld\n"
	write(t, s, "note.md", content)
	got, err := s.ReadText(context.Background(), "note.md")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != content {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissingWrapsNotExist(t *testing.T) {
	s := tempWorkspace(t)
	_, err := s.ReadText(context.Background(), "missing.md")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempWorkspace(t)
	write(t, s, "a/b/c.md", "deep")
	got, err := s.ReadText(context.Background(), "a/b/c.md")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWritePreservesMode(t *testing.T) {
	s := tempWorkspace(t)
	abs := filepath.Join(s.Root(), "ro.md")
	if err := os.WriteFile(abs, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	write(t, s, "ro.md", "y")
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestCancelledContext(t *testing.T) {
	s := tempWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WriteTextAtomic(ctx, "x.md", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("write err = %v", err)
	}
	if _, err := s.ReadText(ctx, "x.md"); !errors.Is(err, context.Canceled) {
		t.Errorf("read err = %v", err)
	}
}

func TestList(t *testing.T) {
	s := tempWorkspace(t)
	write(t, s, "a.md", "a")
	write(t, s, "sub/b.mdx", "b")
	write(t, s, "readme.txt", "not md")
	write(t, s, ".hidden/c.md", "hidden")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	for _, it := range items {
		if it.Checksum == "" {
			t.Errorf("missing checksum for %s", it.Path)
		}
	}
}

func TestTree_OrderingAndPruning(t *testing.T) {
	s := tempWorkspace(t)
	write(t, s, "b.md", "b")
	write(t, s, "A.md", "a")
	write(t, s, "zeta/inner.md", "z")
	write(t, s, "Alpha/deep/x.MD", "x")
	write(t, s, "empty/notes.txt", "nope")
	write(t, s, ".git/HEAD.md", "hidden")

	nodes, err := s.Tree("")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	want := []string{"Alpha", "zeta", "A.md", "b.md"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	alpha := nodes[0]
	if !alpha.IsDirectory || len(alpha.Children) != 1 || alpha.Children[0].Children[0].Path != "Alpha/deep/x.MD" {
		t.Errorf("unexpected Alpha subtree: %+v", alpha)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempWorkspace(t)
	ctx := context.Background()

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.ReadText(ctx, p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.WriteTextAtomic(ctx, p, "x"); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempWorkspace(t)
	write(t, s, "atomic.md", "original content")
	write(t, s, "atomic.md", "updated content")

	got, _ := s.ReadText(context.Background(), "atomic.md")
	if got != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, TempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "sidenote-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name(), nil)
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestIsDocument_CustomExtensions(t *testing.T) {
	s, err := NewFS(t.TempDir(), []string{".TXT"})
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsDocument("a.txt") || s.IsDocument("a.md") {
		t.Error("custom extensions not honoured")
	}
}
