package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/sidenote/internal/apperr"
	"github.com/starford/sidenote/internal/checksum"
	"github.com/starford/sidenote/internal/models"
)

// TempPrefix names the temporary files used by atomic writes. The leading
// dot keeps them out of trees, listings and the watcher.
const TempPrefix = ".sidenote-tmp-"

// DefaultExtensions are the file extensions treated as documents.
var DefaultExtensions = []string{".md", ".mdx"}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to workspace directory
	exts []string
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist. A nil exts uses DefaultExtensions.
func NewFS(root string, exts []string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, len(exts))
	for i, e := range exts {
		norm[i] = strings.ToLower(e)
	}
	return &FS{root: abs, exts: norm}, nil
}

// Root returns the absolute workspace root.
func (f *FS) Root() string { return f.root }

// IsDocument reports whether name has one of the configured extensions.
func (f *FS) IsDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range f.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsHidden reports whether a path segment should be skipped.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// safePath resolves a relative path against the workspace root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: %w: absolute paths not allowed: %s", apperr.ErrInvalid, rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: %w: path escapes workspace root: %s", apperr.ErrInvalid, rel)
	}
	return abs, nil
}

// Tree returns the documents under dir. Hidden entries are skipped,
// directories without documents are pruned, and each level is sorted with
// directories first, then by case-insensitive name.
func (f *FS) Tree(dir string) ([]*models.Node, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("storage: tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: tree: not a directory: %s", dir)
	}
	return f.buildTree(base)
}

func (f *FS) buildTree(dir string) ([]*models.Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read dir: %w", err)
	}
	var nodes []*models.Node
	for _, e := range entries {
		name := e.Name()
		if IsHidden(name) {
			continue
		}
		abs := filepath.Join(dir, name)
		rel, _ := filepath.Rel(f.root, abs)
		if e.IsDir() {
			children, err := f.buildTree(abs)
			if err != nil || len(children) == 0 {
				// Unreadable or document-free directories are left out.
				continue
			}
			nodes = append(nodes, &models.Node{Name: name, Path: filepath.ToSlash(rel), IsDirectory: true, Children: children})
			continue
		}
		if f.IsDocument(name) {
			nodes = append(nodes, &models.Node{Name: name, Path: filepath.ToSlash(rel)})
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsDirectory != nodes[j].IsDirectory {
			return nodes[i].IsDirectory
		}
		return strings.ToLower(nodes[i].Name) < strings.ToLower(nodes[j].Name)
	})
	return nodes, nil
}

// List walks dir (relative to root) and returns metadata for every document.
func (f *FS) List(dir string) ([]models.DocumentMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentMeta
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p != base && IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !f.IsDocument(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.DocumentMeta{
			Path:      filepath.ToSlash(rel),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// ReadText returns the content of a workspace file.
func (f *FS) ReadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := f.safePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteTextAtomic atomically writes text: tmp file → fsync → rename.
func (f *FS) WriteTextAtomic(ctx context.Context, path, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: cannot write to workspace root")
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	// Keep the permissions of the file being replaced.
	if info, statErr := os.Stat(abs); statErr == nil {
		_ = tmp.Chmod(info.Mode().Perm())
	} else {
		_ = tmp.Chmod(0o644)
	}

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
