// Package storage defines the workspace file-system abstraction.
package storage

import (
	"context"

	"github.com/starford/sidenote/internal/models"
)

// Provider is the interface for workspace file operations. Paths are
// relative to the workspace root.
type Provider interface {
	// Tree returns the markdown files under dir as a nested tree.
	Tree(dir string) ([]*models.Node, error)
	// List returns metadata for every markdown file under dir.
	List(dir string) ([]models.DocumentMeta, error)
	// ReadText returns the content of the file at path.
	ReadText(ctx context.Context, path string) (string, error)
	// WriteTextAtomic replaces the file at path with text.
	WriteTextAtomic(ctx context.Context, path, text string) error
}

var _ Provider = (*FS)(nil)
