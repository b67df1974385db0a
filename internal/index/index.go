package index

import (
	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/models"
)

// DocumentWriter stores a parsed document with its annotations.
type DocumentWriter interface {
	UpsertDocument(d DocumentRow, list []annotation.Annotation) error
}

// AnnotationIndex defines the interface for workspace indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type AnnotationIndex interface {
	DocumentWriter
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	ListDocuments(tag string) ([]DocumentRow, error)
	Annotations(path string) ([]annotation.Annotation, error)
	SearchAnnotations(query string, limit int) ([]AnnotationHit, error)
	LoadRecent() ([]models.RecentProject, error)
	SaveRecent(list []models.RecentProject) error
	Close() error
}

// Verify *DB satisfies AnnotationIndex at compile time.
var _ AnnotationIndex = (*DB)(nil)
