//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/sidenote/internal/annotation"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the annotations table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ string, _ []annotation.Annotation) error {
	// Annotations are already stored in their own table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchAnnotations matches query against annotation comments and
// selections with LIKE (fallback when FTS5 is not compiled in). The newest
// annotations come first.
func (db *DB) SearchAnnotations(query string, limit int) ([]AnnotationHit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT a.path, d.title, a.id, a.selection, a.comment, substr(a.comment, 1, 200), a.created_at
		FROM annotations a JOIN documents d ON d.path = a.path
		WHERE a.comment LIKE ? OR a.selection LIKE ?
		ORDER BY a.created_at DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}
