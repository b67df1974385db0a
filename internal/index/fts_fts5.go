//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/sidenote/internal/annotation"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS annotations_fts USING fts5(
			path UNINDEXED,
			id UNINDEXED,
			selection,
			comment,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path string, list []annotation.Annotation) error {
	_, _ = tx.Exec(`DELETE FROM annotations_fts WHERE path = ?`, path)
	for _, a := range list {
		_, err := tx.Exec(`INSERT INTO annotations_fts (path, id, selection, comment) VALUES (?, ?, ?, ?)`,
			path, a.ID, a.Selection, a.Comment)
		if err != nil {
			return fmt.Errorf("index: upsert fts: %w", err)
		}
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM annotations_fts WHERE path = ?`, path)
}

// SearchAnnotations performs an FTS5 search over annotation comments and
// selections and returns matches ranked by relevance with snippets.
func (db *DB) SearchAnnotations(query string, limit int) ([]AnnotationHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.path,
		       d.title,
		       f.id,
		       a.selection,
		       a.comment,
		       snippet(annotations_fts, 3, '<b>', '</b>', '...', 32),
		       a.created_at
		FROM annotations_fts f
		JOIN annotations a ON a.path = f.path AND a.id = f.id
		JOIN documents d ON d.path = f.path
		WHERE annotations_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}
