package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Checksum    string    `json:"checksum"`
	Tags        []string  `json:"tags"`
	Annotations int       `json:"annotations"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AnnotationHit is one annotation search result.
type AnnotationHit struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	ID        string    `json:"id"`
	Selection string    `json:"selection"`
	Comment   string    `json:"comment"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"created_at"`
}

// UpsertDocument replaces a document row and its annotations within a
// transaction.
func (db *DB) UpsertDocument(d DocumentRow, list []annotation.Annotation) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.Exec(`
		INSERT INTO documents (path, title, checksum, tags, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			updated_at = excluded.updated_at
	`, d.Path, d.Title, d.Checksum, string(tagsJSON), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM annotations WHERE path = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear annotations: %w", err)
	}
	if len(list) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO annotations (path, id, position, selection, comment, range_start, range_end, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare annotation insert: %w", err)
		}
		defer stmt.Close()
		for i, a := range list {
			if _, err := stmt.Exec(d.Path, a.ID, i, a.Selection, a.Comment, a.Range.Start(), a.Range.End(), a.CreatedAt); err != nil {
				return fmt.Errorf("index: insert annotation: %w", err)
			}
		}
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, d.Path, list); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDocument removes a document and its annotations.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM annotations WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if
// not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ListDocuments returns indexed documents ordered by path, optionally
// restricted to those carrying tag.
func (db *DB) ListDocuments(tag string) ([]DocumentRow, error) {
	q := `
		SELECT d.path, d.title, d.checksum, d.tags, d.updated_at,
		       (SELECT count(*) FROM annotations a WHERE a.path = d.path)
		FROM documents d`
	var args []any
	if tag != "" {
		q += ` WHERE EXISTS (SELECT 1 FROM json_each(d.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}
	q += ` ORDER BY d.path`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var r DocumentRow
		var tagsJSON string
		if err := rows.Scan(&r.Path, &r.Title, &r.Checksum, &tagsJSON, &r.UpdatedAt, &r.Annotations); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &r.Tags)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Annotations returns the indexed annotations of path in document order.
func (db *DB) Annotations(path string) ([]annotation.Annotation, error) {
	var exists int
	err := db.conn.QueryRow(`SELECT count(*) FROM documents WHERE path = ?`, path).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("index: annotations: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}

	rows, err := db.conn.Query(`
		SELECT id, selection, comment, range_start, range_end, created_at
		FROM annotations WHERE path = ? ORDER BY position`, path)
	if err != nil {
		return nil, fmt.Errorf("index: annotations: %w", err)
	}
	defer rows.Close()

	out := []annotation.Annotation{}
	for rows.Next() {
		var a annotation.Annotation
		if err := rows.Scan(&a.ID, &a.Selection, &a.Comment, &a.Range[0], &a.Range[1], &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanHits(rows *sql.Rows) ([]AnnotationHit, error) {
	defer rows.Close()
	out := []AnnotationHit{}
	for rows.Next() {
		var h AnnotationHit
		if err := rows.Scan(&h.Path, &h.Title, &h.ID, &h.Selection, &h.Comment, &h.Snippet, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
