package index

import (
	"fmt"

	"github.com/starford/sidenote/internal/models"
)

// LoadRecent returns the stored recent projects, most recently opened first.
func (db *DB) LoadRecent() ([]models.RecentProject, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, root_path, created_at, last_opened
		FROM recent_projects ORDER BY last_opened DESC`)
	if err != nil {
		return nil, fmt.Errorf("index: load recent: %w", err)
	}
	defer rows.Close()

	var out []models.RecentProject
	for rows.Next() {
		var p models.RecentProject
		if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &p.CreatedAt, &p.LastOpened); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveRecent replaces the stored recent projects with list.
func (db *DB) SaveRecent(list []models.RecentProject) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM recent_projects`); err != nil {
		return fmt.Errorf("index: clear recent: %w", err)
	}
	for _, p := range list {
		_, err := tx.Exec(`
			INSERT INTO recent_projects (id, name, root_path, created_at, last_opened)
			VALUES (?, ?, ?, ?, ?)`, p.ID, p.Name, p.RootPath, p.CreatedAt, p.LastOpened)
		if err != nil {
			return fmt.Errorf("index: insert recent: %w", err)
		}
	}
	return tx.Commit()
}
