package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/checksum"
	"github.com/starford/sidenote/internal/parser"
	"github.com/starford/sidenote/internal/storage"
)

// Sync walks the workspace and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		text, err := store.ReadText(ctx, m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexText(db, m.Path, text, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile reads path from store and indexes it.
func IndexFile(ctx context.Context, db DocumentWriter, store storage.Provider, path string) error {
	text, err := store.ReadText(ctx, path)
	if err != nil {
		return err
	}
	return IndexText(db, path, text, time.Now())
}

// IndexText parses text and upserts it with its annotations.
func IndexText(db DocumentWriter, path, text string, updatedAt time.Time) error {
	res := parser.Parse(text)
	row := DocumentRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum([]byte(text)),
		Tags:      res.Tags,
		UpdatedAt: updatedAt,
	}
	return db.UpsertDocument(row, annotation.Decode(text))
}
