package index

import (
	"log/slog"
	"strings"

	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed notes are parsed and upserted with their fields
//   - every file (attachments included) is recorded for link resolution
//   - notes and files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexNote(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	return syncFiles(db, store, logger)
}

// syncFiles reconciles the files table with the vault.
func syncFiles(db *DB, store storage.Provider, logger *slog.Logger) error {
	files, err := store.ListFiles("")
	if err != nil {
		return err
	}
	known, err := db.AllFiles()
	if err != nil {
		return err
	}

	for _, f := range files {
		if k, ok := known[f.Path]; ok && k.Size == f.Size && k.UpdatedAt.Equal(f.UpdatedAt) {
			delete(known, f.Path)
			continue
		}
		delete(known, f.Path)
		if err := db.UpsertFile(FileRow{Path: f.Path, Size: f.Size, UpdatedAt: f.UpdatedAt}); err != nil {
			logger.Warn("sync: record file failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		}
	}
	for p := range known {
		if err := db.DeleteFile(p); err != nil {
			logger.Warn("sync: forget file failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	return nil
}

// indexNote parses data and upserts the note, its fields and its file row.
func indexNote(db *DB, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	row := NoteRow{
		Path:     path,
		Title:    res.Title,
		Checksum: checksum.Sum(data),
		Tags:     res.Tags,
	}
	if row.Tags == nil {
		row.Tags = []string{}
	}
	if err := db.UpsertNote(row, res.Body, res.Links, res.Fields); err != nil {
		return err
	}
	return db.UpsertFile(FileRow{Path: path, Size: int64(len(data))})
}

func isNote(path string) bool {
	return strings.HasSuffix(path, ".md")
}
