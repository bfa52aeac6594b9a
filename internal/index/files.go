package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// FileRow represents a row in the files table.
type FileRow struct {
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// UpsertFile records a vault file so that links can resolve to it.
func (db *DB) UpsertFile(f FileRow) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO files (path, lower_path, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size       = excluded.size,
			updated_at = excluded.updated_at
	`, f.Path, strings.ToLower(f.Path), f.Size, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}
	return nil
}

// DeleteFile forgets a vault file.
func (db *DB) DeleteFile(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return nil
}

// AllFiles returns every recorded file keyed by path.
func (db *DB) AllFiles() (map[string]FileRow, error) {
	rows, err := db.conn.Query(`SELECT path, size, updated_at FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all files: %w", err)
	}
	defer rows.Close()
	out := make(map[string]FileRow)
	for rows.Next() {
		var f FileRow
		if err := rows.Scan(&f.Path, &f.Size, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out[f.Path] = f
	}
	return out, rows.Err()
}

// ResolveLink maps a link path to an existing vault file. Matching is
// case-insensitive: an exact path wins, otherwise the shortest path ending
// in "/<linkpath>" is chosen. A link without extension also tries ".md".
func (db *DB) ResolveLink(ctx context.Context, linkpath string) (string, bool, error) {
	lp := normalizeLinkpath(linkpath)
	if lp == "" {
		return "", false, nil
	}
	candidates := []string{lp}
	if path.Ext(lp) == "" {
		candidates = append(candidates, lp+".md")
	}

	for _, c := range candidates {
		lower := strings.ToLower(c)
		var p string
		err := db.conn.QueryRowContext(ctx, `
			SELECT path FROM files
			WHERE lower_path = ? OR lower_path LIKE ? ESCAPE '\'
			ORDER BY (lower_path = ?) DESC, length(path), path
			LIMIT 1
		`, lower, "%/"+escapeLike(lower), lower).Scan(&p)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("index: resolve link: %w", err)
		}
		return p, true, nil
	}
	return "", false, nil
}

func normalizeLinkpath(linkpath string) string {
	lp := strings.TrimSpace(strings.ReplaceAll(linkpath, `\`, "/"))
	if lp == "" {
		return ""
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+lp), "/")
	if cleaned == "." {
		return ""
	}
	return cleaned
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
