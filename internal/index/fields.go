package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func replaceFields(tx *sql.Tx, path string, fields map[string]string) error {
	if _, err := tx.Exec(`DELETE FROM fields WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear fields: %w", err)
	}
	if len(fields) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO fields (path, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare field insert: %w", err)
	}
	defer stmt.Close()
	for k, v := range fields {
		if _, err := stmt.Exec(path, strings.ToLower(k), v); err != nil {
			return fmt.Errorf("index: insert field: %w", err)
		}
	}
	return nil
}

// LookupField returns the value of field on the note at notePath. Keys are
// matched case-insensitively. ok is false when the note has no such field.
func (db *DB) LookupField(ctx context.Context, notePath, field string) (string, bool, error) {
	var v string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM fields WHERE path = ? AND key = ?`,
		notePath, strings.ToLower(strings.TrimSpace(field)),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("index: lookup field: %w", err)
	}
	return v, true, nil
}

// Fields returns every field stored for a note.
func (db *DB) Fields(ctx context.Context, notePath string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM fields WHERE path = ?`, notePath)
	if err != nil {
		return nil, fmt.Errorf("index: fields: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
