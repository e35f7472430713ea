package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLProvider reads catalogs from the catalog_entries table.
type SQLProvider struct {
	DB *sql.DB
}

func (p SQLProvider) Fetch(ctx context.Context, key Key) ([]Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	rows, err := p.DB.QueryContext(ctx, `
		SELECT CAST(id AS TEXT), value, concatenated
		FROM catalog_entries
		WHERE kind = ? AND name = ?
		ORDER BY position, id
	`, string(key.Kind), key.Name)
	if err != nil {
		return nil, fmt.Errorf("query catalog %s: %w", key, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Value, &e.Concatenated); err != nil {
			return nil, fmt.Errorf("scan catalog %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog %s: %w", key, err)
	}
	return entries, nil
}

// Replace swaps the stored entries of key for entries, in order, inside one
// transaction.
func Replace(ctx context.Context, db *sql.DB, key Key, entries []Entry) error {
	if err := key.Validate(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries WHERE kind = ? AND name = ?`, string(key.Kind), key.Name); err != nil {
		return fmt.Errorf("clear catalog %s: %w", key, err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_entries (kind, name, value, concatenated, position)
			VALUES (?, ?, ?, ?, ?)
		`, string(key.Kind), key.Name, e.Value, e.Concatenated, i); err != nil {
			return fmt.Errorf("insert catalog %s entry %q: %w", key, e.Value, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog %s: %w", key, err)
	}
	return nil
}
