package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite stores estimates in the estimates table.
type SQLite struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db, Now: time.Now}
}

func (s *SQLite) Save(ctx context.Context, e Estimate) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	treeJSON, err := encodeTree(e.Tree)
	if err != nil {
		return "", err
	}
	resultJSON, err := encodeResult(e.Result)
	if err != nil {
		return "", err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO estimates (
			id, job_type, client_id, client_name, project_name, version_id,
			tree_json, result_json, markup_type, created_by, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_type = excluded.job_type,
			client_id = excluded.client_id,
			client_name = excluded.client_name,
			project_name = excluded.project_name,
			version_id = excluded.version_id,
			tree_json = excluded.tree_json,
			result_json = excluded.result_json,
			markup_type = excluded.markup_type,
			updated_at = excluded.updated_at
	`,
		e.ID, e.Tree.JobType, e.Tree.Client.ID, e.Tree.Client.Name, e.Tree.OrderAndPaper.ProjectName, e.Tree.VersionID,
		treeJSON, resultJSON, e.MarkupType, e.CreatedBy, e.CreatedAt.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("save estimate %s: %w", e.ID, err)
	}
	return e.ID, nil
}

func (s *SQLite) Load(ctx context.Context, id string) (Estimate, error) {
	var (
		e                    Estimate
		treeJSON, resultJSON string
		createdAt, updatedAt string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, tree_json, result_json, markup_type, created_by, created_at, updated_at
		FROM estimates
		WHERE id = ?
	`, id).Scan(&e.ID, &treeJSON, &resultJSON, &e.MarkupType, &e.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Estimate{}, ErrNotFound
	}
	if err != nil {
		return Estimate{}, fmt.Errorf("load estimate %s: %w", id, err)
	}

	if e.Tree, err = decodeTree(treeJSON); err != nil {
		return Estimate{}, err
	}
	if e.Result, err = decodeResult(resultJSON); err != nil {
		return Estimate{}, err
	}
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return e, nil
}

func (s *SQLite) List(ctx context.Context, q Query) ([]Summary, error) {
	search := "%" + q.Search + "%"
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, job_type, client_name, project_name, result_json, created_at
		FROM estimates
		WHERE (? = '' OR client_name LIKE ? OR project_name LIKE ?)
		  AND (? = '' OR client_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, q.Search, search, search, q.ClientID, q.ClientID, q.limit())
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var item Summary
		var resultJSON, createdAt string
		if err := rows.Scan(&item.ID, &item.JobType, &item.ClientName, &item.ProjectName, &resultJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		item.Total = extractTotal(resultJSON)
		item.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimates: %w", err)
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM estimates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete estimate %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
