package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/forge-health/forge-core/pkg/dsar"
	"github.com/forge-health/forge-core/pkg/fault"
)

const dsarColumns = `id, request_type, jurisdiction, frameworks, subject_name, subject_email,
	status, deadline, assigned_to, notes, created_at, updated_at, completed_at`

// SaveDSAR upserts a request by id.
func (r *Repository) SaveDSAR(ctx context.Context, req *dsar.Request) error {
	query := r.q(`INSERT INTO dsars (` + dsarColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			deadline = excluded.deadline,
			assigned_to = excluded.assigned_to,
			notes = excluded.notes,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`)
	_, err := r.db.ExecContext(ctx, query,
		req.ID, string(req.Type), req.Jurisdiction, encJSON(req.Frameworks),
		req.SubjectName, req.SubjectEmail, string(req.Status), encTime(req.Deadline),
		req.AssignedTo, encJSON(req.Notes), encTime(req.CreatedAt), encTime(req.UpdatedAt),
		encTimePtr(req.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save dsar %s: %w", req.ID, err)
	}
	return nil
}

// GetDSAR loads one request.
func (r *Repository) GetDSAR(ctx context.Context, id string) (*dsar.Request, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+dsarColumns+` FROM dsars WHERE id = ?`), id)
	req, err := scanDSAR(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFoundf("dsar %s", id)
	}
	return req, err
}

// ListDSARs returns all requests, oldest first.
func (r *Repository) ListDSARs(ctx context.Context) ([]*dsar.Request, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT `+dsarColumns+` FROM dsars ORDER BY created_at`))
	if err != nil {
		return nil, fmt.Errorf("list dsars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*dsar.Request
	for rows.Next() {
		req, err := scanDSAR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDSAR(row rowScanner) (*dsar.Request, error) {
	var (
		req                            dsar.Request
		reqType, status                string
		frameworks, assignedTo, notes  sql.NullString
		deadline, createdAt, updatedAt string
		completedAt                    sql.NullString
	)
	err := row.Scan(&req.ID, &reqType, &req.Jurisdiction, &frameworks, &req.SubjectName,
		&req.SubjectEmail, &status, &deadline, &assignedTo, &notes, &createdAt, &updatedAt,
		&completedAt)
	if err != nil {
		return nil, err
	}
	req.Type = dsar.RequestType(reqType)
	req.Status = dsar.Status(status)
	req.AssignedTo = assignedTo.String
	if err := decJSON(frameworks, &req.Frameworks); err != nil {
		return nil, err
	}
	if err := decJSON(notes, &req.Notes); err != nil {
		return nil, err
	}
	if req.Deadline, err = decTime(deadline); err != nil {
		return nil, err
	}
	if req.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	if req.UpdatedAt, err = decTime(updatedAt); err != nil {
		return nil, err
	}
	if req.CompletedAt, err = decTimePtr(completedAt); err != nil {
		return nil, err
	}
	return &req, nil
}
