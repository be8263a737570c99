package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/forge-health/forge-core/pkg/breach"
	"github.com/forge-health/forge-core/pkg/fault"
)

const breachColumns = `id, type, description, severity, status, discovered_at, occurred_at,
	data_categories, data_elements, jurisdictions, record_count, encrypted, likely_harm,
	dpa_required, individual_required, dpa_deadline, individual_deadline,
	contained_at, remediated_at, closed_at, remediation, created_at, updated_at`

// SaveBreach upserts an incident by id.
func (r *Repository) SaveBreach(ctx context.Context, inc *breach.Incident) error {
	query := r.q(`INSERT INTO breaches (` + breachColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			severity = excluded.severity,
			status = excluded.status,
			contained_at = excluded.contained_at,
			remediated_at = excluded.remediated_at,
			closed_at = excluded.closed_at,
			remediation = excluded.remediation,
			updated_at = excluded.updated_at`)
	_, err := r.db.ExecContext(ctx, query,
		inc.ID, inc.Type, inc.Description, int(inc.Severity), string(inc.Status),
		encTime(inc.DiscoveredAt), encTimePtr(inc.OccurredAt),
		encJSON(inc.Categories), encJSON(inc.Elements), encJSON(inc.Jurisdictions),
		inc.RecordCount, boolToInt(inc.Encrypted), boolToInt(inc.LikelyHarm),
		boolToInt(inc.DPARequired), boolToInt(inc.IndividualRequired),
		encTimePtr(inc.DPADeadline), encTimePtr(inc.IndividualDeadline),
		encTimePtr(inc.ContainedAt), encTimePtr(inc.RemediatedAt), encTimePtr(inc.ClosedAt),
		encJSON(inc.Remediation), encTime(inc.CreatedAt), encTime(inc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save breach %s: %w", inc.ID, err)
	}
	return nil
}

// GetBreach loads one incident.
func (r *Repository) GetBreach(ctx context.Context, id string) (*breach.Incident, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+breachColumns+` FROM breaches WHERE id = ?`), id)
	inc, err := scanBreach(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFoundf("breach %s", id)
	}
	return inc, err
}

// ListBreaches returns all incidents, oldest first.
func (r *Repository) ListBreaches(ctx context.Context) ([]*breach.Incident, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT `+breachColumns+` FROM breaches ORDER BY created_at`))
	if err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*breach.Incident
	for rows.Next() {
		inc, err := scanBreach(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func scanBreach(row rowScanner) (*breach.Incident, error) {
	var (
		inc                                               breach.Incident
		severity                                          int
		status                                            string
		discoveredAt, createdAt, updatedAt                string
		occurredAt, dpaDeadline, individualDeadline       sql.NullString
		containedAt, remediatedAt, closedAt               sql.NullString
		categories, elements, jurisdictions, remediation  sql.NullString
		description                                       sql.NullString
		encrypted, likelyHarm, dpaRequired, indivRequired int
	)
	err := row.Scan(&inc.ID, &inc.Type, &description, &severity, &status,
		&discoveredAt, &occurredAt, &categories, &elements, &jurisdictions,
		&inc.RecordCount, &encrypted, &likelyHarm, &dpaRequired, &indivRequired,
		&dpaDeadline, &individualDeadline, &containedAt, &remediatedAt, &closedAt,
		&remediation, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	inc.Description = description.String
	inc.Severity = breach.Severity(severity)
	inc.Status = breach.Status(status)
	inc.Encrypted = encrypted != 0
	inc.LikelyHarm = likelyHarm != 0
	inc.DPARequired = dpaRequired != 0
	inc.IndividualRequired = indivRequired != 0

	for _, decode := range []struct {
		src sql.NullString
		dst any
	}{
		{categories, &inc.Categories},
		{elements, &inc.Elements},
		{jurisdictions, &inc.Jurisdictions},
		{remediation, &inc.Remediation},
	} {
		if err := decJSON(decode.src, decode.dst); err != nil {
			return nil, err
		}
	}
	if inc.DiscoveredAt, err = decTime(discoveredAt); err != nil {
		return nil, err
	}
	if inc.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	if inc.UpdatedAt, err = decTime(updatedAt); err != nil {
		return nil, err
	}
	if inc.OccurredAt, err = decTimePtr(occurredAt); err != nil {
		return nil, err
	}
	if inc.DPADeadline, err = decTimePtr(dpaDeadline); err != nil {
		return nil, err
	}
	if inc.IndividualDeadline, err = decTimePtr(individualDeadline); err != nil {
		return nil, err
	}
	if inc.ContainedAt, err = decTimePtr(containedAt); err != nil {
		return nil, err
	}
	if inc.RemediatedAt, err = decTimePtr(remediatedAt); err != nil {
		return nil, err
	}
	if inc.ClosedAt, err = decTimePtr(closedAt); err != nil {
		return nil, err
	}
	return &inc, nil
}
