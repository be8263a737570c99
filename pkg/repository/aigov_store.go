package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/forge-health/forge-core/pkg/aigov"
	"github.com/forge-health/forge-core/pkg/fault"
)

// SaveAISystem inserts a registration. The unique (name, version) index
// enforces one registration per system version.
func (r *Repository) SaveAISystem(ctx context.Context, reg *aigov.SystemRegistration) error {
	query := r.q(`INSERT INTO ai_systems
		(id, name, version, risk_classification, intended_purpose, oversight_measures,
		 override_capability, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		reg.ID, reg.Name, reg.Version, string(reg.Risk), reg.IntendedPurpose,
		encJSON(reg.OversightMeasures), boolToInt(reg.OverrideCapability),
		encTime(reg.RegisteredAt),
	)
	if err != nil {
		return fmt.Errorf("save ai system %s@%s: %w", reg.Name, reg.Version, err)
	}
	return nil
}

// FindAISystem loads one registration by (name, version).
func (r *Repository) FindAISystem(ctx context.Context, name, version string) (*aigov.SystemRegistration, error) {
	query := r.q(`SELECT id, name, version, risk_classification, intended_purpose,
		oversight_measures, override_capability, registered_at
		FROM ai_systems WHERE name = ? AND version = ?`)
	var (
		reg          aigov.SystemRegistration
		risk         sql.NullString
		purpose      sql.NullString
		oversight    sql.NullString
		override     int
		registeredAt string
	)
	err := r.db.QueryRowContext(ctx, query, name, version).Scan(
		&reg.ID, &reg.Name, &reg.Version, &risk, &purpose, &oversight, &override, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFoundf("ai system %s@%s", name, version)
	}
	if err != nil {
		return nil, err
	}
	reg.Risk = aigov.RiskClass(risk.String)
	reg.IntendedPurpose = purpose.String
	reg.OverrideCapability = override != 0
	if err := decJSON(oversight, &reg.OversightMeasures); err != nil {
		return nil, err
	}
	if reg.RegisteredAt, err = decTime(registeredAt); err != nil {
		return nil, err
	}
	return &reg, nil
}

const aiDecisionColumns = `id, system_id, model_version, outcome, confidence, input_summary,
	reasoning_chain, key_factors, subject_id, human_reviewed, human_override,
	reviewed_by, review_notes, created_at`

// SaveAIDecision upserts a decision log. Only the human-review fields change
// on update; the recorded reasoning stays as written.
func (r *Repository) SaveAIDecision(ctx context.Context, d *aigov.DecisionLog) error {
	query := r.q(`INSERT INTO ai_decisions (` + aiDecisionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			human_reviewed = excluded.human_reviewed,
			human_override = excluded.human_override,
			reviewed_by = excluded.reviewed_by,
			review_notes = excluded.review_notes`)
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.SystemID, d.ModelVersion, d.Outcome, d.Confidence, d.InputSummary,
		encJSON(d.ReasoningChain), encJSON(d.KeyFactors), d.SubjectID,
		boolToInt(d.HumanReviewed), boolToInt(d.HumanOverride),
		d.ReviewedBy, d.ReviewNotes, encTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save ai decision %s: %w", d.ID, err)
	}
	return nil
}

// GetAIDecision loads one decision log.
func (r *Repository) GetAIDecision(ctx context.Context, id string) (*aigov.DecisionLog, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+aiDecisionColumns+` FROM ai_decisions WHERE id = ?`), id)
	d, err := scanAIDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFoundf("ai decision %s", id)
	}
	return d, err
}

// ListAIDecisionsBySystem returns a system's decisions, oldest first.
func (r *Repository) ListAIDecisionsBySystem(ctx context.Context, systemID string) ([]*aigov.DecisionLog, error) {
	query := r.q(`SELECT ` + aiDecisionColumns + ` FROM ai_decisions WHERE system_id = ? ORDER BY created_at`)
	rows, err := r.db.QueryContext(ctx, query, systemID)
	if err != nil {
		return nil, fmt.Errorf("list ai decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*aigov.DecisionLog
	for rows.Next() {
		d, err := scanAIDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanAIDecision(row rowScanner) (*aigov.DecisionLog, error) {
	var (
		d                     aigov.DecisionLog
		modelVersion, summary sql.NullString
		reasoning, factors    sql.NullString
		subjectID, reviewedBy sql.NullString
		reviewNotes           sql.NullString
		reviewed, override    int
		createdAt             string
	)
	err := row.Scan(&d.ID, &d.SystemID, &modelVersion, &d.Outcome, &d.Confidence,
		&summary, &reasoning, &factors, &subjectID, &reviewed, &override,
		&reviewedBy, &reviewNotes, &createdAt)
	if err != nil {
		return nil, err
	}
	d.ModelVersion = modelVersion.String
	d.InputSummary = summary.String
	d.SubjectID = subjectID.String
	d.ReviewedBy = reviewedBy.String
	d.ReviewNotes = reviewNotes.String
	d.HumanReviewed = reviewed != 0
	d.HumanOverride = override != 0
	if err := decJSON(reasoning, &d.ReasoningChain); err != nil {
		return nil, err
	}
	if err := decJSON(factors, &d.KeyFactors); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &d, nil
}
