package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forge-health/forge-core/pkg/audit"
)

// SaveAuditEvent appends an audit event row. Implements audit.Sink. Events
// are strictly append-only; the unique hash and position indexes reject
// duplicates and forks.
func (r *Repository) SaveAuditEvent(e *audit.Event) error {
	pos := r.auditPos.Add(1)
	query := r.q(`INSERT INTO audit_events
		(id, chain_position, category, event_type, actor, entity, action, success,
		 risk, justification, previous_hash, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(context.Background(), query,
		e.ID, pos, string(e.Category), e.EventType, e.Actor, e.Entity, e.Action,
		boolToInt(e.Success), string(e.Risk), e.Justification,
		e.PreviousHash, e.Hash, encTime(e.CreatedAt),
	)
	if err != nil {
		r.auditPos.Add(-1)
		return fmt.Errorf("save audit event %s: %w", e.ID, err)
	}
	return nil
}

// LoadAuditEvents returns the full chain in insertion order, for restoring
// the in-memory log at startup.
func (r *Repository) LoadAuditEvents(ctx context.Context) ([]*audit.Event, error) {
	query := r.q(`SELECT id, category, event_type, actor, entity, action, success,
		risk, justification, previous_hash, hash, created_at
		FROM audit_events ORDER BY chain_position`)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*audit.Event
	for rows.Next() {
		var (
			e                           audit.Event
			category                    string
			eventType, actor, entity    sql.NullString
			action, risk, justification sql.NullString
			success                     int
			createdAt                   string
		)
		if err := rows.Scan(&e.ID, &category, &eventType, &actor, &entity, &action,
			&success, &risk, &justification, &e.PreviousHash, &e.Hash, &createdAt); err != nil {
			return nil, err
		}
		e.Category = audit.Category(category)
		e.EventType = eventType.String
		e.Actor = actor.String
		e.Entity = entity.String
		e.Action = action.String
		e.Risk = audit.RiskLevel(risk.String)
		e.Justification = justification.String
		e.Success = success != 0
		if e.CreatedAt, err = decTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
