package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forge-health/forge-core/pkg/breach"
)

// SaveNotification appends a notification record. Records are append-only;
// delivery status updates replace the row by id.
func (r *Repository) SaveNotification(ctx context.Context, n *breach.Notification) error {
	query := r.q(`INSERT INTO notifications
		(id, incident_id, recipient_type, jurisdiction, status, deadline, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			sent_at = excluded.sent_at`)
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.IncidentID, string(n.Recipient), n.Jurisdiction, string(n.Status),
		encTimePtr(n.Deadline), encTimePtr(n.SentAt), encTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", n.ID, err)
	}
	return nil
}

// ListNotifications returns all notifications for an incident, oldest first.
func (r *Repository) ListNotifications(ctx context.Context, incidentID string) ([]*breach.Notification, error) {
	query := r.q(`SELECT id, incident_id, recipient_type, jurisdiction, status, deadline, sent_at, created_at
		FROM notifications WHERE incident_id = ? ORDER BY created_at`)
	rows, err := r.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*breach.Notification
	for rows.Next() {
		var (
			n                 breach.Notification
			recipient, status string
			jurisdiction      sql.NullString
			deadline, sentAt  sql.NullString
			createdAt         string
		)
		if err := rows.Scan(&n.ID, &n.IncidentID, &recipient, &jurisdiction, &status,
			&deadline, &sentAt, &createdAt); err != nil {
			return nil, err
		}
		n.Recipient = breach.RecipientType(recipient)
		n.Status = breach.NotificationStatus(status)
		n.Jurisdiction = jurisdiction.String
		if n.Deadline, err = decTimePtr(deadline); err != nil {
			return nil, err
		}
		if n.SentAt, err = decTimePtr(sentAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = decTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
