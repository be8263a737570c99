package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/forge-health/forge-core/pkg/consent"
	"github.com/forge-health/forge-core/pkg/fault"
)

const consentColumns = `id, user_id, type, purpose, granted, granted_at, withdrawn_at,
	expires_at, collected_via, text_version, text_hash, third_parties, transfer_safeguards`

// SaveConsent upserts a consent record by id.
func (r *Repository) SaveConsent(ctx context.Context, c *consent.Record) error {
	query := r.q(`INSERT INTO consents (` + consentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			granted = excluded.granted,
			withdrawn_at = excluded.withdrawn_at`)
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Type, c.Purpose, boolToInt(c.Granted), encTime(c.GrantedAt),
		encTimePtr(c.WithdrawnAt), encTimePtr(c.ExpiresAt), c.CollectedVia,
		c.TextVersion, c.TextHash, encJSON(c.ThirdParties), c.TransferSafeguards,
	)
	if err != nil {
		return fmt.Errorf("save consent %s: %w", c.ID, err)
	}
	return nil
}

// GetConsent loads one record.
func (r *Repository) GetConsent(ctx context.Context, id string) (*consent.Record, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+consentColumns+` FROM consents WHERE id = ?`), id)
	rec, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFoundf("consent %s", id)
	}
	return rec, err
}

// ListConsentsByUser returns a user's records, oldest first.
func (r *Repository) ListConsentsByUser(ctx context.Context, userID string) ([]*consent.Record, error) {
	query := r.q(`SELECT ` + consentColumns + ` FROM consents WHERE user_id = ? ORDER BY granted_at`)
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*consent.Record
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanConsent(row rowScanner) (*consent.Record, error) {
	var (
		rec                     consent.Record
		granted                 int
		grantedAt               string
		withdrawnAt, expiresAt  sql.NullString
		purpose, collectedVia   sql.NullString
		textVersion, textHash   sql.NullString
		thirdParties, safeguard sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Type, &purpose, &granted, &grantedAt,
		&withdrawnAt, &expiresAt, &collectedVia, &textVersion, &textHash,
		&thirdParties, &safeguard)
	if err != nil {
		return nil, err
	}
	rec.Granted = granted != 0
	rec.Purpose = purpose.String
	rec.CollectedVia = collectedVia.String
	rec.TextVersion = textVersion.String
	rec.TextHash = textHash.String
	rec.TransferSafeguards = safeguard.String
	if err := decJSON(thirdParties, &rec.ThirdParties); err != nil {
		return nil, err
	}
	if rec.GrantedAt, err = decTime(grantedAt); err != nil {
		return nil, err
	}
	if rec.WithdrawnAt, err = decTimePtr(withdrawnAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = decTimePtr(expiresAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
