// Package repository persists the compliance record: DSARs, consents,
// breach incidents, notifications, audit events, AI system registrations,
// and AI decision logs. It speaks SQLite by default and Postgres when the
// DSN says so; the schema, constraints, and indexes are created at startup
// and evolve additively only.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Repository is the SQL-backed compliance store. It implements the store
// interfaces of the dsar, breach, consent, and aigov packages plus the
// audit sink.
type Repository struct {
	db       *sql.DB
	postgres bool
	auditPos atomic.Int64
}

// Open connects to the database named by dsn and bootstraps the schema.
// DSNs beginning with "postgres://" or "postgresql://" select the Postgres
// driver; anything else is treated as a SQLite path.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	driver := "sqlite"
	postgres := false
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
		postgres = true
	}
	if dsn == "" {
		dsn = "forge.db"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(ctx, db, postgres)
}

// New wraps an existing handle and bootstraps the schema. Used directly by
// tests.
func New(ctx context.Context, db *sql.DB, postgres bool) (*Repository, error) {
	r := &Repository{db: db, postgres: postgres}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	var pos sql.NullInt64
	if err := r.db.QueryRowContext(ctx, r.q(`SELECT MAX(chain_position) FROM audit_events`)).Scan(&pos); err == nil && pos.Valid {
		r.auditPos.Store(pos.Int64)
	}
	return r, nil
}

// Close releases the database handle.
func (r *Repository) Close() error { return r.db.Close() }

// q rewrites "?" placeholders to "$n" for Postgres.
func (r *Repository) q(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dsars (
			id TEXT PRIMARY KEY,
			request_type TEXT NOT NULL,
			jurisdiction TEXT,
			frameworks TEXT,
			subject_name TEXT,
			subject_email TEXT NOT NULL,
			status TEXT NOT NULL,
			deadline TEXT NOT NULL,
			assigned_to TEXT,
			notes TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dsars_status ON dsars (status)`,
		`CREATE INDEX IF NOT EXISTS idx_dsars_deadline ON dsars (deadline)`,

		`CREATE TABLE IF NOT EXISTS consents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			purpose TEXT,
			granted INTEGER NOT NULL,
			granted_at TEXT NOT NULL,
			withdrawn_at TEXT,
			expires_at TEXT,
			collected_via TEXT,
			text_version TEXT,
			text_hash TEXT,
			third_parties TEXT,
			transfer_safeguards TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_consents_user ON consents (user_id)`,

		`CREATE TABLE IF NOT EXISTS breaches (
			id TEXT PRIMARY KEY,
			type TEXT,
			description TEXT,
			severity INTEGER NOT NULL,
			status TEXT NOT NULL,
			discovered_at TEXT NOT NULL,
			occurred_at TEXT,
			data_categories TEXT,
			data_elements TEXT,
			jurisdictions TEXT,
			record_count INTEGER NOT NULL DEFAULT 0,
			encrypted INTEGER NOT NULL DEFAULT 0,
			likely_harm INTEGER NOT NULL DEFAULT 0,
			dpa_required INTEGER NOT NULL DEFAULT 0,
			individual_required INTEGER NOT NULL DEFAULT 0,
			dpa_deadline TEXT,
			individual_deadline TEXT,
			contained_at TEXT,
			remediated_at TEXT,
			closed_at TEXT,
			remediation TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_breaches_status ON breaches (status)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL,
			recipient_type TEXT NOT NULL,
			jurisdiction TEXT,
			status TEXT NOT NULL,
			deadline TEXT,
			sent_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_incident ON notifications (incident_id)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			chain_position INTEGER NOT NULL,
			category TEXT NOT NULL,
			event_type TEXT,
			actor TEXT,
			entity TEXT,
			action TEXT,
			success INTEGER NOT NULL DEFAULT 1,
			risk TEXT,
			justification TEXT,
			previous_hash TEXT NOT NULL DEFAULT '',
			hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_hash ON audit_events (hash)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_position ON audit_events (chain_position)`,

		`CREATE TABLE IF NOT EXISTS ai_systems (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			risk_classification TEXT,
			intended_purpose TEXT,
			oversight_measures TEXT,
			override_capability INTEGER NOT NULL DEFAULT 0,
			registered_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ai_systems_name_version ON ai_systems (name, version)`,

		`CREATE TABLE IF NOT EXISTS ai_decisions (
			id TEXT PRIMARY KEY,
			system_id TEXT NOT NULL,
			model_version TEXT,
			outcome TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			input_summary TEXT,
			reasoning_chain TEXT,
			key_factors TEXT,
			subject_id TEXT,
			human_reviewed INTEGER NOT NULL DEFAULT 0,
			human_override INTEGER NOT NULL DEFAULT 0,
			reviewed_by TEXT,
			review_notes TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_decisions_system ON ai_decisions (system_id)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(40, len(stmt))], err)
		}
	}
	return nil
}
