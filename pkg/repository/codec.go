package repository

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Timestamps are stored as RFC 3339 text so the same schema works on
// SQLite and Postgres.

func encTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encTime(*t), Valid: true}
}

func decTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func decTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := decTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encJSON(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func decJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
