package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              SERIAL PRIMARY KEY,
		username        TEXT UNIQUE NOT NULL,
		password_hash   TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login      TIMESTAMPTZ,
		failed_attempts INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id         SERIAL PRIMARY KEY,
		student_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date       TIMESTAMPTZ NOT NULL,
		type       VARCHAR(50) NOT NULL,
		status     VARCHAR(20) NOT NULL DEFAULT 'suggested'
		           CHECK (status IN ('suggested', 'accepted', 'rejected')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS appointments_student_date_idx ON appointments (student_id, date)`,
}

// Bootstrap creates the tables if they are missing. Safe to run repeatedly.
func (m *Manager) Bootstrap(ctx context.Context) error {
	for i, stmt := range schema {
		if err := m.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
