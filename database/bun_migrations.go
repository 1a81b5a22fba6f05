package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// runMigrations runs all Bun migrations
func (b *BunDB) runMigrations(ctx context.Context) error {
	// Create a simple migrations tracking table
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bun_schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Check which migrations have been applied
	type AppliedMigration struct {
		bun.BaseModel `bun:"table:bun_schema_migrations"`
		Version       string `bun:"version,pk"`
	}
	var applied []AppliedMigration
	err = b.db.NewSelect().
		Model(&applied).
		Column("version").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	// Run migrations in order
	migrations := []struct {
		version string
		name    string
		up      func(context.Context, *bun.DB) error
	}{
		{"001", "create_preview_sessions", init001CreateSessionsTable},
		{"002", "create_render_jobs", init002CreateJobsTable},
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, b.db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		// Mark as applied
		_, err = b.db.NewInsert().
			Model(&AppliedMigration{Version: m.version}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Info("All migrations completed successfully")
	return nil
}

// binaryType is the column type for raw bytes in the connected dialect
func binaryType(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return "BYTEA"
	}
	return "BLOB"
}

// Migration 001: preview sessions holding the uploaded source bytes
func init001CreateSessionsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS preview_sessions (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			media_type TEXT NOT NULL,
			size BIGINT NOT NULL,
			hash TEXT NOT NULL,
			data %s,
			page_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			last_accessed TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)
	`, binaryType(db)))
	if err != nil {
		return fmt.Errorf("failed to create preview_sessions table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_preview_sessions_expires_at ON preview_sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create expires_at index: %w", err)
	}
	return nil
}

// Migration 002: render job log
func init002CreateJobsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS render_jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			page INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create render_jobs table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_render_jobs_created_at ON render_jobs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_render_jobs_session_id ON render_jobs(session_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create render_jobs index: %w", err)
		}
	}
	return nil
}
