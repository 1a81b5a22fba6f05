package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/stapelberg/postgrestest"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// SetupEphemeralPostgresDatabase starts a throwaway PostgreSQL instance and
// returns a repository on a fresh database inside it. Close removes the server.
func SetupEphemeralPostgresDatabase() (*BunDB, error) {
	Logger.Info("Starting ephemeral PostgreSQL server...")

	ctx := context.Background()

	// Uses a temporary directory by default for simplicity
	pgt, err := postgrestest.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start ephemeral postgres: %w", err)
	}

	Logger.Info("Ephemeral PostgreSQL server started", "dsn", pgt.DefaultDatabase())

	// Create a new database for the application
	dsn, err := pgt.CreateDatabase(ctx)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to create docpreview database: %w", err)
	}

	Logger.Info("Created ephemeral database", "dsn", dsn)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to open docpreview database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	Logger.Info("Connected to ephemeral PostgreSQL database successfully")

	result, err := newBunDB(sqlDB, pgdialect.New(), "ephemeral", false)
	if err != nil {
		sqlDB.Close()
		pgt.Cleanup()
		return nil, err
	}
	result.server = pgt
	return result, nil
}
