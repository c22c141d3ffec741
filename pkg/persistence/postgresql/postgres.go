// Package postgresql provides PostgreSQL persistence for sequences, triggers and execution history.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	sequences *SequenceRepository
	triggers  *TriggerRepository
	events    *TriggerEventRepository
	runs      *RunRepository
}

// NewPersistence connects, verifies the connection and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		sequences: &SequenceRepository{db: database, logger: logger},
		triggers:  &TriggerRepository{db: database, logger: logger},
		events:    &TriggerEventRepository{db: database, logger: logger},
		runs:      &RunRepository{db: database, logger: logger},
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) SequenceRepository() persistence.SequenceRepository {
	return p.sequences
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggers
}

func (p *Persistence) TriggerEventRepository() persistence.TriggerEventRepository {
	return p.events
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runs
}
