// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/dukex/portalflow/pkg/persistence/sqlbase"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// psql builds statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sqlx.DB
	logger          *slog.Logger
	workflowRepo    *WorkflowRepository
	batchRepo       *BatchRepository
	sequenceRunRepo *SequenceRunRepository
	fastqRepo       *FastqListRowRepository
	metadataRepo    *LabMetadataRepository
}

// NewPersistence connects to PostgreSQL and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database.DB, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:              database,
		logger:          logger,
		workflowRepo:    NewWorkflowRepository(database, logger),
		batchRepo:       NewBatchRepository(database, logger),
		sequenceRunRepo: NewSequenceRunRepository(database, logger),
		fastqRepo:       NewFastqListRowRepository(database, logger),
		metadataRepo:    NewLabMetadataRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
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

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) BatchRepository() persistence.BatchRepository {
	return p.batchRepo
}

func (p *Persistence) SequenceRunRepository() persistence.SequenceRunRepository {
	return p.sequenceRunRepo
}

func (p *Persistence) FastqListRowRepository() persistence.FastqListRowRepository {
	return p.fastqRepo
}

func (p *Persistence) LabMetadataRepository() persistence.LabMetadataRepository {
	return p.metadataRepo
}
