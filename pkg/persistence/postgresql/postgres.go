// Package postgresql provides PostgreSQL persistence for pipelines and runs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	pipelineRepo *PipelineRepository
	runRepo      *RunRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		pipelineRepo: NewPipelineRepository(database, logger),
		runRepo:      NewRunRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
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

// Pipelines returns all pipelines from the database.
func (p *Persistence) Pipelines(ctx context.Context) ([]*models.Pipeline, error) {
	return p.pipelineRepo.GetAll(ctx)
}

// PipelineByID returns a pipeline by its ID.
func (p *Persistence) PipelineByID(ctx context.Context, id string) (*models.Pipeline, error) {
	return p.pipelineRepo.GetByID(ctx, id)
}

// SavePipeline saves a pipeline to the database.
func (p *Persistence) SavePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	return p.pipelineRepo.Save(ctx, pipeline)
}

// DeletePipeline removes a pipeline by its ID.
func (p *Persistence) DeletePipeline(ctx context.Context, id string) error {
	return p.pipelineRepo.Delete(ctx, id)
}

// Runs returns all runs from the database, newest first.
func (p *Persistence) Runs(ctx context.Context) ([]*models.Run, error) {
	return p.runRepo.GetAll(ctx)
}

// RunByID returns a run by its ID.
func (p *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	return p.runRepo.GetByID(ctx, id)
}

// SaveRun saves a run to the database.
func (p *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return p.runRepo.Save(ctx, run)
}
