package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
)

// PipelineRepository handles pipeline-related database operations.
type PipelineRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPipelineRepository creates a new pipeline repository.
func NewPipelineRepository(db *sql.DB, logger *slog.Logger) *PipelineRepository {
	return &PipelineRepository{db: db, logger: logger}
}

// GetAll returns all pipelines from the database, newest first.
func (r *PipelineRepository) GetAll(ctx context.Context) ([]*models.Pipeline, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , steps
		  , triggers
		  , created_at
		  , updated_at
		FROM pipelines
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipelines: %w", err)
	}

	defer func(ctx context.Context, r *PipelineRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	pipelines := make([]*models.Pipeline, 0)

	for rows.Next() {
		pipeline, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}

		pipelines = append(pipelines, pipeline)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}

	return pipelines, nil
}

// GetByID retrieves a pipeline by its ID.
func (r *PipelineRepository) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , steps
		  , triggers
		  , created_at
		  , updated_at
		FROM pipelines
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	pipeline, err := scanPipeline(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("PipelineByID", id, persistence.ErrPipelineNotFound)
		}

		return nil, fmt.Errorf("failed to scan pipeline: %w", err)
	}

	return pipeline, nil
}

// Save upserts a pipeline, stamping created/updated times.
func (r *PipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
	now := time.Now().UTC()

	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = now
	}

	pipeline.UpdatedAt = now

	stepsJSON, err := json.Marshal(pipeline.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	triggersJSON, err := json.Marshal(pipeline.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, name, description, steps, triggers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			steps = EXCLUDED.steps,
			triggers = EXCLUDED.triggers,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		pipeline.ID,
		pipeline.Name,
		pipeline.Description,
		stepsJSON,
		triggersJSON,
		pipeline.CreatedAt,
		pipeline.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pipeline %s: %w", pipeline.ID, err)
	}

	return nil
}

// Delete removes a pipeline by its ID. Deleting a missing pipeline is not an
// error.
func (r *PipelineRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM pipelines WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row rowScanner) (*models.Pipeline, error) {
	var (
		pipeline     models.Pipeline
		description  sql.NullString
		stepsJSON    []byte
		triggersJSON []byte
	)

	err := row.Scan(
		&pipeline.ID,
		&pipeline.Name,
		&description,
		&stepsJSON,
		&triggersJSON,
		&pipeline.CreatedAt,
		&pipeline.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pipeline.Description = description.String

	err = json.Unmarshal(stepsJSON, &pipeline.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if len(triggersJSON) > 0 {
		err = json.Unmarshal(triggersJSON, &pipeline.Triggers)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
		}
	}

	return &pipeline, nil
}
