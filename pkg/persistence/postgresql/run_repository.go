package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// GetAll returns all runs from the database, newest first.
func (r *RunRepository) GetAll(ctx context.Context) ([]*models.Run, error) {
	query := `
		SELECT
			id
		  , pipeline_id
		  , status
		  , trigger_event
		  , steps
		  , failed_step
		  , error_message
		  , created_at
		  , started_at
		  , finished_at
		FROM runs
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func(ctx context.Context, r *RunRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT
			id
		  , pipeline_id
		  , status
		  , trigger_event
		  , steps
		  , failed_step
		  , error_message
		  , created_at
		  , started_at
		  , finished_at
		FROM runs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// Save upserts a run. Runs are saved after every state change, so an existing
// row is overwritten.
func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	triggerJSON, err := json.Marshal(run.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger event: %w", err)
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}

	query := `
		INSERT INTO runs (id, pipeline_id, status, trigger_event, steps, failed_step, error_message, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			failed_step = EXCLUDED.failed_step,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.PipelineID,
		string(run.Status),
		triggerJSON,
		stepsJSON,
		run.FailedStep,
		nullString(run.Error),
		run.CreatedAt,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	return nil
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run          models.Run
		status       string
		triggerJSON  []byte
		stepsJSON    []byte
		errorMessage sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.PipelineID,
		&status,
		&triggerJSON,
		&stepsJSON,
		&run.FailedStep,
		&errorMessage,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.Error = errorMessage.String

	err = json.Unmarshal(triggerJSON, &run.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger event: %w", err)
	}

	if len(stepsJSON) > 0 {
		err = json.Unmarshal(stepsJSON, &run.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
		}
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
