// Package persistence provides the storage abstraction for pipelines and runs.
package persistence

import (
	"context"

	"github.com/pushgate/pushgate/pkg/models"
)

type Persistence interface {
	Pipelines(ctx context.Context) ([]*models.Pipeline, error)
	PipelineByID(ctx context.Context, id string) (*models.Pipeline, error)
	SavePipeline(ctx context.Context, pipeline *models.Pipeline) error
	DeletePipeline(ctx context.Context, id string) error

	Runs(ctx context.Context) ([]*models.Run, error)
	RunByID(ctx context.Context, id string) (*models.Run, error)
	SaveRun(ctx context.Context, run *models.Run) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
