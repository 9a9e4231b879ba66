package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
)

// PipelineRepository handles pipeline documents under <root>/pipelines.
type PipelineRepository struct {
	root string
}

func NewPipelineRepository(root string) *PipelineRepository {
	return &PipelineRepository{root: root}
}

func (fp *Persistence) Pipelines(ctx context.Context) ([]*models.Pipeline, error) {
	return fp.pipelineRepo.GetAll(ctx)
}

func (fp *Persistence) PipelineByID(ctx context.Context, id string) (*models.Pipeline, error) {
	return fp.pipelineRepo.GetByID(ctx, id)
}

func (fp *Persistence) SavePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	return fp.pipelineRepo.Save(ctx, pipeline)
}

func (fp *Persistence) DeletePipeline(ctx context.Context, id string) error {
	return fp.pipelineRepo.Delete(ctx, id)
}

// GetAll loads every stored pipeline, newest first.
func (pr *PipelineRepository) GetAll(ctx context.Context) ([]*models.Pipeline, error) {
	dir := path.Join(pr.root, "pipelines")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Pipeline{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline files: %w", err)
	}

	pipelines := make([]*models.Pipeline, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		pipelineID := file[:len(file)-len(".json")]

		pipeline, err := pr.GetByID(ctx, pipelineID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pipeline %s: %w", pipelineID, err)
		}

		pipelines = append(pipelines, pipeline)
	}

	sort.Slice(pipelines, func(i, j int) bool {
		return pipelines[i].CreatedAt.After(pipelines[j].CreatedAt)
	})

	return pipelines, nil
}

// GetByID retrieves a pipeline by its ID.
func (pr *PipelineRepository) GetByID(_ context.Context, id string) (*models.Pipeline, error) {
	filePath := filepath.Clean(path.Join(pr.root, "pipelines", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("PipelineByID", id, persistence.ErrPipelineNotFound)
		}

		return nil, fmt.Errorf("failed to read pipeline %s: %w", id, err)
	}

	var pipeline models.Pipeline

	err = json.Unmarshal(body, &pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline %s: %w", id, err)
	}

	return &pipeline, nil
}

// Save writes a pipeline document, stamping created/updated times.
func (pr *PipelineRepository) Save(_ context.Context, pipeline *models.Pipeline) error {
	err := os.MkdirAll(path.Join(pr.root, "pipelines"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create pipelines directory: %w", err)
	}

	now := time.Now().UTC()
	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = now
	}

	pipeline.UpdatedAt = now

	data, err := json.MarshalIndent(pipeline, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline %s: %w", pipeline.ID, err)
	}

	filePath := path.Join(pr.root, "pipelines", pipeline.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a pipeline by its ID. Deleting a missing pipeline is not an
// error.
func (pr *PipelineRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(pr.root, "pipelines", id+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete pipeline %s: %w", id, err)
	}

	return nil
}
