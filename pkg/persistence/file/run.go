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

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
)

// RunRepository handles run documents under <root>/runs.
type RunRepository struct {
	root string
}

func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (fp *Persistence) Runs(ctx context.Context) ([]*models.Run, error) {
	return fp.runRepo.GetAll(ctx)
}

func (fp *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	return fp.runRepo.GetByID(ctx, id)
}

func (fp *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return fp.runRepo.Save(ctx, run)
}

// GetAll loads every stored run, newest first.
func (rr *RunRepository) GetAll(ctx context.Context) ([]*models.Run, error) {
	dir := path.Join(rr.root, "runs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Run{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		runID := file[:len(file)-len(".json")]

		run, err := rr.GetByID(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

// GetByID retrieves a run by its ID.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	filePath := filepath.Clean(path.Join(rr.root, "runs", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	var run models.Run

	err = json.Unmarshal(body, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

// Save writes a run document. Runs are saved after every state change, so an
// existing document is overwritten.
func (rr *RunRepository) Save(_ context.Context, run *models.Run) error {
	err := os.MkdirAll(path.Join(rr.root, "runs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	filePath := path.Join(rr.root, "runs", run.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}
