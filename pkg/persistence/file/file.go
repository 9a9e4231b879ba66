// Package file provides file-based persistence for pipelines and runs.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/pushgate/pushgate/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
// Pipelines and runs are stored as one JSON document per entity.
type Persistence struct {
	root         string
	pipelineRepo *PipelineRepository
	runRepo      *RunRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" prefix is accepted and stripped.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		pipelineRepo: NewPipelineRepository(cleanRoot),
		runRepo:      NewRunRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file persistence there is none.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}
