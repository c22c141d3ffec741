// Package file provides file-based persistence for single-process deployments and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file
// system. Records are JSON files, one per id, under a directory per kind.
// Conditional updates are serialized by an in-process lock, so a root must not
// be shared by several processes.
type Persistence struct {
	root string
	mu   sync.Mutex

	sequences *SequenceRepository
	triggers  *TriggerRepository
	events    *TriggerEventRepository
	runs      *RunRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.sequences = &SequenceRepository{p: p, records: newStore[models.Sequence](cleanRoot, "sequences"), actions: newStore[models.Action](cleanRoot, "actions")}
	p.triggers = &TriggerRepository{p: p, records: newStore[triggerRecord](cleanRoot, "triggers")}
	p.events = &TriggerEventRepository{p: p, records: newStore[models.TriggerEvent](cleanRoot, "trigger_events")}
	p.runs = &RunRepository{p: p, runs: newStore[models.WorkflowRun](cleanRoot, "runs"), steps: newStore[models.WorkflowStep](cleanRoot, "steps")}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) SequenceRepository() persistence.SequenceRepository {
	return fp.sequences
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggers
}

func (fp *Persistence) TriggerEventRepository() persistence.TriggerEventRepository {
	return fp.events
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runs
}
