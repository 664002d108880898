package progress

import (
	"context"
	"sync"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
)

// MemoryTracker keeps progress in process memory. It serves a single-process
// deployment and tests.
type MemoryTracker struct {
	mu   sync.RWMutex
	jobs map[string]model.Progress
}

var _ ports.ProgressTracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{jobs: map[string]model.Progress{}}
}

func (t *MemoryTracker) Report(ctx context.Context, jobID string, progress model.Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[jobID] = progress
	return nil
}

func (t *MemoryTracker) Get(ctx context.Context, jobID string) (model.Progress, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.jobs[jobID]
	return p, ok, nil
}

func (t *MemoryTracker) Clear(ctx context.Context, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
	return nil
}
