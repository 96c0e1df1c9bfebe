package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/aretw0/autoflow/pkg/domain"
)

// DefaultRunLogCapacity is the number of records retained per workflow.
const DefaultRunLogCapacity = 100

// RunLog implements ports.RunLog in memory, keeping a bounded history per workflow.
type RunLog struct {
	mu       sync.RWMutex
	records  map[string][]domain.RunRecord // newest last
	capacity int
}

// NewRunLog creates a run log retaining at most capacity records per workflow.
// A non-positive capacity falls back to DefaultRunLogCapacity.
func NewRunLog(capacity int) *RunLog {
	if capacity <= 0 {
		capacity = DefaultRunLogCapacity
	}
	return &RunLog{
		records:  make(map[string][]domain.RunRecord),
		capacity: capacity,
	}
}

// Append stores a record, evicting the oldest one past capacity.
func (l *RunLog) Append(ctx context.Context, rec domain.RunRecord) error {
	rec.Input = maps.Clone(rec.Input)
	rec.Outcomes = append([]domain.Outcome(nil), rec.Outcomes...)

	l.mu.Lock()
	defer l.mu.Unlock()

	recs := append(l.records[rec.WorkflowID], rec)
	if over := len(recs) - l.capacity; over > 0 {
		recs = recs[over:]
	}
	l.records[rec.WorkflowID] = recs
	return nil
}

// List returns records newest first.
func (l *RunLog) List(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs := l.records[workflowID]
	n := len(recs)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]domain.RunRecord, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}
