package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/autoflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// RunLog implements ports.RunLog as one capped Redis list per workflow.
type RunLog struct {
	client   *backend.Client
	prefix   string
	capacity int64
}

// NewRunLog creates a run log keeping at most capacity records per workflow.
func NewRunLog(client *backend.Client, capacity int) *RunLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &RunLog{
		client:   client,
		prefix:   "autoflow:runs:",
		capacity: int64(capacity),
	}
}

func (l *RunLog) key(workflowID string) string {
	return l.prefix + workflowID
}

// Append pushes the record to the head of the list and trims the tail.
func (l *RunLog) Append(ctx context.Context, rec domain.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key(rec.WorkflowID), data)
	pipe.LTrim(ctx, l.key(rec.WorkflowID), 0, l.capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append run record: %w", err)
	}
	return nil
}

// List returns records newest first.
func (l *RunLog) List(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	vals, err := l.client.LRange(ctx, l.key(workflowID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}

	out := make([]domain.RunRecord, 0, len(vals))
	for _, v := range vals {
		var rec domain.RunRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
