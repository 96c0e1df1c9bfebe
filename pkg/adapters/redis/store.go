package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/autoflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Repository implements ports.WorkflowRepository using Redis.
//
// Each workflow is stored as a JSON string under prefix+id. A sorted set at
// prefix+"index" scored by update time backs List.
type Repository struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

type Option func(*Repository)

// WithPrefix sets the key prefix for workflows.
func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.prefix = prefix
	}
}

// New creates a new Redis repository with options.
func New(address, password string, db int, opts ...Option) *Repository {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis repository from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Repository {
	repo := &Repository{
		client: client,
		prefix: "autoflow:workflow:",
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

func (r *Repository) key(id string) string {
	return r.prefix + id
}

func (r *Repository) indexKey() string {
	return r.prefix + "index"
}

// Get retrieves the workflow from Redis.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

// List returns summaries ordered by update time, newest first.
func (r *Repository) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	if len(ids) == 0 {
		return []domain.WorkflowSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	out := make([]domain.WorkflowSummary, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Index entry without a document (deleted concurrently).
			continue
		}
		wf, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, wf.Summary())
	}
	domain.SortSummaries(out)
	return out, nil
}

// Create stores a new workflow. The SETNX guarantees a single creator per id.
func (r *Repository) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	stored := wf.Clone()
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(stored.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to save to redis: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %q already exists", domain.ErrWriteConflict, stored.ID)
	}

	if err := r.client.ZAdd(ctx, r.indexKey(), r.indexEntry(stored)).Err(); err != nil {
		return nil, fmt.Errorf("failed to index workflow: %w", err)
	}
	return stored, nil
}

// Replace overwrites an existing workflow inside a WATCH transaction.
// A concurrent writer aborts the transaction and surfaces as ErrWriteConflict.
func (r *Repository) Replace(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	key := r.key(wf.ID)
	var stored *domain.Workflow

	err := r.client.Watch(ctx, func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrWorkflowNotFound
			}
			return fmt.Errorf("failed to get from redis: %w", err)
		}
		current, err := decode(val)
		if err != nil {
			return err
		}
		if wf.Version != 0 && wf.Version != current.Version {
			return fmt.Errorf("%w: have version %d, stored %d", domain.ErrWriteConflict, wf.Version, current.Version)
		}

		next := wf.Clone()
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = r.now().UTC()
		next.Version = current.Version + 1

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, r.indexKey(), r.indexEntry(next))
			return nil
		})
		if err != nil {
			return err
		}
		stored = next
		return nil
	}, key)

	if errors.Is(err, backend.TxFailedErr) {
		return nil, fmt.Errorf("%w: concurrent update of %q", domain.ErrWriteConflict, wf.ID)
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes the workflow and its index entry.
func (r *Repository) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.key(id))
	pipe.ZRem(ctx, r.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrWorkflowNotFound
	}
	return nil
}

// Close closes the redis client.
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) indexEntry(wf *domain.Workflow) backend.Z {
	return backend.Z{
		Score:  float64(wf.UpdatedAt.UnixMilli()),
		Member: wf.ID,
	}
}

func decode(data []byte) (*domain.Workflow, error) {
	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &wf, nil
}
