package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/pkg/domain"
)

// StreamManager fans run lifecycle events out to SSE subscribers, per workflow.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // WorkflowID -> Set of Channels
	closed      bool
	logger      *slog.Logger
}

// NewStreamManager creates an empty stream manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for the workflow and returns it with its cancel func.
func (sm *StreamManager) Subscribe(workflowID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if sm.closed {
		close(ch)
		return ch, func() {}
	}
	if _, ok := sm.subscribers[workflowID]; !ok {
		sm.subscribers[workflowID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[workflowID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[workflowID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, workflowID)
			}
		}
	}
}

// Close ends every subscription and refuses new ones. Handlers see their
// channel closed and return, so http.Server.Shutdown is not held up by
// long-lived streams.
func (sm *StreamManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.closed = true
	for id, subs := range sm.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(sm.subscribers, id)
	}
}

// Broadcast delivers msg to every subscriber of the workflow without blocking.
func (sm *StreamManager) Broadcast(workflowID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[workflowID] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: client buffer full, dropping message", "workflow_id", workflowID)
		}
	}
}

// Hooks publishes every lifecycle event as JSON to the workflow's subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	publish := func(workflowID string, ev any) {
		b, err := json.Marshal(ev)
		if err != nil {
			sm.logger.Error("SSE: failed to encode event", "workflow_id", workflowID, "err", err)
			return
		}
		sm.Broadcast(workflowID, string(b))
	}
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			publish(e.WorkflowID, e)
		},
		OnRunComplete: func(ctx context.Context, e *domain.RunEvent) {
			// The report context may carry personal data; subscribers get outcomes only.
			ev := *e
			if e.Report != nil {
				report := *e.Report
				report.Context = nil
				ev.Report = &report
			}
			publish(e.WorkflowID, &ev)
		},
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			publish(e.WorkflowID, e)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			publish(e.WorkflowID, e)
		},
	}
}
