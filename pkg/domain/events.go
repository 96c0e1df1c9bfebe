package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart    EventType = "run_start"
	EventRunComplete EventType = "run_complete"
	EventNodeEnter   EventType = "node_enter"
	EventNodeLeave   EventType = "node_leave"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	Mode       RunMode   `json:"mode"`
}

// RunEvent marks the start or the end of a run.
type RunEvent struct {
	EventBase
	Report *RunReport `json:"report,omitempty"` // Only set on completion
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID     string     `json:"node_id"`
	Capability Capability `json:"capability"`
	Outcome    *Outcome   `json:"outcome,omitempty"` // Only set on leave
}

// LifecycleHooks defines callbacks for engine observability.
// Node hooks are invoked from the branch goroutines and must be safe for concurrent use.
type LifecycleHooks struct {
	OnRunStart    func(context.Context, *RunEvent)
	OnRunComplete func(context.Context, *RunEvent)
	OnNodeEnter   func(context.Context, *NodeEvent)
	OnNodeLeave   func(context.Context, *NodeEvent)
}

// CombineHooks fans every callback out to all the given hook sets, in order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *RunEvent) {
			for _, h := range hooks {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, e)
				}
			}
		},
		OnRunComplete: func(ctx context.Context, e *RunEvent) {
			for _, h := range hooks {
				if h.OnRunComplete != nil {
					h.OnRunComplete(ctx, e)
				}
			}
		},
		OnNodeEnter: func(ctx context.Context, e *NodeEvent) {
			for _, h := range hooks {
				if h.OnNodeEnter != nil {
					h.OnNodeEnter(ctx, e)
				}
			}
		},
		OnNodeLeave: func(ctx context.Context, e *NodeEvent) {
			for _, h := range hooks {
				if h.OnNodeLeave != nil {
					h.OnNodeLeave(ctx, e)
				}
			}
		},
	}
}
