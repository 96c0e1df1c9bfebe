package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/autoflow/pkg/domain"
)

// LoggingHooks logs node transitions at debug level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"run_id", e.RunID,
				"node_id", e.NodeID,
				"capability", e.Capability,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{"run_id", e.RunID, "node_id", e.NodeID}
			if e.Outcome != nil {
				attrs = append(attrs, "status", e.Outcome.Status, "duration", e.Outcome.Duration)
			}
			logger.DebugContext(ctx, "node_leave", attrs...)
		},
	}
}
