package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/ports"
)

const (
	// DefaultCooldown is the pause enforced before every text generation call.
	DefaultCooldown = 5 * time.Second
	// DefaultFetchTimeout bounds the outbound fetch capability.
	DefaultFetchTimeout = 10 * time.Second
)

// Handler performs the side effect of one capability.
// It may mutate the execution context and must report what happened as a Result.
type Handler func(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) domain.Result

// Dispatcher maps capability tags to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.Capability]Handler

	providers    ports.Providers
	logger       *slog.Logger
	cooldown     time.Duration
	fetchTimeout time.Duration
	sleep        func(context.Context, time.Duration) error
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger used by handlers.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithCooldown overrides the pause before text generation calls.
func WithCooldown(dur time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.cooldown = dur
	}
}

// WithFetchTimeout overrides the default timeout of the fetch capability.
func WithFetchTimeout(dur time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.fetchTimeout = dur
	}
}

// WithSleeper replaces the cool-down wait (useful for tests).
func WithSleeper(fn func(context.Context, time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) {
		d.sleep = fn
	}
}

// NewDispatcher creates a dispatcher with the built-in capability handlers registered.
func NewDispatcher(providers ports.Providers, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers:     make(map[domain.Capability]Handler),
		providers:    providers,
		logger:       logging.NewNop(),
		cooldown:     DefaultCooldown,
		fetchTimeout: DefaultFetchTimeout,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.providers.HTTP == nil {
		d.providers.HTTP = http.DefaultClient
	}

	d.Register(domain.CapabilityTrigger, d.trigger)
	d.Register(domain.CapabilityFetch, d.fetch)
	d.Register(domain.CapabilityTransform, d.transform)
	d.Register(domain.CapabilityNotifyEmail, d.notifyEmail)
	d.Register(domain.CapabilityNotifyWhatsApp, d.notifyWhatsApp)
	d.Register(domain.CapabilityWebhook, d.webhook)
	return d
}

// Register binds a handler to a capability, replacing any previous binding.
func (d *Dispatcher) Register(c domain.Capability, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[c] = h
}

// Capabilities lists the registered capability tags.
func (d *Dispatcher) Capabilities() []domain.Capability {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Capability, 0, len(d.handlers))
	for c := range d.handlers {
		out = append(out, c)
	}
	return out
}

// Dispatch runs the handler bound to the node's capability.
// Unknown capabilities are skipped. A panicking handler is reported as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, node *domain.Node, ec *domain.ExecutionContext) (res domain.Result) {
	d.mu.RLock()
	h, ok := d.handlers[node.Capability]
	d.mu.RUnlock()
	if !ok {
		return domain.Skipped(fmt.Sprintf("unknown capability %q", node.Capability))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("node handler panicked",
				"node_id", node.ID,
				"capability", node.Capability,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = domain.Failed("handler panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	return h(ctx, node, ec)
}

func sleepContext(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
