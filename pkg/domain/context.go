package domain

import (
	"fmt"
	"maps"
	"sync"
)

// Well-known execution context slots.
const (
	SlotIdentity     = "identity"
	SlotName         = "name"
	SlotEmail        = "email"
	SlotPhone        = "phone"
	SlotPayload      = "payload"
	SlotExternalData = "externalData"
	SlotAIResponse   = "aiResponse"
)

// ExecutionContext is the mutable slot map shared by every node of one run.
//
// Parallel branches write to it without coordination: the last write to a slot
// wins. The mutex only keeps the underlying map memory safe.
type ExecutionContext struct {
	mu    sync.Mutex
	slots map[string]any
}

// NewExecutionContext creates a context pre-populated with a copy of seed.
func NewExecutionContext(seed map[string]any) *ExecutionContext {
	slots := make(map[string]any, len(seed)+4)
	maps.Copy(slots, seed)
	return &ExecutionContext{slots: slots}
}

// Get returns the raw value stored in a slot.
func (c *ExecutionContext) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.slots[key]
	return v, ok
}

// String returns the slot value rendered as a string, or "" when absent.
func (c *ExecutionContext) String(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Set writes a slot, replacing any previous value.
func (c *ExecutionContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[key] = value
}

// Snapshot returns a shallow copy of all slots.
func (c *ExecutionContext) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.slots)
}
