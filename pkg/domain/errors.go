package domain

import "errors"

// ErrWorkflowNotFound is returned when a workflow ID cannot be found in the repository.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrWriteConflict is returned when a workflow was modified concurrently by another writer.
var ErrWriteConflict = errors.New("workflow write conflict")

// ErrInvalidWorkflow is returned when a workflow definition violates the graph invariants.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// ErrNotActive is returned by Deactivate when the workflow has no schedule registered.
// Callers should treat it as a no-op rather than a failure.
var ErrNotActive = errors.New("workflow not active")

// ErrRateLimited is returned by providers when the upstream service throttled the request.
var ErrRateLimited = errors.New("provider rate limited")

// ErrEngineClosed is returned when a run is requested after the engine began shutting down.
var ErrEngineClosed = errors.New("engine is shutting down")
