package middleware

import "github.com/aretw0/autoflow/pkg/ports"

// Middleware allows wrapping a WorkflowRepository to add behavior.
type Middleware func(ports.WorkflowRepository) ports.WorkflowRepository

// RunLogMiddleware allows wrapping a RunLog to add behavior.
type RunLogMiddleware func(ports.RunLog) ports.RunLog
