package domain

import "time"

// RunMode records how a run was started. It is carried for observability only.
type RunMode string

const (
	RunModeManual    RunMode = "manual"
	RunModeScheduled RunMode = "scheduled"
	RunModeTriggered RunMode = "triggered"
)

// Status is the result classification of a single node execution.
type Status string

const (
	// StatusSucceeded means the node did its work.
	StatusSucceeded Status = "succeeded"
	// StatusSkipped means a precondition was missing; nothing was attempted.
	StatusSkipped Status = "skipped"
	// StatusFailed means an external call or the handler itself failed.
	StatusFailed Status = "failed"
	// StatusShortCircuited means the node stopped propagation to its successors.
	StatusShortCircuited Status = "short_circuited"
)

// Result is what a capability handler returns to the traversal engine.
type Result struct {
	Status Status
	Reason string
	Err    error
}

// Succeeded builds a success result.
func Succeeded() Result { return Result{Status: StatusSucceeded} }

// Skipped builds a skip result with the missing precondition as reason.
func Skipped(reason string) Result { return Result{Status: StatusSkipped, Reason: reason} }

// Failed builds a failure result.
func Failed(reason string, err error) Result {
	return Result{Status: StatusFailed, Reason: reason, Err: err}
}

// ShortCircuited builds a result that halts the branch below the node.
func ShortCircuited(reason string) Result {
	return Result{Status: StatusShortCircuited, Reason: reason}
}

// Outcome is the recorded result of one node in one run.
type Outcome struct {
	NodeID     string        `json:"node_id"`
	Capability Capability    `json:"capability"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// RunReport aggregates every outcome of a run.
type RunReport struct {
	RunID        string         `json:"run_id"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	Mode         RunMode        `json:"mode"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Outcomes     []Outcome      `json:"outcomes"`
	Context      map[string]any `json:"context,omitempty"`
}

// Failed reports whether any node of the run failed.
func (r *RunReport) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Outcome returns the recorded outcome of a node, if it ran.
func (r *RunReport) Outcome(nodeID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.NodeID == nodeID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Visited returns the ids of every node that was dispatched, in completion order.
func (r *RunReport) Visited() []string {
	ids := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		ids = append(ids, o.NodeID)
	}
	return ids
}

// RunStatus is the coarse result stored in the run log.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "Success"
	RunStatusFailed  RunStatus = "Failed"
)

// RunRecord is the persisted summary of a finished run.
type RunRecord struct {
	RunID        string         `json:"run_id"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	Mode         RunMode        `json:"mode"`
	Status       RunStatus      `json:"status"`
	Input        map[string]any `json:"input,omitempty"`
	AIResponse   string         `json:"ai_response,omitempty"`
	Error        string         `json:"error,omitempty"`
	Outcomes     []Outcome      `json:"outcomes"`
	Timestamp    time.Time      `json:"timestamp"`
}
