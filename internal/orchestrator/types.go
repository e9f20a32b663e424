// Package orchestrator drives a goal's task graph phase by phase.
//
// The executor runs one phase's tasks concurrently with failure isolation
// and a barrier at the end. The coordinator sequences phases, applies the
// critical-failure policy, and aggregates a structured goal result.
package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

// TaskOutcome is the terminal record of one task execution.
type TaskOutcome struct {
	TaskID   string             `json:"task_id"`
	Category string             `json:"category"`
	Priority int                `json:"priority"`
	Status   graph.Status       `json:"status"`
	Duration time.Duration      `json:"duration,omitempty"`
	Error    *graph.ErrorDetail `json:"error,omitempty"`
}

// PhaseReport aggregates one phase's outcomes. Outcomes are sorted by
// task ID for reproducible reporting.
type PhaseReport struct {
	Phase      int           `json:"phase"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Cancelled  int           `json:"cancelled"`
	Outcomes   []TaskOutcome `json:"outcomes"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// FailedTasks returns the phase's failed outcomes.
func (r *PhaseReport) FailedTasks() []TaskOutcome {
	var out []TaskOutcome
	for _, o := range r.Outcomes {
		if o.Status == graph.StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// GoalResult is the structured outcome of one goal. Callers always get
// one of these, never a bare error, for anything past graph validation.
type GoalResult struct {
	GoalID    string        `json:"goal_id"`
	Phases    []PhaseReport `json:"phases"`
	Outcomes  []TaskOutcome `json:"outcomes"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`

	// SuccessRatio is completed over total.
	SuccessRatio float64 `json:"success_ratio"`

	// Aborted is set when an unresolved critical failure stopped the
	// goal before its last phase.
	Aborted        bool `json:"aborted"`
	AbortedAtPhase int  `json:"aborted_at_phase,omitempty"`

	// RemediationAttempted and RemediationResolved describe the
	// critical-failure recovery path, when it ran.
	RemediationAttempted bool `json:"remediation_attempted"`
	RemediationResolved  bool `json:"remediation_resolved"`

	// WorkerStats are the per-category execution totals accumulated by
	// the executor, including activity from earlier goals on the same
	// coordinator.
	WorkerStats map[string]worker.CategoryStats `json:"worker_stats,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether every task completed.
func (r *GoalResult) Succeeded() bool {
	return !r.Aborted && r.Failed == 0 && r.Cancelled == 0 && r.Total > 0
}
