// Package graph holds the task model and the phase planner.
//
// A goal is described as a set of TaskSpecs with dependency edges. Build
// validates the set (fail closed on cycles and dangling dependencies) and
// levels it into execution phases: every dependency of a task in phase k
// lives in a phase before k, and every task runs as early as its
// dependencies allow.
package graph

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskSpec is the immutable description of one unit of work.
type TaskSpec struct {
	// ID uniquely identifies the task within one goal.
	ID string `json:"id"`

	// Category selects the worker that executes this task.
	Category string `json:"category"`

	// Description is human-readable.
	Description string `json:"description"`

	// Priority breaks ties within a phase (lower sorts earlier) and,
	// against the configured critical threshold, decides whether a
	// failure halts the goal.
	Priority int `json:"priority"`

	// DependsOn lists task IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`

	// Params is an opaque parameter bag passed to the worker.
	Params map[string]any `json:"params,omitempty"`

	// Timeout overrides the orchestrator's default per-task timeout
	// when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ErrorDetail captures why a task failed.
type ErrorDetail struct {
	Message  string `json:"message"`
	Trace    string `json:"trace,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Task is the runtime record for one TaskSpec. Task state is mutated only
// by the phase executor during that phase's execution window.
type Task struct {
	TaskSpec

	Status      Status          `json:"status"`
	StartedAt   time.Time       `json:"started_at,omitzero"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *ErrorDetail    `json:"error,omitempty"`
}
