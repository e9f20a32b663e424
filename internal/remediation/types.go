// Package remediation generates ranked candidate solutions for health
// issues and applies them under a bounded attempt budget.
package remediation

import (
	"time"

	"github.com/fyrsmithlabs/orchestd/internal/health"
)

// SolutionType is the fixed solution taxonomy.
type SolutionType string

const (
	SolutionCodeFix             SolutionType = "code_fix"
	SolutionConfigurationChange SolutionType = "configuration_change"
	SolutionDependencyUpdate    SolutionType = "dependency_update"
	SolutionArchitecturalChange SolutionType = "architectural_change"
	SolutionSecurityPatch       SolutionType = "security_patch"
	SolutionPerformanceChange   SolutionType = "performance_change"
)

// RiskLevel grades the blast radius of applying a solution.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment summarizes what applying a solution could break.
type RiskAssessment struct {
	Level    RiskLevel `json:"level"`
	Concerns []string  `json:"concerns,omitempty"`
}

// Step is one executable unit of a solution plan. The step runner
// interprets it; the coordinator only sequences it.
type Step struct {
	Description string `json:"description"`
	Target      string `json:"target,omitempty"`
}

// Solution is one candidate remediation plan. Solutions are generated
// fresh per episode and survive only in the episode's audit record.
type Solution struct {
	ID              string         `json:"id"`
	Type            SolutionType   `json:"type"`
	Description     string         `json:"description"`
	Confidence      float64        `json:"confidence"` // [0,1]
	Complexity      int            `json:"complexity"` // 1-10
	EstimatedEffort string         `json:"estimated_effort,omitempty"`
	Targets         []string       `json:"targets,omitempty"`
	Steps           []Step         `json:"steps"`
	Rollback        []Step         `json:"rollback,omitempty"`
	Verification    []Step         `json:"verification"`
	Risk            RiskAssessment `json:"risk"`
}

// EpisodeState is the remediation episode state machine.
//
// pending -> applying -> verifying -> {succeeded | rolled_back};
// rolled_back returns to applying with the next candidate, or moves to
// failed when the budget or candidate list is exhausted. succeeded and
// failed are terminal.
type EpisodeState string

const (
	StatePending    EpisodeState = "pending"
	StateApplying   EpisodeState = "applying"
	StateVerifying  EpisodeState = "verifying"
	StateSucceeded  EpisodeState = "succeeded"
	StateRolledBack EpisodeState = "rolled_back"
	StateFailed     EpisodeState = "failed"
)

// Terminal reports whether the state ends an episode.
func (s EpisodeState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Attempt records the outcome of applying one candidate solution.
// State is succeeded or rolled_back.
type Attempt struct {
	Solution   Solution     `json:"solution"`
	State      EpisodeState `json:"state"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Episode is the audit record of one bounded remediation sequence for
// one artifact.
type Episode struct {
	ID          string         `json:"id"`
	Artifact    string         `json:"artifact"`
	Issues      []health.Issue `json:"issues"`
	State       EpisodeState   `json:"state"`
	Attempts    []Attempt      `json:"attempts"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Succeeded reports whether the episode resolved its issues.
func (e *Episode) Succeeded() bool {
	return e.State == StateSucceeded
}
