// Package health scores artifact health and drives continuous monitoring.
//
// A Monitor runs a battery of registered checks against an artifact,
// accumulates the issues they find, and produces scored point-in-time
// reports. With continuous monitoring enabled it re-runs the battery on an
// interval and hands newly detected critical issues to the remediation
// path out of band.
package health

import (
	"time"
)

// IssueType is the fixed issue taxonomy.
type IssueType string

const (
	IssueSyntax        IssueType = "syntax"
	IssueRuntime       IssueType = "runtime"
	IssueLogic         IssueType = "logic"
	IssuePerformance   IssueType = "performance"
	IssueSecurity      IssueType = "security"
	IssueDependency    IssueType = "dependency"
	IssueConfiguration IssueType = "configuration"
	IssueIntegration   IssueType = "integration"
)

// CriticalSeverity is the severity at or above which an issue forces
// critical status and triggers out-of-band remediation.
const CriticalSeverity = 8

// Issue is one detected health problem. Issues accumulate across repeated
// checks of the same artifact, matched on type+location, rather than
// duplicating.
type Issue struct {
	ID          string    `json:"id"`
	Type        IssueType `json:"type"`
	Severity    int       `json:"severity"` // 1-10
	Description string    `json:"description"`
	Location    string    `json:"location"`
	RawError    string    `json:"raw_error,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Occurrences int       `json:"occurrences"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Critical reports whether the issue forces critical status.
func (i Issue) Critical() bool {
	return i.Severity >= CriticalSeverity
}

// Status summarizes a report.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusFailing   Status = "failing"
)

// Report is a point-in-time health snapshot for one artifact.
type Report struct {
	ID              string    `json:"id"`
	Artifact        string    `json:"artifact"`
	Timestamp       time.Time `json:"timestamp"`
	Issues          []Issue   `json:"issues"`
	Score           float64   `json:"score"` // [0.0, 1.0]
	Status          Status    `json:"status"`
	Recommendations []string  `json:"recommendations,omitempty"`
}
