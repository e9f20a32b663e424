package troubleshoot

import (
	"context"

	"github.com/fyrsmithlabs/orchestd/internal/health"
)

// Failure is a raw failure signal from task execution or a health check.
type Failure struct {
	// Message is the failure text. Required.
	Message string `json:"message"`

	// Trace is an optional stack or execution trace.
	Trace string `json:"trace,omitempty"`

	// Source is optional source context around the failure site.
	Source string `json:"source,omitempty"`
}

// Cause is one candidate root cause.
type Cause struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Diagnosis is the classified analysis of one failure signal.
type Diagnosis struct {
	// Type is the primary issue classification.
	Type health.IssueType `json:"type"`

	// Severity is 1-10.
	Severity int `json:"severity"`

	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Pattern names the matching rule, or "" when the deep analyzer
	// (or the unknown fallback) produced the diagnosis.
	Pattern string `json:"pattern,omitempty"`

	// Causes are candidate root causes, ordered by descending
	// confidence, at most maxRootCauses entries.
	Causes []Cause `json:"causes,omitempty"`
}

// DeepAnalyzer is the opaque, possibly slow external analysis capability.
// It returns a JSON document with type, severity, confidence and causes;
// output that cannot be parsed degrades to the unknown classification.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, failure Failure) (string, error)
}
