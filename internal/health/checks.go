package health

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Standard battery check names. The monitor itself is agnostic: checks
// are registered capabilities, and these names only establish the
// conventional battery order.
const (
	CheckStaticInspection = "static_inspection"
	CheckExecutionTests   = "execution_tests"
	CheckDependencyScan   = "dependency_scan"
	CheckSecurityScan     = "security_scan"
	CheckConfiguration    = "configuration_validation"
	CheckPerformance      = "performance_probe"
)

// Finding is one fresh observation from a single check pass. The monitor
// folds findings into accumulated Issues keyed on type+location.
type Finding struct {
	Type        IssueType `json:"type"`
	Severity    int       `json:"severity"` // 1-10
	Description string    `json:"description"`
	Location    string    `json:"location"`
	RawError    string    `json:"raw_error,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Validate rejects findings the monitor cannot accumulate.
func (f Finding) Validate() error {
	if f.Type == "" {
		return errors.New("finding type is required")
	}
	if f.Severity < 1 || f.Severity > 10 {
		return fmt.Errorf("finding severity must be in [1,10], got %d", f.Severity)
	}
	return nil
}

// Check inspects an artifact and reports zero or more findings.
type Check interface {
	// Name returns the check identifier.
	Name() string

	// Run inspects the artifact. An error means the check itself could
	// not run; it does not fail the whole battery.
	Run(ctx context.Context, artifact string) ([]Finding, error)
}

var checkNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

// NewCheck adapts a function to the Check interface.
func NewCheck(name string, run func(ctx context.Context, artifact string) ([]Finding, error)) (Check, error) {
	if !checkNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid check name %q", name)
	}
	if run == nil {
		return nil, errors.New("check function is required")
	}
	return &funcCheck{name: name, run: run}, nil
}

type funcCheck struct {
	name string
	run  func(ctx context.Context, artifact string) ([]Finding, error)
}

func (c *funcCheck) Name() string { return c.name }

func (c *funcCheck) Run(ctx context.Context, artifact string) ([]Finding, error) {
	return c.run(ctx, artifact)
}
