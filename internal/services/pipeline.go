package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/health"
	"github.com/fyrsmithlabs/orchestd/internal/orchestrator"
	"github.com/fyrsmithlabs/orchestd/internal/remediation"
	"github.com/fyrsmithlabs/orchestd/internal/troubleshoot"
)

// ErrUnresolved reports a remediation episode that exhausted its budget.
var ErrUnresolved = errors.New("services: remediation episode failed")

// Pipeline is the analysis-to-remediation path shared by both triggers:
// the goal coordinator's critical-failure policy and the health monitor's
// continuous-monitoring loop.
//
// It classifies raw failures, turns them into health issues, and hands
// those to the remediation coordinator.
type Pipeline struct {
	analyzer    *troubleshoot.Service
	remediation *remediation.Coordinator
	logger      *zap.Logger
}

// NewPipeline creates the shared remediation pipeline.
func NewPipeline(analyzer *troubleshoot.Service, rem *remediation.Coordinator, logger *zap.Logger) (*Pipeline, error) {
	if analyzer == nil {
		return nil, errors.New("services: analyzer is required")
	}
	if rem == nil {
		return nil, errors.New("services: remediation coordinator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{analyzer: analyzer, remediation: rem, logger: logger}, nil
}

// ResolveCriticalFailures implements orchestrator.CriticalFailureHandler.
// Each failed task is classified and the resulting issue set goes through
// one remediation episode keyed on the goal.
func (p *Pipeline) ResolveCriticalFailures(ctx context.Context, goalID string, failed []orchestrator.TaskOutcome) (bool, error) {
	if len(failed) == 0 {
		return true, nil
	}

	issues := make([]health.Issue, 0, len(failed))
	for _, outcome := range failed {
		issues = append(issues, p.classify(ctx, outcome))
	}

	episode, err := p.remediation.Remediate(ctx, goalID, issues)
	if err != nil {
		return false, fmt.Errorf("remediate goal %s: %w", goalID, err)
	}
	return episode.Succeeded(), nil
}

// Remediate implements health.Remediator for the continuous-monitoring
// trigger. The monitor already classified its findings, so the issue set
// goes straight to the remediation coordinator.
func (p *Pipeline) Remediate(ctx context.Context, artifact string, issues []health.Issue) error {
	episode, err := p.remediation.Remediate(ctx, artifact, issues)
	if err != nil {
		return err
	}
	if !episode.Succeeded() {
		return fmt.Errorf("%w: artifact %s, %d attempts", ErrUnresolved, artifact, len(episode.Attempts))
	}
	return nil
}

// classify turns one failed task outcome into a health issue via the
// error analyzer.
func (p *Pipeline) classify(ctx context.Context, outcome orchestrator.TaskOutcome) health.Issue {
	failure := troubleshoot.Failure{Source: outcome.TaskID}
	if outcome.Error != nil {
		failure.Message = outcome.Error.Message
		failure.Trace = outcome.Error.Trace
	}
	if failure.Message == "" {
		failure.Message = fmt.Sprintf("task %s failed without detail", outcome.TaskID)
	}

	diagnosis, err := p.analyzer.Diagnose(ctx, failure)
	if err != nil {
		p.logger.Warn("failure classification failed",
			zap.String("task_id", outcome.TaskID),
			zap.Error(err),
		)
		return health.Issue{
			Type:        health.IssueRuntime,
			Severity:    health.CriticalSeverity,
			Description: failure.Message,
			Location:    outcome.TaskID,
		}
	}

	issue := health.Issue{
		Type:        diagnosis.Type,
		Severity:    diagnosis.Severity,
		Description: failure.Message,
		Location:    outcome.TaskID,
		RawError:    failure.Trace,
	}
	for _, cause := range p.analyzer.RootCauses(ctx, failure, diagnosis) {
		issue.Suggestions = append(issue.Suggestions, cause.Description)
	}
	return issue
}
