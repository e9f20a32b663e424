package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
)

// CriticalFailureHandler resolves critical task failures before the goal
// is allowed to continue. Implementations run the analysis and
// remediation pipeline; the coordinator only cares whether the failures
// were resolved.
type CriticalFailureHandler interface {
	ResolveCriticalFailures(ctx context.Context, goalID string, failed []TaskOutcome) (resolved bool, err error)
}

// CriticalFailureHandlerFunc adapts a function to CriticalFailureHandler.
type CriticalFailureHandlerFunc func(ctx context.Context, goalID string, failed []TaskOutcome) (bool, error)

func (f CriticalFailureHandlerFunc) ResolveCriticalFailures(ctx context.Context, goalID string, failed []TaskOutcome) (bool, error) {
	return f(ctx, goalID, failed)
}

// Coordinator drives one goal's graph from its first phase to its last,
// with a barrier between phases and the critical-failure policy applied
// after each one.
type Coordinator struct {
	cfg      config.OrchestratorConfig
	executor *Executor
	handler  CriticalFailureHandler
	events   *telemetry.EventBus
	logger   *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	goalCounter metric.Int64Counter
}

// NewCoordinator creates a goal coordinator. handler may be nil, in which
// case critical failures abort the goal without a remediation attempt.
func NewCoordinator(cfg config.OrchestratorConfig, executor *Executor, handler CriticalFailureHandler, events *telemetry.EventBus, logger *zap.Logger) (*Coordinator, error) {
	if executor == nil {
		return nil, errors.New("orchestrator: executor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		cfg:      cfg,
		executor: executor,
		handler:  handler,
		events:   events,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	var err error
	c.goalCounter, err = c.meter.Int64Counter(
		"orchestd.goals_total",
		metric.WithDescription("Total number of goals by outcome"),
		metric.WithUnit("{goal}"),
	)
	if err != nil {
		c.logger.Warn("failed to create goal counter", zap.Error(err))
	}
	return c, nil
}

// Run executes a goal. Graph validation errors (cycles, dangling
// dependencies) are fatal and nothing runs; past that point Run always
// returns a structured GoalResult, including for aborted goals.
func (c *Coordinator) Run(ctx context.Context, goalID string, specs []graph.TaskSpec) (*GoalResult, error) {
	if goalID == "" {
		goalID = uuid.NewString()
	}
	ctx, span := c.tracer.Start(ctx, "orchestrator.run_goal",
		trace.WithAttributes(attribute.String("goal_id", goalID)))
	defer span.End()

	g, err := graph.Build(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid task graph: %w", err)
	}

	result := &GoalResult{
		GoalID:    goalID,
		Total:     g.Len(),
		StartedAt: time.Now().UTC(),
	}
	c.logger.Info("goal started",
		zap.String("goal_id", goalID),
		zap.Int("tasks", g.Len()),
		zap.Int("phases", g.PhaseCount()),
	)

	for n := 1; n <= g.PhaseCount(); n++ {
		report, err := c.executor.ExecutePhase(ctx, goalID, g, n)
		if err != nil {
			return nil, err
		}
		result.Phases = append(result.Phases, *report)

		critical := c.criticalFailures(report)
		if len(critical) == 0 {
			continue
		}

		resolved := c.remediate(ctx, goalID, n, critical, result)
		if resolved {
			continue
		}

		// Later phases may depend on the unresolved output.
		c.logger.Error("critical failure unresolved, aborting goal",
			zap.String("goal_id", goalID),
			zap.Int("phase", n),
			zap.Int("critical_failures", len(critical)),
		)
		result.Aborted = true
		result.AbortedAtPhase = n
		c.cancelRemaining(g, n+1)
		break
	}

	c.aggregate(g, result)
	span.SetAttributes(
		attribute.Bool("aborted", result.Aborted),
		attribute.Float64("success_ratio", result.SuccessRatio),
	)
	if c.goalCounter != nil {
		outcome := "succeeded"
		switch {
		case result.Aborted:
			outcome = "aborted"
		case result.Failed > 0 || result.Cancelled > 0:
			outcome = "degraded"
		}
		c.goalCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	c.logger.Info("goal finished",
		zap.String("goal_id", goalID),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("cancelled", result.Cancelled),
		zap.Bool("aborted", result.Aborted),
		zap.Float64("success_ratio", result.SuccessRatio),
	)
	return result, nil
}

// criticalFailures returns the phase's failed tasks at or above the
// critical priority threshold.
func (c *Coordinator) criticalFailures(report *PhaseReport) []TaskOutcome {
	var out []TaskOutcome
	for _, o := range report.FailedTasks() {
		if o.Priority >= c.cfg.CriticalPriority {
			out = append(out, o)
		}
	}
	return out
}

// remediate hands critical failures to the handler and reports whether
// the goal may continue. A handler error counts as unresolved.
func (c *Coordinator) remediate(ctx context.Context, goalID string, phase int, critical []TaskOutcome, result *GoalResult) bool {
	if c.handler == nil {
		return false
	}

	result.RemediationAttempted = true
	c.logger.Warn("critical task failures, attempting remediation",
		zap.String("goal_id", goalID),
		zap.Int("phase", phase),
		zap.Int("critical_failures", len(critical)),
	)

	resolved, err := c.handler.ResolveCriticalFailures(ctx, goalID, critical)
	if err != nil {
		c.logger.Error("remediation failed",
			zap.String("goal_id", goalID),
			zap.Int("phase", phase),
			zap.Error(err),
		)
		return false
	}
	result.RemediationResolved = resolved
	return resolved
}

// cancelRemaining marks every pending task from phase n onward as
// cancelled so the goal result accounts for all tasks.
func (c *Coordinator) cancelRemaining(g *graph.Graph, n int) {
	now := time.Now().UTC()
	for p := n; p <= g.PhaseCount(); p++ {
		for _, id := range g.Phase(p) {
			task := g.Task(id)
			if task.Status.IsTerminal() {
				continue
			}
			task.Status = graph.StatusCancelled
			task.CompletedAt = now
			task.Error = &graph.ErrorDetail{Message: "goal aborted before this phase"}
		}
	}
}

// aggregate fills the goal-level outcome list and counters. Outcomes are
// sorted by task ID.
func (c *Coordinator) aggregate(g *graph.Graph, result *GoalResult) {
	for _, id := range g.IDs() {
		task := g.Task(id)
		o := TaskOutcome{
			TaskID:   task.ID,
			Category: task.Category,
			Priority: task.Priority,
			Status:   task.Status,
			Error:    task.Error,
		}
		if !task.StartedAt.IsZero() && !task.CompletedAt.IsZero() {
			o.Duration = task.CompletedAt.Sub(task.StartedAt)
		}
		result.Outcomes = append(result.Outcomes, o)

		switch task.Status {
		case graph.StatusCompleted:
			result.Completed++
		case graph.StatusFailed:
			result.Failed++
		default:
			result.Cancelled++
		}
	}
	sort.Slice(result.Outcomes, func(i, j int) bool {
		return result.Outcomes[i].TaskID < result.Outcomes[j].TaskID
	})
	if result.Total > 0 {
		result.SuccessRatio = float64(result.Completed) / float64(result.Total)
	}
	result.WorkerStats = c.executor.Stats().Snapshot()
	result.FinishedAt = time.Now().UTC()
}
