package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/orchestrator"

// Executor runs one phase's tasks concurrently.
//
// It is the only writer of task state during a phase's execution window.
// The phase completes only when every task reaches a terminal status; one
// task's failure never cancels its siblings.
type Executor struct {
	cfg      config.OrchestratorConfig
	registry *worker.Registry
	stats    *worker.Stats
	events   *telemetry.EventBus
	logger   *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	taskCounter metric.Int64Counter
	taskSeconds metric.Float64Histogram
}

// NewExecutor creates a phase executor.
func NewExecutor(cfg config.OrchestratorConfig, registry *worker.Registry, events *telemetry.EventBus, logger *zap.Logger) (*Executor, error) {
	if registry == nil {
		return nil, errors.New("orchestrator: worker registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		cfg:      cfg,
		registry: registry,
		stats:    worker.NewStats(),
		events:   events,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *Executor) initMetrics() {
	var err error

	e.taskCounter, err = e.meter.Int64Counter(
		"orchestd.tasks_total",
		metric.WithDescription("Total number of task executions by terminal status"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		e.logger.Warn("failed to create task counter", zap.Error(err))
	}

	e.taskSeconds, err = e.meter.Float64Histogram(
		"orchestd.task_duration_seconds",
		metric.WithDescription("Task execution duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.logger.Warn("failed to create task duration histogram", zap.Error(err))
	}
}

// Stats returns the per-category execution totals, which persist across
// phases for the executor's lifetime.
func (e *Executor) Stats() *worker.Stats {
	return e.stats
}

// ExecutePhase runs every task of phase n and blocks until all of them
// are terminal. ctx cancellation only stops tasks that have not started;
// in-flight tasks finish so the artifact is never left half-written.
func (e *Executor) ExecutePhase(ctx context.Context, goalID string, g *graph.Graph, n int) (*PhaseReport, error) {
	ctx, span := e.tracer.Start(ctx, "orchestrator.execute_phase",
		trace.WithAttributes(
			attribute.String("goal_id", goalID),
			attribute.Int("phase", n),
		))
	defer span.End()

	ids := g.Phase(n)
	if len(ids) == 0 {
		return nil, fmt.Errorf("orchestrator: phase %d has no tasks", n)
	}

	report := &PhaseReport{Phase: n, Total: len(ids), StartedAt: time.Now().UTC()}
	e.publish(telemetry.Event{
		Type:   telemetry.EventPhaseStarted,
		GoalID: goalID,
		Phase:  n,
		Fields: map[string]any{"tasks": len(ids)},
	})

	group := &errgroup.Group{}
	if e.cfg.MaxConcurrency > 0 {
		group.SetLimit(e.cfg.MaxConcurrency)
	}

	for _, id := range ids {
		task := g.Task(id)
		group.Go(func() error {
			e.runTask(ctx, goalID, n, task)
			return nil
		})
	}
	// Phase barrier: nothing past this point until every task is
	// terminal.
	_ = group.Wait()

	report.FinishedAt = time.Now().UTC()
	for _, id := range ids {
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
		report.Outcomes = append(report.Outcomes, o)

		switch task.Status {
		case graph.StatusCompleted:
			report.Completed++
		case graph.StatusFailed:
			report.Failed++
		case graph.StatusCancelled:
			report.Cancelled++
		}
	}
	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].TaskID < report.Outcomes[j].TaskID
	})

	span.SetAttributes(
		attribute.Int("completed", report.Completed),
		attribute.Int("failed", report.Failed),
		attribute.Int("cancelled", report.Cancelled),
	)
	e.publish(telemetry.Event{
		Type:   telemetry.EventPhaseFinished,
		GoalID: goalID,
		Phase:  n,
		Fields: map[string]any{
			"completed": report.Completed,
			"failed":    report.Failed,
			"cancelled": report.Cancelled,
		},
	})
	return report, nil
}

// runTask drives one task to a terminal status.
func (e *Executor) runTask(ctx context.Context, goalID string, phase int, task *graph.Task) {
	// Not yet started when the goal was cancelled: do not start it.
	select {
	case <-ctx.Done():
		task.Status = graph.StatusCancelled
		task.Error = &graph.ErrorDetail{Message: ctx.Err().Error()}
		e.finishTask(ctx, goalID, phase, task)
		return
	default:
	}

	session := worker.NewSession(task.Category, task.ID)
	task.Status = graph.StatusRunning
	task.StartedAt = session.StartedAt.UTC()
	e.publish(telemetry.Event{
		Type:   telemetry.EventTaskStarted,
		GoalID: goalID,
		TaskID: task.ID,
		Phase:  phase,
	})

	result, err := e.invoke(ctx, task)

	task.CompletedAt = time.Now().UTC()
	if err != nil {
		task.Status = graph.StatusFailed
		task.Error = &graph.ErrorDetail{
			Message:  err.Error(),
			TimedOut: errors.Is(err, context.DeadlineExceeded),
		}
		var pe *panicError
		if errors.As(err, &pe) {
			task.Error.Trace = string(pe.stack)
		}
		e.stats.RecordFailed(task.Category)
		e.logger.Warn("task failed",
			zap.String("goal_id", goalID),
			zap.String("task_id", task.ID),
			zap.String("category", task.Category),
			zap.Bool("timed_out", task.Error.TimedOut),
			zap.Error(err),
		)
	} else {
		task.Status = graph.StatusCompleted
		task.Result = result
		e.stats.RecordCompleted(task.Category)
		e.logger.Debug("task completed",
			zap.String("goal_id", goalID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", task.CompletedAt.Sub(task.StartedAt)),
		)
	}
	e.finishTask(ctx, goalID, phase, task)
}

// invoke resolves the worker and runs it under the task's timeout. A
// started task is detached from goal cancellation so it can finish
// cleanly; only the deadline bounds it.
func (e *Executor) invoke(ctx context.Context, task *graph.Task) (result json.RawMessage, err error) {
	w, err := e.registry.Resolve(task.Category)
	if err != nil {
		return nil, err
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.cfg.TaskTimeout.Duration()
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return w.Execute(runCtx, task)
}

func (e *Executor) finishTask(ctx context.Context, goalID string, phase int, task *graph.Task) {
	if e.taskCounter != nil {
		e.taskCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", task.Category),
			attribute.String("status", string(task.Status)),
		))
	}
	if e.taskSeconds != nil && !task.StartedAt.IsZero() && !task.CompletedAt.IsZero() {
		e.taskSeconds.Record(ctx, task.CompletedAt.Sub(task.StartedAt).Seconds(),
			metric.WithAttributes(attribute.String("category", task.Category)))
	}
	e.publish(telemetry.Event{
		Type:   telemetry.EventTaskFinished,
		GoalID: goalID,
		TaskID: task.ID,
		Phase:  phase,
		Fields: map[string]any{"status": string(task.Status)},
	})
}

func (e *Executor) publish(ev telemetry.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}

// panicError turns a worker panic into an ordinary task failure so one
// panicking task cannot take down the phase.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("worker panic: %v", p.value)
}
