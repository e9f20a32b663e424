package remediation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/health"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/remediation"

// StepRunner executes one solution step against an artifact. It is the
// opaque capability that actually edits, rolls back, and verifies.
type StepRunner interface {
	Run(ctx context.Context, artifact string, step Step) error
}

// StepRunnerFunc adapts a function to StepRunner.
type StepRunnerFunc func(ctx context.Context, artifact string, step Step) error

func (f StepRunnerFunc) Run(ctx context.Context, artifact string, step Step) error {
	return f(ctx, artifact, step)
}

// Coordinator applies ranked solutions one at a time under the attempt
// budget. Episodes for the same artifact are serialized; different
// artifacts may remediate concurrently.
type Coordinator struct {
	cfg       config.RemediationConfig
	generator Generator
	runner    StepRunner
	events    *telemetry.EventBus
	logger    *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	episodeCounter  metric.Int64Counter
	attemptCounter  metric.Int64Counter
	rollbackCounter metric.Int64Counter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	audit []Episode
}

// NewCoordinator creates a remediation coordinator.
func NewCoordinator(cfg config.RemediationConfig, generator Generator, runner StepRunner, events *telemetry.EventBus, logger *zap.Logger) (*Coordinator, error) {
	if generator == nil {
		return nil, errors.New("remediation: generator is required")
	}
	if runner == nil {
		return nil, errors.New("remediation: step runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		cfg:       cfg,
		generator: generator,
		runner:    runner,
		events:    events,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
		locks:     make(map[string]*sync.Mutex),
	}
	c.initMetrics()
	return c, nil
}

func (c *Coordinator) initMetrics() {
	var err error

	c.episodeCounter, err = c.meter.Int64Counter(
		"orchestd.remediation.episodes_total",
		metric.WithDescription("Total number of remediation episodes"),
		metric.WithUnit("{episode}"),
	)
	if err != nil {
		c.logger.Warn("failed to create episode counter", zap.Error(err))
	}

	c.attemptCounter, err = c.meter.Int64Counter(
		"orchestd.remediation.attempts_total",
		metric.WithDescription("Total number of solution attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		c.logger.Warn("failed to create attempt counter", zap.Error(err))
	}

	c.rollbackCounter, err = c.meter.Int64Counter(
		"orchestd.remediation.rollbacks_total",
		metric.WithDescription("Total number of rollbacks executed"),
		metric.WithUnit("{rollback}"),
	)
	if err != nil {
		c.logger.Warn("failed to create rollback counter", zap.Error(err))
	}
}

// artifactLock returns the per-artifact serialization lock.
func (c *Coordinator) artifactLock(artifact string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[artifact]
	if !ok {
		l = &sync.Mutex{}
		c.locks[artifact] = l
	}
	return l
}

// Remediate runs one bounded episode for an artifact. It returns the
// terminal episode record; exhausting all candidates is reported through
// the episode state, not as an error. Errors are reserved for invalid
// input and generation failures where no attempt was possible.
func (c *Coordinator) Remediate(ctx context.Context, artifact string, issues []health.Issue) (*Episode, error) {
	ctx, span := c.tracer.Start(ctx, "remediation.remediate")
	defer span.End()

	if artifact == "" {
		return nil, errors.New("remediation: artifact is required")
	}
	if len(issues) == 0 {
		return nil, errors.New("remediation: at least one issue is required")
	}

	lock := c.artifactLock(artifact)
	lock.Lock()
	defer lock.Unlock()

	episode := &Episode{
		ID:        uuid.NewString(),
		Artifact:  artifact,
		Issues:    issues,
		State:     StatePending,
		StartedAt: time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.String("artifact", artifact),
		attribute.String("episode_id", episode.ID),
		attribute.Int("issue_count", len(issues)),
	)

	candidates, err := c.generator.Generate(ctx, artifact, issues)
	if err != nil {
		return nil, fmt.Errorf("failed to generate solutions: %w", err)
	}
	if len(candidates) == 0 {
		c.logger.Warn("no applicable solutions generated",
			zap.String("artifact", artifact),
			zap.Int("issue_count", len(issues)),
		)
		c.finish(ctx, episode, StateFailed)
		return episode, nil
	}

	budget := c.cfg.MaxAttempts
	if budget > len(candidates) {
		budget = len(candidates)
	}

	for i := 0; i < budget; i++ {
		sol := candidates[i]
		attempt := Attempt{Solution: sol, StartedAt: time.Now().UTC()}

		c.logger.Info("applying solution",
			zap.String("artifact", artifact),
			zap.String("episode_id", episode.ID),
			zap.String("solution_id", sol.ID),
			zap.String("solution_type", string(sol.Type)),
			zap.Float64("confidence", sol.Confidence),
			zap.Int("attempt", i+1),
		)
		if c.attemptCounter != nil {
			c.attemptCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("solution_type", string(sol.Type)),
			))
		}

		episode.State = StateApplying
		applyErr := c.runSteps(ctx, artifact, sol.Steps)

		if applyErr == nil {
			episode.State = StateVerifying
			applyErr = c.runSteps(ctx, artifact, sol.Verification)
		}

		if applyErr == nil {
			attempt.State = StateSucceeded
			attempt.FinishedAt = time.Now().UTC()
			episode.Attempts = append(episode.Attempts, attempt)
			c.finish(ctx, episode, StateSucceeded)
			return episode, nil
		}

		// Failed apply or verification: roll back before the next
		// candidate so each attempt starts from a clean artifact.
		c.logger.Warn("solution did not verify, rolling back",
			zap.String("artifact", artifact),
			zap.String("solution_id", sol.ID),
			zap.Error(applyErr),
		)
		c.rollback(ctx, artifact, sol)

		attempt.State = StateRolledBack
		attempt.Error = applyErr.Error()
		attempt.FinishedAt = time.Now().UTC()
		episode.Attempts = append(episode.Attempts, attempt)
		episode.State = StateRolledBack
	}

	c.finish(ctx, episode, StateFailed)
	return episode, nil
}

// AuditTrail returns a copy of retained episode records, oldest first.
func (c *Coordinator) AuditTrail() []Episode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Episode, len(c.audit))
	copy(out, c.audit)
	return out
}

func (c *Coordinator) runSteps(ctx context.Context, artifact string, steps []Step) error {
	for _, step := range steps {
		if err := c.runner.Run(ctx, artifact, step); err != nil {
			return fmt.Errorf("step %q: %w", step.Description, err)
		}
	}
	return nil
}

// rollback is best effort: a failing rollback step is logged and the
// remaining steps still run.
func (c *Coordinator) rollback(ctx context.Context, artifact string, sol Solution) {
	if c.rollbackCounter != nil {
		c.rollbackCounter.Add(ctx, 1)
	}
	for _, step := range sol.Rollback {
		if err := c.runner.Run(ctx, artifact, step); err != nil {
			c.logger.Error("rollback step failed",
				zap.String("artifact", artifact),
				zap.String("solution_id", sol.ID),
				zap.String("step", step.Description),
				zap.Error(err),
			)
		}
	}
}

// finish records the terminal state, appends the episode to the bounded
// audit trail, and emits the outcome event.
func (c *Coordinator) finish(ctx context.Context, episode *Episode, state EpisodeState) {
	episode.State = state
	episode.CompletedAt = time.Now().UTC()

	c.mu.Lock()
	c.audit = append(c.audit, *episode)
	if max := c.cfg.AuditTrailSize; max > 0 && len(c.audit) > max {
		c.audit = c.audit[len(c.audit)-max:]
	}
	c.mu.Unlock()

	if c.episodeCounter != nil {
		c.episodeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(state)),
		))
	}
	c.logger.Info("remediation episode finished",
		zap.String("artifact", episode.Artifact),
		zap.String("episode_id", episode.ID),
		zap.String("state", string(state)),
		zap.Int("attempts", len(episode.Attempts)),
	)
	if c.events != nil {
		c.events.Publish(telemetry.Event{
			Type:     telemetry.EventRemediationOutcome,
			Artifact: episode.Artifact,
			Fields: map[string]any{
				"episode_id": episode.ID,
				"state":      string(state),
				"attempts":   len(episode.Attempts),
			},
		})
	}
}
