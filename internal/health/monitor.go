package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/health"

// Remediator receives critical issue sets detected by continuous
// monitoring. Implementations serialize episodes per artifact.
type Remediator interface {
	Remediate(ctx context.Context, artifact string, issues []Issue) error
}

// Monitor runs check batteries and retains per-artifact issue state and
// report history.
type Monitor struct {
	cfg        config.HealthConfig
	remediator Remediator
	events     *telemetry.EventBus
	logger     *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	checkCounter  metric.Int64Counter
	issueCounter  metric.Int64Counter
	reportCounter metric.Int64Counter

	mu        sync.Mutex
	checks    []Check
	artifacts map[string]*artifactState
	closed    bool
}

// artifactState accumulates issues and reports for one artifact.
type artifactState struct {
	issues  map[string]*Issue // key: type|location
	history []*Report         // ring, bounded by cfg.HistorySize
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor. remediator and events may be nil.
func NewMonitor(cfg config.HealthConfig, remediator Remediator, events *telemetry.EventBus, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		cfg:        cfg,
		remediator: remediator,
		events:     events,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
		artifacts:  make(map[string]*artifactState),
	}
	m.initMetrics()
	return m
}

func (m *Monitor) initMetrics() {
	var err error

	m.checkCounter, err = m.meter.Int64Counter(
		"orchestd.health.checks_total",
		metric.WithDescription("Total health check batteries run"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		m.logger.Warn("failed to create check counter", zap.Error(err))
	}

	m.issueCounter, err = m.meter.Int64Counter(
		"orchestd.health.issues_total",
		metric.WithDescription("Total health issues observed"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		m.logger.Warn("failed to create issue counter", zap.Error(err))
	}

	m.reportCounter, err = m.meter.Int64Counter(
		"orchestd.health.reports_total",
		metric.WithDescription("Total health reports produced"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		m.logger.Warn("failed to create report counter", zap.Error(err))
	}
}

// RegisterCheck appends a check to the battery. Battery order is
// registration order.
func (m *Monitor) RegisterCheck(c Check) error {
	if c == nil {
		return errors.New("health: check is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.checks {
		if existing.Name() == c.Name() {
			return fmt.Errorf("health: check %q already registered", c.Name())
		}
	}
	m.checks = append(m.checks, c)
	return nil
}

// Check runs the full battery against an artifact and returns a fresh
// report. Known issues seen again update their occurrence counts instead
// of duplicating.
func (m *Monitor) Check(ctx context.Context, artifact string) (*Report, error) {
	report, _, err := m.check(ctx, artifact)
	return report, err
}

func (m *Monitor) check(ctx context.Context, artifact string) (*Report, []Issue, error) {
	ctx, span := m.tracer.Start(ctx, "health.check")
	defer span.End()
	span.SetAttributes(attribute.String("artifact", artifact))

	if artifact == "" {
		return nil, nil, errors.New("health: artifact id is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, errors.New("health: monitor is closed")
	}
	checks := make([]Check, len(m.checks))
	copy(checks, m.checks)
	m.mu.Unlock()

	var findings []Finding
	for _, c := range checks {
		result, err := c.Run(ctx, artifact)
		if err != nil {
			// A broken check must not fail the battery.
			m.logger.Warn("health check failed to run",
				zap.String("artifact", artifact),
				zap.String("check", c.Name()),
				zap.Error(err),
			)
			continue
		}
		if m.checkCounter != nil {
			m.checkCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("check", c.Name())))
		}
		for _, f := range result {
			if err := f.Validate(); err != nil {
				m.logger.Warn("discarding invalid finding",
					zap.String("check", c.Name()),
					zap.Error(err),
				)
				continue
			}
			findings = append(findings, f)
		}
	}

	now := time.Now()

	m.mu.Lock()
	state := m.artifacts[artifact]
	if state == nil {
		state = &artifactState{issues: make(map[string]*Issue)}
		m.artifacts[artifact] = state
	}
	issues, newCriticals := mergeFindings(state, findings, now)

	report := &Report{
		ID:              uuid.New().String(),
		Artifact:        artifact,
		Timestamp:       now,
		Issues:          issues,
		Score:           Score(issues),
		Recommendations: recommendations(issues),
	}
	report.Status = DeriveStatus(report.Score, issues)

	state.history = append(state.history, report)
	if len(state.history) > m.cfg.HistorySize {
		state.history = state.history[len(state.history)-m.cfg.HistorySize:]
	}
	m.mu.Unlock()

	if m.issueCounter != nil {
		m.issueCounter.Add(ctx, int64(len(findings)))
	}
	if m.reportCounter != nil {
		m.reportCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(report.Status))))
	}
	if m.events != nil {
		m.events.Publish(telemetry.Event{
			Type:     telemetry.EventHealthReport,
			Artifact: artifact,
			Fields: map[string]any{
				"score":  report.Score,
				"status": string(report.Status),
				"issues": len(report.Issues),
			},
		})
	}

	if report.Status == StatusCritical {
		span.SetStatus(codes.Error, "artifact critical")
	}
	span.SetAttributes(
		attribute.Float64("score", report.Score),
		attribute.String("status", string(report.Status)),
		attribute.Int("issue_count", len(report.Issues)),
	)

	m.logger.Info("health report produced",
		zap.String("artifact", artifact),
		zap.Float64("score", report.Score),
		zap.String("status", string(report.Status)),
		zap.Int("issues", len(report.Issues)),
	)

	return report, newCriticals, nil
}

// mergeFindings folds a pass's findings into accumulated issue state and
// returns the point-in-time issue list plus issues that are critical and
// new in this pass. Caller holds m.mu.
func mergeFindings(state *artifactState, findings []Finding, now time.Time) (issues []Issue, newCriticals []Issue) {
	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		key := string(f.Type) + "|" + f.Location
		if _, dup := seen[key]; dup {
			if issue := state.issues[key]; issue != nil {
				issue.Occurrences++
			}
			continue
		}
		seen[key] = struct{}{}

		issue, known := state.issues[key]
		if !known {
			issue = &Issue{
				ID:        uuid.New().String(),
				Type:      f.Type,
				Location:  f.Location,
				FirstSeen: now,
			}
			state.issues[key] = issue
		}
		issue.Severity = f.Severity
		issue.Description = f.Description
		issue.RawError = f.RawError
		issue.Suggestions = f.Suggestions
		issue.LastSeen = now
		issue.Occurrences++

		if !known && issue.Critical() {
			newCriticals = append(newCriticals, *issue)
		}
	}

	for key := range seen {
		issues = append(issues, *state.issues[key])
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return issues[i].Severity > issues[j].Severity
		}
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].Location < issues[j].Location
	})
	return issues, newCriticals
}

// History returns the retained reports for an artifact, oldest first.
func (m *Monitor) History(artifact string) []*Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.artifacts[artifact]
	if state == nil {
		return nil
	}
	out := make([]*Report, len(state.history))
	copy(out, state.history)
	return out
}

// StartMonitoring begins the continuous check loop for an artifact. On
// any newly detected critical issue the loop hands the issue set to the
// remediator immediately, out of band from the interval.
func (m *Monitor) StartMonitoring(ctx context.Context, artifact string) error {
	if artifact == "" {
		return errors.New("health: artifact id is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("health: monitor is closed")
	}
	state := m.artifacts[artifact]
	if state == nil {
		state = &artifactState{issues: make(map[string]*Issue)}
		m.artifacts[artifact] = state
	}
	if state.cancel != nil {
		m.mu.Unlock()
		return fmt.Errorf("health: artifact %q is already monitored", artifact)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	state.cancel = cancel
	state.done = make(chan struct{})
	done := state.done
	m.mu.Unlock()

	go m.watch(loopCtx, artifact, done)
	return nil
}

func (m *Monitor) watch(ctx context.Context, artifact string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.CheckInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, newCriticals, err := m.check(ctx, artifact)
			if err != nil {
				m.logger.Warn("continuous health check failed",
					zap.String("artifact", artifact),
					zap.Error(err),
				)
				continue
			}
			if len(newCriticals) > 0 && m.cfg.AutoRemediate && m.remediator != nil {
				if err := m.remediator.Remediate(ctx, artifact, newCriticals); err != nil {
					m.logger.Error("health-driven remediation failed",
						zap.String("artifact", artifact),
						zap.Int("issues", len(newCriticals)),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// StopMonitoring stops the continuous loop for an artifact and waits for
// it to exit. Accumulated issue state and history are retained.
func (m *Monitor) StopMonitoring(artifact string) {
	m.mu.Lock()
	state := m.artifacts[artifact]
	var done chan struct{}
	if state != nil && state.cancel != nil {
		state.cancel()
		state.cancel = nil
		done = state.done
		state.done = nil
	}
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close stops all monitoring loops.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	artifacts := make([]string, 0, len(m.artifacts))
	for artifact, state := range m.artifacts {
		if state.cancel != nil {
			artifacts = append(artifacts, artifact)
		}
	}
	m.mu.Unlock()

	for _, artifact := range artifacts {
		m.StopMonitoring(artifact)
	}
}
