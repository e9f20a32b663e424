package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

// window records one task's execution interval for barrier assertions.
type window struct {
	taskID string
	start  time.Time
	end    time.Time
}

type windowRecorder struct {
	mu      sync.Mutex
	windows []window
}

func (r *windowRecorder) worker(fail map[string]bool) worker.Func {
	return func(_ context.Context, task *graph.Task) (json.RawMessage, error) {
		start := time.Now()
		time.Sleep(5 * time.Millisecond)
		r.mu.Lock()
		r.windows = append(r.windows, window{taskID: task.ID, start: start, end: time.Now()})
		r.mu.Unlock()
		if fail[task.ID] {
			return nil, errors.New("task failed")
		}
		return json.RawMessage(`{}`), nil
	}
}

func (r *windowRecorder) byTask() map[string]window {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]window, len(r.windows))
	for _, w := range r.windows {
		out[w.taskID] = w
	}
	return out
}

func newTestCoordinator(t *testing.T, registry *worker.Registry, handler CriticalFailureHandler) *Coordinator {
	t.Helper()
	cfg := config.NewDefaultConfig().Orchestrator
	e, err := NewExecutor(cfg, registry, nil, zap.NewNop())
	require.NoError(t, err)
	c, err := NewCoordinator(cfg, e, handler, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestRun_PhaseBarrier(t *testing.T) {
	rec := &windowRecorder{}
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register("gen", rec.worker(nil)))

	// Diamond: t1 -> {t2, t3} -> t4.
	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen"},
		{ID: "t2", Category: "gen", DependsOn: []string{"t1"}},
		{ID: "t3", Category: "gen", DependsOn: []string{"t1"}},
		{ID: "t4", Category: "gen", DependsOn: []string{"t2", "t3"}},
	}

	c := newTestCoordinator(t, registry, nil)
	result, err := c.Run(context.Background(), "goal-1", specs)
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, 4, result.Completed)
	assert.InDelta(t, 1.0, result.SuccessRatio, 1e-9)
	require.Len(t, result.Phases, 3)

	// No phase-2 task starts before every phase-1 task has ended.
	windows := rec.byTask()
	require.Len(t, windows, 4)
	assert.False(t, windows["t2"].start.Before(windows["t1"].end))
	assert.False(t, windows["t3"].start.Before(windows["t1"].end))
	assert.False(t, windows["t4"].start.Before(windows["t2"].end))
	assert.False(t, windows["t4"].start.Before(windows["t3"].end))
}

func TestRun_NonCriticalFailureContinues(t *testing.T) {
	rec := &windowRecorder{}
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register("gen", rec.worker(map[string]bool{"t1": true})))

	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen", Priority: 3},
		{ID: "t2", Category: "gen", Priority: 3},
		{ID: "t3", Category: "gen", Priority: 3, DependsOn: []string{"t2"}},
	}

	c := newTestCoordinator(t, registry, nil)
	result, err := c.Run(context.Background(), "goal-1", specs)
	require.NoError(t, err)

	assert.False(t, result.Aborted)
	assert.False(t, result.RemediationAttempted)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.InDelta(t, 2.0/3.0, result.SuccessRatio, 1e-9)
	assert.Equal(t, worker.CategoryStats{Completed: 2, Failed: 1}, result.WorkerStats["gen"])

	// The phase after the failure still ran.
	_, ran := rec.byTask()["t3"]
	assert.True(t, ran)
}

func TestRun_CriticalFailureAbortsWithoutHandler(t *testing.T) {
	rec := &windowRecorder{}
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register("gen", rec.worker(map[string]bool{"t1": true})))

	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen", Priority: 9},
		{ID: "t2", Category: "gen", Priority: 3, DependsOn: []string{"t1"}},
	}

	c := newTestCoordinator(t, registry, nil)
	result, err := c.Run(context.Background(), "goal-1", specs)
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.AbortedAtPhase)
	assert.False(t, result.RemediationAttempted)
	assert.Equal(t, graph.StatusCancelled, result.Outcomes[1].Status)

	_, ran := rec.byTask()["t2"]
	assert.False(t, ran, "phases after an unresolved critical failure never execute")
}

func TestRun_CriticalFailureRemediated(t *testing.T) {
	rec := &windowRecorder{}
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register("gen", rec.worker(map[string]bool{"t1": true})))

	var gotFailed []TaskOutcome
	handler := CriticalFailureHandlerFunc(func(_ context.Context, _ string, failed []TaskOutcome) (bool, error) {
		gotFailed = failed
		return true, nil
	})

	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen", Priority: 9},
		{ID: "t2", Category: "gen", Priority: 3, DependsOn: []string{"t1"}},
	}

	c := newTestCoordinator(t, registry, handler)
	result, err := c.Run(context.Background(), "goal-1", specs)
	require.NoError(t, err)

	assert.False(t, result.Aborted)
	assert.True(t, result.RemediationAttempted)
	assert.True(t, result.RemediationResolved)
	require.Len(t, gotFailed, 1)
	assert.Equal(t, "t1", gotFailed[0].TaskID)

	_, ran := rec.byTask()["t2"]
	assert.True(t, ran, "resolved critical failure lets later phases run")
}

func TestRun_CriticalFailureRemediationExhausted(t *testing.T) {
	rec := &windowRecorder{}
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register("gen", rec.worker(map[string]bool{"t1": true})))

	handler := CriticalFailureHandlerFunc(func(_ context.Context, _ string, _ []TaskOutcome) (bool, error) {
		return false, nil
	})

	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen", Priority: 9},
		{ID: "t2", Category: "gen", Priority: 3, DependsOn: []string{"t1"}},
		{ID: "t3", Category: "gen", Priority: 3, DependsOn: []string{"t2"}},
	}

	c := newTestCoordinator(t, registry, handler)
	result, err := c.Run(context.Background(), "goal-1", specs)
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.AbortedAtPhase)
	assert.True(t, result.RemediationAttempted)
	assert.False(t, result.RemediationResolved)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Cancelled)

	windows := rec.byTask()
	_, ran2 := windows["t2"]
	_, ran3 := windows["t3"]
	assert.False(t, ran2)
	assert.False(t, ran3)
}

func TestRun_HandlerErrorCountsAsUnresolved(t *testing.T) {
	registry := worker.NewRegistry()
	rec := &windowRecorder{}
	require.NoError(t, registry.Register("gen", rec.worker(map[string]bool{"t1": true})))

	handler := CriticalFailureHandlerFunc(func(_ context.Context, _ string, _ []TaskOutcome) (bool, error) {
		return false, errors.New("pipeline unavailable")
	})

	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen", Priority: 9},
		{ID: "t2", Category: "gen", DependsOn: []string{"t1"}},
	}

	c := newTestCoordinator(t, registry, handler)
	result, err := c.Run(context.Background(), "goal-1", specs)
	require.NoError(t, err)
	assert.True(t, result.Aborted)
}

func TestRun_InvalidGraphRunsNothing(t *testing.T) {
	rec := &windowRecorder{}
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register("gen", rec.worker(nil)))

	specs := []graph.TaskSpec{
		{ID: "t1", Category: "gen", DependsOn: []string{"t2"}},
		{ID: "t2", Category: "gen", DependsOn: []string{"t1"}},
	}

	c := newTestCoordinator(t, registry, nil)
	_, err := c.Run(context.Background(), "goal-1", specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrCycle)
	assert.Empty(t, rec.byTask(), "nothing runs on a configuration error")
}

func TestRun_GeneratesGoalID(t *testing.T) {
	registry := worker.NewRegistry()
	rec := &windowRecorder{}
	require.NoError(t, registry.Register("gen", rec.worker(nil)))

	c := newTestCoordinator(t, registry, nil)
	result, err := c.Run(context.Background(), "", []graph.TaskSpec{{ID: "t1", Category: "gen"}})
	require.NoError(t, err)
	assert.NotEmpty(t, result.GoalID)
}
