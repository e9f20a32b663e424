package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/plan"
	"github.com/fyrsmithlabs/orchestd/internal/remediation"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

func TestShellWorker_Execute(t *testing.T) {
	w := &shellWorker{logger: zap.NewNop()}
	task := &graph.Task{TaskSpec: graph.TaskSpec{
		ID:     "t1",
		Params: map[string]any{"command": "echo hello"},
	}}

	raw, err := w.Execute(context.Background(), task)
	require.NoError(t, err)

	var result shellResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "hello", result.Output)
}

func TestShellWorker_CommandFails(t *testing.T) {
	w := &shellWorker{logger: zap.NewNop()}
	task := &graph.Task{TaskSpec: graph.TaskSpec{
		ID:     "t1",
		Params: map[string]any{"command": "echo broken >&2; exit 3"},
	}}

	_, err := w.Execute(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestShellWorker_MissingCommand(t *testing.T) {
	w := &shellWorker{logger: zap.NewNop()}
	task := &graph.Task{TaskSpec: graph.TaskSpec{ID: "t1"}}

	_, err := w.Execute(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command parameter")
}

func TestShellWorker_Timeout(t *testing.T) {
	w := &shellWorker{logger: zap.NewNop()}
	task := &graph.Task{TaskSpec: graph.TaskSpec{
		ID:     "t1",
		Params: map[string]any{"command": "sleep 5"},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := w.Execute(ctx, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegisterPlanWorkers(t *testing.T) {
	p := &plan.Plan{
		SchemaVersion: 1,
		Goal:          "g",
		Tasks: []plan.TaskDef{
			{ID: "a", Category: "codegen"},
			{ID: "b", Category: "codegen"},
			{ID: "c", Category: "testgen"},
		},
	}

	registry := worker.NewRegistry()
	require.NoError(t, registerPlanWorkers(registry, p, zap.NewNop()))
	assert.Equal(t, []string{"codegen", "testgen"}, registry.Categories())
}

func TestHookStepRunner_NoHook(t *testing.T) {
	r := &hookStepRunner{logger: zap.NewNop()}
	err := r.Run(context.Background(), "artifact", remediation.Step{Description: "apply fix"})
	assert.NoError(t, err)
}

func TestHookStepRunner_HookRuns(t *testing.T) {
	r := &hookStepRunner{
		hook:   `test "$ORCHESTD_STEP" = "apply fix"`,
		logger: zap.NewNop(),
	}
	err := r.Run(context.Background(), "artifact", remediation.Step{Description: "apply fix"})
	assert.NoError(t, err)

	err = r.Run(context.Background(), "artifact", remediation.Step{Description: "other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step hook")
}
