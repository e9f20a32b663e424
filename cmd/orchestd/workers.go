package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/plan"
	"github.com/fyrsmithlabs/orchestd/internal/remediation"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

// shellWorker executes a task's configured command. Each task carries its
// command in params; the category only selects this worker.
type shellWorker struct {
	logger *zap.Logger
}

type shellResult struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
}

func (w *shellWorker) Execute(ctx context.Context, task *graph.Task) (json.RawMessage, error) {
	command, _ := task.Params["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("task %s has no command parameter", task.ID)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if dir, ok := task.Params["workdir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}

	w.logger.Debug("running task command",
		zap.String("task_id", task.ID),
		zap.String("command", command),
	)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String()))
	}
	return json.Marshal(shellResult{Command: command, Output: strings.TrimSpace(out.String())})
}

// registerPlanWorkers binds every category the plan uses to the shell
// worker.
func registerPlanWorkers(registry *worker.Registry, p *plan.Plan, logger *zap.Logger) error {
	seen := make(map[string]bool)
	w := &shellWorker{logger: logger}
	for _, t := range p.Tasks {
		if seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		if err := registry.Register(t.Category, w); err != nil {
			return err
		}
	}
	return nil
}

// hookStepRunner executes solution steps through the configured hook
// command. Without a hook, apply and rollback steps are logged and
// assumed applied by the operator.
type hookStepRunner struct {
	hook   string
	logger *zap.Logger
}

func (r *hookStepRunner) Run(ctx context.Context, artifact string, step remediation.Step) error {
	if r.hook == "" {
		r.logger.Info("solution step (no hook configured)",
			zap.String("artifact", artifact),
			zap.String("step", step.Description),
			zap.String("target", step.Target),
		)
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", r.hook)
	cmd.Env = append(os.Environ(),
		"ORCHESTD_ARTIFACT="+artifact,
		"ORCHESTD_STEP="+step.Description,
		"ORCHESTD_STEP_TARGET="+step.Target,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("step hook: %w: %s", err, strings.TrimSpace(out.String()))
	}
	return nil
}
