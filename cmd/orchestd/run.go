package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/logging"
	"github.com/fyrsmithlabs/orchestd/internal/orchestrator"
	"github.com/fyrsmithlabs/orchestd/internal/plan"
	"github.com/fyrsmithlabs/orchestd/internal/remediation"
	"github.com/fyrsmithlabs/orchestd/internal/services"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
	"github.com/fyrsmithlabs/orchestd/internal/troubleshoot"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

var (
	planPath string
	goalID   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a goal plan",
	Long: `Execute a goal plan: tasks are leveled into dependency-ordered
phases and run concurrently within each phase. Critical task failures go
through the remediation pipeline before later phases are released.

Examples:
  # Execute a plan
  orchestd run --plan plan.yaml

  # Execute with an explicit goal id and config
  orchestd run --plan plan.yaml --goal-id nightly --config orchestd.yaml`,
	RunE: runGoal,
}

func init() {
	runCmd.Flags().StringVar(&planPath, "plan", "", "path to the goal plan file (required)")
	runCmd.Flags().StringVar(&goalID, "goal-id", "", "goal identifier (generated when empty)")
	_ = runCmd.MarkFlagRequired("plan")
}

func runGoal(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	p, err := plan.Load(planPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	events := telemetry.NewEventBus(cfg.Telemetry.EventBuffer, tel, logger)
	defer events.Close()

	registry := worker.NewRegistry()
	if err := registerPlanWorkers(registry, p, logger); err != nil {
		return err
	}

	reg, err := buildServices(cfg, registry, events, logger)
	if err != nil {
		return err
	}

	logger.Info("executing goal plan",
		zap.String("plan", planPath),
		zap.String("goal", p.Goal),
		zap.Int("tasks", len(p.Tasks)),
	)
	result, err := reg.Orchestrator().Run(ctx, goalID, p.Specs())
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(encoded))

	if !result.Succeeded() {
		return fmt.Errorf("goal %s did not fully succeed (%d/%d tasks completed)",
			result.GoalID, result.Completed, result.Total)
	}
	return nil
}

// buildServices composes the orchestration services with explicit
// dependency injection.
func buildServices(cfg *config.Config, registry *worker.Registry, events *telemetry.EventBus, logger *zap.Logger) (services.Registry, error) {
	analyzer := troubleshoot.NewService(nil, logger)

	generator := remediation.NewRuleGenerator(cfg.Remediation, logger)
	runner := &hookStepRunner{hook: cfg.Remediation.StepHook, logger: logger}
	remCoordinator, err := remediation.NewCoordinator(cfg.Remediation, generator, runner, events, logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := services.NewPipeline(analyzer, remCoordinator, logger)
	if err != nil {
		return nil, err
	}

	executor, err := orchestrator.NewExecutor(cfg.Orchestrator, registry, events, logger)
	if err != nil {
		return nil, err
	}
	coordinator, err := orchestrator.NewCoordinator(cfg.Orchestrator, executor, pipeline, events, logger)
	if err != nil {
		return nil, err
	}

	monitor := newMonitor(cfg, pipeline, events, logger)

	return services.NewRegistry(services.Options{
		Workers:      registry,
		Orchestrator: coordinator,
		Monitor:      monitor,
		Troubleshoot: analyzer,
		Remediation:  remCoordinator,
	}), nil
}
