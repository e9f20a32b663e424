package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/health"
	"github.com/fyrsmithlabs/orchestd/internal/logging"
	"github.com/fyrsmithlabs/orchestd/internal/remediation"
	"github.com/fyrsmithlabs/orchestd/internal/services"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
	"github.com/fyrsmithlabs/orchestd/internal/troubleshoot"
)

var (
	artifactPath string
	watch        bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Assess an artifact's health",
	Long: `Run the health check battery against an artifact directory and
print the scored report. With --watch, the battery re-runs on the
configured interval and newly detected critical issues trigger the
remediation pipeline.

Examples:
  # One-shot health report
  orchestd check --artifact ./build

  # Continuous monitoring until interrupted
  orchestd check --artifact ./build --watch`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&artifactPath, "artifact", "", "path to the artifact to assess (required)")
	checkCmd.Flags().BoolVar(&watch, "watch", false, "monitor continuously until interrupted")
	_ = checkCmd.MarkFlagRequired("artifact")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

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

	analyzer := troubleshoot.NewService(nil, logger)
	generator := remediation.NewRuleGenerator(cfg.Remediation, logger)
	runner := &hookStepRunner{hook: cfg.Remediation.StepHook, logger: logger}
	remCoordinator, err := remediation.NewCoordinator(cfg.Remediation, generator, runner, events, logger)
	if err != nil {
		return err
	}
	pipeline, err := services.NewPipeline(analyzer, remCoordinator, logger)
	if err != nil {
		return err
	}

	monitor := newMonitor(cfg, pipeline, events, logger)
	defer monitor.Close()

	if watch {
		var g run.Group

		// OS signals.
		{
			g.Add(
				func() error {
					<-ctx.Done()
					logger.Info("termination signal received")
					return nil
				},
				func(_ error) {
					stop()
				},
			)
		}

		// Monitoring loop.
		{
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan struct{})

			g.Add(
				func() error {
					if err := monitor.StartMonitoring(watchCtx, artifactPath); err != nil {
						return err
					}
					logger.Info("monitoring artifact",
						zap.String("artifact", artifactPath),
						zap.Duration("interval", cfg.Health.CheckInterval.Duration()),
					)
					<-done
					return nil
				},
				func(_ error) {
					monitor.StopMonitoring(artifactPath)
					cancel()
					close(done)
				},
			)
		}

		return g.Run()
	}

	report, err := monitor.Check(ctx, artifactPath)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(encoded))

	if report.Status == health.StatusCritical || report.Status == health.StatusFailing {
		return fmt.Errorf("artifact %s is %s (score %.2f)", artifactPath, report.Status, report.Score)
	}
	return nil
}

// newMonitor builds a monitor with the built-in filesystem battery.
func newMonitor(cfg *config.Config, remediator health.Remediator, events *telemetry.EventBus, logger *zap.Logger) *health.Monitor {
	monitor := health.NewMonitor(cfg.Health, remediator, events, logger)
	for _, c := range builtinChecks() {
		if err := monitor.RegisterCheck(c); err != nil {
			logger.Warn("failed to register check", zap.Error(err))
		}
	}
	return monitor
}

// builtinChecks is the battery the CLI runs against artifact
// directories. Deeper checks (execution tests, performance probes)
// belong to external capabilities and are not part of this binary.
func builtinChecks() []health.Check {
	static, _ := health.NewCheck(health.CheckStaticInspection, checkArtifactPresent)
	deps, _ := health.NewCheck(health.CheckDependencyScan, checkDependencyManifest)
	security, _ := health.NewCheck(health.CheckSecurityScan, checkWorldWritable)
	configuration, _ := health.NewCheck(health.CheckConfiguration, checkYAMLParses)
	return []health.Check{static, deps, security, configuration}
}

func checkArtifactPresent(_ context.Context, artifact string) ([]health.Finding, error) {
	info, err := os.Stat(artifact)
	if err != nil {
		return []health.Finding{{
			Type:        health.IssueConfiguration,
			Severity:    9,
			Description: "artifact path does not exist",
			Location:    artifact,
			RawError:    err.Error(),
			Suggestions: []string{"run the goal plan that produces this artifact"},
		}}, nil
	}
	if !info.IsDir() {
		return nil, nil
	}
	entries, err := os.ReadDir(artifact)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []health.Finding{{
			Type:        health.IssueRuntime,
			Severity:    6,
			Description: "artifact directory is empty",
			Location:    artifact,
		}}, nil
	}
	return nil, nil
}

// manifestNames are the dependency manifests the scan recognizes.
var manifestNames = []string{"go.mod", "package.json", "requirements.txt", "pyproject.toml", "Cargo.toml"}

func checkDependencyManifest(_ context.Context, artifact string) ([]health.Finding, error) {
	info, err := os.Stat(artifact)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	for _, name := range manifestNames {
		if _, err := os.Stat(filepath.Join(artifact, name)); err == nil {
			return nil, nil
		}
	}
	return []health.Finding{{
		Type:        health.IssueDependency,
		Severity:    4,
		Description: "no dependency manifest found",
		Location:    artifact,
		Suggestions: []string{"declare dependencies in a manifest so they can be scanned"},
	}}, nil
}

func checkWorldWritable(ctx context.Context, artifact string) ([]health.Finding, error) {
	var findings []health.Finding
	err := filepath.WalkDir(artifact, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode().Perm()&0o002 != 0 {
			findings = append(findings, health.Finding{
				Type:        health.IssueSecurity,
				Severity:    8,
				Description: "file is world-writable",
				Location:    path,
				Suggestions: []string{"tighten file permissions"},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

func checkYAMLParses(ctx context.Context, artifact string) ([]health.Finding, error) {
	var findings []health.Finding
	err := filepath.WalkDir(artifact, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var doc any
		if err := yaml.Unmarshal(content, &doc); err != nil {
			findings = append(findings, health.Finding{
				Type:        health.IssueSyntax,
				Severity:    6,
				Description: "configuration file does not parse",
				Location:    path,
				RawError:    err.Error(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}
