package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/health"
)

func TestCheckArtifactPresent(t *testing.T) {
	findings, err := checkArtifactPresent(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, health.IssueConfiguration, findings[0].Type)
	assert.Equal(t, 9, findings[0].Severity)

	dir := t.TempDir()
	findings, err = checkArtifactPresent(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "artifact directory is empty", findings[0].Description)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	findings, err = checkArtifactPresent(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckDependencyManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	findings, err := checkDependencyManifest(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, health.IssueDependency, findings[0].Type)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example\n"), 0o644))
	findings, err = checkDependencyManifest(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckWorldWritable(t *testing.T) {
	dir := t.TempDir()
	loose := filepath.Join(dir, "loose.txt")
	require.NoError(t, os.WriteFile(loose, []byte("x"), 0o644))
	// The process umask may strip the world-write bit from WriteFile.
	require.NoError(t, os.Chmod(loose, 0o646))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tight.txt"), []byte("x"), 0o644))

	findings, err := checkWorldWritable(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, health.IssueSecurity, findings[0].Type)
	assert.Equal(t, loose, findings[0].Location)
	assert.GreaterOrEqual(t, findings[0].Severity, health.CriticalSeverity)
}

func TestCheckYAMLParses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte("key: value\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("key: [unclosed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("key: [unclosed\n"), 0o644))

	findings, err := checkYAMLParses(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, health.IssueSyntax, findings[0].Type)
	assert.Equal(t, filepath.Join(dir, "bad.yaml"), findings[0].Location)
}

func TestNewMonitor_RunsBattery(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example\n"), 0o644))

	monitor := newMonitor(config.NewDefaultConfig(), nil, nil, zap.NewNop())
	defer monitor.Close()

	report, err := monitor.Check(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, health.StatusExcellent, report.Status)
	assert.InDelta(t, 1.0, report.Score, 1e-9)
}
