package troubleshoot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/health"
)

// MockDeepAnalyzer is a mock implementation of DeepAnalyzer.
type MockDeepAnalyzer struct {
	mock.Mock
}

func (m *MockDeepAnalyzer) Analyze(ctx context.Context, failure Failure) (string, error) {
	args := m.Called(ctx, failure)
	return args.String(0), args.Error(1)
}

func TestDiagnose_PatternTier(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType health.IssueType
	}{
		{name: "name resolution is a logic error", message: `NameError: name 'user_sevice' is not defined`, wantType: health.IssueLogic},
		{name: "syntax", message: "syntax error: unexpected token '}'", wantType: health.IssueSyntax},
		{name: "timeout", message: "request timed out after 30s", wantType: health.IssuePerformance},
		{name: "permission", message: "open /etc/shadow: permission denied", wantType: health.IssueSecurity},
		{name: "missing dependency", message: "ModuleNotFoundError: no module named 'requests'", wantType: health.IssueDependency},
		{name: "panic in trace", message: "task crashed", wantType: health.IssueRuntime},
		{name: "missing env", message: "missing environment variable DATABASE_URL", wantType: health.IssueConfiguration},
		{name: "connection refused", message: "dial tcp 127.0.0.1:5432: connection refused", wantType: health.IssueIntegration},
	}

	deep := &MockDeepAnalyzer{}
	s := NewService(deep, zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := Failure{Message: tt.message}
			if tt.name == "panic in trace" {
				failure.Trace = "panic: runtime error: invalid memory address\ngoroutine 1 [running]:"
			}

			d, err := s.Diagnose(context.Background(), failure)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, d.Type)
			assert.NotEmpty(t, d.Pattern)
			assert.GreaterOrEqual(t, d.Confidence, 0.8, "pattern tier is high confidence")
			assert.GreaterOrEqual(t, d.Severity, 1)
			assert.LessOrEqual(t, d.Severity, 10)
		})
	}
	// The deep analyzer must never be consulted for pattern matches.
	deep.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestDiagnose_DeepTier(t *testing.T) {
	deep := &MockDeepAnalyzer{}
	deep.On("Analyze", mock.Anything, mock.Anything).Return(
		`{"type":"integration","severity":7,"confidence":0.75,"causes":["api contract drift","stale client"]}`, nil)

	s := NewService(deep, zap.NewNop())
	d, err := s.Diagnose(context.Background(), Failure{Message: "inscrutable failure xyzzy"})
	require.NoError(t, err)

	assert.Equal(t, health.IssueIntegration, d.Type)
	assert.Equal(t, 7, d.Severity)
	assert.InDelta(t, 0.75, d.Confidence, 1e-9)
	assert.Empty(t, d.Pattern)
	require.Len(t, d.Causes, 2)
	assert.Greater(t, d.Causes[0].Confidence, d.Causes[1].Confidence)
	deep.AssertExpectations(t)
}

func TestDiagnose_DeepTierUnparseable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{name: "not json", raw: "I think the problem is probably the database"},
		{name: "unknown type", raw: `{"type":"cosmic","severity":5,"confidence":0.5}`},
		{name: "severity out of range", raw: `{"type":"runtime","severity":99,"confidence":0.5}`},
		{name: "confidence out of range", raw: `{"type":"runtime","severity":5,"confidence":7}`},
		{name: "capability error", err: errors.New("capability unavailable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deep := &MockDeepAnalyzer{}
			deep.On("Analyze", mock.Anything, mock.Anything).Return(tt.raw, tt.err)

			s := NewService(deep, zap.NewNop())
			d, err := s.Diagnose(context.Background(), Failure{Message: "inscrutable failure xyzzy"})
			require.NoError(t, err, "analysis failures degrade, never propagate")

			assert.Equal(t, health.IssueRuntime, d.Type)
			assert.LessOrEqual(t, d.Confidence, 0.2, "degraded result is low confidence")
		})
	}
}

func TestDiagnose_NoDeepAnalyzer(t *testing.T) {
	s := NewService(nil, zap.NewNop())
	d, err := s.Diagnose(context.Background(), Failure{Message: "inscrutable failure xyzzy"})
	require.NoError(t, err)
	assert.LessOrEqual(t, d.Confidence, 0.2)
}

func TestDiagnose_EmptyMessage(t *testing.T) {
	s := NewService(nil, zap.NewNop())
	_, err := s.Diagnose(context.Background(), Failure{})
	assert.Error(t, err)
}

func TestRootCauses(t *testing.T) {
	s := NewService(nil, zap.NewNop())
	ctx := context.Background()

	d, err := s.Diagnose(ctx, Failure{Message: "undefined symbol frobnicate"})
	require.NoError(t, err)

	causes := s.RootCauses(ctx, Failure{Message: "undefined symbol frobnicate"}, d)
	require.NotEmpty(t, causes)
	assert.LessOrEqual(t, len(causes), 3)
	for i := 1; i < len(causes); i++ {
		assert.GreaterOrEqual(t, causes[i-1].Confidence, causes[i].Confidence,
			"causes ordered by descending confidence")
	}
}

func TestRootCauses_UnknownClassification(t *testing.T) {
	s := NewService(nil, zap.NewNop())
	failure := Failure{Message: "inscrutable failure xyzzy\nwith more detail"}

	d, err := s.Diagnose(context.Background(), failure)
	require.NoError(t, err)

	causes := s.RootCauses(context.Background(), failure, d)
	require.Len(t, causes, 1)
	assert.Contains(t, causes[0].Description, "inscrutable failure xyzzy")
	assert.NotContains(t, causes[0].Description, "more detail")

	assert.Nil(t, s.RootCauses(context.Background(), failure, nil))
}
