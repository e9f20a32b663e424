package remediation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/health"
)

// Generator proposes candidate solutions for a classified issue set.
type Generator interface {
	// Generate returns up to the configured number of candidates,
	// filtered by the complexity ceiling and confidence floor and
	// ranked by confidence descending, complexity ascending.
	Generate(ctx context.Context, artifact string, issues []health.Issue) ([]Solution, error)
}

// solutionRule is one template for turning an issue of a given type into
// a concrete, executable plan.
type solutionRule struct {
	solType    SolutionType
	summary    string
	confidence float64
	complexity int
	effort     string
	risk       RiskAssessment
	steps      []string
	rollback   []string
	verify     []string
}

// solutionRules maps the issue taxonomy to plan templates. Order within
// a slice is the generator's own preference before ranking.
var solutionRules = map[health.IssueType][]solutionRule{
	health.IssueSyntax: {
		{
			solType:    SolutionCodeFix,
			summary:    "correct the malformed construct",
			confidence: 0.9,
			complexity: 2,
			effort:     "minutes",
			risk:       RiskAssessment{Level: RiskLow},
			steps:      []string{"rewrite the statement at the reported location"},
			rollback:   []string{"restore the previous file contents"},
			verify:     []string{"re-run static inspection on the artifact"},
		},
	},
	health.IssueRuntime: {
		{
			solType:    SolutionCodeFix,
			summary:    "guard the failing path against invalid state",
			confidence: 0.7,
			complexity: 4,
			effort:     "under an hour",
			risk:       RiskAssessment{Level: RiskMedium, Concerns: []string{"may mask an upstream defect"}},
			steps:      []string{"add validation before the failing operation", "handle the error explicitly"},
			rollback:   []string{"restore the previous file contents"},
			verify:     []string{"re-run execution tests on the artifact"},
		},
		{
			solType:    SolutionArchitecturalChange,
			summary:    "restructure initialization so the value cannot be unset",
			confidence: 0.45,
			complexity: 7,
			effort:     "hours",
			risk:       RiskAssessment{Level: RiskHigh, Concerns: []string{"touches module boundaries"}},
			steps:      []string{"move construction behind a single initializer", "update call sites"},
			rollback:   []string{"revert the restructuring change set"},
			verify:     []string{"re-run execution tests on the artifact"},
		},
	},
	health.IssueLogic: {
		{
			solType:    SolutionCodeFix,
			summary:    "fix the incorrect reference or condition",
			confidence: 0.75,
			complexity: 3,
			effort:     "minutes",
			risk:       RiskAssessment{Level: RiskLow},
			steps:      []string{"correct the identifier or condition at the reported location"},
			rollback:   []string{"restore the previous file contents"},
			verify:     []string{"re-run execution tests on the artifact"},
		},
	},
	health.IssuePerformance: {
		{
			solType:    SolutionPerformanceChange,
			summary:    "raise the deadline and cache the hot path",
			confidence: 0.6,
			complexity: 5,
			effort:     "hours",
			risk:       RiskAssessment{Level: RiskMedium, Concerns: []string{"cache invalidation correctness"}},
			steps:      []string{"profile the slow operation", "introduce caching or batching on the hot path"},
			rollback:   []string{"remove the caching layer"},
			verify:     []string{"re-run the performance probe against the artifact"},
		},
	},
	health.IssueSecurity: {
		{
			solType:    SolutionSecurityPatch,
			summary:    "close the reported exposure",
			confidence: 0.8,
			complexity: 4,
			effort:     "under an hour",
			risk:       RiskAssessment{Level: RiskMedium, Concerns: []string{"tightened permissions can break callers"}},
			steps:      []string{"remove the exposed credential or permission", "rotate affected secrets"},
			rollback:   []string{"restore the previous policy"},
			verify:     []string{"re-run the security scan on the artifact"},
		},
	},
	health.IssueDependency: {
		{
			solType:    SolutionDependencyUpdate,
			summary:    "declare and pin the missing dependency",
			confidence: 0.85,
			complexity: 2,
			effort:     "minutes",
			risk:       RiskAssessment{Level: RiskLow},
			steps:      []string{"add the dependency to the manifest", "resolve and lock versions"},
			rollback:   []string{"restore the previous manifest and lock file"},
			verify:     []string{"re-run the dependency scan on the artifact"},
		},
	},
	health.IssueConfiguration: {
		{
			solType:    SolutionConfigurationChange,
			summary:    "supply the missing or corrected setting",
			confidence: 0.85,
			complexity: 2,
			effort:     "minutes",
			risk:       RiskAssessment{Level: RiskLow},
			steps:      []string{"set the required value in the artifact configuration"},
			rollback:   []string{"restore the previous configuration"},
			verify:     []string{"re-run configuration validation on the artifact"},
		},
	},
	health.IssueIntegration: {
		{
			solType:    SolutionConfigurationChange,
			summary:    "point the integration at a reachable endpoint",
			confidence: 0.65,
			complexity: 3,
			effort:     "under an hour",
			risk:       RiskAssessment{Level: RiskMedium, Concerns: []string{"endpoint change affects all consumers"}},
			steps:      []string{"verify the remote endpoint", "update the endpoint configuration"},
			rollback:   []string{"restore the previous endpoint configuration"},
			verify:     []string{"re-run execution tests on the artifact"},
		},
	},
}

// RuleGenerator produces solutions from the fixed rule table.
type RuleGenerator struct {
	cfg    config.RemediationConfig
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRuleGenerator creates a rule-based generator.
func NewRuleGenerator(cfg config.RemediationConfig, logger *zap.Logger) *RuleGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleGenerator{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
}

// Generate implements Generator.
func (g *RuleGenerator) Generate(ctx context.Context, artifact string, issues []health.Issue) ([]Solution, error) {
	_, span := g.tracer.Start(ctx, "remediation.generate")
	defer span.End()

	if artifact == "" {
		return nil, errors.New("remediation: artifact is required")
	}
	if len(issues) == 0 {
		return nil, errors.New("remediation: at least one issue is required")
	}

	var candidates []Solution
	for _, issue := range issues {
		rules, ok := solutionRules[issue.Type]
		if !ok {
			g.logger.Warn("no solution rules for issue type",
				zap.String("type", string(issue.Type)),
			)
			continue
		}
		for _, r := range rules {
			if r.complexity > g.cfg.MaxComplexity || r.confidence < g.cfg.MinConfidence {
				continue
			}
			candidates = append(candidates, buildSolution(r, issue))
		}
	}

	// Confidence descending, complexity ascending as tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Complexity < candidates[j].Complexity
	})

	if len(candidates) > g.cfg.MaxCandidates {
		candidates = candidates[:g.cfg.MaxCandidates]
	}

	span.SetAttributes(
		attribute.String("artifact", artifact),
		attribute.Int("issue_count", len(issues)),
		attribute.Int("candidate_count", len(candidates)),
	)
	return candidates, nil
}

func buildSolution(r solutionRule, issue health.Issue) Solution {
	s := Solution{
		ID:              uuid.NewString(),
		Type:            r.solType,
		Description:     fmt.Sprintf("%s: %s", r.summary, issue.Description),
		Confidence:      r.confidence,
		Complexity:      r.complexity,
		EstimatedEffort: r.effort,
		Risk:            r.risk,
	}
	if issue.Location != "" {
		s.Targets = []string{issue.Location}
	}
	for _, d := range r.steps {
		s.Steps = append(s.Steps, Step{Description: d, Target: issue.Location})
	}
	for _, d := range r.rollback {
		s.Rollback = append(s.Rollback, Step{Description: d, Target: issue.Location})
	}
	for _, d := range r.verify {
		s.Verification = append(s.Verification, Step{Description: d, Target: issue.Location})
	}
	return s
}
