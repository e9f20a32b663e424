// Package troubleshoot classifies raw failure signals into typed, scored
// diagnoses.
//
// Classification is two-tier: an ordered list of known textual patterns
// gives a fast, high-confidence answer; signals nothing matches fall
// through to an opaque deep analysis capability. Unparseable deep output
// degrades to a minimal low-confidence diagnosis instead of failing the
// analysis.
package troubleshoot

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/health"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/troubleshoot"

// maxRootCauses bounds the candidate causes returned per diagnosis.
const maxRootCauses = 3

// Service analyzes failure signals.
type Service struct {
	deep   DeepAnalyzer
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates an analyzer. deep may be nil, in which case
// unmatched signals get the unknown classification directly.
func NewService(deep DeepAnalyzer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deep:   deep,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
}

// Diagnose classifies a failure signal. It never returns an error for
// analysis-quality reasons; only an empty signal is rejected.
func (s *Service) Diagnose(ctx context.Context, failure Failure) (*Diagnosis, error) {
	ctx, span := s.tracer.Start(ctx, "troubleshoot.diagnose")
	defer span.End()

	if failure.Message == "" {
		return nil, errors.New("troubleshoot: failure message is required")
	}

	if p := matchPattern(failure); p != nil {
		span.SetAttributes(
			attribute.String("tier", "pattern"),
			attribute.String("pattern", p.name),
		)
		d := &Diagnosis{
			Type:       p.issueType,
			Severity:   p.severity,
			Confidence: p.confidence,
			Pattern:    p.name,
		}
		s.logger.Debug("failure matched known pattern",
			zap.String("pattern", p.name),
			zap.String("type", string(p.issueType)),
		)
		return d, nil
	}

	if s.deep == nil {
		span.SetAttributes(attribute.String("tier", "none"))
		return unknownDiagnosis(), nil
	}

	span.SetAttributes(attribute.String("tier", "deep"))
	raw, err := s.deep.Analyze(ctx, failure)
	if err != nil {
		s.logger.Warn("deep analysis failed, degrading to unknown classification", zap.Error(err))
		return unknownDiagnosis(), nil
	}

	d, err := parseDeepOutput(raw)
	if err != nil {
		s.logger.Warn("deep analysis output unparseable, degrading to unknown classification",
			zap.Error(err),
		)
		return unknownDiagnosis(), nil
	}
	return d, nil
}

// RootCauses is the second analysis pass: it combines the failure signal
// with its diagnosis and returns up to maxRootCauses candidate causes
// ordered by descending confidence.
func (s *Service) RootCauses(ctx context.Context, failure Failure, d *Diagnosis) []Cause {
	_, span := s.tracer.Start(ctx, "troubleshoot.root_causes")
	defer span.End()

	if d == nil {
		return nil
	}

	var causes []Cause

	// Pattern-derived hints carry the classifier's own confidence,
	// decayed by rank.
	if d.Pattern != "" {
		for i := range knownPatterns {
			if knownPatterns[i].name != d.Pattern {
				continue
			}
			for rank, hint := range knownPatterns[i].causes {
				causes = append(causes, Cause{
					Description: hint,
					Confidence:  d.Confidence * (1.0 - 0.15*float64(rank)),
				})
			}
			break
		}
	}

	// Deep-analysis causes were parsed into the diagnosis already.
	causes = append(causes, d.Causes...)

	if len(causes) == 0 {
		causes = append(causes, Cause{
			Description: "unclassified failure: " + firstLine(failure.Message),
			Confidence:  0.2,
		})
	}

	sort.SliceStable(causes, func(i, j int) bool {
		return causes[i].Confidence > causes[j].Confidence
	})
	if len(causes) > maxRootCauses {
		causes = causes[:maxRootCauses]
	}

	span.SetAttributes(attribute.Int("cause_count", len(causes)))
	return causes
}

// deepOutput is the structure the deep analysis capability must return.
type deepOutput struct {
	Type       string   `json:"type"`
	Severity   int      `json:"severity"`
	Confidence float64  `json:"confidence"`
	Causes     []string `json:"causes"`
}

var validIssueTypes = map[health.IssueType]struct{}{
	health.IssueSyntax:        {},
	health.IssueRuntime:       {},
	health.IssueLogic:         {},
	health.IssuePerformance:   {},
	health.IssueSecurity:      {},
	health.IssueDependency:    {},
	health.IssueConfiguration: {},
	health.IssueIntegration:   {},
}

func parseDeepOutput(raw string) (*Diagnosis, error) {
	var out deepOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}

	issueType := health.IssueType(strings.ToLower(out.Type))
	if _, ok := validIssueTypes[issueType]; !ok {
		return nil, errors.New("unknown issue type: " + out.Type)
	}
	if out.Severity < 1 || out.Severity > 10 {
		return nil, errors.New("severity out of range")
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, errors.New("confidence out of range")
	}

	d := &Diagnosis{
		Type:       issueType,
		Severity:   out.Severity,
		Confidence: out.Confidence,
	}
	for rank, cause := range out.Causes {
		if rank >= maxRootCauses {
			break
		}
		d.Causes = append(d.Causes, Cause{
			Description: cause,
			Confidence:  out.Confidence * (1.0 - 0.1*float64(rank)),
		})
	}
	return d, nil
}

// unknownDiagnosis is the minimal degraded classification.
func unknownDiagnosis() *Diagnosis {
	return &Diagnosis{
		Type:       health.IssueRuntime,
		Severity:   5,
		Confidence: 0.1,
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
