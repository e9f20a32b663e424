package troubleshoot

import (
	"regexp"

	"github.com/fyrsmithlabs/orchestd/internal/health"
)

// pattern is one known-failure rule. Rules are evaluated in order; the
// first match wins, so more specific rules come first.
type pattern struct {
	name       string
	re         *regexp.Regexp
	issueType  health.IssueType
	severity   int
	confidence float64
	causes     []string
}

// knownPatterns is the ordered fast path of the analyzer. Matching any of
// these skips the deep analysis capability entirely.
var knownPatterns = []pattern{
	{
		name:       "name-resolution",
		re:         regexp.MustCompile(`(?i)(undefined|undeclared|unresolved|is not defined|cannot find symbol|name .* is not defined)`),
		issueType:  health.IssueLogic,
		severity:   6,
		confidence: 0.9,
		causes: []string{
			"identifier referenced before declaration or import",
			"typo in a symbol name",
			"missing import or package reference",
		},
	},
	{
		name:       "syntax",
		re:         regexp.MustCompile(`(?i)(syntax error|unexpected token|unexpected end of|parse error|expected .* found)`),
		issueType:  health.IssueSyntax,
		severity:   7,
		confidence: 0.95,
		causes: []string{
			"malformed statement at the reported location",
			"unbalanced delimiter earlier in the file",
		},
	},
	{
		name:       "timeout",
		re:         regexp.MustCompile(`(?i)(timed? ?out|deadline exceeded|context canceled)`),
		issueType:  health.IssuePerformance,
		severity:   6,
		confidence: 0.85,
		causes: []string{
			"operation exceeded its deadline",
			"downstream dependency responding slowly",
			"deadlock or unbounded wait",
		},
	},
	{
		name:       "permission",
		re:         regexp.MustCompile(`(?i)(permission denied|unauthorized|forbidden|access denied)`),
		issueType:  health.IssueSecurity,
		severity:   8,
		confidence: 0.9,
		causes: []string{
			"credentials missing or expired",
			"principal lacks the required role",
		},
	},
	{
		name:       "missing-dependency",
		re:         regexp.MustCompile(`(?i)(module not found|no module named|cannot find (module|package)|import error|package .* is not in)`),
		issueType:  health.IssueDependency,
		severity:   7,
		confidence: 0.9,
		causes: []string{
			"dependency not installed or not declared",
			"version mismatch between declared and resolved dependency",
		},
	},
	{
		name:       "nil-dereference",
		re:         regexp.MustCompile(`(?i)(nil pointer|null pointer|nonetype.*has no attribute|segmentation fault|index out of (range|bounds)|panic:)`),
		issueType:  health.IssueRuntime,
		severity:   8,
		confidence: 0.9,
		causes: []string{
			"value used before initialization",
			"missing error check left a zero value in use",
			"bounds assumption violated by input data",
		},
	},
	{
		name:       "configuration",
		re:         regexp.MustCompile(`(?i)(missing (env|environment variable|config)|invalid config|configuration error|unknown flag)`),
		issueType:  health.IssueConfiguration,
		severity:   6,
		confidence: 0.85,
		causes: []string{
			"required setting absent in the environment",
			"configuration file out of sync with the deployed version",
		},
	},
	{
		name:       "connectivity",
		re:         regexp.MustCompile(`(?i)(connection refused|connection reset|no such host|dns|network is unreachable|broken pipe)`),
		issueType:  health.IssueIntegration,
		severity:   7,
		confidence: 0.85,
		causes: []string{
			"remote endpoint down or unreachable",
			"wrong address or port in configuration",
			"network policy blocking the route",
		},
	},
}

// matchPattern returns the first matching rule for a failure signal, or
// nil. The trace participates in matching because interpreters often put
// the root error there rather than in the message.
func matchPattern(f Failure) *pattern {
	for i := range knownPatterns {
		p := &knownPatterns[i]
		if p.re.MatchString(f.Message) || (f.Trace != "" && p.re.MatchString(f.Trace)) {
			return p
		}
	}
	return nil
}
