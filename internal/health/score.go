package health

import "fmt"

// Score computes the [0,1] health score for a set of issues.
//
// Starting from 1.0, the mean normalized severity is subtracted, then the
// score is multiplied by 0.9 once per critical issue so critical issues
// compound the penalty instead of averaging away.
func Score(issues []Issue) float64 {
	if len(issues) == 0 {
		return 1.0
	}

	total := 0
	criticals := 0
	for _, issue := range issues {
		total += issue.Severity
		if issue.Critical() {
			criticals++
		}
	}

	score := 1.0 - float64(total)/(10.0*float64(len(issues)))
	for i := 0; i < criticals; i++ {
		score *= 0.9
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// DeriveStatus maps a score and its issues to a status. Any critical
// issue forces StatusCritical regardless of score.
func DeriveStatus(score float64, issues []Issue) Status {
	for _, issue := range issues {
		if issue.Critical() {
			return StatusCritical
		}
	}

	switch {
	case score < 0.3:
		return StatusFailing
	case score < 0.6:
		return StatusWarning
	case score < 0.8:
		return StatusGood
	default:
		return StatusExcellent
	}
}

// recommendations derives free-text advice from the issue mix.
func recommendations(issues []Issue) []string {
	if len(issues) == 0 {
		return nil
	}

	byType := make(map[IssueType]int)
	criticals := 0
	for _, issue := range issues {
		byType[issue.Type]++
		if issue.Critical() {
			criticals++
		}
	}

	var recs []string
	if criticals > 0 {
		recs = append(recs, fmt.Sprintf("address %d critical issue(s) before any further rollout", criticals))
	}
	if n := byType[IssueSecurity]; n > 0 {
		recs = append(recs, fmt.Sprintf("review %d security finding(s); prioritize patching exposed surfaces", n))
	}
	if n := byType[IssueDependency]; n > 0 {
		recs = append(recs, fmt.Sprintf("audit %d dependency issue(s); update or pin affected packages", n))
	}
	if n := byType[IssueConfiguration]; n > 0 {
		recs = append(recs, fmt.Sprintf("validate configuration: %d issue(s) found", n))
	}
	if n := byType[IssuePerformance]; n > 0 {
		recs = append(recs, fmt.Sprintf("profile hot paths: %d performance issue(s) found", n))
	}
	return recs
}
