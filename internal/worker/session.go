package worker

import (
	"sort"
	"sync"
	"time"
)

// Session is the transient record of one worker executing one task. The
// phase executor owns it for the lifetime of that execution and discards
// it when the phase completes.
type Session struct {
	Category  string
	TaskID    string
	StartedAt time.Time
}

// NewSession starts a session for one task execution.
func NewSession(category, taskID string) *Session {
	return &Session{Category: category, TaskID: taskID, StartedAt: time.Now()}
}

// CategoryStats are the running totals for one worker category.
type CategoryStats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Stats accumulates per-category execution totals. Unlike sessions, these
// counters persist for the life of the coordinator instance.
type Stats struct {
	mu     sync.Mutex
	counts map[string]CategoryStats
}

// NewStats creates empty stats.
func NewStats() *Stats {
	return &Stats{counts: make(map[string]CategoryStats)}
}

// RecordCompleted counts a successful execution for a category.
func (s *Stats) RecordCompleted(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts[category]
	c.Completed++
	s.counts[category] = c
}

// RecordFailed counts a failed execution for a category.
func (s *Stats) RecordFailed(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts[category]
	c.Failed++
	s.counts[category] = c
}

// Snapshot returns a copy of the current totals keyed by category.
func (s *Stats) Snapshot() map[string]CategoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]CategoryStats, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Categories returns categories with recorded activity, sorted.
func (s *Stats) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.counts))
	for name := range s.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
