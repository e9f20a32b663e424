package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Configuration errors. All are fatal: the planner fails closed and
// nothing runs (spec category 1 error handling).
var (
	ErrNoTasks        = errors.New("graph: no tasks")
	ErrEmptyTaskID    = errors.New("graph: task id is required")
	ErrEmptyCategory  = errors.New("graph: task category is required")
	ErrDuplicateTask  = errors.New("graph: duplicate task id")
	ErrUnknownDep     = errors.New("graph: dependency on unknown task")
	ErrSelfDependency = errors.New("graph: task depends on itself")
	ErrCycle          = errors.New("graph: dependency cycle")
)

// Graph is a validated task set plus its derived execution phases.
type Graph struct {
	arena  *Arena
	phases [][]string // phases[k] holds phase k+1, ordered deterministically
	phase  map[string]int
}

// Build validates specs and levels them into phases.
//
// A task's phase is 1 plus the maximum phase of its dependencies; tasks
// without dependencies are phase 1. Ties within a phase are ordered by
// (priority, category, id) so reports are reproducible.
func Build(specs []TaskSpec) (*Graph, error) {
	if len(specs) == 0 {
		return nil, ErrNoTasks
	}

	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, ErrEmptyTaskID
		}
		if spec.Category == "" {
			return nil, fmt.Errorf("%w: task %q", ErrEmptyCategory, spec.ID)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTask, spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep == spec.ID {
				return nil, fmt.Errorf("%w: %q", ErrSelfDependency, spec.ID)
			}
			if _, ok := seen[dep]; !ok {
				return nil, fmt.Errorf("%w: task %q depends on %q", ErrUnknownDep, spec.ID, dep)
			}
		}
	}

	arena := newArena(specs)

	phase, err := levelTasks(arena, specs)
	if err != nil {
		return nil, err
	}

	maxPhase := 0
	for _, p := range phase {
		if p > maxPhase {
			maxPhase = p
		}
	}

	phases := make([][]string, maxPhase)
	for id, p := range phase {
		phases[p-1] = append(phases[p-1], id)
	}
	for _, ids := range phases {
		sortPhase(arena, ids)
	}

	return &Graph{arena: arena, phases: phases, phase: phase}, nil
}

// levelTasks assigns a phase number to every task by processing tasks in
// dependency order (Kahn's algorithm). Tasks left unphased form a cycle.
func levelTasks(arena *Arena, specs []TaskSpec) (map[string]int, error) {
	indegree := make(map[string]int, len(specs))
	dependents := make(map[string][]string, len(specs))
	for _, spec := range specs {
		indegree[spec.ID] = len(spec.DependsOn)
		for _, dep := range spec.DependsOn {
			dependents[dep] = append(dependents[dep], spec.ID)
		}
	}

	ready := make([]string, 0, len(specs))
	for _, spec := range specs {
		if indegree[spec.ID] == 0 {
			ready = append(ready, spec.ID)
		}
	}
	sort.Strings(ready)

	phase := make(map[string]int, len(specs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]

		p := 1
		for _, dep := range arena.Get(id).DependsOn {
			if dp := phase[dep]; dp >= p {
				p = dp + 1
			}
		}
		phase[id] = p

		next := dependents[id]
		sort.Strings(next)
		for _, dependent := range next {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(phase) != len(specs) {
		var stuck []string
		for _, spec := range specs {
			if _, ok := phase[spec.ID]; !ok {
				stuck = append(stuck, spec.ID)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w involving tasks: %s", ErrCycle, strings.Join(stuck, ", "))
	}

	return phase, nil
}

// sortPhase orders one phase's ids by (priority, category, id).
func sortPhase(arena *Arena, ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := arena.Get(ids[i]), arena.Get(ids[j])
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.ID < b.ID
	})
}

// Task returns the mutable task record for id, or nil if unknown.
func (g *Graph) Task(id string) *Task {
	return g.arena.Get(id)
}

// Len returns the total number of tasks.
func (g *Graph) Len() int {
	return g.arena.Len()
}

// IDs returns all task IDs sorted lexicographically.
func (g *Graph) IDs() []string {
	return g.arena.IDs()
}

// PhaseCount returns the number of execution phases.
func (g *Graph) PhaseCount() int {
	return len(g.phases)
}

// Phase returns the ordered task IDs of phase n (1-based). The returned
// slice must not be mutated.
func (g *Graph) Phase(n int) []string {
	if n < 1 || n > len(g.phases) {
		return nil
	}
	return g.phases[n-1]
}

// PhaseOf returns the phase number assigned to a task, or 0 if unknown.
func (g *Graph) PhaseOf(id string) int {
	return g.phase[id]
}
