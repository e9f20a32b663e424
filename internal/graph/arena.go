package graph

import "sort"

// Arena is a contiguous store of task records addressed by ID.
//
// Components hold task IDs and look the record up here instead of sharing
// mutable Task pointers across package boundaries. The backing slice never
// grows after construction, so *Task pointers stay valid for the arena's
// lifetime.
type Arena struct {
	tasks []Task
	index map[string]int
}

// newArena builds an arena from validated specs. Order follows the input.
func newArena(specs []TaskSpec) *Arena {
	a := &Arena{
		tasks: make([]Task, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		a.tasks[i] = Task{TaskSpec: spec, Status: StatusPending}
		a.index[spec.ID] = i
	}
	return a
}

// Get returns the task record for id, or nil if unknown.
func (a *Arena) Get(id string) *Task {
	i, ok := a.index[id]
	if !ok {
		return nil
	}
	return &a.tasks[i]
}

// Len returns the number of tasks.
func (a *Arena) Len() int {
	return len(a.tasks)
}

// IDs returns all task IDs sorted lexicographically.
func (a *Arena) IDs() []string {
	ids := make([]string, 0, len(a.tasks))
	for _, t := range a.tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}
