// Package worker maps task categories to the capabilities that execute
// them.
//
// Workers are opaque: the scheduler does not know how a category maps to
// actual work, only that Execute eventually returns a result payload or an
// error. Adding a category is a registration call, not a branch.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
)

// Errors for registry operations.
var (
	ErrInvalidCategory    = errors.New("worker: invalid category name")
	ErrNilWorker          = errors.New("worker: worker is required")
	ErrCategoryRegistered = errors.New("worker: category already registered")
	ErrUnknownCategory    = errors.New("worker: no worker registered for category")
)

// categoryPattern validates category names.
var categoryPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Worker executes tasks of one category.
type Worker interface {
	// Execute runs the task and returns an opaque result payload.
	// A returned error is the task's failure signal.
	Execute(ctx context.Context, task *graph.Task) (json.RawMessage, error)
}

// Func adapts a function to the Worker interface.
type Func func(ctx context.Context, task *graph.Task) (json.RawMessage, error)

// Execute implements Worker.
func (f Func) Execute(ctx context.Context, task *graph.Task) (json.RawMessage, error) {
	return f(ctx, task)
}

// Registry maps categories to workers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register binds a category to a worker. Duplicate registration is an
// error so misconfigured wiring fails at startup, not at dispatch.
func (r *Registry) Register(category string, w Worker) error {
	if !categoryPattern.MatchString(category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if w == nil {
		return fmt.Errorf("%w: category %q", ErrNilWorker, category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[category]; exists {
		return fmt.Errorf("%w: %q", ErrCategoryRegistered, category)
	}
	r.workers[category] = w
	return nil
}

// Resolve returns the worker for a category.
func (r *Registry) Resolve(category string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return w, nil
}

// Categories returns registered category names, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered categories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
