package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
)

func noopWorker() Worker {
	return Func(func(ctx context.Context, task *graph.Task) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("backend", noopWorker()))
	assert.Equal(t, 1, r.Len())

	err := r.Register("backend", noopWorker())
	assert.ErrorIs(t, err, ErrCategoryRegistered)

	assert.ErrorIs(t, r.Register("", noopWorker()), ErrInvalidCategory)
	assert.ErrorIs(t, r.Register("bad name", noopWorker()), ErrInvalidCategory)
	assert.ErrorIs(t, r.Register("frontend", nil), ErrNilWorker)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("backend", noopWorker()))

	w, err := r.Resolve("backend")
	require.NoError(t, err)
	require.NotNil(t, w)

	result, err := w.Execute(context.Background(), &graph.Task{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(result))

	_, err = r.Resolve("frontend")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRegistry_Categories(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("frontend", noopWorker()))
	require.NoError(t, r.Register("backend", noopWorker()))

	assert.Equal(t, []string{"backend", "frontend"}, r.Categories())
}

func TestStats(t *testing.T) {
	s := NewStats()
	s.RecordCompleted("backend")
	s.RecordCompleted("backend")
	s.RecordFailed("backend")
	s.RecordFailed("frontend")

	snap := s.Snapshot()
	assert.Equal(t, CategoryStats{Completed: 2, Failed: 1}, snap["backend"])
	assert.Equal(t, CategoryStats{Failed: 1}, snap["frontend"])
	assert.Equal(t, []string{"backend", "frontend"}, s.Categories())

	// Snapshot is a copy.
	snap["backend"] = CategoryStats{}
	assert.Equal(t, CategoryStats{Completed: 2, Failed: 1}, s.Snapshot()["backend"])
}
