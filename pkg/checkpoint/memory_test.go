package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id0, err := store.Put(ctx, "exec-1", 0, map[string]any{"steps_completed": 1}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id0)

	id1, err := store.Put(ctx, "exec-1", 1, map[string]any{"steps_completed": 2}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id0, id1)

	latest, err := store.Latest(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.StepIndex)
	assert.Equal(t, "exec-1", latest.ExecutionID)
	assert.Equal(t, 2, latest.State["steps_completed"])
}

func TestMemoryStore_OutOfOrderRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// First checkpoint must be step 0.
	_, err := store.Put(ctx, "exec-1", 1, nil, nil)
	require.Error(t, err)
	assert.True(t, IsOutOfOrder(err))

	_, err = store.Put(ctx, "exec-1", 0, nil, nil)
	require.NoError(t, err)

	// Gaps are rejected.
	_, err = store.Put(ctx, "exec-1", 2, nil, nil)
	require.Error(t, err)
	assert.True(t, IsOutOfOrder(err))

	// Repeats are rejected.
	_, err = store.Put(ctx, "exec-1", 0, nil, nil)
	require.Error(t, err)
	assert.True(t, IsOutOfOrder(err))
}

func TestMemoryStore_SequencesAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "exec-1", 0, nil, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "exec-1", 1, nil, nil)
	require.NoError(t, err)

	_, err = store.Put(ctx, "exec-2", 0, nil, nil)
	require.NoError(t, err)

	list, err := store.List(ctx, "exec-2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_LatestNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Latest(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := range 4 {
		_, err := store.Put(ctx, "exec-1", i, nil, map[string]any{"step_status": "completed"})
		require.NoError(t, err)
	}

	list, err := store.List(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, list, 4)

	for i, cp := range list {
		assert.Equal(t, i, cp.StepIndex)
	}
}

func TestMemoryStore_StateIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := map[string]any{"steps_completed": 1}

	_, err := store.Put(ctx, "exec-1", 0, state, nil)
	require.NoError(t, err)

	state["steps_completed"] = 99

	latest, err := store.Latest(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.State["steps_completed"])
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "exec-1", 0, nil, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "exec-2", 0, nil, nil)
	require.NoError(t, err)

	removed, err := store.Cleanup(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = store.Cleanup(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Latest(ctx, "exec-1")
	assert.True(t, IsNotFound(err))
}
