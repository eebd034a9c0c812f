package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	state := map[string]any{"steps_completed": float64(1)}
	metadata := map[string]any{"action_type": "send_email", "step_status": "completed"}

	id, err := store.Put(ctx, "exec-abc", 0, state, metadata)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	latest, err := store.Latest(ctx, "exec-abc")
	require.NoError(t, err)
	assert.Equal(t, 0, latest.StepIndex)
	assert.Equal(t, "exec-abc", latest.ExecutionID)
	assert.Equal(t, float64(1), latest.State["steps_completed"])
	assert.Equal(t, "send_email", latest.Metadata["action_type"])
	assert.False(t, latest.CreatedAt.IsZero())
}

func TestFileStore_GaplessSequence(t *testing.T) {
	ctx := context.Background()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "exec-abc", 0, nil, nil)
	require.NoError(t, err)

	_, err = store.Put(ctx, "exec-abc", 2, nil, nil)
	require.Error(t, err)
	assert.True(t, IsOutOfOrder(err))

	_, err = store.Put(ctx, "exec-abc", 1, nil, nil)
	require.NoError(t, err)

	list, err := store.List(ctx, "exec-abc")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].StepIndex)
	assert.Equal(t, 1, list[1].StepIndex)
}

func TestFileStore_InvalidExecutionID(t *testing.T) {
	ctx := context.Background()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	tests := []string{"", "..", "../escape", `a\b`, "a/b"}

	for _, id := range tests {
		_, err := store.Put(ctx, id, 0, nil, nil)
		assert.Error(t, err, "id %q", id)
	}
}

func TestFileStore_LatestNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Latest(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := NewFileStore(root)
	require.NoError(t, err)

	_, err = store.Put(ctx, "exec-abc", 0, nil, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "exec-abc", 1, nil, nil)
	require.NoError(t, err)

	reopened, err := NewFileStore(root)
	require.NoError(t, err)

	latest, err := reopened.Latest(ctx, "exec-abc")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.StepIndex)

	// The gapless invariant holds across restarts.
	_, err = reopened.Put(ctx, "exec-abc", 1, nil, nil)
	assert.True(t, IsOutOfOrder(err))

	_, err = reopened.Put(ctx, "exec-abc", 2, nil, nil)
	assert.NoError(t, err)
}

func TestFileStore_Cleanup(t *testing.T) {
	ctx := context.Background()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "exec-old", 0, nil, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "exec-old", 1, nil, nil)
	require.NoError(t, err)

	removed, err := store.Cleanup(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Latest(ctx, "exec-old")
	assert.True(t, IsNotFound(err))

	removed, err = store.Cleanup(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
