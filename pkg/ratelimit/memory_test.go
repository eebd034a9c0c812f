package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func admitN(t *testing.T, g *MemoryGovernor, workflowID string, limits models.RateLimits, n int) {
	t.Helper()

	for range n {
		admitted, err := g.Admit(context.Background(), workflowID, limits)
		require.NoError(t, err)
		require.True(t, admitted)
	}
}

func TestMemoryGovernor_HourLimit(t *testing.T) {
	governor := NewMemoryGovernor()
	limits := models.RateLimits{MaxPerHour: 3}

	admitN(t, governor, "wf-1", limits, 3)

	admitted, err := governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestMemoryGovernor_DayLimit(t *testing.T) {
	governor := NewMemoryGovernor()
	limits := models.RateLimits{MaxPerDay: 5}

	admitN(t, governor, "wf-1", limits, 5)

	admitted, err := governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestMemoryGovernor_ZeroMeansUnlimited(t *testing.T) {
	governor := NewMemoryGovernor()

	admitN(t, governor, "wf-1", models.RateLimits{}, 100)
}

func TestMemoryGovernor_WorkflowsAreIndependent(t *testing.T) {
	governor := NewMemoryGovernor()
	limits := models.RateLimits{MaxPerHour: 1}

	admitN(t, governor, "wf-1", limits, 1)

	admitted, err := governor.Admit(context.Background(), "wf-2", limits)
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestMemoryGovernor_HourWindowRolls(t *testing.T) {
	governor := NewMemoryGovernor()
	limits := models.RateLimits{MaxPerHour: 2}

	current := time.Now().UTC()
	governor.now = func() time.Time { return current }

	admitN(t, governor, "wf-1", limits, 2)

	admitted, err := governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	require.False(t, admitted)

	// 61 minutes later the hour window has rolled past both admissions.
	current = current.Add(61 * time.Minute)

	admitted, err = governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestMemoryGovernor_DayWindowStillCounts(t *testing.T) {
	governor := NewMemoryGovernor()
	limits := models.RateLimits{MaxPerHour: 10, MaxPerDay: 3}

	current := time.Now().UTC()
	governor.now = func() time.Time { return current }

	admitN(t, governor, "wf-1", limits, 3)

	// Past the hour window but still inside the day window.
	current = current.Add(2 * time.Hour)

	admitted, err := governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	require.False(t, admitted)

	// Past the day window everything expires.
	current = current.Add(25 * time.Hour)

	admitted, err = governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestMemoryGovernor_RejectionDoesNotConsume(t *testing.T) {
	governor := NewMemoryGovernor()
	limits := models.RateLimits{MaxPerHour: 1}

	current := time.Now().UTC()
	governor.now = func() time.Time { return current }

	admitN(t, governor, "wf-1", limits, 1)

	// Rejected attempts must not extend the window.
	for range 5 {
		admitted, err := governor.Admit(context.Background(), "wf-1", limits)
		require.NoError(t, err)
		require.False(t, admitted)
	}

	current = current.Add(61 * time.Minute)

	admitted, err := governor.Admit(context.Background(), "wf-1", limits)
	require.NoError(t, err)
	assert.True(t, admitted)
}
