package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
)

// MemoryGovernor keeps sliding windows of admission timestamps in process
// memory. Suitable for single-node deployments and tests.
type MemoryGovernor struct {
	mu         sync.Mutex
	admissions map[string][]time.Time // workflow ID -> admission times, oldest first
	now        func() time.Time
}

func NewMemoryGovernor() *MemoryGovernor {
	return &MemoryGovernor{
		admissions: make(map[string][]time.Time),
		now:        time.Now,
	}
}

func (g *MemoryGovernor) Admit(_ context.Context, workflowID string, limits models.RateLimits) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	dayCutoff := now.Add(-dayWindow)
	hourCutoff := now.Add(-hourWindow)

	// Drop everything outside the day window; it can never count again.
	window := g.admissions[workflowID]

	pruned := window[:0]
	for _, t := range window {
		if t.After(dayCutoff) {
			pruned = append(pruned, t)
		}
	}

	hourCount := 0
	for _, t := range pruned {
		if t.After(hourCutoff) {
			hourCount++
		}
	}

	if limits.MaxPerHour > 0 && hourCount >= limits.MaxPerHour {
		g.admissions[workflowID] = pruned

		return false, nil
	}

	if limits.MaxPerDay > 0 && len(pruned) >= limits.MaxPerDay {
		g.admissions[workflowID] = pruned

		return false, nil
	}

	g.admissions[workflowID] = append(pruned, now)

	return true, nil
}
