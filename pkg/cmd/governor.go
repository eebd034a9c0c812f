package cmd

import (
	"context"

	"github.com/beaconcrm/automation/pkg/ratelimit"
)

// NewRateGovernor returns the Redis-backed governor when a Redis URL is
// configured and the in-memory one otherwise. The in-memory governor is
// per-process; multi-instance deployments need Redis for correct limits.
func NewRateGovernor(ctx context.Context, redisURL string) (ratelimit.Governor, error) {
	if redisURL == "" {
		return ratelimit.NewMemoryGovernor(), nil
	}

	return ratelimit.NewRedisGovernorFromURL(ctx, redisURL)
}
