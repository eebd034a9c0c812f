// Package ratelimit provides per-workflow execution admission control using
// rolling hourly and daily quotas.
package ratelimit

import (
	"context"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Governor decides whether a matched, condition-passing workflow may execute.
// Admission requires both rolling counters to be strictly under their
// configured maxima; an admitted call is immediately counted. A zero limit
// leaves the corresponding window unbounded.
//
// Rejection is a routing decision, not an error: the error return is reserved
// for backend failures (e.g. an unreachable Redis).
type Governor interface {
	Admit(ctx context.Context, workflowID string, limits models.RateLimits) (bool, error)
}
