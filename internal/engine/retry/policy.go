package retry

import (
	"slices"
	"time"

	"github.com/pagepack/pagepack/internal/engine/types"
)

// Policy controls how many times a request is attempted and how long to wait
// between attempts. It is a value type; copies are independent.
type Policy struct {
	MaxRetries        int           // Retries after the first attempt, >= 0
	BaseDelay         time.Duration // Delay before the first retry, doubled per attempt
	RetryableStatuses []int         // HTTP statuses that trigger a retry
	MaxDelay          time.Duration // Ceiling for computed (not server-supplied) delays
}

// DefaultPolicy returns 3 retries, 1s base delay, {429,500,502,503} and a 30s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        types.DefaultMaxRetries,
		BaseDelay:         types.DefaultBaseDelay,
		RetryableStatuses: types.DefaultRetryableStatuses(),
		MaxDelay:          types.MaxRetryDelay,
	}
}

// PolicyFromConfig builds a Policy from per-run overrides, falling back to
// defaults for anything unset.
func PolicyFromConfig(rc *types.RuntimeConfig) Policy {
	return Policy{
		MaxRetries:        rc.GetMaxRetries(),
		BaseDelay:         rc.GetBaseDelay(),
		RetryableStatuses: rc.GetRetryableStatuses(),
		MaxDelay:          types.MaxRetryDelay,
	}
}

// IsRetryable reports whether status is in the retryable set.
func (p Policy) IsRetryable(status int) bool {
	return slices.Contains(p.RetryableStatuses, status)
}

// normalize fills zero values so a zero Policy behaves like "no retries, defaults otherwise".
func (p Policy) normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = types.DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = types.MaxRetryDelay
	}
	return p
}
