package retry

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pagepack/pagepack/internal/engine/types"
)

// Backoff computes the wait before the next attempt.
type Backoff struct {
	rand func() float64 // uniform in [0,1)
}

// NewBackoff returns a Backoff using rnd as its jitter source. A nil rnd uses
// math/rand/v2, which is safe for concurrent use.
func NewBackoff(rnd func() float64) *Backoff {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Backoff{rand: rnd}
}

// Delay returns the wait before retrying after the given 0-based attempt.
//
// An integer Retry-After header wins outright and is neither jittered nor
// capped. Otherwise the delay is BaseDelay*2^attempt plus up to 500ms of
// jitter, capped at MaxDelay.
func (b *Backoff) Delay(attempt int, p Policy, header http.Header) time.Duration {
	if d, ok := ParseRetryAfter(header); ok {
		return d
	}

	p = p.normalize()
	if attempt < 0 {
		attempt = 0
	}

	// Past ~30 doublings any sane base delay is already over the ceiling.
	if attempt > 30 {
		return p.MaxDelay
	}

	exp := p.BaseDelay * time.Duration(1<<uint(attempt))
	if exp <= 0 || exp > p.MaxDelay {
		return p.MaxDelay
	}

	jitter := time.Duration(b.rand() * float64(types.MaxJitter))
	return min(exp+jitter, p.MaxDelay)
}

// ParseRetryAfter reads a Retry-After header expressed in whole seconds.
// HTTP-date values and negative numbers are ignored.
func ParseRetryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
