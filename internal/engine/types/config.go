package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
)

// Page fetch limits
const (
	DefaultConcurrency = 5                // Pages fetched in parallel per window
	MaxConcurrency     = 32               // Upper bound accepted from settings/flags
	MaxPageBytes       = 64 * MB          // A single page body is never read past this
	MaxMetadataBytes   = 4 * MB           // Gallery metadata documents are small
	DefaultImageHosts  = 4                // i1..i4
	DefaultTitleRunes  = 100              // Archive folder names are cut here
	DefaultPageTimeout = 60 * time.Second // Per-request transport timeout
)

// Retry defaults
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1000 * time.Millisecond
	MaxRetryDelay     = 30 * time.Second // Fixed ceiling for computed backoff
	MaxJitter         = 500 * time.Millisecond
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
)

// Channel buffer sizes
const (
	ProgressChannelBuffer = 100
)

// DefaultRetryableStatuses are the statuses retried when nothing else is configured.
func DefaultRetryableStatuses() []int {
	return []int{429, 500, 502, 503}
}

// DefaultUserAgent is sent when the user did not configure one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// RuntimeConfig holds per-run settings that can override defaults
type RuntimeConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	RetryableStatuses []int
	Concurrency       int

	UserAgent           string
	ProxyURL            string
	RequestTimeout      time.Duration
	SkipTLSVerification bool
	Cookie              string // Forwarded as-is, some hosts need a session

	APIBaseURL  string // e.g. https://nhentai.net/api
	ImageDomain string // e.g. nhentai.net, images come from i<N>.<domain>
	ImageHosts  int
}

// GetMaxRetries returns the configured value or default. Zero is a valid
// setting (no retries), so only negative values fall back.
func (r *RuntimeConfig) GetMaxRetries() int {
	if r == nil || r.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return r.MaxRetries
}

// GetBaseDelay returns configured value or default
func (r *RuntimeConfig) GetBaseDelay() time.Duration {
	if r == nil || r.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return r.BaseDelay
}

// GetRetryableStatuses returns configured value or default
func (r *RuntimeConfig) GetRetryableStatuses() []int {
	if r == nil || len(r.RetryableStatuses) == 0 {
		return DefaultRetryableStatuses()
	}
	out := make([]int, len(r.RetryableStatuses))
	copy(out, r.RetryableStatuses)
	return out
}

// GetConcurrency returns configured value or default, clamped to MaxConcurrency
func (r *RuntimeConfig) GetConcurrency() int {
	if r == nil || r.Concurrency <= 0 {
		return DefaultConcurrency
	}
	if r.Concurrency > MaxConcurrency {
		return MaxConcurrency
	}
	return r.Concurrency
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

// GetRequestTimeout returns configured value or default
func (r *RuntimeConfig) GetRequestTimeout() time.Duration {
	if r == nil || r.RequestTimeout <= 0 {
		return DefaultPageTimeout
	}
	return r.RequestTimeout
}

// GetAPIBaseURL returns configured value or default
func (r *RuntimeConfig) GetAPIBaseURL() string {
	if r == nil || r.APIBaseURL == "" {
		return "https://nhentai.net/api"
	}
	return r.APIBaseURL
}

// GetImageDomain returns configured value or default
func (r *RuntimeConfig) GetImageDomain() string {
	if r == nil || r.ImageDomain == "" {
		return "nhentai.net"
	}
	return r.ImageDomain
}

// GetImageHosts returns configured value or default
func (r *RuntimeConfig) GetImageHosts() int {
	if r == nil || r.ImageHosts <= 0 {
		return DefaultImageHosts
	}
	return r.ImageHosts
}
