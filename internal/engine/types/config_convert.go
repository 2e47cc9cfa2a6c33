package types

import "github.com/pagepack/pagepack/internal/config"

// ConvertRuntimeConfig converts the app-level RuntimeConfig to the engine-level RuntimeConfig.
func ConvertRuntimeConfig(rc *config.RuntimeConfig) *RuntimeConfig {
	if rc == nil {
		return &RuntimeConfig{MaxRetries: -1}
	}
	statuses := make([]int, len(rc.RetryableStatuses))
	copy(statuses, rc.RetryableStatuses)

	return &RuntimeConfig{
		MaxRetries:          rc.MaxRetries,
		BaseDelay:           rc.BaseDelay,
		RetryableStatuses:   statuses,
		Concurrency:         rc.Concurrency,
		UserAgent:           rc.UserAgent,
		ProxyURL:            rc.ProxyURL,
		RequestTimeout:      rc.RequestTimeout,
		SkipTLSVerification: rc.SkipTLSVerification,
		Cookie:              rc.Cookie,
		APIBaseURL:          rc.APIBaseURL,
		ImageDomain:         rc.ImageDomain,
		ImageHosts:          rc.ImageHosts,
	}
}
