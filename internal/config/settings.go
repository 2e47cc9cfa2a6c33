package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General     GeneralSettings     `json:"general" mapstructure:"general"`
	Connections ConnectionSettings  `json:"connections" mapstructure:"connections"`
	Performance PerformanceSettings `json:"performance" mapstructure:"performance"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	OutputDir        string `json:"output_dir" mapstructure:"output_dir"`
	OutputFormat     string `json:"output_format" mapstructure:"output_format"` // "zip" or "dir"
	FilenameTemplate string `json:"filename_template" mapstructure:"filename_template"`
	CreateSubfolders bool   `json:"create_subfolders" mapstructure:"create_subfolders"`
	SkipDownloaded   bool   `json:"skip_downloaded" mapstructure:"skip_downloaded"`
	LogLevel         string `json:"log_level" mapstructure:"log_level"`
	LogFormat        string `json:"log_format" mapstructure:"log_format"`
}

const (
	FormatZip = "zip"
	FormatDir = "dir"
)

// ConnectionSettings contains network connection parameters.
type ConnectionSettings struct {
	ConcurrentDownloads int           `json:"concurrent_downloads" mapstructure:"concurrent_downloads"`
	UserAgent           string        `json:"user_agent" mapstructure:"user_agent"`
	ProxyURL            string        `json:"proxy_url" mapstructure:"proxy_url"`
	Cookie              string        `json:"cookie" mapstructure:"cookie"`
	RequestTimeout      time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	SkipTLSVerification bool          `json:"skip_tls_verification" mapstructure:"skip_tls_verification"`
	APIBaseURL          string        `json:"api_base_url" mapstructure:"api_base_url"`
	ImageDomain         string        `json:"image_domain" mapstructure:"image_domain"`
	ImageHosts          int           `json:"image_hosts" mapstructure:"image_hosts"`
}

// PerformanceSettings contains retry tuning parameters.
type PerformanceSettings struct {
	MaxRetries        int           `json:"max_retries" mapstructure:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay" mapstructure:"base_delay"`
	RetryableStatuses []int         `json:"retryable_statuses" mapstructure:"retryable_statuses"`
}

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "bool", "duration", "[]int"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "output_dir", Label: "Output Dir", Description: "Directory archives are written to.", Type: "string"},
			{Key: "output_format", Label: "Output Format", Description: "zip writes one archive per run, dir writes plain files.", Type: "string"},
			{Key: "filename_template", Label: "Folder Template", Description: "Folder name per gallery. Supports {title} and {id}.", Type: "string"},
			{Key: "create_subfolders", Label: "Create Subfolders", Description: "Put each gallery's pages into its own folder.", Type: "bool"},
			{Key: "skip_downloaded", Label: "Skip Downloaded", Description: "Skip galleries already present in the download history.", Type: "bool"},
			{Key: "log_level", Label: "Log Level", Description: "debug, info, warn or error.", Type: "string"},
			{Key: "log_format", Label: "Log Format", Description: "console or json.", Type: "string"},
		},
		"Network": {
			{Key: "concurrent_downloads", Label: "Concurrent Pages", Description: "Pages fetched in parallel per window (1-32).", Type: "int"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP, HTTPS or SOCKS5 proxy URL. Leave empty to use system default.", Type: "string"},
			{Key: "cookie", Label: "Cookie", Description: "Cookie header sent with every request.", Type: "string"},
			{Key: "request_timeout", Label: "Request Timeout", Description: "Per-request timeout (e.g., 60s).", Type: "duration"},
			{Key: "skip_tls_verification", Label: "Skip TLS Verify", Description: "Accept invalid TLS certificates.", Type: "bool"},
			{Key: "api_base_url", Label: "API Base URL", Description: "Base URL of the gallery metadata API.", Type: "string"},
			{Key: "image_domain", Label: "Image Domain", Description: "Domain serving page images (i<N>.<domain>).", Type: "string"},
			{Key: "image_hosts", Label: "Image Hosts", Description: "Number of image hosts to spread requests over.", Type: "int"},
		},
		"Performance": {
			{Key: "max_retries", Label: "Max Retries", Description: "Retries per request before giving up.", Type: "int"},
			{Key: "base_delay", Label: "Base Delay", Description: "First backoff delay, doubled per attempt (e.g., 1s).", Type: "duration"},
			{Key: "retryable_statuses", Label: "Retryable Statuses", Description: "HTTP statuses that are retried.", Type: "[]int"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "Network", "Performance"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, "Downloads")

	return &Settings{
		General: GeneralSettings{
			OutputDir:        defaultDir,
			OutputFormat:     FormatZip,
			FilenameTemplate: "{title}",
			CreateSubfolders: true,
			SkipDownloaded:   true,
			LogLevel:         "info",
			LogFormat:        "console",
		},
		Connections: ConnectionSettings{
			ConcurrentDownloads: 5,
			UserAgent:           "", // Empty means use default UA
			RequestTimeout:      60 * time.Second,
			APIBaseURL:          "https://nhentai.net/api",
			ImageDomain:         "nhentai.net",
			ImageHosts:          4,
		},
		Performance: PerformanceSettings{
			MaxRetries:        3,
			BaseDelay:         1000 * time.Millisecond,
			RetryableStatuses: []int{429, 500, 502, 503},
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
// Environment variables of the form PAGEPACK_<SECTION>_<KEY> override the file.
func LoadSettings() (*Settings, error) {
	return loadSettingsFrom(GetSettingsPath())
}

func loadSettingsFrom(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("PAGEPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultSettings())

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return settings, nil
}

// setDefaults registers every field so AutomaticEnv can see it; viper only
// resolves env overrides for keys it already knows about.
func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("general.output_dir", d.General.OutputDir)
	v.SetDefault("general.output_format", d.General.OutputFormat)
	v.SetDefault("general.filename_template", d.General.FilenameTemplate)
	v.SetDefault("general.create_subfolders", d.General.CreateSubfolders)
	v.SetDefault("general.skip_downloaded", d.General.SkipDownloaded)
	v.SetDefault("general.log_level", d.General.LogLevel)
	v.SetDefault("general.log_format", d.General.LogFormat)

	v.SetDefault("connections.concurrent_downloads", d.Connections.ConcurrentDownloads)
	v.SetDefault("connections.user_agent", d.Connections.UserAgent)
	v.SetDefault("connections.proxy_url", d.Connections.ProxyURL)
	v.SetDefault("connections.cookie", d.Connections.Cookie)
	v.SetDefault("connections.request_timeout", d.Connections.RequestTimeout)
	v.SetDefault("connections.skip_tls_verification", d.Connections.SkipTLSVerification)
	v.SetDefault("connections.api_base_url", d.Connections.APIBaseURL)
	v.SetDefault("connections.image_domain", d.Connections.ImageDomain)
	v.SetDefault("connections.image_hosts", d.Connections.ImageHosts)

	v.SetDefault("performance.max_retries", d.Performance.MaxRetries)
	v.SetDefault("performance.base_delay", d.Performance.BaseDelay)
	v.SetDefault("performance.retryable_statuses", d.Performance.RetryableStatuses)
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	return saveSettingsTo(GetSettingsPath(), s)
}

func saveSettingsTo(path string, s *Settings) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Validate rejects settings the engine cannot work with.
func (s *Settings) Validate() error {
	switch s.General.OutputFormat {
	case FormatZip, FormatDir:
	default:
		return fmt.Errorf("output_format must be %q or %q, got %q", FormatZip, FormatDir, s.General.OutputFormat)
	}
	if s.Connections.ConcurrentDownloads < 1 || s.Connections.ConcurrentDownloads > 32 {
		return fmt.Errorf("concurrent_downloads must be between 1 and 32, got %d", s.Connections.ConcurrentDownloads)
	}
	if s.Performance.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", s.Performance.MaxRetries)
	}
	for _, code := range s.Performance.RetryableStatuses {
		if code < 100 || code > 599 {
			return fmt.Errorf("retryable_statuses contains invalid HTTP status %d", code)
		}
	}
	return nil
}

// RuntimeConfig is the app-level view of the settings passed to the engine
type RuntimeConfig struct {
	MaxRetries          int
	BaseDelay           time.Duration
	RetryableStatuses   []int
	Concurrency         int
	UserAgent           string
	ProxyURL            string
	Cookie              string
	RequestTimeout      time.Duration
	SkipTLSVerification bool
	APIBaseURL          string
	ImageDomain         string
	ImageHosts          int
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	statuses := make([]int, len(s.Performance.RetryableStatuses))
	copy(statuses, s.Performance.RetryableStatuses)

	return &RuntimeConfig{
		MaxRetries:          s.Performance.MaxRetries,
		BaseDelay:           s.Performance.BaseDelay,
		RetryableStatuses:   statuses,
		Concurrency:         s.Connections.ConcurrentDownloads,
		UserAgent:           s.Connections.UserAgent,
		ProxyURL:            s.Connections.ProxyURL,
		Cookie:              s.Connections.Cookie,
		RequestTimeout:      s.Connections.RequestTimeout,
		SkipTLSVerification: s.Connections.SkipTLSVerification,
		APIBaseURL:          s.Connections.APIBaseURL,
		ImageDomain:         s.Connections.ImageDomain,
		ImageHosts:          s.Connections.ImageHosts,
	}
}
