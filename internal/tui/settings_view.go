package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pagepack/pagepack/internal/config"
)

// viewSettings renders the Btop-style settings page
func (m RootModel) viewSettings() string {
	width := 76
	height := 20
	if m.width < width+4 {
		width = m.width - 4
	}
	if m.height < height+4 {
		height = m.height - 4
	}

	categories := config.CategoryOrder()
	metadata := config.GetSettingsMetadata()

	// === TAB BAR ===
	var tabItems []string
	for i, cat := range categories {
		label := fmt.Sprintf("[%d] %s", i+1, cat)
		if i == m.SettingsActiveTab {
			tabItems = append(tabItems, ActiveTabStyle.Render(label))
		} else {
			tabItems = append(tabItems, TabStyle.Render(label))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Left, tabItems...)

	currentCategory := categories[m.SettingsActiveTab]
	settingsMeta := metadata[currentCategory]
	settingsValues := m.getSettingsValues(currentCategory)

	leftWidth := 22
	rightWidth := width - leftWidth - 5

	// === LEFT COLUMN: names ===
	var listLines []string
	for i, meta := range settingsMeta {
		if i == m.SettingsSelectedRow {
			listLines = append(listLines, SelectedRowStyle.Render("> "+meta.Label))
		} else {
			listLines = append(listLines, lipgloss.NewStyle().Foreground(ColorLightGray).Render("  "+meta.Label))
		}
	}
	listBox := lipgloss.NewStyle().Width(leftWidth).Render(lipgloss.JoinVertical(lipgloss.Left, listLines...))

	separator := lipgloss.NewStyle().
		Foreground(ColorGray).
		Render(strings.TrimSuffix(strings.Repeat("│\n", len(settingsMeta)), "\n"))

	// === RIGHT COLUMN: value + description ===
	var rightContent string
	if m.SettingsSelectedRow < len(settingsMeta) {
		meta := settingsMeta[m.SettingsSelectedRow]
		valueStr := formatSettingValue(settingsValues[meta.Key], meta.Type)
		if m.SettingsIsEditing {
			valueStr = m.SettingsInput.View()
		}
		valueDisplay := lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true).Render("Value: " + valueStr)
		descDisplay := lipgloss.NewStyle().Foreground(ColorLightGray).Width(rightWidth - 2).Render(meta.Description)
		rightContent = valueDisplay + "\n\n" + descDisplay
	}
	rightBox := lipgloss.NewStyle().Width(rightWidth).PaddingLeft(1).Render(rightContent)

	content := lipgloss.JoinHorizontal(lipgloss.Top, listBox, separator, rightBox)

	fullContent := lipgloss.JoinVertical(lipgloss.Left,
		tabBar,
		"",
		content,
		"",
		m.help.View(m.settingsKeys),
	)

	box := renderBtopBox("Settings", fullContent, width, height, ColorNeonPink, false)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// getSettingsValues returns a map of setting key -> value for a category
func (m RootModel) getSettingsValues(category string) map[string]any {
	values := make(map[string]any)
	s := m.Settings

	switch category {
	case "General":
		values["output_dir"] = s.General.OutputDir
		values["output_format"] = s.General.OutputFormat
		values["filename_template"] = s.General.FilenameTemplate
		values["create_subfolders"] = s.General.CreateSubfolders
		values["skip_downloaded"] = s.General.SkipDownloaded
		values["log_level"] = s.General.LogLevel
		values["log_format"] = s.General.LogFormat
	case "Network":
		values["concurrent_downloads"] = s.Connections.ConcurrentDownloads
		values["user_agent"] = s.Connections.UserAgent
		values["proxy_url"] = s.Connections.ProxyURL
		values["cookie"] = s.Connections.Cookie
		values["request_timeout"] = s.Connections.RequestTimeout
		values["skip_tls_verification"] = s.Connections.SkipTLSVerification
		values["api_base_url"] = s.Connections.APIBaseURL
		values["image_domain"] = s.Connections.ImageDomain
		values["image_hosts"] = s.Connections.ImageHosts
	case "Performance":
		values["max_retries"] = s.Performance.MaxRetries
		values["base_delay"] = s.Performance.BaseDelay
		values["retryable_statuses"] = s.Performance.RetryableStatuses
	}
	return values
}

// setSettingValue sets a setting from string input. Bool settings toggle.
func (m *RootModel) setSettingValue(category, key, value string) error {
	switch category {
	case "General":
		return m.setGeneralSetting(key, value)
	case "Network":
		return m.setNetworkSetting(key, value)
	case "Performance":
		return m.setPerformanceSetting(key, value)
	}
	return nil
}

func (m *RootModel) setGeneralSetting(key, value string) error {
	g := &m.Settings.General
	switch key {
	case "output_dir":
		g.OutputDir = value
	case "output_format":
		g.OutputFormat = value
	case "filename_template":
		g.FilenameTemplate = value
	case "create_subfolders":
		g.CreateSubfolders = !g.CreateSubfolders
	case "skip_downloaded":
		g.SkipDownloaded = !g.SkipDownloaded
	case "log_level":
		g.LogLevel = value
	case "log_format":
		g.LogFormat = value
	}
	return nil
}

func (m *RootModel) setNetworkSetting(key, value string) error {
	c := &m.Settings.Connections
	switch key {
	case "concurrent_downloads":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("concurrent pages: %w", err)
		}
		c.ConcurrentDownloads = v
	case "user_agent":
		c.UserAgent = value
	case "proxy_url":
		c.ProxyURL = value
	case "cookie":
		c.Cookie = value
	case "request_timeout":
		v, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("request timeout: %w", err)
		}
		c.RequestTimeout = v
	case "skip_tls_verification":
		c.SkipTLSVerification = !c.SkipTLSVerification
	case "api_base_url":
		c.APIBaseURL = value
	case "image_domain":
		c.ImageDomain = value
	case "image_hosts":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("image hosts: %w", err)
		}
		c.ImageHosts = v
	}
	return nil
}

func (m *RootModel) setPerformanceSetting(key, value string) error {
	p := &m.Settings.Performance
	switch key {
	case "max_retries":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max retries: %w", err)
		}
		p.MaxRetries = v
	case "base_delay":
		v, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("base delay: %w", err)
		}
		p.BaseDelay = v
	case "retryable_statuses":
		statuses, err := parseStatusList(value)
		if err != nil {
			return fmt.Errorf("retryable statuses: %w", err)
		}
		p.RetryableStatuses = statuses
	}
	return nil
}

func parseStatusList(value string) ([]int, error) {
	var out []int
	for _, field := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m RootModel) currentMeta() (config.SettingMeta, bool) {
	categories := config.CategoryOrder()
	settingsMeta := config.GetSettingsMetadata()[categories[m.SettingsActiveTab]]
	if m.SettingsSelectedRow < len(settingsMeta) {
		return settingsMeta[m.SettingsSelectedRow], true
	}
	return config.SettingMeta{}, false
}

// getCurrentSettingKey returns the key of the currently selected setting
func (m RootModel) getCurrentSettingKey() string {
	meta, _ := m.currentMeta()
	return meta.Key
}

// getCurrentSettingType returns the type of the currently selected setting
func (m RootModel) getCurrentSettingType() string {
	meta, _ := m.currentMeta()
	return meta.Type
}

// getSettingsCount returns the number of settings in the current category
func (m RootModel) getSettingsCount() int {
	categories := config.CategoryOrder()
	return len(config.GetSettingsMetadata()[categories[m.SettingsActiveTab]])
}

// formatSettingValue formats a setting value for display
func formatSettingValue(value any, typ string) string {
	switch v := value.(type) {
	case nil:
		return "-"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Duration:
		return v.String()
	case []int:
		return formatEditValue(v)
	case string:
		if v == "" {
			return "(default)"
		}
		if typ == "string" && len(v) > 30 {
			return v[:27] + "..."
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatEditValue is the raw text placed in the edit box.
func formatEditValue(value any) string {
	switch v := value.(type) {
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// resetSettingToDefault resets a specific setting to its default value
func (m *RootModel) resetSettingToDefault(category, key string, defaults *config.Settings) {
	def, ok := RootModel{Settings: defaults}.getSettingsValues(category)[key]
	if !ok {
		return
	}
	if b, isBool := def.(bool); isBool {
		if m.getSettingsValues(category)[key] != b {
			_ = m.setSettingValue(category, key, "")
		}
		return
	}
	_ = m.setSettingValue(category, key, formatEditValue(def))
}
