package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepack/pagepack/internal/queue"
)

func init() {
	ApplyColorProfile(true)
}

func sized(t *testing.T, m RootModel) RootModel {
	t.Helper()
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	return m
}

func TestViewBeforeSize(t *testing.T) {
	_, m := newFixture(t)
	assert.Equal(t, "Loading...", m.View())
}

func TestDashboardView(t *testing.T) {
	f, m := newFixture(t, "101", "202")
	require.NoError(t, f.q.SetTitle("101", "Alpha Story"))
	require.NoError(t, f.q.StartDownload("101"))
	require.NoError(t, f.q.UpdateProgress("101", 3, 10))
	m.refresh()
	m = sized(t, m)

	out := m.View()
	assert.Contains(t, out, "Queue")
	assert.Contains(t, out, "Alpha Story")
	assert.Contains(t, out, "Gallery 202")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "Pages/s")
	assert.Contains(t, out, "downloading")

	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 140)
	}
}

func TestDashboardShowsError(t *testing.T) {
	f, m := newFixture(t, "1")
	failItem(t, f.q, "1")
	m.refresh()
	m = sized(t, m)

	assert.Contains(t, m.View(), "資源不存在")
}

func TestDashboardEmptyQueue(t *testing.T) {
	_, m := newFixture(t)
	m = sized(t, m)
	out := m.View()
	assert.Contains(t, out, "Queue is empty")
	assert.Contains(t, out, "No Item Selected")
}

func TestDashboardFooterShowsSummary(t *testing.T) {
	_, m := newFixture(t)
	m = sized(t, m)
	m.lastSummary = "完成 1 本，失敗 0 本，取消 0 本"
	assert.Contains(t, m.View(), m.lastSummary)
}

func TestSettingsView(t *testing.T) {
	_, m := newFixture(t)
	m = sized(t, m)
	m, _ = send(t, m, keyMsg("s"))

	out := m.View()
	assert.Contains(t, out, "Settings")
	assert.Contains(t, out, "[1] General")
	assert.Contains(t, out, "Output Dir")

	m, _ = send(t, m, keyMsg("3"))
	out = m.View()
	assert.Contains(t, out, "Max Retries")
	assert.Contains(t, out, "Value: 3")
}

func TestStatusIcon(t *testing.T) {
	for _, s := range []queue.Status{queue.StatusPending, queue.StatusDownloading, queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled} {
		icon, _ := statusIcon(s)
		assert.NotEmpty(t, icon, s)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
	assert.Equal(t, "漢字...", truncateString("漢字漢字", 2))
}

func TestFormatSettingValue(t *testing.T) {
	assert.Equal(t, "True", formatSettingValue(true, "bool"))
	assert.Equal(t, "(default)", formatSettingValue("", "string"))
	assert.Equal(t, "429,503", formatSettingValue([]int{429, 503}, "[]int"))
	assert.Equal(t, "1.5s", formatEditValue(1500*time.Millisecond))
}

func TestRenderMultiLineGraph(t *testing.T) {
	out := renderMultiLineGraph([]float64{0, 5, 10}, 6, 2, 10, ColorNeonPink)
	rows := strings.Split(out, "\n")
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, 6, lipgloss.Width(r))
	}
	// Full bar on the right reaches the top row
	assert.True(t, strings.HasSuffix(rows[0], "█"))
	assert.Empty(t, renderMultiLineGraph(nil, 0, 2, 1, ColorNeonPink))
}
