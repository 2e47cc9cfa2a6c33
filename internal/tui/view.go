package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/pagepack/pagepack/internal/queue"
)

const logoText = "▛▀▖▞▀▖▞▀▖▛▀▘▛▀▖▞▀▖▞▀▖▌▗▘\n▙▄▘▙▄▌▌▄▖▙▄ ▙▄▘▙▄▌▌  ▙▘ \n▌  ▌ ▌▚▄▘▙▄▖▌  ▌ ▌▝▄▘▌▝▖"

func (m RootModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	if m.state == SettingsState {
		return m.viewSettings()
	}

	availableHeight := m.height - 2
	availableWidth := m.width - 2

	leftWidth := int(float64(availableWidth) * ListWidthRatio)
	rightWidth := availableWidth - leftWidth

	listHeight := max(availableHeight-HeaderHeight, MinListHeight)
	graphHeight := max(availableHeight/3, MinGraphHeight)
	detailHeight := max(availableHeight-graphHeight, MinDetailHeight)

	// --- HEADER ---
	header := lipgloss.NewStyle().Width(leftWidth).Height(HeaderHeight).PaddingLeft(1).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			LogoStyle.Render(logoText),
			lipgloss.NewStyle().PaddingLeft(3).Render(m.renderStats()),
		),
	)

	// --- ITEM LIST ---
	listBox := renderBtopBox("Queue", m.renderList(leftWidth-4, listHeight-2), leftWidth, listHeight, ColorNeonPink, false)

	// --- GRAPH ---
	graphBox := renderBtopBox("Pages/s", renderGraphPanel(m.PagesHistory, rightWidth-2, graphHeight-2), rightWidth, graphHeight, ColorNeonCyan, true)

	// --- DETAILS ---
	var detail string
	if it, ok := m.SelectedItem(); ok {
		detail = m.renderDetails(it, rightWidth-4)
	} else {
		detail = lipgloss.Place(rightWidth-4, detailHeight-2, lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(ColorNeonCyan).Render("No Item Selected"))
	}
	detailBox := renderBtopBox("Details", detail, rightWidth, detailHeight, ColorGray, true)

	left := lipgloss.JoinVertical(lipgloss.Left, header, listBox)
	right := lipgloss.JoinVertical(lipgloss.Left, graphBox, detailBox)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderFooter())
}

func (m RootModel) renderStats() string {
	s := m.stats
	line := func(label string, n int, color lipgloss.Color) string {
		return StatsStyle.Render(label+" ") + lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%d", n))
	}
	top := strings.Join([]string{
		line("pending", s.Pending, ColorStatePending),
		line("active", s.Downloading, ColorStateDownloading),
		line("done", s.Completed, ColorStateDone),
	}, "  ")
	bottom := strings.Join([]string{
		line("failed", s.Failed, ColorStateError),
		line("cancelled", s.Cancelled, ColorStateCancelled),
		line("total", s.Total, ColorText),
	}, "  ")
	state := StatsStyle.Render("idle")
	if m.running {
		state = lipgloss.NewStyle().Foreground(ColorStateDownloading).Bold(true).Render("running")
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom, state)
}

// renderList draws one row per item and keeps the cursor row visible.
func (m RootModel) renderList(width, height int) string {
	if len(m.items) == 0 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(ColorNeonCyan).Render("Queue is empty"))
	}

	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := min(start+height, len(m.items))

	titleWidth := min(TitleColumns, max(width/2, 8))
	barWidth := max(width-titleWidth-16, 4)
	bar := m.bar
	bar.Width = barWidth

	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		it := m.items[i]
		icon, color := statusIcon(it.Status)
		pages := fmt.Sprintf("%3d/%-3d", it.CurrentPage, it.TotalPages)
		title := fmt.Sprintf("%-*s", titleWidth, truncateString(it.Title, titleWidth-3))

		style := RowStyle
		prefix := "  "
		if i == m.cursor {
			style = SelectedRowStyle
			prefix = "> "
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			style.Render(prefix),
			lipgloss.NewStyle().Foreground(color).Render(icon+" "),
			style.Render(title+" "),
			StatsStyle.Render(pages+" "),
			bar.ViewAs(float64(it.Progress)/100),
		))
	}
	return strings.Join(rows, "\n")
}

func (m RootModel) renderDetails(it queue.Item, w int) string {
	icon, color := statusIcon(it.Status)
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render(label), StatsValueStyle.Render(value))
	}

	lines := []string{
		"",
		row("ID:", it.ID),
		row("Title:", truncateString(it.Title, max(w-14, 8))),
		row("Status:", lipgloss.NewStyle().Foreground(color).Render(icon+" "+string(it.Status))),
		row("Pages:", fmt.Sprintf("%d / %d (%d%%)", it.CurrentPage, it.TotalPages, it.Progress)),
		row("Retries:", fmt.Sprintf("%d", it.RetryCount)),
	}
	if it.FileSize > 0 {
		lines = append(lines, row("Size:", humanize.Bytes(uint64(it.FileSize))))
	}
	if it.StartedAt != nil {
		lines = append(lines, row("Started:", humanize.RelTime(*it.StartedAt, m.now(), "ago", "from now")))
		end := m.now()
		if it.CompletedAt != nil {
			end = *it.CompletedAt
		}
		lines = append(lines, row("Elapsed:", end.Sub(*it.StartedAt).Round(time.Second).String()))
	}
	if it.Error != "" {
		lines = append(lines, "",
			lipgloss.NewStyle().Foreground(ColorStateError).Width(w-2).Render("Error: "+it.Error))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m RootModel) renderFooter() string {
	var status string
	switch {
	case m.notification != "":
		status = NotificationStyle.Render(m.notification)
	case m.lastRetry != "" && m.running:
		status = RetryStyle.Render(m.lastRetry)
	case m.lastSummary != "":
		status = StatsStyle.Render(m.lastSummary)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(status),
		lipgloss.NewStyle().Padding(0, 1).Render(m.help.View(m.keys)),
	)
}

func statusIcon(s queue.Status) (string, lipgloss.Color) {
	switch s {
	case queue.StatusDownloading:
		return "⬇", ColorStateDownloading
	case queue.StatusCompleted:
		return "✔", ColorStateDone
	case queue.StatusFailed:
		return "✖", ColorStateError
	case queue.StatusCancelled:
		return "⊘", ColorStateCancelled
	default:
		return "o", ColorStatePending
	}
}

func truncateString(s string, i int) string {
	runes := []rune(s)
	if i > 0 && len(runes) > i {
		return string(runes[:i]) + "..."
	}
	return s
}

// renderBtopBox creates a btop-style box with the title embedded in the top border.
// Example (left):  ╭─ TITLE ─────────────╮
// Example (right): ╭───────────── TITLE ─╮
func renderBtopBox(title string, content string, width, height int, borderColor lipgloss.Color, titleRight bool) string {
	const (
		topLeft     = "╭"
		topRight    = "╮"
		bottomLeft  = "╰"
		bottomRight = "╯"
		horizontal  = "─"
		vertical    = "│"
	)

	innerWidth := max(width-2, 1)
	border := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true)

	titleText := fmt.Sprintf(" %s ", title)
	remaining := max(innerWidth-lipgloss.Width(titleText)-1, 0)

	var top string
	if titleRight {
		top = border.Render(topLeft+strings.Repeat(horizontal, remaining)) +
			titleStyle.Render(titleText) +
			border.Render(horizontal+topRight)
	} else {
		top = border.Render(topLeft+horizontal) +
			titleStyle.Render(titleText) +
			border.Render(strings.Repeat(horizontal, remaining)+topRight)
	}
	bottom := border.Render(bottomLeft + strings.Repeat(horizontal, innerWidth) + bottomRight)

	contentLines := strings.Split(content, "\n")
	innerHeight := max(height-2, 0)
	lines := make([]string, 0, innerHeight)
	for i := 0; i < innerHeight; i++ {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		if w := lipgloss.Width(line); w < innerWidth {
			line += strings.Repeat(" ", innerWidth-w)
		} else if w > innerWidth {
			line = lipgloss.NewStyle().MaxWidth(innerWidth).Render(line)
		}
		lines = append(lines, border.Render(vertical)+line+border.Render(vertical))
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(lines, "\n"), bottom)
}
