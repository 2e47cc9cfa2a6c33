package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderGraphPanel draws the throughput history with a y axis and a
// "now" readout above it.
func renderGraphPanel(data []float64, width, height int) string {
	const axisWidth = 5

	graphWidth := max(width-axisWidth-2, 10)
	graphHeight := max(height-2, 1)

	maxVal := 1.0
	for _, v := range data {
		maxVal = max(maxVal, v)
	}
	// Headroom, rounded to a whole number of pages
	maxVal = float64(int(maxVal*1.1 + 0.99))

	axis := lipgloss.NewStyle().Width(axisWidth).Foreground(ColorGray).Align(lipgloss.Right)
	labels := make([]string, graphHeight)
	labels[0] = axis.Render(fmt.Sprintf("%.0f", maxVal))
	if graphHeight >= 5 {
		labels[graphHeight/2] = axis.Render(fmt.Sprintf("%.1f", maxVal/2))
	}
	if graphHeight > 1 {
		labels[graphHeight-1] = axis.Render("0")
	}
	for i, l := range labels {
		if l == "" {
			labels[i] = axis.Render("")
		}
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top,
		strings.Join(labels, "\n"),
		lipgloss.NewStyle().MarginLeft(1).Render(renderMultiLineGraph(data, graphWidth, graphHeight, maxVal, ColorNeonPink)),
	)

	current := 0.0
	if len(data) > 0 {
		current = data[len(data)-1]
	}
	title := lipgloss.NewStyle().
		Width(width-2).
		Align(lipgloss.Right).
		Foreground(ColorNeonPink).
		Bold(true).
		Render(fmt.Sprintf("Now: %.1f pages/s", current))

	return lipgloss.JoinVertical(lipgloss.Left, title, "", row)
}

// renderMultiLineGraph draws a bar graph over a dashed grid. Data fills
// from the right; values are scaled against maxVal.
func renderMultiLineGraph(data []float64, width, height int, maxVal float64, color lipgloss.Color) string {
	if width < 1 || height < 1 {
		return ""
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	gridStyle := lipgloss.NewStyle().Foreground(ColorGray)
	barStyle := lipgloss.NewStyle().Foreground(color)

	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
		for j := range rows[i] {
			if i%2 == 0 {
				rows[i][j] = gridStyle.Render("╌")
			} else {
				rows[i][j] = " "
			}
		}
	}

	visible := data
	if len(data) > width {
		visible = data[len(data)-width:]
	}

	blocks := []string{" ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}
	offset := width - len(visible)

	for x, val := range visible {
		pct := min(max(val, 0)/maxVal, 1.0)
		subBlocks := pct * float64(height) * 8.0

		for y := 0; y < height; y++ {
			level := subBlocks - float64(y*8)
			if level <= 0 {
				continue // grid shows through
			}
			char := "█"
			if level < 8 {
				char = blocks[int(level)]
			}
			rows[height-1-y][offset+x] = barStyle.Render(char)
		}
	}

	var s strings.Builder
	for i, row := range rows {
		s.WriteString(strings.Join(row, ""))
		if i < height-1 {
			s.WriteRune('\n')
		}
	}
	return s.String()
}
