package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderSpeedGraph draws the most recent speed samples as a bar graph,
// newest on the right, over a dashed grid.
func renderSpeedGraph(data []float64, width, height int, maxVal float64, color lipgloss.Color) string {
	if width < 1 || height < 1 {
		return ""
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	gridStyle := lipgloss.NewStyle().Foreground(ColorBorder)
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
		if val < 0 {
			val = 0
		}
		pct := val / maxVal
		if pct > 1.0 {
			pct = 1.0
		}
		subBlocks := pct * float64(height) * 8.0

		// Fill from the bottom row up.
		for y := 0; y < height; y++ {
			rowValue := subBlocks - float64(y*8)
			if rowValue <= 0 {
				continue
			}
			char := "█"
			if rowValue < 8 {
				char = blocks[int(rowValue)]
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
