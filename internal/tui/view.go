package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kget-downloader/kget/internal/utils"
)

func (m Model) View() string {
	d := m.download

	width := m.width
	if width <= 0 {
		width = DefaultWidth
	}
	if width > MaxCardWidth {
		width = MaxCardWidth
	}
	inner := width - ProgressBarWidthOffset
	d.progress.Width = inner

	title := CardTitleStyle.Render(truncateString(d.Filename, inner))

	var body []string
	body = append(body, title, "", d.progress.View(), m.renderStats(), "")

	if len(m.speedHistory) > 1 {
		body = append(body, renderSpeedGraph(m.speedHistory, inner, GraphHeight, maxOf(m.speedHistory), ColorSecondary), "")
	}

	for _, s := range m.statuses {
		body = append(body, StatusLineStyle.Render(truncateString(s, inner)))
	}

	style := CardStyle
	switch {
	case d.err != nil:
		style = ErrorCardStyle
		body = append(body, "", ErrorStyle.Render("✖ "+d.err.Error()))
	case d.done:
		style = DoneCardStyle
		body = append(body, "", SuccessStyle.Render(fmt.Sprintf("✔ Saved %s in %s", d.DestPath, utils.FormatDuration(d.Elapsed))))
		if d.SHA256 != "" {
			body = append(body, CardStatsStyle.Render("sha256 "+d.SHA256))
		}
	case m.cancelled:
		body = append(body, "", HelpStyle.Render("cancelling..."))
	default:
		body = append(body, "", HelpStyle.Render("q: cancel"))
	}

	card := style.Width(width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, body...))
	return AppStyle.Render(card) + "\n"
}

func (m Model) renderStats() string {
	d := m.download

	pct := 0.0
	if d.Total > 0 {
		pct = float64(d.Downloaded) * 100 / float64(d.Total)
	}
	parts := []string{
		fmt.Sprintf("%s / %s (%.1f%%)",
			utils.ConvertBytesToHumanReadable(d.Downloaded),
			utils.ConvertBytesToHumanReadable(d.Total),
			pct),
		utils.FormatSpeed(d.Speed),
	}
	if eta := d.eta(); eta > 0 {
		parts = append(parts, "ETA "+utils.FormatDuration(eta))
	}
	return CardStatsStyle.Render(strings.Join(parts, "  "))
}

// eta estimates the remaining time from the smoothed speed.
func (d *DownloadModel) eta() time.Duration {
	if d.done || d.Speed <= 0 || d.Total <= d.Downloaded {
		return 0
	}
	return time.Duration(float64(d.Total-d.Downloaded) / d.Speed * float64(time.Second))
}

func truncateString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
