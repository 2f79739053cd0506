package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kget-downloader/kget/internal/engine/events"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	d := m.download

	switch msg := msg.(type) {
	case events.DownloadStartedMsg:
		d.Filename = msg.Filename
		d.DestPath = msg.DestPath
		d.Total = msg.Total
		d.Resumed = msg.Resumed
		d.Downloaded = msg.Resumed
		d.URL = msg.URL
		var cmd tea.Cmd
		if d.Total > 0 {
			cmd = d.progress.SetPercent(float64(d.Downloaded) / float64(d.Total))
		}
		return m, tea.Batch(cmd, listenForActivity(m.messages))

	case events.ProgressMsg:
		if d.done {
			return m, listenForActivity(m.messages)
		}
		d.Downloaded = msg.Downloaded
		d.Total = msg.Total
		d.Speed = msg.Speed
		d.Elapsed = msg.Elapsed

		m.speedHistory = append(m.speedHistory, msg.Speed)
		if len(m.speedHistory) > MaxSpeedSamples {
			m.speedHistory = m.speedHistory[len(m.speedHistory)-MaxSpeedSamples:]
		}

		var cmd tea.Cmd
		if d.Total > 0 {
			cmd = d.progress.SetPercent(float64(d.Downloaded) / float64(d.Total))
		}
		return m, tea.Batch(cmd, listenForActivity(m.messages))

	case events.StatusMsg:
		m.statuses = append(m.statuses, msg.Text)
		if len(m.statuses) > MaxStatusLines {
			m.statuses = m.statuses[len(m.statuses)-MaxStatusLines:]
		}
		return m, listenForActivity(m.messages)

	case events.DownloadCompleteMsg:
		d.done = true
		d.Downloaded = msg.Total
		d.Total = msg.Total
		d.Elapsed = msg.Elapsed
		d.SHA256 = msg.SHA256
		if msg.Filename != "" {
			d.Filename = msg.Filename
		}
		return m, tea.Batch(d.progress.SetPercent(1.0), listenForActivity(m.messages))

	case events.DownloadErrorMsg:
		d.done = true
		d.err = msg.Err
		d.Elapsed = time.Since(d.StartTime)
		return m, listenForActivity(m.messages)

	case channelClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if d.done {
				return m, tea.Quit
			}
			// Keep listening: the download reports its cancellation and
			// closes the channel, which ends the program.
			if !m.cancelled && m.cancel != nil {
				m.cancel()
			}
			m.cancelled = true
		}
		return m, nil

	case progress.FrameMsg:
		newModel, cmd := d.progress.Update(msg)
		if p, ok := newModel.(progress.Model); ok {
			d.progress = p
		}
		return m, cmd
	}

	return m, nil
}
