// Package tui renders the progress of one download with bubbletea.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kget-downloader/kget/internal/engine/events"
)

// DownloadModel is what the view knows about the running download.
type DownloadModel struct {
	ID         string
	URL        string
	Filename   string
	DestPath   string
	Total      int64
	Downloaded int64
	Resumed    int64
	Speed      float64

	StartTime time.Time
	Elapsed   time.Duration
	SHA256    string

	progress progress.Model

	done bool
	err  error
}

// Model is the root bubbletea model. It only reads from the reporter's
// channel; the download itself runs elsewhere.
type Model struct {
	download     *DownloadModel
	messages     <-chan any
	cancel       context.CancelFunc
	statuses     []string
	speedHistory []float64
	width        int
	cancelled    bool
}

// channelClosedMsg is delivered once the reporter closed its channel.
type channelClosedMsg struct{}

// NewDownloadModel creates a new download model waiting for its first event
func NewDownloadModel(id, url string) *DownloadModel {
	return &DownloadModel{
		ID:        id,
		URL:       url,
		Filename:  "Probing...",
		StartTime: time.Now(),
		progress:  progress.New(progress.WithDefaultGradient()),
	}
}

// NewModel follows the messages of one ChannelReporter. cancel is invoked
// when the user quits before the download finished.
func NewModel(id, url string, messages <-chan any, cancel context.CancelFunc) Model {
	return Model{
		download: NewDownloadModel(id, url),
		messages: messages,
		cancel:   cancel,
		width:    DefaultWidth,
	}
}

func (m Model) Init() tea.Cmd {
	return listenForActivity(m.messages)
}

// Err returns the download error, if it failed.
func (m Model) Err() error {
	return m.download.err
}

// Done reports whether the download reached a terminal state.
func (m Model) Done() bool {
	return m.download.done
}

func listenForActivity(sub <-chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return channelClosedMsg{}
		}
		return msg
	}
}

// Run shows the progress of the download behind reporter until its channel
// closes. It returns the final model so callers can inspect the outcome.
func Run(reporter *events.ChannelReporter, url string, cancel context.CancelFunc) (Model, error) {
	p := tea.NewProgram(NewModel(reporter.ID, url, reporter.Messages(), cancel))
	final, err := p.Run()
	if err != nil {
		return Model{}, err
	}
	return final.(Model), nil
}
