// Package download drives one kget invocation: it probes the server, plans
// the transfer, runs the parallel or single-stream fetch, verifies the file
// and records the outcome.
package download

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/engine"
	"github.com/kget-downloader/kget/internal/engine/concurrent"
	"github.com/kget-downloader/kget/internal/engine/events"
	"github.com/kget-downloader/kget/internal/engine/single"
	"github.com/kget-downloader/kget/internal/engine/sink"
	"github.com/kget-downloader/kget/internal/engine/state"
	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/transport"
	"github.com/kget-downloader/kget/internal/transport/ftp"
	"github.com/kget-downloader/kget/internal/transport/sftp"
	"github.com/kget-downloader/kget/internal/transport/torrent"
	"github.com/kget-downloader/kget/internal/utils"
)

// Transport keys in Manager.Transports.
const (
	SchemeFTP     = "ftp"
	SchemeSFTP    = "sftp"
	SchemeTorrent = "torrent"
)

// Request is one download as asked for on the command line.
type Request struct {
	ID             string // Generated when empty
	URL            string
	Output         string // File or directory; empty means the current directory
	Verify         bool   // Compute the SHA-256 of the finished file
	ExpectedSHA256 string // Fail with ChecksumMismatchError when set and different
	Reporter       events.Reporter
}

// Result describes a finished download.
type Result struct {
	ID           string
	Path         string
	Size         int64
	ResumeOffset int64
	Parallel     bool
	SHA256       string
	ContentType  string
	Elapsed      time.Duration
	HandedOff    bool // Torrent given to another program; no local file to verify
}

// Manager runs downloads with one HTTP client and one set of transports.
type Manager struct {
	Runtime    *types.RuntimeConfig
	Client     *http.Client
	Transports map[string]transport.Transport
	History    bool // Record every outcome with the state package
}

// NewManager builds a manager from the user's settings. runtime may carry
// command-line overrides; nil derives it from settings.
func NewManager(settings *config.Settings, runtime *types.RuntimeConfig) (*Manager, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if runtime == nil {
		runtime = types.ConvertRuntimeConfig(settings.ToRuntimeConfig())
	}

	client, err := engine.NewHTTPClient(runtime)
	if err != nil {
		return nil, err
	}

	return &Manager{
		Runtime: runtime,
		Client:  client,
		Transports: map[string]transport.Transport{
			SchemeFTP:     ftp.New(settings.FTP),
			SchemeSFTP:    sftp.New(settings.SFTP),
			SchemeTorrent: torrent.New(settings.Torrent),
		},
	}, nil
}

// Download runs req to completion. On failure the destination keeps only
// bytes that form a valid prefix, so the next run can resume from its size.
func (m *Manager) Download(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Reporter = events.OrNop(req.Reporter)

	start := time.Now()
	res := &Result{ID: req.ID}

	err := m.dispatch(ctx, req, res)
	res.Elapsed = time.Since(start)

	if m.History && !res.HandedOff {
		m.record(req, res, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Manager) dispatch(ctx context.Context, req Request, res *Result) error {
	if torrent.IsTorrentURL(req.URL) {
		return m.viaTransport(ctx, SchemeTorrent, req, res)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return m.downloadHTTP(ctx, req, res)
	case SchemeFTP:
		return m.viaTransport(ctx, SchemeFTP, req, res)
	case SchemeSFTP:
		return m.viaTransport(ctx, SchemeSFTP, req, res)
	case "":
		return fmt.Errorf("invalid url %q: missing scheme", req.URL)
	default:
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (m *Manager) viaTransport(ctx context.Context, key string, req Request, res *Result) error {
	t, ok := m.Transports[key]
	if !ok || t == nil {
		return fmt.Errorf("no %s transport configured", key)
	}

	out, err := t.Download(ctx, transport.Request{
		ID:       req.ID,
		URL:      req.URL,
		Output:   req.Output,
		Reporter: req.Reporter,
		Limiter:  engine.NewSpeedLimiter(m.Runtime.GetSpeedLimit(), m.Runtime.GetBufferSize()),
	})
	if err != nil {
		return err
	}

	res.Path = out.Path
	res.Size = out.Size
	res.HandedOff = out.HandedOff
	if out.HandedOff || key == SchemeTorrent {
		return nil
	}
	return m.verify(req, res, "")
}

func (m *Manager) downloadHTTP(ctx context.Context, req Request, res *Result) error {
	log := utils.Logger("download").With().Str("id", req.ID).Logger()
	reporter := req.Reporter
	enter := func(p types.Phase) {
		log.Debug().Stringer("phase", p).Str("url", req.URL).Msg("transition")
	}

	enter(types.PhaseProbing)
	reporter.OnStatus(fmt.Sprintf("Probing %s", req.URL))
	capability, err := engine.ProbeServer(ctx, m.Client, req.URL)
	if err != nil {
		enter(types.PhaseFailed)
		return err
	}
	total := capability.TotalSize

	enter(types.PhasePlanning)
	dest := utils.ResolveDestination(req.Output, capability.Filename)
	res.Path = dest
	res.Size = total

	resume, err := sink.ExistingSize(dest, total)
	if err != nil {
		enter(types.PhaseFailed)
		return err
	}
	res.ResumeOffset = resume
	target := types.Target{URL: req.URL, DestPath: dest, ResumeOffset: resume}

	// Without ranges nothing on disk can be trusted or continued, and opening
	// the sink would extend a partial file to full size.
	if !capability.SupportsRanges && resume > 0 {
		enter(types.PhaseFailed)
		return &types.ResumeUnsupportedError{Path: dest, ResumeOffset: resume}
	}

	var chunks []types.Chunk
	if capability.SupportsRanges {
		chunks = concurrent.PlanChunks(total, resume, m.Runtime.GetWorkers(),
			m.Runtime.GetMinChunkSize(), m.Runtime.GetMaxChunkSize())
	}
	fetch := resume < total
	if capability.SupportsRanges {
		fetch = len(chunks) > 0
	}
	switch {
	case !fetch:
		reporter.OnStatus("File already complete, nothing to fetch")
	case capability.SupportsRanges:
		reporter.OnStatus(fmt.Sprintf("Planned %d chunks from offset %d", len(chunks), resume))
	default:
		reporter.OnStatus("Planned a single stream")
	}

	if starter, ok := reporter.(events.StartReporter); ok {
		starter.OnStart(events.DownloadStartedMsg{
			DownloadID: req.ID,
			URL:        req.URL,
			Filename:   filepath.Base(dest),
			Total:      total,
			DestPath:   dest,
			Resumed:    resume,
		})
	}

	out, err := sink.OpenOrCreate(dest, total)
	if err != nil {
		enter(types.PhaseFailed)
		return err
	}

	progress := types.NewProgressState(req.ID, total, reporter)
	progress.SetBase(resume)
	limiter := engine.NewSpeedLimiter(m.Runtime.GetSpeedLimit(), m.Runtime.GetBufferSize())

	var fetchErr error
	keep := resume

	switch {
	case !fetch:
		log.Debug().Int64("size", total).Msg("file already complete")
	case capability.SupportsRanges:
		enter(types.PhaseParallelFetch)
		res.Parallel = true
		reporter.OnStatus(fmt.Sprintf("Downloading %s in %d chunks", utils.ConvertBytesToHumanReadable(total-resume), len(chunks)))

		d := concurrent.NewConcurrentDownloader(req.ID, m.Client, target, out, progress, m.Runtime)
		d.Limiter = limiter
		fetchErr = d.Download(ctx, chunks)
		keep = d.CompletedPrefix()
	default:
		enter(types.PhaseSingleStreamFetch)
		reporter.OnStatus("Server does not support ranges, using a single connection")

		d := single.NewSingleDownloader(req.ID, m.Client, progress, m.Runtime)
		d.Limiter = limiter
		fetchErr = d.Download(ctx, target, total, out)
		keep = 0
	}

	if fetchErr != nil {
		enter(types.PhaseFailed)
		if err := out.Abandon(keep); err != nil {
			log.Debug().Err(err).Int64("keep", keep).Msg("discarding partial file")
		}
		return fetchErr
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		enter(types.PhaseFailed)
		return err
	}
	if err := out.Close(); err != nil {
		enter(types.PhaseFailed)
		return err
	}
	progress.Finish()

	enter(types.PhaseVerifying)
	if err := m.verify(req, res, capability.ContentType); err != nil {
		enter(types.PhaseFailed)
		return err
	}

	enter(types.PhaseDone)
	return nil
}

func (m *Manager) record(req Request, res *Result, err error) {
	entry := types.DownloadEntry{
		ID:          req.ID,
		URL:         req.URL,
		DestPath:    res.Path,
		Status:      state.StatusCompleted,
		TotalSize:   res.Size,
		SHA256:      res.SHA256,
		CompletedAt: time.Now().Unix(),
		TimeTaken:   res.Elapsed.Milliseconds(),
	}
	if res.Path != "" {
		if info, statErr := os.Stat(res.Path); statErr == nil {
			entry.Downloaded = info.Size()
		}
	}
	if err != nil {
		entry.Status = state.StatusError
		entry.Error = err.Error()
	}

	if recErr := state.RecordDownload(entry); recErr != nil {
		utils.Debug("Failed to record history for %s: %v", req.ID, recErr)
	}
}
