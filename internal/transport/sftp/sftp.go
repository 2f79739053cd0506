// Package sftp downloads sftp:// URLs over SSH.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/engine/events"
	"github.com/kget-downloader/kget/internal/engine/sink"
	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/transport"
	"github.com/kget-downloader/kget/internal/utils"
)

const defaultPort = "22"

// ErrNoAuthMethod is returned when neither a password nor a key is available.
var ErrNoAuthMethod = errors.New("sftp: no password in url and no private key configured")

// Transport fetches files from SSH servers.
type Transport struct {
	Settings config.SFTPSettings
}

// New creates an SFTP transport from the user's settings.
func New(settings config.SFTPSettings) *Transport {
	return &Transport{Settings: settings}
}

func (t *Transport) timeout() time.Duration {
	if t.Settings.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.Settings.TimeoutSeconds) * time.Second
}

func (t *Transport) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.Settings.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	known := t.Settings.KnownHostsPath
	if known == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		known = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(known)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", known, err)
	}
	return cb, nil
}

func (t *Transport) authMethods(ep *transport.Endpoint) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if t.Settings.PrivateKeyPath != "" {
		pem, err := os.ReadFile(t.Settings.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if ep.Password != "" {
		methods = append(methods, ssh.Password(ep.Password))
	}

	if len(methods) == 0 {
		return nil, ErrNoAuthMethod
	}
	return methods, nil
}

// clientConfig builds the SSH handshake parameters for ep.
func (t *Transport) clientConfig(ep *transport.Endpoint) (*ssh.ClientConfig, error) {
	auth, err := t.authMethods(ep)
	if err != nil {
		return nil, err
	}
	hostKey, err := t.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user := ep.User
	if user == "" {
		user = os.Getenv("USER")
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         t.timeout(),
	}, nil
}

func (t *Transport) dial(ctx context.Context, ep *transport.Endpoint) (*ssh.Client, error) {
	cfg, err := t.clientConfig(ep)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: t.timeout()}
	conn, err := d.DialContext(ctx, "tcp", ep.Addr)
	if err != nil {
		return nil, fmt.Errorf("sftp dial %s: %w", ep.Addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, ep.Addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", ep.Addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Download fetches req.URL, continuing an existing partial file.
func (t *Transport) Download(ctx context.Context, req transport.Request) (*transport.Result, error) {
	ep, err := transport.ParseEndpoint(req.URL, defaultPort)
	if err != nil {
		return nil, err
	}
	events.OrNop(req.Reporter).OnStatus(fmt.Sprintf("Connecting to %s", ep.Addr))
	sshClient, err := t.dial(ctx, ep)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sshClient.Close() }()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("start sftp session: %w", err)
	}
	defer func() { _ = client.Close() }()

	return fetch(ctx, client, ep, req)
}

// fetch copies ep.Path over an established SFTP session into the destination,
// continuing from whatever prefix is already on disk.
func fetch(ctx context.Context, client *sftp.Client, ep *transport.Endpoint, req transport.Request) (*transport.Result, error) {
	reporter := events.OrNop(req.Reporter)
	log := utils.Logger("sftp")

	remote, err := client.Open(ep.Path)
	if err != nil {
		return nil, &types.ProbeError{URL: req.URL, Err: err}
	}
	defer func() { _ = remote.Close() }()

	info, err := remote.Stat()
	if err != nil {
		return nil, &types.ProbeError{URL: req.URL, Err: err}
	}
	total := info.Size()

	dest := utils.ResolveDestination(req.Output, utils.SanitizeFilename(path.Base(ep.Path)))
	resume, err := sink.ExistingSize(dest, total)
	if err != nil {
		return nil, err
	}

	if starter, ok := reporter.(events.StartReporter); ok {
		starter.OnStart(events.DownloadStartedMsg{
			DownloadID: req.ID,
			URL:        req.URL,
			Filename:   path.Base(dest),
			Total:      total,
			DestPath:   dest,
			Resumed:    resume,
		})
	}

	out, err := sink.OpenOrCreate(dest, total)
	if err != nil {
		return nil, err
	}
	// valid is how much of the file is known good. Anything past it, including
	// the preallocated tail, is cut off unless the transfer completes.
	valid, complete := resume, false
	defer func() {
		if complete {
			_ = out.Close()
			return
		}
		if err := out.Abandon(valid); err != nil {
			log.Debug().Err(err).Int64("keep", valid).Msg("discarding partial file")
		}
	}()

	state := types.NewProgressState(req.ID, total, reporter)
	state.SetBase(resume)

	if resume < total {
		if _, err := remote.Seek(resume, io.SeekStart); err != nil {
			return nil, fmt.Errorf("sftp seek %s: %w", ep.Path, err)
		}
		log.Debug().Str("path", ep.Path).Int64("offset", resume).Int64("total", total).Msg("retrieving")

		n, err := transport.Stream(ctx, remote, out, dest, resume, total, state, req.Limiter)
		if err != nil {
			valid = resume + n
			return nil, err
		}
	}

	if err := out.Sync(); err != nil {
		return nil, err
	}
	complete = true
	state.Finish()
	return &transport.Result{Path: dest, Size: total}, nil
}
