package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	Proxy        ProxySettings        `json:"proxy"`
	Optimization OptimizationSettings `json:"optimization"`
	Torrent      TorrentSettings      `json:"torrent"`
	FTP          FTPSettings          `json:"ftp"`
	SFTP         SFTPSettings         `json:"sftp"`
}

// Proxy types accepted in ProxySettings.Type.
const (
	ProxyHTTP   = "http"
	ProxyHTTPS  = "https"
	ProxySOCKS5 = "socks5"
)

// ProxySettings configures an optional outbound proxy.
type ProxySettings struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Type     string `json:"proxy_type"`
}

// OptimizationSettings contains transfer tuning parameters.
type OptimizationSettings struct {
	MaxConnections int    `json:"max_connections"`
	SpeedLimit     int64  `json:"speed_limit,omitempty"` // bytes per second
	MinChunkSize   int64  `json:"min_chunk_size"`
	MaxChunkSize   int64  `json:"max_chunk_size"`
	MaxTaskRetries int    `json:"max_task_retries"`
	UserAgent      string `json:"user_agent,omitempty"`
	SkipTLSVerify  bool   `json:"skip_tls_verify"`
}

// TorrentSettings configures how magnet links and .torrent files are handed off.
type TorrentSettings struct {
	Enabled     bool   `json:"enabled"`
	RPCURL      string `json:"rpc_url"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	DownloadDir string `json:"download_dir,omitempty"`
	MaxPeers    int    `json:"max_peers"` // Sent as peer-limit with every torrent-add
}

// FTPSettings configures the FTP transport.
type FTPSettings struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SFTPSettings configures the SFTP transport.
type SFTPSettings struct {
	KnownHostsPath        string `json:"known_hosts_path,omitempty"`
	InsecureIgnoreHostKey bool   `json:"insecure_ignore_host_key"`
	PrivateKeyPath        string `json:"private_key_path,omitempty"`
	TimeoutSeconds        int    `json:"timeout_seconds"`
}

const (
	KB = 1024
	MB = 1024 * KB
)

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Proxy: ProxySettings{
			Enabled: false,
			Type:    ProxyHTTP,
		},
		Optimization: OptimizationSettings{
			MaxConnections: 4,
			MinChunkSize:   1 * MB,
			MaxChunkSize:   64 * MB,
			MaxTaskRetries: 3,
		},
		Torrent: TorrentSettings{
			Enabled:  false,
			RPCURL:   "http://127.0.0.1:9091/transmission/rpc",
			MaxPeers: 50,
		},
		FTP: FTPSettings{
			TimeoutSeconds: 30,
		},
		SFTP: SFTPSettings{
			TimeoutSeconds: 30,
		},
	}
}

// NormalizeProxyType maps user input to one of the supported proxy types.
func NormalizeProxyType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ProxyHTTPS:
		return ProxyHTTPS
	case ProxySOCKS5, "socks", "socks5h":
		return ProxySOCKS5
	default:
		return ProxyHTTP
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetKgetDir(), "config.json")
}

// LoadSettings loads settings from disk. A missing file is created with defaults.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from path, writing defaults there if it doesn't exist.
func LoadSettingsFrom(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			settings := DefaultSettings()
			if err := SaveSettingsTo(path, settings); err != nil {
				return nil, err
			}
			return settings, nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	settings.Proxy.Type = NormalizeProxyType(settings.Proxy.Type)

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	return SaveSettingsTo(GetSettingsPath(), s)
}

// SaveSettingsTo writes settings to path atomically.
func SaveSettingsTo(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// RuntimeConfig is the subset of Settings the download engine consumes.
type RuntimeConfig struct {
	MaxConnections int
	UserAgent      string
	ProxyEnabled   bool
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	ProxyType      string
	MinChunkSize   int64
	MaxChunkSize   int64
	MaxTaskRetries int
	SpeedLimit     int64
	SkipTLSVerify  bool
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MaxConnections: s.Optimization.MaxConnections,
		UserAgent:      s.Optimization.UserAgent,
		ProxyEnabled:   s.Proxy.Enabled,
		ProxyURL:       s.Proxy.URL,
		ProxyUsername:  s.Proxy.Username,
		ProxyPassword:  s.Proxy.Password,
		ProxyType:      NormalizeProxyType(s.Proxy.Type),
		MinChunkSize:   s.Optimization.MinChunkSize,
		MaxChunkSize:   s.Optimization.MaxChunkSize,
		MaxTaskRetries: s.Optimization.MaxTaskRetries,
		SpeedLimit:     s.Optimization.SpeedLimit,
		SkipTLSVerify:  s.Optimization.SkipTLSVerify,
	}
}
