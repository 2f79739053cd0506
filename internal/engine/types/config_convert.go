package types

import "github.com/kget-downloader/kget/internal/config"

// ConvertRuntimeConfig converts the app-level RuntimeConfig to the engine-level RuntimeConfig.
func ConvertRuntimeConfig(rc *config.RuntimeConfig) *RuntimeConfig {
	return &RuntimeConfig{
		Workers:   rc.MaxConnections,
		UserAgent: rc.UserAgent,
		Proxy: ProxyConfig{
			Enabled:  rc.ProxyEnabled,
			URL:      rc.ProxyURL,
			Username: rc.ProxyUsername,
			Password: rc.ProxyPassword,
			Type:     rc.ProxyType,
		},
		MinChunkSize:   rc.MinChunkSize,
		MaxChunkSize:   rc.MaxChunkSize,
		MaxTaskRetries: rc.MaxTaskRetries,
		SpeedLimit:     rc.SpeedLimit,
		SkipTLSVerify:  rc.SkipTLSVerify,
	}
}
