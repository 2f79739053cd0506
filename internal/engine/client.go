package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/kget-downloader/kget/internal/engine/types"
	"github.com/kget-downloader/kget/internal/utils"
)

// NewHTTPClient creates an http.Client tuned for parallel range requests.
// It applies the proxy, TLS and user agent settings of runtime.
func NewHTTPClient(runtime *types.RuntimeConfig) (*http.Client, error) {
	maxConns := runtime.GetWorkers()

	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		MaxIdleConns:        types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost: maxConns + 2,
		MaxConnsPerHost:     maxConns,

		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,

		// Ranges are byte offsets into the stored representation.
		DisableCompression: true,
		// One TCP connection per worker.
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),

		DialContext: dialer.DialContext,
	}

	if runtime != nil && runtime.Proxy.Enabled && runtime.Proxy.URL != "" {
		if err := configureProxy(transport, dialer, runtime.Proxy); err != nil {
			return nil, err
		}
	}

	if runtime != nil && runtime.SkipTLSVerify {
		utils.Debug("HTTP client: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: runtime.GetUserAgent()},
	}, nil
}

func configureProxy(transport *http.Transport, dialer *net.Dialer, cfg types.ProxyConfig) error {
	proxyType := strings.ToLower(cfg.Type)
	if proxyType == "" {
		proxyType = types.ProxyHTTP
	}

	raw := cfg.URL
	if !strings.Contains(raw, "://") {
		raw = proxyType + "://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid proxy URL %q", cfg.URL)
	}

	if strings.HasPrefix(parsed.Scheme, "socks5") || proxyType == types.ProxySOCKS5 {
		var auth *proxy.Auth
		if cfg.Username != "" {
			auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
		} else if parsed.User != nil {
			pass, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
		}

		socks, err := proxy.SOCKS5("tcp", parsed.Host, auth, dialer)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		utils.Debug("HTTP client: using SOCKS5 proxy %s", parsed.Host)

		transport.Proxy = nil
		if cd, ok := socks.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socks.Dial(network, addr)
			}
		}
		return nil
	}

	if cfg.Username != "" {
		parsed.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	utils.Debug("HTTP client: using %s proxy %s", parsed.Scheme, parsed.Host)
	transport.Proxy = http.ProxyURL(parsed)
	return nil
}

// userAgentTransport sets the User-Agent header on requests that lack one.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
