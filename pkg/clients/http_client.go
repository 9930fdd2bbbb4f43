package clients

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// HTTPConfig tunes the pooled transport shared by Admin API calls and bulk
// result downloads.
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`

	// HTTP/2 settings
	EnableHTTP2 bool `json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"`
}

// DefaultHTTPConfig returns the transport settings used for one shop.
// Shopify allows few concurrent calls per app and shop, so the idle pool is
// small.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		RequestTimeout:        60 * time.Second,
	}
}

// NewHTTPClient builds an http.Client on a tuned transport. RequestTimeout
// bounds a whole exchange including the body, so bulk downloads get a client
// without it through WithoutTimeout.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *http.Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	// Enable HTTP/2 if configured
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// WithoutTimeout returns a copy of c sharing its transport but with no
// overall deadline; the caller's context bounds the exchange instead.
func WithoutTimeout(c *http.Client) *http.Client {
	cp := *c
	cp.Timeout = 0
	return &cp
}
