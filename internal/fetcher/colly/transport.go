package collyfetcher

import (
	"context"
	"net"
	"net/http"
	"time"
)

// TransportConfig sizes the pooled transport shared by a crawl session.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	Timeout             time.Duration
}

// NewTransport builds the pooled HTTP transport a session shares between the
// robots cache and the light fetcher.
func NewTransport(cfg TransportConfig) *http.Transport {
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 100
	}
	perHost := cfg.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = 8
	}
	handshake := 15 * time.Second
	if cfg.Timeout > 0 && cfg.Timeout < handshake {
		handshake = cfg.Timeout
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   handshake,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// contextTransport binds every request to ctx so that cancelling the fetch
// aborts the in-flight request.
type contextTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
