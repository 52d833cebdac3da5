package robots

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

var errNilRequest = errors.New("robots transport received nil request")

var handshakeRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// handshakeRetryTransport retries robots requests that die in the TLS
// handshake, which some hosts stall on under load.
type handshakeRetryTransport struct {
	base http.RoundTripper
}

func (t *handshakeRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errNilRequest
	}
	var lastErr error
	for attempt := 0; attempt <= len(handshakeRetryBackoff); attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isHandshakeTimeout(err) || req.Context().Err() != nil {
			break
		}
		if attempt == len(handshakeRetryBackoff) {
			break
		}
		if err := sleepWithContext(req.Context(), handshakeRetryBackoff[attempt]); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("robots roundtrip: %w", lastErr)
}

func isHandshakeTimeout(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && strings.Contains(err.Error(), "handshake") {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout") ||
		strings.Contains(err.Error(), "TLS handshake timeout")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
