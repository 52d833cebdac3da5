package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin is scheme plus host, the unit of policy caching and pacing.
type Origin struct {
	Scheme string
	Host   string
}

// String renders the origin as scheme://host.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host
}

// OriginOf returns the normalized Origin of an absolute URL. Scheme and host
// are lowercased and default ports removed.
func OriginOf(rawURL string) (Origin, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Origin{}, fmt.Errorf("url %q is not absolute", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	// Remove default ports
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	return Origin{Scheme: scheme, Host: host}, nil
}
