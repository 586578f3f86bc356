package chat

import (
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total upstream request timeout.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout matches the total timeout since the upstream
	// sends headers only after the completion is fully generated.
	ResponseHeaderTimeout = 30 * time.Second
)

// NewHTTPClient creates an HTTP client configured for upstream completion
// calls. The total timeout is generous because the upstream generates the
// full completion before responding.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
