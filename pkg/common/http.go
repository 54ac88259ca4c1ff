package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the build version.
func Version() string {
	return strings.TrimSpace(version)
}

// headerTransport sets fixed headers on every outgoing request.
type headerTransport struct {
	transport http.RoundTripper
	headers   http.Header
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header[k] = v
	}
	return t.transport.RoundTrip(req)
}

// ClientOption customizes the client returned by HTTPClient.
type ClientOption func(h http.Header)

// WithBearerToken authenticates every request with token.
func WithBearerToken(token string) ClientOption {
	return func(h http.Header) {
		if token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration, opts ...ClientOption) *http.Client {
	headers := http.Header{}
	headers.Set("User-Agent", "SunRudder/"+Version())
	for _, o := range opts {
		o(headers)
	}

	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			headers:   headers,
		},
		Timeout: timeout,
	}
}
