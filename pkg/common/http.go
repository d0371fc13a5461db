package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// UserAgent returns the User-Agent sent with every outgoing request.
func UserAgent() string {
	return "WattLedger/" + strings.TrimSpace(version)
}

type headerTransport struct {
	transport http.RoundTripper
	userAgent string
	headers   http.Header
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// the original request may be reused by the caller for another attempt
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	for k, vs := range t.headers {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return HTTPClientWithHeaders(timeout, nil)
}

// HTTPClientWithHeaders returns an http client that sets the default
// user-agent and adds headers to every request that doesn't already carry
// them.
func HTTPClientWithHeaders(timeout time.Duration, headers http.Header) *http.Client {
	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(),
			headers:   headers.Clone(),
		},
		Timeout: timeout,
	}
}
