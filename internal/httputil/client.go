package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// UserAgent identifies this tool to upstream services. The portal rejects
// requests without one.
const UserAgent = "saltflux/1.0 (water-quality analysis)"

type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", UserAgent)
	return t.base.RoundTrip(req)
}

// NewClient returns an HTTP client with standard timeout and User-Agent
// configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: &userAgentTransport{base: http.DefaultTransport},
	}
}
