// Package safehttp builds the HTTP clients used to talk to remote nodes.
package safehttp

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewClient returns a client for fetching remote federation documents.
// Unless allowPrivate is set the client refuses to connect to loopback,
// private and link-local addresses, after DNS resolution.
func NewClient(timeout time.Duration, allowPrivate bool) *http.Client {
	if allowPrivate {
		return &http.Client{Timeout: timeout}
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}
