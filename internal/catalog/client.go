// Package catalog provides a typed HTTP client for the e-commerce backend's
// bulk-upload endpoints: batch validation, processing, and CSV templates.
//
// The client attaches the ambient bearer token to every request and never
// retries automatically: validation and processing are operator-triggered
// actions, and the processing endpoint is not idempotent.
package catalog

import (
	"net"
	"net/http"
	"time"

	"github.com/cartloom/bulkimport/internal/pipeline"
)

// Client holds shared configuration and HTTP plumbing for the backend API.
type Client struct {
	// BaseURL is the backend origin, for example https://api.example.com.
	BaseURL string

	// Token is sent as a bearer Authorization header when non-empty.
	Token string

	// HTTPClient is the underlying HTTP client. A tuned default is
	// provided and can be replaced via WithHTTPClient.
	HTTPClient *http.Client

	// UserAgent is added to each request.
	UserAgent string

	// timeout, when set, is applied to HTTPClient after all options run,
	// so WithTimeout and WithHTTPClient compose in either order.
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout, whichever HTTP client ends
// up in use.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.UserAgent = ua }
}

// New constructs a Client with safe defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		UserAgent: "bulkimport/1.0",
	}
	for _, f := range opts {
		f(c)
	}
	if c.timeout > 0 {
		c.HTTPClient.Timeout = c.timeout
	}
	return c
}

var _ pipeline.Backend = (*Client)(nil)
