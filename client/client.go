// Package client is a client for looking up beatmaps through the osu! API
// v2.
package client

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/osucollect/osucollect/internal/vars"
)

// Client looks up beatmaps. Requests are authenticated with the OAuth
// client credentials grant and paced by a Limiter.
//
// After creation, it is valid for concurrent use.
type Client struct {
	clientID     int
	clientSecret string
	endpoint     string
	tokenURL     string
	httpClient   *http.Client
	limiter      Limiter
	now          func() time.Time

	mu    sync.Mutex
	token *token
}

// Option is an option for configuring Client.
type Option func(*Client)

// WithEndpoint sets the base endpoint to use. By default we use
// https://osu.ppy.sh.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithTokenURL sets the URL access tokens are requested from. By default
// it is /oauth/token under the endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(c *Client) {
		c.tokenURL = tokenURL
	}
}

// WithHTTPClient sets the HTTP client to use. By default we use
// http.DefaultClient.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLimiter sets the limiter every request waits on. By default requests
// are limited to one per second.
func WithLimiter(limiter Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// New creates a Client.
func New(
	clientID int,
	clientSecret string,
	options ...Option,
) (*Client, error) {
	if clientID <= 0 {
		return nil, fmt.Errorf("invalid client ID: %d", clientID)
	}

	if clientSecret == "" {
		return nil, fmt.Errorf("invalid client secret: %q", clientSecret)
	}

	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint:     vars.DefaultEndpoint,
		httpClient:   http.DefaultClient,
		limiter:      NewLimiter(DefaultRequestsPerSecond),
		now:          time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.tokenURL == "" {
		c.tokenURL = fmt.Sprintf(tokenEndpoint, c.endpoint)
	}

	return c, nil
}

func (c *Client) userAgent() string {
	return "osucollect/" + vars.Version
}
