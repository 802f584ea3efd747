package client

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/outpost-run/outpost-go/pkg/config"
	"github.com/outpost-run/outpost-go/pkg/retry"
)

// Timeouts bounds the phases of an exchange. Zero disables a bound.
type Timeouts struct {
	// Connect bounds dialing and the TLS handshake.
	Connect time.Duration
	// Read bounds the wait for response headers.
	Read time.Duration
	// Write bounds each write to the connection while sending the request.
	Write time.Duration
	// Pool bounds the wait for a free connection.
	Pool time.Duration
	// Idle is how long an unused keep-alive connection is kept.
	Idle time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return timeoutsFrom(config.DefaultConfig().Timeout)
}

func timeoutsFrom(tc config.TimeoutConfig) Timeouts {
	return Timeouts{
		Connect: config.Seconds(tc.Connect),
		Read:    config.Seconds(tc.Read),
		Write:   config.Seconds(tc.Write),
		Pool:    config.Seconds(tc.Pool),
		Idle:    config.Seconds(tc.Idle),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token. An empty token falls back to the
// configured one.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithBaseURL sets the API endpoint. An empty value keeps the configured one.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeouts sets the network timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		c.timeouts = t
		c.timeoutsSet = true
	}
}

// WithPollInterval sets the delay used between status checks.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithPolicy sets the retry policy.
func WithPolicy(p *retry.Policy) Option {
	return func(c *Client) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithObserver sets the retry observer.
func WithObserver(o retry.Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransport sets the round tripper wrapped by the retrying transport.
// Timeouts are not applied to a custom transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithConfig uses cfg instead of the environment for every setting no other
// option provides.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) { c.cfg = cfg }
}
