// Package client is the entry point to the Outpost API. It sends every call
// through a retrying transport, injects authentication and identification
// headers, and turns failed responses into typed errors.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/outpost-run/outpost-go/pkg/config"
	"github.com/outpost-run/outpost-go/pkg/retry"
	"github.com/outpost-run/outpost-go/pkg/version"
)

// RequestIDHeader carries the identifier shared by all attempts of one call.
const RequestIDHeader = "X-Request-Id"

// Client is an Outpost API client. It is safe for concurrent use.
//
// Two connection pools are kept, one for Request and one for RequestAsync.
// Each is built on first use and reused for the life of the Client.
type Client struct {
	cfg          *config.Config
	token        string
	baseURL      string
	userAgent    string
	timeouts     Timeouts
	timeoutsSet  bool
	pollInterval time.Duration
	policy       *retry.Policy
	observer     retry.Observer
	logger       *log.Logger
	base         http.RoundTripper

	syncOnce  sync.Once
	syncHTTP  *http.Client
	asyncOnce sync.Once
	asyncHTTP *http.Client
}

// New returns a Client. Settings not provided as options come from the
// configuration given with WithConfig, or else from OUTPOST_* environment
// variables, or else from the defaults.
func New(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}

	cfg := c.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
		if err := cfg.ParseEnv(); err != nil {
			return nil, err
		}
	}

	if c.token == "" {
		c.token = cfg.APIToken
	}
	if c.baseURL == "" {
		c.baseURL = cfg.BaseURL
	}
	if c.baseURL == "" {
		c.baseURL = config.DefaultBaseURL
	}
	c.baseURL = strings.TrimSuffix(c.baseURL, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBaseURL, c.baseURL)
	}
	if !c.timeoutsSet {
		c.timeouts = timeoutsFrom(cfg.Timeout)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = config.Seconds(cfg.PollInterval)
	}
	if c.policy == nil {
		p, err := cfg.Retry.Policy()
		if err != nil {
			return nil, err
		}
		c.policy = p
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	c.logger = c.logger.WithPrefix("client")
	c.userAgent = version.UserAgent()

	return c, nil
}

// BaseURL returns the API endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the bearer token, possibly empty.
func (c *Client) Token() string {
	return c.token
}

// PollInterval returns the delay callers should wait between status checks.
func (c *Client) PollInterval() time.Duration {
	return c.pollInterval
}

// Policy returns the retry policy.
func (c *Client) Policy() *retry.Policy {
	return c.policy
}

// Logger returns the client logger.
func (c *Client) Logger() *log.Logger {
	return c.logger
}

func (c *Client) httpClient() *http.Client {
	c.syncOnce.Do(func() { c.syncHTTP = c.newHTTPClient() })
	return c.syncHTTP
}

func (c *Client) asyncHTTPClient() *http.Client {
	c.asyncOnce.Do(func() { c.asyncHTTP = c.newHTTPClient() })
	return c.asyncHTTP
}

func (c *Client) newHTTPClient() *http.Client {
	base := c.base
	if base == nil {
		base = &poolTimeoutTransport{
			next: newPooledTransport(c.timeouts),
			wait: c.timeouts.Pool,
		}
	}

	opts := []retry.TransportOption{retry.WithLogger(c.logger)}
	if c.observer != nil {
		opts = append(opts, retry.WithObserver(c.observer))
	}

	return &http.Client{
		Transport: retry.NewTransport(base, c.policy, opts...),
	}
}

// Request performs one logical API call. path is joined to the base URL
// unless it is an absolute URL. Failed responses are returned as errors
// (see CheckResponse) and their bodies are closed. Unless opts.Stream is set
// the returned body is fully read and the connection released.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (*http.Response, error) {
	return c.do(ctx, c.httpClient(), method, path, opts)
}

// Result is the outcome of RequestAsync.
type Result struct {
	Response *http.Response
	Err      error
}

// RequestAsync is Request running on its own goroutine and connection pool.
// The channel receives exactly one Result and is then closed. Waits between
// attempts honor ctx and never block other calls.
func (c *Client) RequestAsync(ctx context.Context, method, path string, opts *RequestOptions) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := c.do(ctx, c.asyncHTTPClient(), method, path, opts)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}

// DoJSON performs Request and decodes a JSON response body into out. A nil
// out discards the body.
func (c *Client) DoJSON(ctx context.Context, method, path string, opts *RequestOptions, out any) error {
	var o RequestOptions
	if opts != nil {
		o = *opts
	}
	o.Stream = true
	if o.Header == nil {
		o.Header = http.Header{}
	} else {
		o.Header = o.Header.Clone()
	}
	if o.Header.Get("Accept") == "" {
		o.Header.Set("Accept", "application/json")
	}

	resp, err := c.Request(ctx, method, path, &o)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint: errcheck

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, opts *RequestOptions) (*http.Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("method", req.Method, "url", req.URL.Redacted(), "request_id", req.Header.Get(RequestIDHeader))
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		logger.Debug("request failed", "err", err)
		return nil, err
	}
	logger.Debug("request done", "status", resp.StatusCode, "elapsed", time.Since(start))

	check := opts.Check
	if check == nil {
		check = CheckResponse
	}
	if err := check(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	if !opts.Stream {
		if err := bufferBody(resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}
