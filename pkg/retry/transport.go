package retry

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
)

// Observer is notified about every physical attempt made by a Transport.
// Implementations must be safe for concurrent use.
type Observer interface {
	// Attempt is called before an attempt is sent. attempt starts at 1.
	Attempt(method string, attempt int)
	// Response is called once an attempt completes. code is 0 when err is
	// not nil.
	Response(method string, code int, err error)
	// Backoff is called with the wait chosen before the next attempt.
	Backoff(wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) Attempt(string, int)         {}
func (nopObserver) Response(string, int, error) {}
func (nopObserver) Backoff(time.Duration)       {}

// Transport is an http.RoundTripper that replays requests according to a
// Policy. Requests with a non retryable method are sent exactly once. When
// the attempt budget runs out the last response is returned as is.
type Transport struct {
	next     http.RoundTripper
	policy   *Policy
	observer Observer
	logger   *log.Logger
	client   *retryablehttp.Client
}

var _ http.RoundTripper = (*Transport)(nil)

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithObserver sets the attempt observer.
func WithObserver(o Observer) TransportOption {
	return func(t *Transport) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLogger sets the logger used for attempt tracing.
func WithLogger(l *log.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport wraps next with retries driven by p. A nil next uses
// http.DefaultTransport and a nil policy uses the defaults.
func NewTransport(next http.RoundTripper, p *Policy, opts ...TransportOption) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if p == nil {
		// The default options always validate.
		p, _ = NewPolicy()
	}

	t := &Transport{
		next:     next,
		policy:   p,
		observer: nopObserver{},
		logger:   log.New(io.Discard),
	}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	t.logger = t.logger.WithPrefix("retry")

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		// Hide CloseIdleConnections: retryablehttp calls it when a request
		// gives up, and the pool is shared with other requests.
		Transport: roundTripperOnly{t.next},
		// Redirects are followed by the client wrapping this transport.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rc.Logger = leveledLogger{t.logger}
	rc.RetryMax = p.MaxAttempts() - 1
	rc.CheckRetry = p.CheckRetry
	rc.Backoff = func(lo, hi time.Duration, attemptNum int, resp *http.Response) time.Duration {
		wait := p.Backoff(lo, hi, attemptNum, resp)
		t.observer.Backoff(wait)
		return wait
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, retryNumber int) {
		t.observer.Attempt(req.Method, retryNumber+1)
	}
	rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if resp.Request != nil {
			t.observer.Response(resp.Request.Method, resp.StatusCode, nil)
		}
	}
	t.client = rc

	return t
}

// Policy returns the policy driving the transport.
func (t *Transport) Policy() *Policy {
	return t.policy
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.policy.RetryableMethod(req.Method) || t.policy.MaxAttempts() <= 1 {
		return t.once(req)
	}

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(rreq.WithContext(req.Context()))
	if err != nil {
		t.observer.Response(req.Method, 0, err)
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return resp, uerr.Err
		}
		return resp, err
	}

	return resp, nil
}

type roundTripperOnly struct {
	rt http.RoundTripper
}

func (r roundTripperOnly) RoundTrip(req *http.Request) (*http.Response, error) {
	return r.rt.RoundTrip(req)
}

func (t *Transport) once(req *http.Request) (*http.Response, error) {
	t.observer.Attempt(req.Method, 1)
	t.logger.Debug("performing request", "method", req.Method, "url", req.URL.Redacted())
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.observer.Response(req.Method, 0, err)
		return nil, err
	}
	t.observer.Response(req.Method, resp.StatusCode, nil)
	return resp, nil
}

// leveledLogger adapts a charm logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *log.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, keyvals ...interface{}) { l.l.Error(msg, keyvals...) }
func (l leveledLogger) Info(msg string, keyvals ...interface{})  { l.l.Info(msg, keyvals...) }
func (l leveledLogger) Debug(msg string, keyvals ...interface{}) { l.l.Debug(msg, keyvals...) }
func (l leveledLogger) Warn(msg string, keyvals ...interface{})  { l.l.Warn(msg, keyvals...) }
