// Package retry implements the retry policy and the retrying HTTP transport
// used by the Outpost API client.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts, including the
	// first one.
	DefaultMaxAttempts = 10

	// DefaultBackoffFactor is the base of the exponential backoff.
	DefaultBackoffFactor = 100 * time.Millisecond

	// DefaultJitterRatio is the default symmetric jitter applied to backoff.
	DefaultJitterRatio = 0.1

	// DefaultMaxBackoffWait caps computed and date based waits.
	DefaultMaxBackoffWait = 60 * time.Second

	// MaxJitterRatio is the largest accepted jitter ratio.
	MaxJitterRatio = 0.5
)

// ErrInvalidJitterRatio is returned when a policy is built with a jitter
// ratio outside [0, MaxJitterRatio].
var ErrInvalidJitterRatio = errors.New("jitter ratio should be between 0 and 0.5")

// DefaultMethods returns the methods retried by default.
func DefaultMethods() []string {
	return []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodTrace,
	}
}

// DefaultStatusCodes returns the response codes retried by default.
func DefaultStatusCodes() []int {
	return []int{
		http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
}

// Policy decides whether an exchange may be retried and how long to wait
// before the next attempt. A Policy is immutable once built and safe for
// concurrent use.
type Policy struct {
	maxAttempts    int
	backoffFactor  time.Duration
	jitterRatio    float64
	maxBackoffWait time.Duration
	methods        map[string]struct{}
	statusCodes    map[int]struct{}
	connErrors     bool

	now  func() time.Time
	sign func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts, including the first.
// Values below 1 are treated as 1.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n < 1 {
			n = 1
		}
		p.maxAttempts = n
	}
}

// WithBackoffFactor sets the base duration of the exponential backoff.
func WithBackoffFactor(d time.Duration) Option {
	return func(p *Policy) { p.backoffFactor = d }
}

// WithJitterRatio sets the jitter ratio. It must be within [0, 0.5].
func WithJitterRatio(r float64) Option {
	return func(p *Policy) { p.jitterRatio = r }
}

// WithMaxBackoffWait caps the computed wait.
func WithMaxBackoffWait(d time.Duration) Option {
	return func(p *Policy) { p.maxBackoffWait = d }
}

// WithMethods overrides the set of retryable methods. An empty list keeps the
// defaults.
func WithMethods(methods ...string) Option {
	return func(p *Policy) {
		if len(methods) == 0 {
			return
		}
		p.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			p.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}
}

// WithStatusCodes overrides the set of retryable response codes. An empty
// list keeps the defaults.
func WithStatusCodes(codes ...int) Option {
	return func(p *Policy) {
		if len(codes) == 0 {
			return
		}
		p.statusCodes = make(map[int]struct{}, len(codes))
		for _, c := range codes {
			p.statusCodes[c] = struct{}{}
		}
	}
}

// WithConnectionErrors makes network failures that happen before any
// response is received retryable under the same attempt budget. Context
// cancellation is never retried.
func WithConnectionErrors() Option {
	return func(p *Policy) { p.connErrors = true }
}

// NewPolicy returns a Policy built from the defaults and the given options.
func NewPolicy(opts ...Option) (*Policy, error) {
	p := &Policy{
		maxAttempts:    DefaultMaxAttempts,
		backoffFactor:  DefaultBackoffFactor,
		jitterRatio:    DefaultJitterRatio,
		maxBackoffWait: DefaultMaxBackoffWait,
		now:            time.Now,
		sign:           randomSign,
	}
	WithMethods(DefaultMethods()...)(p)
	WithStatusCodes(DefaultStatusCodes()...)(p)
	for _, o := range opts {
		if o != nil {
			o(p)
		}
	}

	if p.jitterRatio < 0 || p.jitterRatio > MaxJitterRatio || math.IsNaN(p.jitterRatio) {
		return nil, fmt.Errorf("%w, actual %v", ErrInvalidJitterRatio, p.jitterRatio)
	}

	return p, nil
}

// MaxAttempts returns the total number of attempts allowed.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryableMethod reports whether requests with the given method may be
// replayed.
func (p *Policy) RetryableMethod(method string) bool {
	_, ok := p.methods[strings.ToUpper(method)]
	return ok
}

// RetryableStatus reports whether a response with the given code may be
// retried.
func (p *Policy) RetryableStatus(code int) bool {
	_, ok := p.statusCodes[code]
	return ok
}

// Delay returns how long to sleep after attemptsMade attempts have failed
// with a response carrying the given headers.
//
// A Retry-After header wins: an integer is used as seconds, a date in the
// future is used capped to the maximum wait. Anything else falls back to
// exponential backoff with symmetric jitter clamped to [0, max wait].
func (p *Policy) Delay(attemptsMade int, h http.Header) time.Duration {
	if d, ok := p.retryAfter(h); ok {
		return d
	}

	if attemptsMade < 1 {
		attemptsMade = 1
	}

	backoff := float64(p.backoffFactor) * math.Pow(2, float64(attemptsMade-1))
	jitter := backoff * p.jitterRatio * p.sign()
	total := backoff + jitter
	if total < 0 {
		total = 0
	}
	if total > float64(p.maxBackoffWait) {
		return p.maxBackoffWait
	}

	return time.Duration(total)
}

func (p *Policy) retryAfter(h http.Header) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if isDigits(v) {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err == nil && secs <= math.MaxInt64/int64(time.Second) {
			return time.Duration(secs) * time.Second, true
		}
	}

	t, err := http.ParseTime(v)
	if err != nil {
		t, err = time.Parse(time.RFC3339, v)
	}
	if err != nil {
		return 0, false
	}

	if d := t.Sub(p.now()); d > 0 {
		return min(d, p.maxBackoffWait), true
	}

	return 0, false
}

// CheckRetry implements retryablehttp.CheckRetry. Only the response status is
// consulted; method eligibility is decided before the request is sent.
func (p *Policy) CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		if p.connErrors && isConnError(err) {
			return true, nil
		}
		return false, err
	}

	return p.RetryableStatus(resp.StatusCode), nil
}

// Backoff implements retryablehttp.Backoff. attemptNum is zero based, so the
// number of attempts made so far is attemptNum+1.
func (p *Policy) Backoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	var h http.Header
	if resp != nil {
		h = resp.Header
	}
	return p.Delay(attemptNum+1, h)
}

func isConnError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func randomSign() float64 {
	if rand.IntN(2) == 0 { //nolint:gosec
		return -1
	}
	return 1
}
