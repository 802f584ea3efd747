package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type recordingObserver struct {
	mu        sync.Mutex
	attempts  []int
	responses []int
	waits     []time.Duration
}

func (o *recordingObserver) Attempt(_ string, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
}

func (o *recordingObserver) Response(_ string, code int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, code)
}

func (o *recordingObserver) Backoff(wait time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits = append(o.waits, wait)
}

func fastPolicy(t *testing.T, opts ...Option) *Policy {
	t.Helper()
	opts = append([]Option{WithBackoffFactor(time.Millisecond), WithJitterRatio(0)}, opts...)
	p, err := NewPolicy(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTransportNonRetryableMethodSentOnce(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t))}
	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		hits.Store(0)
		req, err := http.NewRequest(method, srv.URL, strings.NewReader("{}"))
		is.NoErr(err)
		resp, err := c.Do(req)
		is.NoErr(err)
		resp.Body.Close()
		is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
		is.Equal(hits.Load(), int32(1))
	}
}

func TestTransportExhaustsAttemptsAndReturnsLastResponse(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "attempt "+string(rune('0'+n)))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t, WithMaxAttempts(4)), WithObserver(obs))}
	resp, err := c.Get(srv.URL)
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
	is.Equal(hits.Load(), int32(4))
	body, err := io.ReadAll(resp.Body)
	is.NoErr(err)
	is.Equal(string(body), "attempt 4")

	is.Equal(obs.attempts, []int{1, 2, 3, 4})
	is.Equal(len(obs.waits), 3)
	is.Equal(obs.waits[0], time.Millisecond)
	is.Equal(obs.waits[1], 2*time.Millisecond)
	is.Equal(obs.waits[2], 4*time.Millisecond)
}

func TestTransportHonorsRetryAfter(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t))}
	start := time.Now()
	resp, err := c.Get(srv.URL)
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(hits.Load(), int32(2))
	is.True(time.Since(start) >= 900*time.Millisecond)
}

func TestTransportNonRetryableStatus(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t))}
	resp, err := c.Get(srv.URL)
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusInternalServerError)
	is.Equal(hits.Load(), int32(1))
}

func TestTransportReplaysBody(t *testing.T) {
	is := is.New(t)
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t))}
	req, err := http.NewRequest(http.MethodPut, srv.URL, strings.NewReader("payload"))
	is.NoErr(err)
	resp, err := c.Do(req)
	is.NoErr(err)
	resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusNoContent)
	is.Equal(bodies, []string{"payload", "payload", "payload"})
}

func TestTransportSingleAttemptBudget(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t, WithMaxAttempts(1)))}
	resp, err := c.Get(srv.URL)
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(hits.Load(), int32(1))
}

func TestTransportConnectionErrors(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	flaky := func(failures int32) (http.RoundTripper, *atomic.Int32) {
		var calls atomic.Int32
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if calls.Add(1) <= failures {
				return nil, dialErr
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader("ok")),
				Request:    r,
			}, nil
		}), &calls
	}

	t.Run("propagated by default", func(t *testing.T) {
		is := is.New(t)
		rt, calls := flaky(2)
		c := &http.Client{Transport: NewTransport(rt, fastPolicy(t))}
		_, err := c.Get("http://outpost.invalid/")
		is.True(err != nil)
		var oe *net.OpError
		is.True(errors.As(err, &oe))
		is.Equal(calls.Load(), int32(1))
	})

	t.Run("retried when enabled", func(t *testing.T) {
		is := is.New(t)
		rt, calls := flaky(2)
		c := &http.Client{Transport: NewTransport(rt, fastPolicy(t, WithConnectionErrors()))}
		resp, err := c.Get("http://outpost.invalid/")
		is.NoErr(err)
		resp.Body.Close()
		is.Equal(resp.StatusCode, http.StatusOK)
		is.Equal(calls.Load(), int32(3))
	})
}

func TestTransportContextCancelledDuringBackoff(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := &http.Client{Transport: NewTransport(nil, fastPolicy(t))}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	is.NoErr(err)
	start := time.Now()
	_, err = c.Do(req)
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(time.Since(start) < 10*time.Second)
}

type closeCountingTransport struct {
	roundTripperFunc
	closes atomic.Int32
}

func (c *closeCountingTransport) CloseIdleConnections() { c.closes.Add(1) }

func TestTransportKeepsSharedPoolOnExhaustion(t *testing.T) {
	is := is.New(t)
	next := &closeCountingTransport{roundTripperFunc: func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("busy")),
			Request:    r,
		}, nil
	}}

	c := &http.Client{Transport: NewTransport(next, fastPolicy(t, WithMaxAttempts(3)))}
	resp, err := c.Get("http://outpost.test/busy")
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
	is.Equal(next.closes.Load(), int32(0))
}
