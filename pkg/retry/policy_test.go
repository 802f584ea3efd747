package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestNewPolicyJitterRatio(t *testing.T) {
	for _, ratio := range []float64{0.6, -0.1, 1} {
		_, err := NewPolicy(WithJitterRatio(ratio))
		if !errors.Is(err, ErrInvalidJitterRatio) {
			t.Errorf("NewPolicy(WithJitterRatio(%v)) => %v, want %v", ratio, err, ErrInvalidJitterRatio)
		}
	}
	for _, ratio := range []float64{0, 0.1, 0.5} {
		if _, err := NewPolicy(WithJitterRatio(ratio)); err != nil {
			t.Errorf("NewPolicy(WithJitterRatio(%v)) => %v, want nil", ratio, err)
		}
	}
}

func TestPolicyDefaults(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy()
	is.NoErr(err)
	is.Equal(p.MaxAttempts(), 10)
	for _, m := range []string{"HEAD", "GET", "PUT", "DELETE", "OPTIONS", "TRACE", "get"} {
		is.True(p.RetryableMethod(m))
	}
	is.True(!p.RetryableMethod(http.MethodPost))
	is.True(!p.RetryableMethod(http.MethodPatch))
	for _, c := range []int{429, 503, 504} {
		is.True(p.RetryableStatus(c))
	}
	is.True(!p.RetryableStatus(500))
	is.True(!p.RetryableStatus(502))
}

func TestPolicyOverrides(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy(
		WithMethods("post"),
		WithStatusCodes(500),
		WithMaxAttempts(0),
	)
	is.NoErr(err)
	is.True(p.RetryableMethod(http.MethodPost))
	is.True(!p.RetryableMethod(http.MethodGet))
	is.True(p.RetryableStatus(500))
	is.True(!p.RetryableStatus(503))
	is.Equal(p.MaxAttempts(), 1)
}

func TestDelayRetryAfterSeconds(t *testing.T) {
	is := is.New(t)
	for _, factor := range []time.Duration{time.Millisecond, time.Second, time.Hour} {
		p, err := NewPolicy(WithBackoffFactor(factor))
		is.NoErr(err)
		h := http.Header{}
		h.Set("Retry-After", "2")
		is.Equal(p.Delay(1, h), 2*time.Second)
		is.Equal(p.Delay(7, h), 2*time.Second)
	}
}

func TestDelayRetryAfterIntegerIsNotCapped(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy(WithMaxBackoffWait(time.Second))
	is.NoErr(err)
	h := http.Header{"Retry-After": []string{" 120 "}}
	is.Equal(p.Delay(1, h), 120*time.Second)
}

func TestDelayRetryAfterDate(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	p, err := NewPolicy(WithJitterRatio(0), WithBackoffFactor(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	p.now = func() time.Time { return now }

	cases := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"http date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"capped http date", now.Add(5 * time.Minute).Format(http.TimeFormat), DefaultMaxBackoffWait},
		{"rfc3339", now.Add(10 * time.Second).Format(time.RFC3339), 10 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), time.Second},
		{"garbage", "soon", time.Second},
		{"negative", "-5", time.Second},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := http.Header{}
			h.Set("Retry-After", c.value)
			if got := p.Delay(1, h); got != c.want {
				t.Errorf("Delay(1, %q) => %v, want %v", c.value, got, c.want)
			}
		})
	}
}

func TestDelayBackoffBounds(t *testing.T) {
	const (
		b = 100 * time.Millisecond
		j = 0.25
	)
	maxWait := 5 * time.Second
	p, err := NewPolicy(WithBackoffFactor(b), WithJitterRatio(j), WithMaxBackoffWait(maxWait))
	if err != nil {
		t.Fatal(err)
	}
	for k := 1; k <= 10; k++ {
		base := float64(b) * float64(int(1)<<(k-1))
		lo := time.Duration(base * (1 - j))
		hi := min(time.Duration(base*(1+j)), maxWait)
		if lo > maxWait {
			lo = maxWait
		}
		for i := 0; i < 50; i++ {
			got := p.Delay(k, nil)
			if got < lo || got > hi {
				t.Fatalf("Delay(%d) => %v, want within [%v, %v]", k, got, lo, hi)
			}
		}
	}
}

func TestDelayJitterSign(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy(WithBackoffFactor(time.Second), WithJitterRatio(0.5))
	is.NoErr(err)

	p.sign = func() float64 { return 1 }
	is.Equal(p.Delay(1, nil), 1500*time.Millisecond)
	is.Equal(p.Delay(3, nil), 6*time.Second)

	p.sign = func() float64 { return -1 }
	is.Equal(p.Delay(1, nil), 500*time.Millisecond)
	is.Equal(p.Delay(0, nil), 500*time.Millisecond)
}

func TestDelayClampedToMax(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy(WithBackoffFactor(time.Second), WithMaxBackoffWait(3*time.Second))
	is.NoErr(err)
	is.Equal(p.Delay(20, nil), 3*time.Second)
}

func TestBackoffUsesAttemptNumber(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy(WithBackoffFactor(time.Second), WithJitterRatio(0))
	is.NoErr(err)
	is.Equal(p.Backoff(0, 0, 0, nil), time.Second)
	is.Equal(p.Backoff(0, 0, 2, nil), 4*time.Second)

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	is.Equal(p.Backoff(0, 0, 5, resp), 3*time.Second)
}

func TestCheckRetry(t *testing.T) {
	is := is.New(t)
	p, err := NewPolicy()
	is.NoErr(err)
	ctx := context.Background()

	ok, err := p.CheckRetry(ctx, &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	is.NoErr(err)
	is.True(ok)

	ok, err = p.CheckRetry(ctx, &http.Response{StatusCode: http.StatusInternalServerError}, nil)
	is.NoErr(err)
	is.True(!ok)

	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	ok, err = p.CheckRetry(ctx, nil, dialErr)
	is.True(!ok)
	is.Equal(err, dialErr)

	withConn, err := NewPolicy(WithConnectionErrors())
	is.NoErr(err)
	ok, err = withConn.CheckRetry(ctx, nil, dialErr)
	is.NoErr(err)
	is.True(ok)

	ok, _ = withConn.CheckRetry(ctx, nil, context.Canceled)
	is.True(!ok)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	ok, err = p.CheckRetry(cctx, &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	is.True(!ok)
	is.True(errors.Is(err, context.Canceled))
}
