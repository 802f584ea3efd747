package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// maxConnsPerHost caps the connections of one pool to a host. Requests
// beyond it wait for a connection, bounded by Timeouts.Pool.
const maxConnsPerHost = 100

// ErrPoolTimeout is returned when no connection became available within
// Timeouts.Pool.
var ErrPoolTimeout = errors.New("timed out waiting for a connection")

// newPooledTransport returns the pooled transport enforcing t.
func newPooledTransport(t Timeouts) *http.Transport {
	tr := cleanhttp.DefaultPooledTransport()
	tr.DialContext = dialWithWriteTimeout(&net.Dialer{
		Timeout:   t.Connect,
		KeepAlive: 30 * time.Second,
	}, t.Write)
	tr.TLSHandshakeTimeout = t.Connect
	tr.ResponseHeaderTimeout = t.Read
	tr.IdleConnTimeout = t.Idle
	tr.MaxConnsPerHost = maxConnsPerHost
	return tr
}

func dialWithWriteTimeout(d *net.Dialer, write time.Duration) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil || write <= 0 {
			return conn, err
		}
		return &writeTimeoutConn{Conn: conn, timeout: write}, nil
	}
}

// writeTimeoutConn bounds every Write with a fresh deadline, so a peer that
// stops reading fails the request instead of stalling it.
type writeTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *writeTimeoutConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// poolTimeoutTransport fails a request that waits longer than wait for a
// connection. The bound ends once a connection is obtained.
type poolTimeoutTransport struct {
	next http.RoundTripper
	wait time.Duration
}

func (t *poolTimeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.wait <= 0 {
		return t.next.RoundTrip(req)
	}

	ctx, cancel := context.WithCancelCause(req.Context())
	timer := time.AfterFunc(t.wait, func() { cancel(ErrPoolTimeout) })
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { timer.Stop() },
	})

	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		timer.Stop()
		cause := context.Cause(ctx)
		cancel(nil)
		if errors.Is(cause, ErrPoolTimeout) {
			return nil, fmt.Errorf("%w after %s", ErrPoolTimeout, t.wait)
		}
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
