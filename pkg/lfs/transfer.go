package lfs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	// TransferBasic is the name of the Git LFS basic transfer protocol.
	TransferBasic = "basic"

	// TransferMultipart is the name of the multipart transfer protocol.
	TransferMultipart = "multipart-basic"
)

// DefaultTransferAdapters is the adapter preference used when none is
// configured, most preferred first.
func DefaultTransferAdapters() []string {
	return []string{TransferMultipart, TransferBasic}
}

// ProgressFunc receives the number of bytes just transferred.
type ProgressFunc func(n int64)

// TransferAdapter represents an adapter for downloading/uploading LFS objects
type TransferAdapter interface {
	Name() string

	// Upload sends r as the object described by obj. r is read from its
	// start. A response without the needed actions is a successful no-op.
	Upload(ctx context.Context, r io.ReadSeeker, obj *ObjectResponse, progress ProgressFunc) error

	// Download writes the object described by obj to w.
	Download(ctx context.Context, w io.Writer, obj *ObjectResponse) error
}

// newTransferAdapter returns the adapter registered under name.
func newTransferAdapter(name string, hc *http.Client, logger *log.Logger) (TransferAdapter, bool) {
	switch name {
	case TransferBasic:
		return &BasicTransferAdapter{client: hc, logger: logger}, true
	case TransferMultipart:
		return &MultipartTransferAdapter{BasicTransferAdapter{client: hc, logger: logger}}, true
	}
	return nil, false
}

// performRequest sends a request for a transfer step. Any non-2xx response
// is returned as a *TransferError with its body consumed.
func performRequest(ctx context.Context, hc *http.Client, logger *log.Logger, action, method, href string, header map[string]string, body io.Reader, callback func(*http.Request)) (*http.Response, error) {
	logger.Debug("calling", "action", action, "method", method, "href", redact(href))

	req, err := http.NewRequestWithContext(ctx, method, href, body)
	if err != nil {
		return nil, &TransferError{Action: action, Err: err}
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	if callback != nil {
		callback(req)
	}

	res, err := hc.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, &TransferError{Action: action, Err: err}
	}

	if res.StatusCode/100 != 2 {
		defer res.Body.Close() // nolint: errcheck
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		logger.Debug("step failed", "action", action, "status", res.StatusCode)
		return nil, &TransferError{Action: action, StatusCode: res.StatusCode, Body: errorBody(b)}
	}

	return res, nil
}

// sendJSON performs a transfer step with a JSON body and discards the reply.
func sendJSON(ctx context.Context, hc *http.Client, logger *log.Logger, action, method string, l *Link, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return &TransferError{Action: action, Err: err}
	}
	res, err := performRequest(ctx, hc, logger, action, method, l.Href, l.Header, bytes.NewReader(b), func(req *http.Request) {
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", MediaType)
		}
		req.Header.Set("Accept", MediaType)
	})
	if err != nil {
		return err
	}
	return drain(res)
}

func drain(res *http.Response) error {
	_, _ = io.Copy(io.Discard, res.Body)
	return res.Body.Close() //nolint:wrapcheck
}

// errorBody prefers the message of an LFS error document over raw text.
func errorBody(b []byte) string {
	var er ErrorResponse
	if err := json.Unmarshal(b, &er); err == nil && er.Message != "" {
		return er.Message
	}
	return strings.TrimSpace(string(b))
}

// redact drops the query string, which often carries signatures.
func redact(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		return href[:i]
	}
	return href
}
