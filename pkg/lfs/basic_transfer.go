package lfs

import (
	"context"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
)

// BasicTransferAdapter implements the "basic" adapter.
type BasicTransferAdapter struct {
	client *http.Client
	logger *log.Logger
}

var _ TransferAdapter = (*BasicTransferAdapter)(nil)

// Name returns the name of the adapter.
func (a *BasicTransferAdapter) Name() string {
	return TransferBasic
}

// Upload sends the content to the upload location in a single request and
// then runs the verify step, if any.
func (a *BasicTransferAdapter) Upload(ctx context.Context, r io.ReadSeeker, obj *ObjectResponse, progress ProgressFunc) error {
	if obj.Actions == nil || obj.Actions.Upload == nil {
		a.logger.Debug("object already present", "oid", obj.Oid)
		return nil
	}
	l := obj.Actions.Upload

	size, err := r.Seek(0, io.SeekEnd)
	if err == nil {
		_, err = r.Seek(0, io.SeekStart)
	}
	if err != nil {
		return &TransferError{Action: OperationUpload, Err: err}
	}

	var body io.Reader = http.NoBody
	if size > 0 {
		body = io.NopCloser(r)
	}
	res, err := performRequest(ctx, a.client, a.logger, OperationUpload, l.method(http.MethodPut), l.Href, l.Header, body, func(req *http.Request) {
		if len(req.Header.Get("Content-Type")) == 0 {
			req.Header.Set("Content-Type", "application/octet-stream")
		}

		if req.Header.Get("Transfer-Encoding") == "chunked" {
			req.TransferEncoding = []string{"chunked"}
		} else {
			req.ContentLength = size
		}

		req.GetBody = func() (io.ReadCloser, error) {
			if _, err := r.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			return io.NopCloser(r), nil
		}
	})
	if err != nil {
		return err
	}
	if err := drain(res); err != nil {
		return &TransferError{Action: OperationUpload, Err: err}
	}

	if progress != nil {
		progress(size)
	}

	return a.verify(ctx, obj)
}

// Download reads the download location and copies the data to w.
func (a *BasicTransferAdapter) Download(ctx context.Context, w io.Writer, obj *ObjectResponse) error {
	if obj.Actions == nil || obj.Actions.Download == nil {
		return &TransferError{Action: OperationDownload, Err: ErrMissingAction}
	}
	l := obj.Actions.Download

	res, err := performRequest(ctx, a.client, a.logger, OperationDownload, http.MethodGet, l.Href, l.Header, nil, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close() // nolint: errcheck

	if _, err := io.Copy(w, res.Body); err != nil {
		return &TransferError{Action: OperationDownload, Err: err}
	}

	return nil
}

// verify calls the verify handler on the LFS server.
func (a *BasicTransferAdapter) verify(ctx context.Context, obj *ObjectResponse) error {
	l := obj.Actions.Verify
	if l == nil {
		return nil
	}
	a.logger.Info("sending verify action", "href", redact(l.Href))
	return sendJSON(ctx, a.client, a.logger, "verify", l.method(http.MethodPost), l, obj.Pointer)
}
