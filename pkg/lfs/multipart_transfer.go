package lfs

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DigestContentMD5 is the only digest kind a part may ask for.
const DigestContentMD5 = "contentMD5"

// abortTimeout bounds the abort step, which runs even when the caller's
// context is already done.
const abortTimeout = 30 * time.Second

// MultipartTransferAdapter implements the "multipart-basic" adapter. Uploads
// run init, then every part in order, then commit and verify. Downloads are
// the same as with the basic adapter.
type MultipartTransferAdapter struct {
	BasicTransferAdapter
}

var _ TransferAdapter = (*MultipartTransferAdapter)(nil)

// Name returns the name of the adapter.
func (a *MultipartTransferAdapter) Name() string {
	return TransferMultipart
}

// Upload sends the object part by part. When a part or the commit fails
// and the server offered an abort step, it is sent once before returning
// the original error.
func (a *MultipartTransferAdapter) Upload(ctx context.Context, r io.ReadSeeker, obj *ObjectResponse, progress ProgressFunc) error {
	acts := obj.Actions
	if acts.Empty() {
		a.logger.Info("no actions, object already present", "oid", obj.Oid)
		return nil
	}

	if acts.Init != nil {
		a.logger.Info("sending multipart init action", "href", redact(acts.Init.Href))
		if err := a.send(ctx, "init", acts.Init, http.MethodPost); err != nil {
			return err
		}
	}

	parts := acts.PartList()
	completed := make([]CompletedPart, 0, len(parts))
	for i, p := range parts {
		a.logger.Info("uploading part", "part", i+1, "parts", len(parts))
		etag, n, err := a.uploadPart(ctx, r, p)
		if err != nil {
			a.abort(ctx, acts.Abort)
			return err
		}
		if progress != nil {
			progress(n)
		}
		completed = append(completed, CompletedPart{ETag: etag, PartNumber: i + 1})
	}

	if l := acts.Commit; l != nil {
		a.logger.Info("sending multipart commit action", "href", redact(l.Href))
		commit := CommitRequest{Oid: obj.Oid, Parts: completed}
		if err := sendJSON(ctx, a.client, a.logger, "commit", l.method(http.MethodPost), l, commit); err != nil {
			a.abort(ctx, acts.Abort)
			return err
		}
	}

	return a.verify(ctx, obj)
}

// uploadPart sends one part and returns its ETag and length.
func (a *MultipartTransferAdapter) uploadPart(ctx context.Context, r io.ReadSeeker, p Part) (string, int64, error) {
	header := make(map[string]string, len(p.Header)+1)
	for k, v := range p.Header {
		header[k] = v
	}

	// Unknown digests fail before anything is read or sent.
	if p.WantDigest != "" && p.WantDigest != DigestContentMD5 {
		return "", 0, &TransferError{
			Action: "part",
			Err:    fmt.Errorf("%w: don't know how to handle want_digest value %q", ErrUnsupportedDigest, p.WantDigest),
		}
	}

	if _, err := r.Seek(p.Pos, io.SeekStart); err != nil {
		return "", 0, &TransferError{Action: "part", Err: err}
	}

	var (
		data []byte
		err  error
	)
	if p.Size > 0 {
		data = make([]byte, p.Size)
		_, err = io.ReadFull(r, data)
	} else {
		data, err = io.ReadAll(r)
	}
	if err != nil {
		return "", 0, &TransferError{Action: "part", Err: fmt.Errorf("read part at %d: %w", p.Pos, err)}
	}

	if p.WantDigest == DigestContentMD5 {
		sum := md5.Sum(data) //nolint:gosec
		header["Content-MD5"] = base64.StdEncoding.EncodeToString(sum[:])
	}

	method := http.MethodPut
	if p.Method != "" {
		method = strings.ToUpper(p.Method)
	}

	res, err := performRequest(ctx, a.client, a.logger, "part", method, p.Href, header, bytes.NewReader(data), nil)
	if err != nil {
		return "", 0, err
	}
	etag := res.Header.Get("ETag")
	if err := drain(res); err != nil {
		return "", 0, &TransferError{Action: "part", Err: err}
	}

	return etag, int64(len(data)), nil
}

// send performs a step whose body, if any, is given by the server.
func (a *MultipartTransferAdapter) send(ctx context.Context, action string, l *Link, def string) error {
	var body io.Reader
	if l.Body != "" {
		body = strings.NewReader(l.Body)
	}
	res, err := performRequest(ctx, a.client, a.logger, action, l.method(def), l.Href, l.Header, body, nil)
	if err != nil {
		return err
	}
	return drain(res)
}

// abort tells the server to discard a failed upload. Its outcome is logged
// only.
func (a *MultipartTransferAdapter) abort(ctx context.Context, l *Link) {
	if l == nil {
		return
	}
	a.logger.Info("sending multipart abort action", "href", redact(l.Href))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := a.send(ctx, "abort", l, http.MethodPost); err != nil {
		a.logger.Warn("abort failed", "err", err)
	}
}
