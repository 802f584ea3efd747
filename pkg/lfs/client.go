package lfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-cleanhttp"
)

// Client is a Git LFS client talking to a batch API. Batch requests and
// transfer steps are never retried.
type Client struct {
	url      string
	token    string
	adapters []string
	http     *http.Client
	logger   *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token sent with batch requests.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTransferAdapters sets the accepted adapters, most preferred first.
// An empty list keeps the default.
func WithTransferAdapters(names ...string) ClientOption {
	return func(c *Client) {
		if len(names) > 0 {
			c.adapters = names
		}
	}
}

// WithHTTPClient sets the HTTP client used for batch requests and
// transfers.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a new Git LFS client for the server at serverURL.
func NewClient(serverURL string, opts ...ClientOption) *Client {
	c := &Client{
		url:      strings.TrimRight(strings.TrimSpace(serverURL), "/"),
		adapters: DefaultTransferAdapters(),
		http:     cleanhttp.DefaultPooledClient(),
		logger:   log.New(io.Discard),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.WithPrefix("lfs")
	return c
}

// URL returns the server URL without a trailing slash.
func (c *Client) URL() string {
	return c.url
}

// TransferAdapters returns the accepted adapters, most preferred first.
func (c *Client) TransferAdapters() []string {
	return slices.Clone(c.adapters)
}

// Batch sends a batch request for the repository at prefix. An empty
// Transfers list is replaced by the configured adapters. Any status other
// than 200 is returned as an *Error.
func (c *Client) Batch(ctx context.Context, prefix string, br *BatchRequest) (*BatchResponse, error) {
	if br == nil {
		return nil, errors.New("lfs: nil batch request")
	}
	req := *br
	if len(req.Transfers) == 0 {
		req.Transfers = c.TransferAdapters()
	}

	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("lfs: encode batch request: %w", err)
	}

	url := c.url + "/" + strings.Trim(prefix, "/") + "/objects/batch"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("lfs: %w", err)
	}
	hreq.Header.Set("Content-Type", MediaType)
	hreq.Header.Set("Accept", MediaType)
	if c.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("sending batch request", "url", url, "operation", req.Operation, "objects", len(req.Objects))
	res, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("lfs: batch request: %w", err)
	}
	defer res.Body.Close() // nolint: errcheck

	if res.StatusCode != http.StatusOK {
		e := &Error{StatusCode: res.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		var er ErrorResponse
		if err := json.Unmarshal(body, &er); err == nil {
			e.Message = er.Message
		}
		return nil, e
	}

	var resp BatchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("lfs: decode batch response: %w", err)
	}
	if resp.Transfer == "" {
		resp.Transfer = TransferBasic
	}
	c.logger.Debug("got batch response", "transfer", resp.Transfer, "objects", len(resp.Objects))

	return &resp, nil
}

// UploadOptions are the optional parts of an upload.
type UploadOptions struct {
	// Extras are sent as "x-" prefixed object attributes.
	Extras map[string]any

	// Ref is the git reference the object belongs to.
	Ref string

	// OnProgress receives the bytes sent by each transfer request.
	OnProgress ProgressFunc
}

// DownloadOptions are the optional parts of a download.
type DownloadOptions struct {
	Extras map[string]any
	Ref    string
}

// Upload hashes r, negotiates an upload for it and transfers it with the
// adapter picked by the server. r is left positioned at its start.
func (c *Client) Upload(ctx context.Context, r io.ReadSeeker, scope Scope, opts *UploadOptions) (ObjectAttributes, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	attrs, err := GetObjectAttributes(r)
	if err != nil {
		return ObjectAttributes{}, err
	}
	attrs.Extras = opts.Extras

	obj, adapter, err := c.negotiate(ctx, scope, OperationUpload, attrs, opts.Ref)
	if err != nil {
		return attrs, err
	}

	c.logger.Info("uploading object", "oid", attrs.Oid, "size", attrs.Size, "transfer", adapter.Name())
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return attrs, fmt.Errorf("lfs: %w", err)
	}
	if err := adapter.Upload(ctx, r, obj, opts.OnProgress); err != nil {
		return attrs, err
	}

	return attrs, nil
}

// Download negotiates a download of the object oid of the given size and
// writes its content to w. The content is not checked against oid.
func (c *Client) Download(ctx context.Context, w io.Writer, oid string, size int64, scope Scope, opts *DownloadOptions) error {
	if opts == nil {
		opts = &DownloadOptions{}
	}

	attrs := ObjectAttributes{Pointer: Pointer{Oid: oid, Size: size}, Extras: opts.Extras}
	obj, adapter, err := c.negotiate(ctx, scope, OperationDownload, attrs, opts.Ref)
	if err != nil {
		return err
	}

	c.logger.Info("downloading object", "oid", oid, "size", size, "transfer", adapter.Name())
	return adapter.Download(ctx, w, obj)
}

// negotiate runs a single object batch and resolves the adapter the server
// picked.
func (c *Client) negotiate(ctx context.Context, scope Scope, op string, attrs ObjectAttributes, ref string) (*ObjectResponse, TransferAdapter, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}

	br := &BatchRequest{
		Operation: op,
		Objects:   []ObjectAttributes{attrs},
		HashAlgo:  HashAlgorithmSHA256,
	}
	if ref != "" {
		br.Ref = &Reference{Name: ref}
	}

	resp, err := c.Batch(ctx, scope.String(), br)
	if err != nil {
		return nil, nil, err
	}

	adapter, err := c.adapter(resp.Transfer)
	if err != nil {
		return nil, nil, err
	}

	if len(resp.Objects) == 0 || resp.Objects[0] == nil {
		return nil, nil, ErrNoObjects
	}
	obj := resp.Objects[0]
	if obj.Error != nil {
		return nil, nil, obj.Error
	}

	return obj, adapter, nil
}

// adapter returns the adapter called name if the client accepts it.
func (c *Client) adapter(name string) (TransferAdapter, error) {
	if slices.Contains(c.adapters, name) {
		if a, ok := newTransferAdapter(name, c.http, c.logger); ok {
			return a, nil
		}
	}
	return nil, &TransferError{Err: fmt.Errorf("%w: %s", ErrUnsupportedAdapter, name)}
}
