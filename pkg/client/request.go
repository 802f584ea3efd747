package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
)

// RequestOptions are the recognized per-call options. The zero value sends
// a bare request.
type RequestOptions struct {
	// Header is merged over the default headers.
	Header http.Header

	// Query is either url.Values or a struct with `url` tags.
	Query any

	// JSON is marshalled as the request body.
	JSON any

	// Form holds form fields. They are url-encoded, or sent as multipart
	// fields when Files is not empty.
	Form url.Values

	// Files are sent as a multipart body.
	Files []File

	// Body is sent as is when JSON, Form and Files are empty. Retried
	// requests replay it from memory.
	Body io.Reader

	// Stream hands the open response body to the caller, who must close it.
	Stream bool

	// Check translates failed responses into errors. Defaults to
	// CheckResponse.
	Check func(*http.Response) error
}

// File is a multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts *RequestOptions) (*http.Request, error) {
	u, err := c.resolveURL(path)
	if err != nil {
		return nil, err
	}
	if err := mergeQuery(u, opts.Query); err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	for k, vv := range opts.Header {
		req.Header.Del(k)
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	return req, nil
}

func (c *Client) resolveURL(path string) (*url.URL, error) {
	p := strings.TrimSpace(path)
	if u, err := url.Parse(p); err == nil && u.IsAbs() {
		return u, nil
	}
	u, err := url.Parse(c.baseURL + "/" + strings.TrimPrefix(p, "/"))
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	return u, nil
}

func mergeQuery(u *url.URL, q any) error {
	var vals url.Values
	switch v := q.(type) {
	case nil:
		return nil
	case url.Values:
		vals = v
	case map[string]string:
		vals = url.Values{}
		for k, s := range v {
			vals.Set(k, s)
		}
	default:
		var err error
		vals, err = query.Values(q)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
	}
	if len(vals) == 0 {
		return nil
	}

	qq := u.Query()
	for k, vv := range vals {
		for _, s := range vv {
			qq.Add(k, s)
		}
	}
	u.RawQuery = qq.Encode()
	return nil
}

// encodeBody returns a body that http.NewRequest can replay.
func encodeBody(opts *RequestOptions) (io.Reader, string, error) {
	switch {
	case opts.JSON != nil:
		bts, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return bytes.NewReader(bts), "application/json", nil
	case len(opts.Files) > 0:
		return encodeMultipart(opts.Form, opts.Files)
	case len(opts.Form) > 0:
		return strings.NewReader(opts.Form.Encode()), "application/x-www-form-urlencoded", nil
	case opts.Body != nil:
		return opts.Body, "", nil
	}
	return nil, "", nil
}

func encodeMultipart(form url.Values, files []File) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vv := range form {
		for _, v := range vv {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if f.Content != nil {
			if _, err := io.Copy(w, f.Content); err != nil {
				return nil, "", fmt.Errorf("read file %q: %w", f.Name, err)
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return bytes.NewReader(buf.Bytes()), mw.FormDataContentType(), nil
}

func bufferBody(resp *http.Response) error {
	defer resp.Body.Close() // nolint: errcheck
	bts, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(bts))
	return nil
}
