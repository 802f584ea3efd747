package lfs

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/matryer/is"
)

// recorder keeps the requests a test server received, in order.
type recorder struct {
	mu   sync.Mutex
	reqs []recorded
}

type recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

func (r *recorder) record(req *http.Request) recorded {
	b, _ := io.ReadAll(req.Body)
	rec := recorded{Method: req.Method, Path: req.URL.Path, Header: req.Header.Clone(), Body: b}
	r.mu.Lock()
	r.reqs = append(r.reqs, rec)
	r.mu.Unlock()
	return rec
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.reqs...)
}

func newBasicAdapter(srv *httptest.Server) *BasicTransferAdapter {
	return &BasicTransferAdapter{client: srv.Client(), logger: log.New(io.Discard)}
}

func TestBasicUploadWithoutUploadActionIsNoop(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	a := newBasicAdapter(srv)
	for _, obj := range []*ObjectResponse{
		{Pointer: Pointer{Oid: "abc", Size: 3}},
		{Pointer: Pointer{Oid: "abc", Size: 3}, Actions: &Actions{}},
		{Pointer: Pointer{Oid: "abc", Size: 3}, Actions: &Actions{Verify: &Link{Href: srv.URL + "/verify"}}},
	} {
		var calls int
		err := a.Upload(ctx(t), strings.NewReader("abc"), obj, func(int64) { calls++ })
		is.NoErr(err)
		is.Equal(calls, 0)
	}
	is.Equal(hits.Load(), int32(0))
}

func TestBasicUploadAndVerify(t *testing.T) {
	is := is.New(t)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	defer srv.Close()

	obj := &ObjectResponse{
		Pointer: Pointer{Oid: "oid1", Size: 11},
		Actions: &Actions{
			Upload: &Link{Href: srv.URL + "/upload?sig=secret", Header: map[string]string{"X-Upload": "yes"}},
			Verify: &Link{Href: srv.URL + "/verify", Header: map[string]string{"Authorization": "Basic abc"}},
		},
	}
	var progress []int64
	err := newBasicAdapter(srv).Upload(ctx(t), strings.NewReader("hello world"), obj, func(n int64) {
		progress = append(progress, n)
	})
	is.NoErr(err)
	is.Equal(progress, []int64{11})

	reqs := rec.all()
	is.Equal(len(reqs), 2)

	is.Equal(reqs[0].Method, http.MethodPut)
	is.Equal(reqs[0].Path, "/upload")
	is.Equal(string(reqs[0].Body), "hello world")
	is.Equal(reqs[0].Header.Get("X-Upload"), "yes")
	is.Equal(reqs[0].Header.Get("Content-Type"), "application/octet-stream")

	is.Equal(reqs[1].Method, http.MethodPost)
	is.Equal(reqs[1].Path, "/verify")
	is.Equal(reqs[1].Header.Get("Authorization"), "Basic abc")
	is.Equal(reqs[1].Header.Get("Content-Type"), MediaType)
	var p Pointer
	is.NoErr(json.Unmarshal(reqs[1].Body, &p))
	is.Equal(p, Pointer{Oid: "oid1", Size: 11})
}

func TestBasicUploadFailure(t *testing.T) {
	is := is.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", MediaType)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"signature expired"}`)) // nolint: errcheck
	}))
	defer srv.Close()

	obj := &ObjectResponse{
		Pointer: Pointer{Oid: "oid1", Size: 1},
		Actions: &Actions{
			Upload: &Link{Href: srv.URL + "/upload"},
			Verify: &Link{Href: srv.URL + "/verify"},
		},
	}
	err := newBasicAdapter(srv).Upload(ctx(t), strings.NewReader("x"), obj, nil)

	var te *TransferError
	is.True(errors.As(err, &te))
	is.Equal(te.Action, OperationUpload)
	is.Equal(te.StatusCode, http.StatusForbidden)
	is.Equal(te.Body, "signature expired")
	is.Equal(hits.Load(), int32(1)) // verify is not attempted
}

func TestBasicVerifyFailure(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/verify" {
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	obj := &ObjectResponse{
		Pointer: Pointer{Oid: "oid1", Size: 1},
		Actions: &Actions{
			Upload: &Link{Href: srv.URL + "/upload"},
			Verify: &Link{Href: srv.URL + "/verify"},
		},
	}
	err := newBasicAdapter(srv).Upload(ctx(t), strings.NewReader("x"), obj, nil)

	var te *TransferError
	is.True(errors.As(err, &te))
	is.Equal(te.Action, "verify")
	is.Equal(te.StatusCode, http.StatusNotFound)
	is.Equal(te.Body, "not found")
}

func TestBasicDownload(t *testing.T) {
	is := is.New(t)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Write([]byte("hello world")) // nolint: errcheck
	}))
	defer srv.Close()

	obj := &ObjectResponse{
		Pointer: Pointer{Oid: "oid1", Size: 11},
		Actions: &Actions{
			Download: &Link{Href: srv.URL + "/download", Header: map[string]string{"X-Token": "t"}},
		},
	}
	var buf bytes.Buffer
	is.NoErr(newBasicAdapter(srv).Download(ctx(t), &buf, obj))
	is.Equal(buf.String(), "hello world")

	reqs := rec.all()
	is.Equal(len(reqs), 1)
	is.Equal(reqs[0].Method, http.MethodGet)
	is.Equal(reqs[0].Header.Get("X-Token"), "t")
}

func TestBasicDownloadMissingAction(t *testing.T) {
	is := is.New(t)
	a := &BasicTransferAdapter{client: http.DefaultClient, logger: log.New(io.Discard)}
	err := a.Download(ctx(t), io.Discard, &ObjectResponse{Pointer: Pointer{Oid: "oid1"}})
	is.True(errors.Is(err, ErrMissingAction))
}
