package outpost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/outpost-run/outpost-go/pkg/client"
	"github.com/outpost-run/outpost-go/pkg/lfs"
)

// Repository types.
const (
	RepoTypeModel   = "model"
	RepoTypeDataset = "dataset"
)

// DefaultRef is the ref used when none is given.
const DefaultRef = "HEAD"

// Repository browses a model or dataset repository. Responses are returned
// as raw JSON.
type Repository struct {
	c        *client.Client
	repoType string
	entity   string
	name     string
}

// NewRepository returns the namespace of the repository entity/name of the
// given type.
func NewRepository(c *client.Client, repoType, entity, name string) *Repository {
	return &Repository{c: c, repoType: repoType, entity: entity, name: name}
}

// FullName returns "entity/name".
func (r *Repository) FullName() string {
	return r.entity + "/" + r.name
}

// LFSScope returns the scope used to store large files of the repository.
func (r *Repository) LFSScope() lfs.Scope {
	return lfs.Scope{Organization: r.entity, RepoType: r.repoType, Repo: r.name}
}

// TreeOptions tune ViewTree.
type TreeOptions struct {
	WithCommit   bool `url:"with_commit"`
	WithMetadata bool `url:"with_metadata"`
}

type blobQuery struct {
	Raw bool `url:"raw"`
}

type searchQuery struct {
	Search string `url:"search"`
	Ref    string `url:"ref"`
}

func ref(s string) string {
	if s == "" {
		return DefaultRef
	}
	return s
}

func (r *Repository) path(kind, action, rf, p string) string {
	base := joinPath("git", kind, r.repoType, r.entity, r.name, action)
	if rf == "" {
		return base
	}
	return base + joinPath(rf) + repoPath(p)
}

// ViewTree lists the tree at path p of ref.
func (r *Repository) ViewTree(ctx context.Context, rf, p string, opts *TreeOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &TreeOptions{}
	}
	var out json.RawMessage
	err := r.c.DoJSON(ctx, http.MethodGet, r.path("tree", "view", ref(rf), p), &client.RequestOptions{Query: opts}, &out)
	return out, err
}

// SearchTree searches the tree of ref for paths matching search.
func (r *Repository) SearchTree(ctx context.Context, search, rf string) (json.RawMessage, error) {
	var out json.RawMessage
	q := searchQuery{Search: search, Ref: ref(rf)}
	err := r.c.DoJSON(ctx, http.MethodGet, r.path("tree", "search", "", ""), &client.RequestOptions{Query: q}, &out)
	return out, err
}

// ViewBlob returns the blob at path p of ref.
func (r *Repository) ViewBlob(ctx context.Context, rf, p string, raw bool) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.c.DoJSON(ctx, http.MethodGet, r.path("blobs", "view", ref(rf), p), &client.RequestOptions{Query: blobQuery{Raw: raw}}, &out)
	return out, err
}

// DownloadBlob streams the blob at path p of ref. The caller closes the
// returned body.
func (r *Repository) DownloadBlob(ctx context.Context, rf, p string) (io.ReadCloser, error) {
	resp, err := r.c.Request(ctx, http.MethodGet, r.path("blobs", "download", ref(rf), p), &client.RequestOptions{
		Query:  blobQuery{Raw: true},
		Stream: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
