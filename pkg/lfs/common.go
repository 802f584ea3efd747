package lfs

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// MediaType contains the media type for LFS server requests.
	MediaType = "application/vnd.git-lfs+json"

	// OperationDownload is the operation name for a download request.
	OperationDownload = "download"

	// OperationUpload is the operation name for an upload request.
	OperationUpload = "upload"

	// ExtraPrefix namespaces caller supplied object attributes.
	ExtraPrefix = "x-"
)

// Pointer contains LFS pointer data
type Pointer struct {
	Oid  string `json:"oid"`
	Size int64  `json:"size"`
}

// ObjectAttributes identifies an object in a batch request. Extras are sent
// as additional "x-" prefixed attributes.
type ObjectAttributes struct {
	Pointer
	Extras map[string]any `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (o ObjectAttributes) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o.Extras)+2)
	for k, v := range o.Extras {
		m[ExtraPrefix+k] = v
	}
	m["oid"] = o.Oid
	m["size"] = o.Size
	return json.Marshal(m)
}

// ErrorResponse describes the error to the client.
type ErrorResponse struct {
	Message          string `json:"message,omitempty"`
	DocumentationURL string `json:"documentation_url,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// BatchRequest contains multiple requests processed in one batch operation.
// https://github.com/git-lfs/git-lfs/blob/main/docs/api/batch.md#requests
type BatchRequest struct {
	Transfers []string           `json:"transfers"`
	Operation string             `json:"operation"`
	Objects   []ObjectAttributes `json:"objects"`
	Ref       *Reference         `json:"ref,omitempty"`
	HashAlgo  string             `json:"hash_algo,omitempty"`
}

// Reference contains a git reference.
// https://github.com/git-lfs/git-lfs/blob/main/docs/api/batch.md#ref-property
type Reference struct {
	Name string `json:"name"`
}

// BatchResponse contains multiple object metadata Representation structures
// for use with the batch API.
// https://github.com/git-lfs/git-lfs/blob/main/docs/api/batch.md#successful-responses
type BatchResponse struct {
	Transfer string            `json:"transfer,omitempty"`
	Objects  []*ObjectResponse `json:"objects"`
	HashAlgo string            `json:"hash_algo,omitempty"`
}

// ObjectResponse is object metadata as seen by clients of the LFS server.
type ObjectResponse struct {
	Pointer
	Authenticated *bool        `json:"authenticated,omitempty"`
	Actions       *Actions     `json:"actions,omitempty"`
	Error         *ObjectError `json:"error,omitempty"`
}

// Actions are the transfer steps offered for an object. Every step is
// optional. An upload response without Upload (basic) or without any step
// (multipart) means the server already has the object.
type Actions struct {
	Upload   *Link `json:"upload,omitempty"`
	Download *Link `json:"download,omitempty"`
	Verify   *Link `json:"verify,omitempty"`

	Init   *Link       `json:"init,omitempty"`
	Part   *PartAction `json:"part,omitempty"`
	Parts  []Part      `json:"parts,omitempty"`
	Commit *Link       `json:"commit,omitempty"`
	Abort  *Link       `json:"abort,omitempty"`
}

// Empty reports whether no step is present.
func (a *Actions) Empty() bool {
	return a == nil || (a.Upload == nil && a.Download == nil && a.Verify == nil &&
		a.Init == nil && len(a.PartList()) == 0 && a.Commit == nil && a.Abort == nil)
}

// PartList returns the multipart parts, in upload order.
func (a *Actions) PartList() []Part {
	if a == nil {
		return nil
	}
	if a.Part != nil && len(a.Part.Parts) > 0 {
		return a.Part.Parts
	}
	return a.Parts
}

// Link provides a structure with information about how to access a object.
type Link struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header,omitempty"`

	// Method overrides the default method of the step.
	Method string `json:"method,omitempty"`

	// Body is sent as is by multipart init and abort steps.
	Body string `json:"body,omitempty"`

	// ExpiresIn is a number of seconds.
	ExpiresIn int64      `json:"expires_in,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (l *Link) method(def string) string {
	if l.Method == "" {
		return def
	}
	return strings.ToUpper(l.Method)
}

// PartAction groups the parts of a multipart upload.
type PartAction struct {
	Parts []Part `json:"parts"`
}

// Part is one slice of a multipart upload.
type Part struct {
	Href   string            `json:"href"`
	Method string            `json:"method,omitempty"`
	Header map[string]string `json:"header,omitempty"`

	// Pos is the offset of the part in the object.
	Pos int64 `json:"pos"`

	// Size is the length of the part. Zero means up to the end.
	Size int64 `json:"size,omitempty"`

	// WantDigest names the digest header the server expects.
	WantDigest string `json:"want_digest,omitempty"`
}

// CompletedPart is reported to the commit step.
type CompletedPart struct {
	ETag       string `json:"ETag"`
	PartNumber int    `json:"PartNumber"`
}

// CommitRequest is the body of the commit step.
type CommitRequest struct {
	Oid   string          `json:"oid"`
	Parts []CompletedPart `json:"parts"`
}
