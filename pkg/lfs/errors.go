package lfs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedAdapter is returned when the server picks a transfer
	// adapter the client does not accept.
	ErrUnsupportedAdapter = errors.New("unsupported transfer adapter")

	// ErrUnsupportedDigest is returned when a part asks for a digest kind
	// that cannot be computed.
	ErrUnsupportedDigest = errors.New("unsupported digest")

	// ErrMissingAction is returned when a download response has no download
	// action.
	ErrMissingAction = errors.New("missing action")

	// ErrNoObjects is returned when a batch response lists no objects.
	ErrNoObjects = errors.New("batch response has no objects")

	// ErrInvalidScope is returned for a malformed repository scope.
	ErrInvalidScope = errors.New("invalid scope")
)

// Error is returned when the batch endpoint answers with anything but 200.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected response from LFS server: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected response from LFS server: %d: %s", e.StatusCode, e.Message)
}

// TransferError is returned when a transfer step fails. Action names the
// step ("upload", "download", "init", "part", "commit", "verify").
type TransferError struct {
	Action     string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransferError) Error() string {
	switch {
	case e.Err != nil && e.Action != "":
		return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s failed with status %d: %s", e.Action, e.StatusCode, e.Body)
	}
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ObjectError defines the JSON structure returned to the client in case of an error.
type ObjectError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object error %d: %s", e.Code, e.Message)
}
