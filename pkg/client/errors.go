package client

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	defaultErrorMessage    = "request failed without message"
	predictionErrorMessage = "prediction request failed"
)

// HTTPError is returned for responses with a 4xx or 5xx status.
type HTTPError struct {
	StatusCode int
	Message    string

	// Code is the machine readable error code, when the server sent one.
	Code string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// BodyDecodeError is returned when a failed response claims to carry JSON
// but its body cannot be decoded.
type BodyDecodeError struct {
	StatusCode int
	Err        error
}

func (e *BodyDecodeError) Error() string {
	return fmt.Sprintf("failed to decode json body (status %d): %v", e.StatusCode, e.Err)
}

func (e *BodyDecodeError) Unwrap() error {
	return e.Err
}

// PredictionError is returned by prediction calls. Data holds the decoded
// JSON payload of the failed response, when there was one.
type PredictionError struct {
	HTTPError
	Data any
}

func (e *PredictionError) Error() string {
	return e.HTTPError.Error()
}

// CheckResponse returns an error when resp carries a 4xx or 5xx status. The
// body is consumed in that case. JSON bodies contribute their "message" and
// "code" fields.
func CheckResponse(resp *http.Response) error {
	if !failed(resp) {
		return nil
	}

	ct, body, err := readFailure(resp)
	if err != nil {
		return err
	}

	herr := &HTTPError{StatusCode: resp.StatusCode}
	switch ct {
	case "application/json":
		var payload struct {
			Message json.RawMessage `json:"message"`
			Code    json.RawMessage `json:"code"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			// A valid non-object payload carries no message.
			var v any
			if jerr := json.Unmarshal(body, &v); jerr != nil {
				return &BodyDecodeError{StatusCode: resp.StatusCode, Err: jerr}
			}
		}
		herr.Message = rawString(payload.Message)
		if herr.Message == "" {
			herr.Message = defaultErrorMessage
		}
		herr.Code = rawString(payload.Code)
	case "text/plain", "text/html":
		herr.Message = string(body)
	default:
		herr.Message = unhandled(ct)
	}

	return herr
}

// CheckPredictionResponse is CheckResponse for prediction calls. JSON
// payloads are kept whole in PredictionError.Data.
func CheckPredictionResponse(resp *http.Response) error {
	if !failed(resp) {
		return nil
	}

	ct, body, err := readFailure(resp)
	if err != nil {
		return err
	}

	perr := &PredictionError{HTTPError: HTTPError{StatusCode: resp.StatusCode}}
	switch ct {
	case "application/json":
		if err := json.Unmarshal(body, &perr.Data); err != nil {
			return &BodyDecodeError{StatusCode: resp.StatusCode, Err: err}
		}
		perr.Message = predictionErrorMessage
	case "text/plain", "text/html":
		perr.Message = string(body)
	default:
		perr.Message = unhandled(ct)
	}

	return perr
}

func failed(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 600
}

func readFailure(resp *http.Response) (string, []byte, error) {
	defer resp.Body.Close() // nolint: errcheck
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read error response: %w", err)
	}
	return mediaType(resp.Header.Get("Content-Type")), body, nil
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		mt, _, _ = strings.Cut(v, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func unhandled(ct string) string {
	return "request failed. unhandled content type: " + ct
}

// rawString renders a JSON scalar as text. Strings lose their quotes.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
