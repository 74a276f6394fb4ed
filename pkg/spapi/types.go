package spapi

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of a successful API call. Body holds the raw
// response payload; IsJSON reports whether it parsed as JSON. Attempt is
// the 1-based attempt number that produced the response.
type Result struct {
	StatusCode int
	Body       []byte
	IsJSON     bool
	Attempt    int
}

// Decode unmarshals a JSON result body into v.
func (r Result) Decode(v any) error {
	if !r.IsJSON {
		return fmt.Errorf("response body is not JSON")
	}
	return json.Unmarshal(r.Body, v)
}

// TransientAPIError is a retryable failure: HTTP 429, a 5xx, or a
// network-level error. The client retries these internally; one only
// escapes wrapped inside a TerminalAPIError after retries are exhausted.
type TransientAPIError struct {
	StatusCode int // zero for network-level failures
	Body       string
	Err        error
}

func (e *TransientAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient API failure: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("transient API failure: %v", e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// TerminalAPIError is the final failure of a call: a non-retryable status
// or retry exhaustion. Retrying it will not help.
type TerminalAPIError struct {
	StatusCode int
	Body       string
	Attempts   int
	Err        error
}

func (e *TerminalAPIError) Error() string {
	msg := fmt.Sprintf("API call failed: HTTP %d", e.StatusCode)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	return msg
}

func (e *TerminalAPIError) Unwrap() error { return e.Err }
