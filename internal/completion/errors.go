package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for upstream outcome classification.
var (
	// ErrRetryable marks a transient upstream capacity failure that a new
	// attempt may plausibly resolve.
	ErrRetryable = errors.New("upstream retryable failure")

	// ErrFatal marks every other upstream failure: transport errors,
	// timeouts, auth failures, unusable responses.
	ErrFatal = errors.New("upstream fatal failure")
)

// UpstreamError describes a failed completion call.
type UpstreamError struct {
	// Kind is ErrRetryable or ErrFatal.
	Kind error

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// Code is the classification code found in the payload, 0 if none.
	Code int

	Message string

	// Payload is the upstream body, kept for operator diagnostics.
	Payload json.RawMessage

	Err error
}

// Error returns the kind, status and upstream message.
func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, ", code %d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying transport or decode error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is matches the error's Kind.
func (e *UpstreamError) Is(target error) bool {
	return target == e.Kind
}

// Payload returns the upstream diagnostic payload carried by err, if any.
func Payload(err error) json.RawMessage {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Payload
	}
	return nil
}

// newPayload keeps a JSON body as-is and wraps anything else as a JSON
// string so it can be passed through verbatim.
func newPayload(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(trimmed)
	if err != nil {
		return nil
	}
	return quoted
}

// payloadCode extracts a numeric classification code and message from an
// upstream error body. Both `{"code": ...}` and `{"error": {"code": ...}}`
// shapes are recognized; codes may be numbers or numeric strings.
func payloadCode(body []byte) (code int, message string) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return 0, ""
	}
	code = parseCode(top["code"])
	message = parseString(top["message"])

	if raw, ok := top["error"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if code == 0 {
				code = parseCode(nested["code"])
			}
			if message == "" {
				message = parseString(nested["message"])
			}
		} else if message == "" {
			message = parseString(raw)
		}
	}
	return code, message
}

func parseCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

func parseString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
