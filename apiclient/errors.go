package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/jrsteele09/go-opportuci/internal/utils"
)

var (
	ErrNoRefreshToken = apperrors.ErrNoRefreshToken
	ErrRefreshTimeout = apperrors.ErrRefreshTimeout
	ErrNoSession      = apperrors.ErrNoSession
)

// NonFieldErrors is the key the backend uses for errors not tied to one field.
const NonFieldErrors = "non_field_errors"

// FieldValidationError is a 400 response (or a client-side check) whose body
// maps field names to messages. Never retried.
type FieldValidationError struct {
	StatusCode int
	Fields     map[string][]string
}

func (e *FieldValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the first message for field, or "".
func (e *FieldValidationError) Field(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// AuthError is a 401/403 that survived recovery, or one returned by a token endpoint.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (%d)", e.StatusCode)
	}
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
}

// TransportError means no response was received. It never triggers a refresh.
type TransportError struct {
	Method string
	Path   string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.Path, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// StatusError is any other non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// RefreshError means the access token could not be refreshed. The session
// has been cleared by the time it is returned.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Cause)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return apperrors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// classify maps a non-2xx response onto the error variants above.
func classify(resp *Response) error {
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &FieldValidationError{StatusCode: resp.StatusCode, Fields: parseFields(resp.Body)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: parseDetail(resp.Body)}
	default:
		return &StatusError{StatusCode: resp.StatusCode, Message: parseDetail(resp.Body), Body: resp.Body}
	}
}

// parseFields normalises the backend's error shapes: {"field": ["msg"]},
// {"field": "msg"}, {"detail": "msg"}, ["msg"] or plain text.
func parseFields(body []byte) map[string][]string {
	fields := map[string][]string{}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			fields[NonFieldErrors] = []string{text}
		}
		return fields
	}

	switch t := decoded.(type) {
	case map[string]any:
		for k, v := range t {
			if msgs := utils.ToStringSlice(v); len(msgs) > 0 {
				fields[k] = msgs
			}
		}
	default:
		if msgs := utils.ToStringSlice(t); len(msgs) > 0 {
			fields[NonFieldErrors] = msgs
		}
	}
	return fields
}

// parseDetail extracts the human readable message from an error body.
func parseDetail(body []byte) string {
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if msgs := utils.ToStringSlice(payload.Detail); len(msgs) > 0 {
		return strings.Join(msgs, " ")
	}
	return payload.Message
}
