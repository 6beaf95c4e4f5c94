package gitlab

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrDryRun marks a write call suppressed by dry-run mode. Callers treat it
// as a successful no-op.
var ErrDryRun = errors.New("dry run: write suppressed")

// APIError is a non-2xx GitLab response.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsPermissionDenied reports a 403, or a 400 whose message mentions
// permissions. GitLab answers token creation by an under-privileged caller
// with the latter shape.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusForbidden {
		return true
	}
	return apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "permission")
}

// errorMessage extracts the human-readable part of a GitLab error body.
// Bodies come as {"message": <string or object>} or {"error": <string>};
// anything else is returned as-is.
func errorMessage(body []byte) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(envelope.Message) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Message, &s); err == nil {
			return s
		}
		return string(envelope.Message)
	}
	if envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(body))
}
