package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lllypuk/aduser/internal/domain/errs"
)

// Directory errors.
var (
	ErrUserNotFound = fmt.Errorf("user %w", errs.ErrNotFound)
	ErrTokenRequest = errors.New("token request failed")
)

// RemoteError is a non-success response from the directory service.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("directory returned %d %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("directory returned %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("directory returned %d", e.Status)
	}
}

// Is reports a 404 as ErrUserNotFound.
func (e *RemoteError) Is(target error) bool {
	if e.Status != http.StatusNotFound {
		return false
	}
	return target == ErrUserNotFound || target == errs.ErrNotFound
}

// errorEnvelope is the error body returned by the directory service.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseRemoteError builds a RemoteError from a response body. Bodies that are
// not in the service's error format are kept as the message.
func parseRemoteError(status int, body []byte) *RemoteError {
	remote := &RemoteError{Status: status}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		remote.Code = envelope.Error.Code
		remote.Message = envelope.Error.Message
		return remote
	}

	remote.Message = strings.TrimSpace(string(body))
	return remote
}
