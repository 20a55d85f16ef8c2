package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/aduser/internal/domain/errs"
	"github.com/lllypuk/aduser/internal/infrastructure/graph"
	"github.com/lllypuk/aduser/internal/secret"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the machine-readable failure inside Response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorKinds translates error kinds into API errors. The first match wins.
var errorKinds = []struct {
	kind   error
	status int
	body   Error
}{
	{secret.ErrDecode, http.StatusBadRequest, Error{"INVALID_SECRET", "password could not be decoded"}},
	{errs.ErrInvalidInput, http.StatusBadRequest, Error{"INVALID_INPUT", "request is not a valid user update"}},
	{errs.ErrNotFound, http.StatusNotFound, Error{"USER_NOT_FOUND", "no directory user has that identity"}},
	{errs.ErrUpstream, http.StatusBadGateway, Error{"UPSTREAM_ERROR", "the directory service could not be reached"}},
}

// RespondJSON wraps data in a successful envelope.
func RespondJSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Success: true, Data: data})
}

// RespondOK is RespondJSON with 200.
func RespondOK(c echo.Context, data any) error {
	return RespondJSON(c, http.StatusOK, data)
}

// RespondError picks the status and code for err.
func RespondError(c echo.Context, err error) error {
	status, body := mapError(err)
	return c.JSON(status, Response{Error: body})
}

// RespondErrorWithCode replies with an explicit status and code.
func RespondErrorWithCode(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Response{Error: &Error{Code: code, Message: message}})
}

func mapError(err error) (int, *Error) {
	var remote *graph.RemoteError
	if errors.As(err, &remote) {
		return remoteStatus(remote)
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			body := k.body
			return k.status, &body
		}
	}

	return http.StatusInternalServerError, &Error{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}
}

// remoteStatus forwards the directory's verdict on the request itself (400
// and 404) with its own message. Anything else is the directory failing us.
func remoteStatus(remote *graph.RemoteError) (int, *Error) {
	message := remote.Message
	if message == "" {
		message = http.StatusText(remote.Status)
	}

	switch remote.Status {
	case http.StatusBadRequest:
		return http.StatusBadRequest, &Error{Code: "DIRECTORY_REJECTED", Message: message}
	case http.StatusNotFound:
		return http.StatusNotFound, &Error{Code: "USER_NOT_FOUND", Message: message}
	default:
		return http.StatusBadGateway, &Error{Code: "UPSTREAM_ERROR", Message: message}
	}
}
