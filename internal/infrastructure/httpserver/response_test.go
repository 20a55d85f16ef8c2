package httpserver_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/aduser/internal/domain/errs"
	"github.com/lllypuk/aduser/internal/infrastructure/graph"
	"github.com/lllypuk/aduser/internal/infrastructure/httpserver"
	"github.com/lllypuk/aduser/internal/secret"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name           string
		code           int
		data           any
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "success with data",
			code:           http.StatusOK,
			data:           map[string]string{"state": "submitted"},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"data":{"state":"submitted"}}`,
		},
		{
			name:           "success with nil data",
			code:           http.StatusOK,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			err := httpserver.RespondJSON(c, tt.code, tt.data)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
		})
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "directory rejected the update",
			err:        fmt.Errorf("update: %w", &graph.RemoteError{Status: 400, Code: "Request_BadRequest", Message: "bad usageLocation"}),
			wantStatus: http.StatusBadRequest,
			wantCode:   "DIRECTORY_REJECTED",
			wantMsg:    "bad usageLocation",
		},
		{
			name:       "directory has no such user",
			err:        &graph.RemoteError{Status: 404},
			wantStatus: http.StatusNotFound,
			wantCode:   "USER_NOT_FOUND",
			wantMsg:    "Not Found",
		},
		{
			name:       "directory refused the app",
			err:        &graph.RemoteError{Status: 403, Message: "Insufficient privileges"},
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
			wantMsg:    "Insufficient privileges",
		},
		{
			name:       "empty identity",
			err:        graph.ErrUserNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "USER_NOT_FOUND",
			wantMsg:    "no directory user has that identity",
		},
		{
			name:       "undecodable password",
			err:        fmt.Errorf("%w: container destroyed", secret.ErrDecode),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_SECRET",
			wantMsg:    "password could not be decoded",
		},
		{
			name:       "invalid input",
			err:        errs.ErrInvalidInput,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
			wantMsg:    "request is not a valid user update",
		},
		{
			name:       "directory unreachable",
			err:        fmt.Errorf("%w: connection refused", errs.ErrUpstream),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
			wantMsg:    "the directory service could not be reached",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "An internal error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			err := httpserver.RespondError(c, tt.err)

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp httpserver.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
		})
	}
}

func TestRespondErrorWithCode(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_SECRET", "password could not be decoded")

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"success":false,"error":{"code":"INVALID_SECRET","message":"password could not be decoded"}}`,
		rec.Body.String())
}
