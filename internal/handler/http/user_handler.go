// Package httphandler exposes the update operation over HTTP.
package httphandler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
	"github.com/lllypuk/aduser/internal/infrastructure/httpserver"
	"github.com/lllypuk/aduser/internal/middleware"
	"github.com/lllypuk/aduser/internal/secret"
)

// SourceHTTP labels audit entries written for API requests.
const SourceHTTP = "http"

// UpdateUserRequest is the PATCH body. Absent or null fields are not supplied;
// an empty string is supplied and sent.
type UpdateUserRequest struct {
	AccountEnabled *bool   `json:"account_enabled"`
	DisplayName    *string `json:"display_name"`
	ImmutableID    *string `json:"immutable_id"`
	UsageLocation  *string `json:"usage_location"`
	GivenName      *string `json:"given_name"`
	Surname        *string `json:"surname"`
	UserType       *string `json:"user_type"`
	MailNickname   *string `json:"mail_nickname"`

	Password                     *string `json:"password"`
	ForceChangePasswordNextLogin bool    `json:"force_change_password_next_login"`
}

// UpdateUserResponse describes how the update ended.
type UpdateUserResponse struct {
	State    string           `json:"state"`
	Identity string           `json:"identity"`
	Action   string           `json:"action"`
	Fields   []string         `json:"fields"`
	User     *domainuser.User `json:"user,omitempty"`
}

// UserUpdater runs the update operation.
// Declared on the consumer side per project guidelines.
type UserUpdater interface {
	Execute(ctx context.Context, cmd userapp.UpdateUserCommand) (userapp.Result, error)
}

// UserHandler handles directory user HTTP requests.
type UserHandler struct {
	updater      UserUpdater
	requiredRole string
}

// NewUserHandler creates a new UserHandler. An empty requiredRole lets every
// authenticated caller update users.
func NewUserHandler(updater UserUpdater, requiredRole string) *UserHandler {
	return &UserHandler{
		updater:      updater,
		requiredRole: requiredRole,
	}
}

// RegisterRoutes registers user routes with the router.
func (h *UserHandler) RegisterRoutes(r *httpserver.Router) {
	r.API().PATCH("/users/:identity", h.Update, middleware.RequireRole(h.requiredRole))
}

// Update handles PATCH /api/v1/users/:identity.
// The request itself is the confirmation; ?what_if=true only describes the update.
func (h *UserHandler) Update(c echo.Context) error {
	identity, err := url.PathUnescape(c.Param("identity"))
	if err != nil || identity == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_IDENTITY", "invalid user identity")
	}

	whatIf := false
	if raw := c.QueryParam("what_if"); raw != "" {
		whatIf, err = strconv.ParseBool(raw)
		if err != nil {
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_REQUEST", "what_if must be a boolean")
		}
	}

	var req UpdateUserRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	cmd := userapp.UpdateUserCommand{
		Identity:       domainuser.ParseIdentity(identity),
		AccountEnabled: req.AccountEnabled,
		DisplayName:    req.DisplayName,
		Attributes: domainuser.Attributes{
			ImmutableID:   domainuser.FromPtr(req.ImmutableID),
			UsageLocation: domainuser.FromPtr(req.UsageLocation),
			GivenName:     domainuser.FromPtr(req.GivenName),
			Surname:       domainuser.FromPtr(req.Surname),
			UserType:      domainuser.FromPtr(req.UserType),
			MailNickname:  domainuser.FromPtr(req.MailNickname),
		},
		ForceChangePassword: req.ForceChangePasswordNextLogin,
		WhatIf:              whatIf,
		Actor:               middleware.Actor(c),
		Source:              SourceHTTP,
	}

	if req.Password != nil {
		password, sealErr := secret.FromString(*req.Password)
		req.Password = nil
		if sealErr != nil {
			return httpserver.RespondError(c, sealErr)
		}
		defer password.Destroy()
		cmd.Password = password
	}

	result, err := h.updater.Execute(c.Request().Context(), cmd)
	if err != nil {
		return handleUpdateError(c, err)
	}

	return httpserver.RespondOK(c, ToUpdateUserResponse(result))
}

func handleUpdateError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, userapp.ErrIdentityRequired):
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_IDENTITY", "user identity is required")
	default:
		return httpserver.RespondError(c, err)
	}
}

// ToUpdateUserResponse converts a use case result to UpdateUserResponse.
func ToUpdateUserResponse(result userapp.Result) UpdateUserResponse {
	fields := result.Fields
	if fields == nil {
		fields = []string{}
	}
	return UpdateUserResponse{
		State:    string(result.State),
		Identity: result.Identity,
		Action:   result.Action,
		Fields:   fields,
		User:     result.Value,
	}
}
