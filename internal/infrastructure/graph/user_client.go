// Package graph talks to the directory service: token acquisition, user
// updates and inbound token validation.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lllypuk/aduser/internal/domain/errs"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
)

// UserClientConfig contains configuration for UserClient.
type UserClientConfig struct {
	// BaseURL is the directory API root (e.g., https://graph.microsoft.com/v1.0).
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// UserClient updates and reads directory users.
type UserClient struct {
	baseURL    string
	tokens     *TokenManager
	httpClient *http.Client
	logger     *slog.Logger
}

const defaultUserHTTPTimeout = 60 * time.Second

// NewUserClient creates a new directory user client.
func NewUserClient(config UserClientConfig, tokens *TokenManager) *UserClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultUserHTTPTimeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &UserClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}
}

// updateRequest is the PATCH body. A nil field is left out of the body, so an
// unset accountEnabled or displayName leaves the stored value alone.
type updateRequest struct {
	AccountEnabled  *bool            `json:"accountEnabled,omitempty"`
	DisplayName     *string          `json:"displayName,omitempty"`
	ImmutableID     *string          `json:"immutableId,omitempty"`
	UsageLocation   *string          `json:"usageLocation,omitempty"`
	GivenName       *string          `json:"givenName,omitempty"`
	Surname         *string          `json:"surname,omitempty"`
	UserType        *string          `json:"userType,omitempty"`
	MailNickname    *string          `json:"mailNickname,omitempty"`
	PasswordProfile *passwordProfile `json:"passwordProfile,omitempty"`
}

type passwordProfile struct {
	Password                     string `json:"password"`
	ForceChangePasswordNextLogin bool   `json:"forceChangePasswordNextLogin"`
}

func newUpdateRequest(p *domainuser.UpdatePayload) updateRequest {
	req := updateRequest{
		AccountEnabled: p.AccountEnabled,
		DisplayName:    p.DisplayName,
		ImmutableID:    p.ImmutableID,
		UsageLocation:  p.UsageLocation,
		GivenName:      p.GivenName,
		Surname:        p.Surname,
		UserType:       p.UserType,
		MailNickname:   p.MailNickname,
	}
	if p.PasswordProfile != nil {
		req.PasswordProfile = &passwordProfile{
			Password:                     p.PasswordProfile.Password,
			ForceChangePasswordNextLogin: p.PasswordProfile.ForceChangePasswordNextLogin,
		}
	}
	return req
}

// UpdateUser applies payload to the user addressed by identity (UPN or object
// id) and returns the updated record.
func (c *UserClient) UpdateUser(
	ctx context.Context,
	identity string,
	payload *domainuser.UpdatePayload,
) (*domainuser.User, error) {
	if identity == "" {
		return nil, ErrUserNotFound
	}
	if payload == nil {
		return nil, fmt.Errorf("update payload is required")
	}

	body, err := json.Marshal(newUpdateRequest(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to encode update request: %w", err)
	}
	defer clear(body)

	resp, err := c.do(ctx, http.MethodPatch, c.userURL(identity), body)
	if err != nil {
		return nil, fmt.Errorf("%w: update user request failed: %w", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
	default:
		return nil, c.remoteError(ctx, resp)
	}

	c.logger.DebugContext(ctx, "directory user patched",
		slog.String("identity", identity),
		slog.Any("fields", payload.Fields()),
	)

	return c.GetUser(ctx, identity)
}

// GetUser returns a single user by UPN or object id.
func (c *UserClient) GetUser(ctx context.Context, identity string) (*domainuser.User, error) {
	if identity == "" {
		return nil, ErrUserNotFound
	}

	resp, err := c.do(ctx, http.MethodGet, c.userURL(identity), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: get user request failed: %w", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.remoteError(ctx, resp)
	}

	var user domainuser.User
	if decodeErr := json.NewDecoder(resp.Body).Decode(&user); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", decodeErr)
	}
	user.Type = "User"

	return &user, nil
}

func (c *UserClient) userURL(identity string) string {
	return fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(identity))
}

func (c *UserClient) do(ctx context.Context, method, reqURL string, body []byte) (*http.Response, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// remoteError drains the response into a RemoteError. A 401 drops the cached
// token so the next call authenticates again.
func (c *UserClient) remoteError(ctx context.Context, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.InvalidateToken(ctx)
	}
	return parseRemoteError(resp.StatusCode, body)
}
