package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Caller token errors.
var (
	ErrInvalidToken   = errors.New("invalid access token")
	ErrTokenExpired   = errors.New("access token expired")
	ErrForeignTenant  = errors.New("access token issued by another tenant")
	ErrValidatorSetup = errors.New("token validator misconfigured")
)

// Defaults for TokenValidatorConfig.
const (
	DefaultLeeway          = 30 * time.Second
	DefaultRefreshInterval = time.Hour
)

// CallerClaims identify the operator behind an API request.
type CallerClaims struct {
	Subject   string
	ObjectID  string
	TenantID  string
	Principal string // preferred_username, then upn
	AppID     string // client application, set for app-only tokens
	Roles     []string
	Scopes    []string
	ExpiresAt time.Time
}

// HasRole reports whether the caller was granted the app role.
func (c *CallerClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Actor names the caller in logs and audit entries.
func (c *CallerClaims) Actor() string {
	for _, name := range []string{c.Principal, c.ObjectID, c.AppID, c.Subject} {
		if name != "" {
			return name
		}
	}
	return ""
}

// accessClaims is the wire shape of a directory access token.
type accessClaims struct {
	jwt.RegisteredClaims

	ObjectID          string   `json:"oid"`
	TenantID          string   `json:"tid"`
	PreferredUsername string   `json:"preferred_username"`
	UPN               string   `json:"upn"`
	AuthorizedParty   string   `json:"azp"`
	AppID             string   `json:"appid"`
	Roles             []string `json:"roles"`
	Scope             string   `json:"scp"`
}

func (a *accessClaims) caller() *CallerClaims {
	c := &CallerClaims{
		Subject:   a.Subject,
		ObjectID:  a.ObjectID,
		TenantID:  a.TenantID,
		Principal: a.PreferredUsername,
		AppID:     a.AuthorizedParty,
		Roles:     a.Roles,
		Scopes:    strings.Fields(a.Scope),
	}
	if c.Principal == "" {
		c.Principal = a.UPN
	}
	if c.AppID == "" {
		c.AppID = a.AppID
	}
	if a.ExpiresAt != nil {
		c.ExpiresAt = a.ExpiresAt.Time
	}
	return c
}

// TokenValidatorConfig configures TokenValidator.
type TokenValidatorConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string // optional

	// TenantID, when set, rejects tokens whose tid claim differs.
	TenantID string

	Leeway          time.Duration
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// TokenValidator checks bearer tokens presented to the HTTP API against the
// tenant's signing keys, which are refreshed in the background.
type TokenValidator struct {
	keys     keyfunc.Keyfunc
	parser   *jwt.Parser
	tenantID string
	logger   *slog.Logger
	stop     context.CancelFunc
}

// NewTokenValidator fetches the signing keys and starts their refresh.
func NewTokenValidator(config TokenValidatorConfig) (*TokenValidator, error) {
	switch {
	case config.JWKSURL == "":
		return nil, fmt.Errorf("%w: JWKS URL is required", ErrValidatorSetup)
	case config.Issuer == "":
		return nil, fmt.Errorf("%w: issuer is required", ErrValidatorSetup)
	}

	if config.Leeway <= 0 {
		config.Leeway = DefaultLeeway
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())

	storage, err := jwkset.NewStorageFromHTTP(config.JWKSURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		RefreshInterval: config.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("failed to refresh signing keys", slog.String("error", err.Error()))
		},
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("%w: %w", ErrValidatorSetup, err)
	}

	keys, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		stop()
		return nil, fmt.Errorf("%w: %w", ErrValidatorSetup, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(config.Leeway),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	logger.Info("token validation enabled",
		slog.String("issuer", config.Issuer),
		slog.String("tenant_id", config.TenantID),
		slog.Duration("key_refresh", config.RefreshInterval),
	)

	return &TokenValidator{
		keys:     keys,
		parser:   jwt.NewParser(opts...),
		tenantID: config.TenantID,
		logger:   logger,
		stop:     stop,
	}, nil
}

// Validate verifies raw and returns the caller it identifies.
func (v *TokenValidator) Validate(_ context.Context, raw string) (*CallerClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &accessClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keys.Keyfunc); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	if v.tenantID != "" && !strings.EqualFold(claims.TenantID, v.tenantID) {
		return nil, fmt.Errorf("%w: %q", ErrForeignTenant, claims.TenantID)
	}

	return claims.caller(), nil
}

// Close stops the key refresh.
func (v *TokenValidator) Close() error {
	v.stop()
	return nil
}
