package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCache shares access tokens between processes.
type TokenCache interface {
	GetAccessToken(ctx context.Context, key string) (string, time.Duration, error)
	StoreAccessToken(ctx context.Context, key, token string, ttl time.Duration) error
	DeleteAccessToken(ctx context.Context, key string) error
}

// TokenConfig contains configuration for TokenManager.
type TokenConfig struct {
	// TokenURL is the OAuth2 token endpoint of the directory tenant.
	TokenURL string

	// ClientID and ClientSecret identify the application (client_credentials grant).
	ClientID     string
	ClientSecret string

	// Scope requested for the token (e.g., https://graph.microsoft.com/.default).
	Scope string

	// TokenBuffer is the time before token expiry to trigger refresh (default 30s).
	TokenBuffer time.Duration

	// Cache is an optional shared token cache.
	Cache TokenCache

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// TokenManager obtains and caches directory access tokens.
type TokenManager struct {
	config     TokenConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

const (
	defaultTokenBuffer      = 30 * time.Second
	defaultTokenHTTPTimeout = 30 * time.Second
	defaultTokenLifetime    = 5 * time.Minute
)

// NewTokenManager creates a new TokenManager.
func NewTokenManager(config TokenConfig) *TokenManager {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultTokenHTTPTimeout,
		}
	}

	if config.TokenBuffer == 0 {
		config.TokenBuffer = defaultTokenBuffer
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetToken returns a valid access token, refreshing if needed.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.validLocked() {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	return m.refreshToken(ctx)
}

func (m *TokenManager) validLocked() bool {
	return m.token != "" && time.Now().Add(m.config.TokenBuffer).Before(m.expiresAt)
}

func (m *TokenManager) refreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// another goroutine may have refreshed
	if m.validLocked() {
		return m.token, nil
	}

	if token, ttl, ok := m.fromCache(ctx); ok {
		m.token = token
		m.expiresAt = time.Now().Add(ttl)
		return m.token, nil
	}

	token, lifetime, err := m.requestToken(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	m.expiresAt = time.Now().Add(lifetime)

	if m.config.Cache != nil {
		ttl := lifetime - m.config.TokenBuffer
		if ttl > 0 {
			if cacheErr := m.config.Cache.StoreAccessToken(ctx, m.cacheKey(), token, ttl); cacheErr != nil {
				m.logger.WarnContext(ctx, "failed to cache access token",
					slog.String("error", cacheErr.Error()),
				)
			}
		}
	}

	return m.token, nil
}

func (m *TokenManager) fromCache(ctx context.Context) (string, time.Duration, bool) {
	if m.config.Cache == nil {
		return "", 0, false
	}

	token, ttl, err := m.config.Cache.GetAccessToken(ctx, m.cacheKey())
	if err != nil {
		m.logger.DebugContext(ctx, "access token cache miss", slog.String("error", err.Error()))
		return "", 0, false
	}
	if token == "" || ttl <= 0 {
		return "", 0, false
	}

	// the cache TTL already excludes the buffer
	return token, ttl + m.config.TokenBuffer, true
}

func (m *TokenManager) requestToken(ctx context.Context) (string, time.Duration, error) {
	data := m.buildTokenRequestData()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrTokenRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("%w: status %d: %s", ErrTokenRequest, resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", decodeErr)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty access token", ErrTokenRequest)
	}

	lifetime := time.Duration(tokenResp.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = tokenLifetime(tokenResp.AccessToken)
	}

	return tokenResp.AccessToken, lifetime, nil
}

func (m *TokenManager) buildTokenRequestData() url.Values {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", m.config.ClientID)
	data.Set("client_secret", m.config.ClientSecret)
	if m.config.Scope != "" {
		data.Set("scope", m.config.Scope)
	}
	return data
}

// cacheKey scopes a shared token to the tenant endpoint, the application and
// the requested scope, since one multi-tenant app id serves several tenants.
func (m *TokenManager) cacheKey() string {
	sum := sha256.Sum256([]byte(m.config.TokenURL + "\n" + m.config.ClientID + "\n" + m.config.Scope))
	return m.config.ClientID + ":" + hex.EncodeToString(sum[:8])
}

// InvalidateToken clears the cached token, forcing a refresh on next GetToken call.
func (m *TokenManager) InvalidateToken(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()

	if m.config.Cache == nil {
		return
	}
	if err := m.config.Cache.DeleteAccessToken(ctx, m.cacheKey()); err != nil {
		m.logger.WarnContext(ctx, "failed to drop cached access token",
			slog.String("error", err.Error()),
		)
	}
}

// tokenLifetime reads the exp claim without verifying the signature. The
// token came straight from the token endpoint over TLS.
func tokenLifetime(token string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return defaultTokenLifetime
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTokenLifetime
	}

	lifetime := time.Until(exp.Time)
	if lifetime <= 0 {
		return defaultTokenLifetime
	}
	return lifetime
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
