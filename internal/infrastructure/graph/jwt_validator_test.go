package graph_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/aduser/internal/infrastructure/graph"
)

const (
	testKeyID    = "test-key-id"
	testIssuer   = "https://login.example.com/tenant-id/v2.0"
	testAudience = "api://aduser"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// setupJWKSServer serves the public half of key as a JWKS document.
func setupJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()

	pub := key.PublicKey
	doc := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

const testTenantID = "33333333-3333-3333-3333-333333333333"

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                testAudience,
		"sub":                "subject-1",
		"oid":                "22222222-2222-2222-2222-222222222222",
		"tid":                testTenantID,
		"preferred_username": "admin@contoso.com",
		"roles":              []any{"User.Update", "Reader"},
		"scp":                "user.write user.read",
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	}
}

func newTestValidator(t *testing.T, jwksURL, tenantID string) *graph.TokenValidator {
	t.Helper()

	validator, err := graph.NewTokenValidator(graph.TokenValidatorConfig{
		JWKSURL:  jwksURL,
		Issuer:   testIssuer,
		Audience: testAudience,
		TenantID: tenantID,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = validator.Close() })
	return validator
}

func TestNewTokenValidator(t *testing.T) {
	t.Run("missing jwks url", func(t *testing.T) {
		validator, err := graph.NewTokenValidator(graph.TokenValidatorConfig{Issuer: testIssuer})
		require.ErrorIs(t, err, graph.ErrValidatorSetup)
		assert.Nil(t, validator)
	})

	t.Run("missing issuer", func(t *testing.T) {
		validator, err := graph.NewTokenValidator(graph.TokenValidatorConfig{JWKSURL: "http://localhost/keys"})
		require.ErrorIs(t, err, graph.ErrValidatorSetup)
		assert.Nil(t, validator)
	})
}

func TestTokenValidator_Validate(t *testing.T) {
	key := generateTestKey(t)
	server := setupJWKSServer(t, key)
	validator := newTestValidator(t, server.URL, testTenantID)

	t.Run("operator token", func(t *testing.T) {
		claims, err := validator.Validate(context.Background(), signToken(t, key, validClaims()))

		require.NoError(t, err)
		assert.Equal(t, "subject-1", claims.Subject)
		assert.Equal(t, "22222222-2222-2222-2222-222222222222", claims.ObjectID)
		assert.Equal(t, testTenantID, claims.TenantID)
		assert.Equal(t, "admin@contoso.com", claims.Principal)
		assert.Equal(t, "admin@contoso.com", claims.Actor())
		assert.Equal(t, []string{"User.Update", "Reader"}, claims.Roles)
		assert.Equal(t, []string{"user.write", "user.read"}, claims.Scopes)
		assert.True(t, claims.HasRole("User.Update"))
		assert.False(t, claims.HasRole("Directory.ReadWrite.All"))
		assert.False(t, claims.ExpiresAt.IsZero())
	})

	t.Run("upn fallback for principal", func(t *testing.T) {
		c := validClaims()
		delete(c, "preferred_username")
		c["upn"] = "upn@contoso.com"

		claims, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.NoError(t, err)
		assert.Equal(t, "upn@contoso.com", claims.Principal)
	})

	t.Run("app only token is named by its object id", func(t *testing.T) {
		c := validClaims()
		delete(c, "preferred_username")
		c["azp"] = "client-app"

		claims, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.NoError(t, err)
		assert.Equal(t, "client-app", claims.AppID)
		assert.Equal(t, "22222222-2222-2222-2222-222222222222", claims.Actor())
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := validator.Validate(context.Background(), "")
		require.ErrorIs(t, err, graph.ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		c := validClaims()
		c["iat"] = time.Now().Add(-2 * time.Hour).Unix()
		c["exp"] = time.Now().Add(-time.Hour).Unix()

		_, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.ErrorIs(t, err, graph.ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := validClaims()
		c["iss"] = "https://evil.example.com"

		_, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.ErrorIs(t, err, graph.ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := validClaims()
		c["aud"] = "api://other"

		_, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.ErrorIs(t, err, graph.ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := validClaims()
		delete(c, "sub")

		_, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.ErrorIs(t, err, graph.ErrInvalidToken)
	})

	t.Run("other tenant", func(t *testing.T) {
		c := validClaims()
		c["tid"] = "44444444-4444-4444-4444-444444444444"

		_, err := validator.Validate(context.Background(), signToken(t, key, c))

		require.ErrorIs(t, err, graph.ErrForeignTenant)
	})

	t.Run("signed by unknown key", func(t *testing.T) {
		other := generateTestKey(t)

		_, err := validator.Validate(context.Background(), signToken(t, other, validClaims()))

		require.ErrorIs(t, err, graph.ErrInvalidToken)
	})
}

func TestTokenValidator_AnyTenant(t *testing.T) {
	key := generateTestKey(t)
	validator := newTestValidator(t, setupJWKSServer(t, key).URL, "")

	c := validClaims()
	c["tid"] = "44444444-4444-4444-4444-444444444444"

	_, err := validator.Validate(context.Background(), signToken(t, key, c))

	require.NoError(t, err)
}
