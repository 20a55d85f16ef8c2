package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	userapp "github.com/lllypuk/aduser/internal/application/user"
)

func TestAudit_RequiresMongoStore(t *testing.T) {
	dir := newFakeDirectory(t)
	cfg := writeConfig(t, dir, "")

	res := run(t, "", "--config", cfg, "audit", "--identity", "jane@contoso.com")

	require.ErrorIs(t, res.err, errAuditDisabled)
	assert.Empty(t, res.stdout)
}

func TestAudit_FlagValidation(t *testing.T) {
	dir := newFakeDirectory(t)
	cfg := writeConfig(t, dir, "")

	t.Run("identity required", func(t *testing.T) {
		res := run(t, "", "--config", cfg, "audit")
		require.Error(t, res.err)
	})

	t.Run("unknown output", func(t *testing.T) {
		res := run(t, "", "--config", cfg, "audit", "--identity", "jane@contoso.com", "-o", "xml")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "unsupported output format")
	})
}

func TestNewAuditView(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	view := newAuditView(userapp.AuditEntry{
		Identity:        "jane@contoso.com",
		Fields:          []string{"accountEnabled", "displayName", "password"},
		PasswordChanged: true,
		Outcome:         userapp.OutcomeSubmitted,
		Actor:           "admin",
		Source:          sourceCLI,
		RecordedAt:      at,
	})

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"recorded_at": "2025-03-01T12:00:00Z",
		"identity": "jane@contoso.com",
		"outcome": "submitted",
		"fields": ["accountEnabled", "displayName", "password"],
		"password_changed": true,
		"actor": "admin",
		"source": "cli"
	}`, string(raw))
}
