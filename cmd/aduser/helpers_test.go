package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testObjectID = "11111111-1111-1111-1111-111111111111"
	ghostUPN     = "ghost@contoso.com"
)

// fakeDirectory issues tokens and records PATCH bodies by identity.
type fakeDirectory struct {
	mu      sync.Mutex
	patches map[string]map[string]any
	server  *httptest.Server
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()

	d := &fakeDirectory{patches: map[string]map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("PATCH /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == ghostUPN {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"Request_ResourceNotFound","message":"Resource does not exist."}}`))
			return
		}

		body := map[string]any{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		d.mu.Lock()
		d.patches[id] = body
		d.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		record := map[string]any{"id": testObjectID, "displayName": "Jane Doe"}
		if id := r.PathValue("id"); strings.Contains(id, "@") {
			record["userPrincipalName"] = id
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(record)
	})

	d.server = httptest.NewServer(mux)
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDirectory) patch(identity string) (map[string]any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body, ok := d.patches[identity]
	return body, ok
}

func (d *fakeDirectory) patchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.patches)
}

// writeConfig writes a config file pointing at the fake directory. extra is
// appended verbatim.
func writeConfig(t *testing.T, d *fakeDirectory, extra string) string {
	t.Helper()

	content := fmt.Sprintf(`directory:
  url: %[1]s
  token_url: %[1]s/token
  client_id: app-id
  client_secret: app-secret
log:
  level: error
batch:
  concurrency: 2
%[2]s`, d.server.URL, extra)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type runResult struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCommand(strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())

	return runResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
