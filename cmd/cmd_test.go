// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/auth"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/config"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/frappe"
)

// fakeSite mimics the two Frappe endpoints the bridge uses.
func fakeSite(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.Header.Get(auth.HeaderAuthorization) != "token key:secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"exc_type":"AuthenticationError"}`)
			return
		}
		switch r.URL.Path {
		case frappe.LoggedUserEndpoint:
			_, _ = io.WriteString(w, `{"message":"api@example.com"}`)
		case frappe.MCPEndpoint:
			var req struct {
				ID     json.RawMessage `json:"id"`
				Method string          `json:"method"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Method == "tools/list" {
				_, _ = io.WriteString(w, `{"message":{"jsonrpc":"2.0","id":`+string(req.ID)+`,"result":{"tools":[{"name":"get_document"},{"name":"run_workflow"}]}}}`)
				return
			}
			_, _ = io.WriteString(w, `{"message":{"jsonrpc":"2.0","id":`+string(req.ID)+`,"result":{"content":[{"type":"text","text":"ok"}]}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, server, key, secret string) {
	t.Helper()
	t.Setenv(config.EnvServerURL, server)
	t.Setenv(config.EnvAPIKey, key)
	t.Setenv(config.EnvAPISecret, secret)
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd("test")
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestServeRelaysStdio(t *testing.T) {
	var calls int32
	srv := fakeSite(t, &calls)
	setEnv(t, srv.URL, "key", "secret")

	stdin := strings.Join([]string{
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_document","arguments":{"doctype":"Customer","name":"ACME"}}}`,
		`garbage`,
	}, "\n") + "\n"

	out, err := execute(t, stdin, "serve")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"protocolVersion":"2025-03-26"`)
	assert.Contains(t, lines[0], `"version":"test"`)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"ok"}]}}`, lines[1])
	assert.Contains(t, lines[2], `"code":-32700`)
	// initialize is local; the notification and the tool call reach the site.
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestServeFailsFastWithoutCredentials(t *testing.T) {
	setEnv(t, "", "", "")

	out, err := execute(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`+"\n")

	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvServerURL+" is required")
	assert.Contains(t, err.Error(), config.EnvAPISecret+" is required")
	assert.Empty(t, out)
}

func TestCheckReportsTools(t *testing.T) {
	var calls int32
	srv := fakeSite(t, &calls)
	setEnv(t, srv.URL, "key", "secret")

	out, err := execute(t, "", "check")
	require.NoError(t, err)

	assert.Contains(t, out, "Connected as: api@example.com")
	assert.Contains(t, out, "2 tools available")
	assert.Contains(t, out, "Not exposed by this site: create_document")
}

func TestCheckFailsOnBadCredentials(t *testing.T) {
	var calls int32
	srv := fakeSite(t, &calls)
	setEnv(t, srv.URL, "key", "wrong")

	out, err := execute(t, "", "check")
	require.Error(t, err)
	assert.Contains(t, out, "Connection failed")
}

func TestSetupWritesDesktopConfig(t *testing.T) {
	var calls int32
	srv := fakeSite(t, &calls)
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	// URL and key come from flags; the secret and server name are answered on stdin.
	out, err := execute(t, "secret\n\n",
		"setup", "--url", srv.URL+"/", "--key", "key", "--config", path, "--command", "/opt/bridge")
	require.NoError(t, err)

	assert.Contains(t, out, "Connected as: api@example.com")
	assert.Contains(t, out, "MCP endpoint OK: 2 tools available")
	assert.Contains(t, out, "Configuration saved to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		MCPServers map[string]struct {
			Command string            `json:"command"`
			Env     map[string]string `json:"env"`
		} `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	entry, ok := doc.MCPServers[config.DefaultServerName]
	require.True(t, ok)
	assert.Equal(t, "/opt/bridge", entry.Command)
	assert.Equal(t, srv.URL, entry.Env[config.EnvServerURL])
	assert.Equal(t, "key", entry.Env[config.EnvAPIKey])
	assert.Equal(t, "secret", entry.Env[config.EnvAPISecret])
}

func TestSetupSavesConfigWhenMCPEndpointFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == frappe.LoggedUserEndpoint {
			_, _ = io.WriteString(w, `{"message":"api@example.com"}`)
			return
		}
		// Assistant plugin not installed.
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	out, err := execute(t, "",
		"setup", "--url", srv.URL, "--key", "key", "--secret", "secret", "--name", "erp",
		"--config", path, "--command", "bridge")
	require.NoError(t, err)

	assert.Contains(t, out, "Connected as: api@example.com")
	assert.Contains(t, out, "MCP endpoint failed")
	assert.Contains(t, out, "Configuration saved to "+path)
	assert.FileExists(t, path)
}

func TestSetupAbortsWhenLoginFailsAndUserDeclines(t *testing.T) {
	var calls int32
	srv := fakeSite(t, &calls)
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	_, err := execute(t, "n\n",
		"setup", "--url", srv.URL, "--key", "key", "--secret", "wrong", "--name", "erp", "--config", path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSetupSkipTestNeverContactsSite(t *testing.T) {
	var calls int32
	srv := fakeSite(t, &calls)
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	_, err := execute(t, "",
		"setup", "--url", srv.URL, "--key", "k", "--secret", "s", "--name", "erp",
		"--config", path, "--command", "bridge", "--skip-test")
	require.NoError(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}
