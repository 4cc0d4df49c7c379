// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package desktop edits the Claude Desktop configuration file so the
// assistant launches the bridge as an MCP server.
package desktop

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/jsonc"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/config"
)

const (
	configFileName = "claude_desktop_config.json"
	// BinaryName is the executable name looked up on PATH.
	BinaryName = "erpnext-mcp-bridge"
)

// ServerEntry is one mcpServers member.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// NewServerEntry builds the entry that launches command with the site credentials.
func NewServerEntry(command, serverURL, key, secret string) ServerEntry {
	return ServerEntry{
		Command: command,
		Args:    []string{},
		Env: map[string]string{
			config.EnvServerURL: serverURL,
			config.EnvAPIKey:    key,
			config.EnvAPISecret: secret,
		},
	}
}

// ConfigPath returns the per-OS location of the desktop config file.
func ConfigPath() (string, error) {
	return configPathFor(runtime.GOOS, os.UserHomeDir, os.Getenv)
}

func configPathFor(goos string, home func() (string, error), getenv func(string) string) (string, error) {
	switch goos {
	case "darwin":
		dir, err := home()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(dir, "Library", "Application Support", "Claude", configFileName), nil
	case "linux":
		dir, err := home()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(dir, ".config", "Claude", configFileName), nil
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, "Claude", configFileName), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// FindCommand locates the bridge executable: PATH first, then the usual
// per-user install directories, then the running binary itself.
func FindCommand() string {
	if p, err := exec.LookPath(BinaryName); err == nil {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, dir := range []string{
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "go", "bin"),
		} {
			candidate := filepath.Join(dir, BinaryName)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	if self, err := os.Executable(); err == nil {
		return self
	}
	return BinaryName
}

// Result describes what Install did.
type Result struct {
	Path       string
	BackupPath string
	// Reset is set when an unreadable existing file was replaced.
	Reset bool
}

// Install upserts mcpServers[name] in the config file at path, keeping every
// other member. An existing file is copied to <path>.bak first.
func Install(path, name string, entry ServerEntry) (Result, error) {
	res := Result{Path: path}

	doc := map[string]any{}
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return res, fmt.Errorf("read %s: %w", path, err)
	default:
		parsed, parseErr := parse(existing)
		if parseErr != nil {
			log.Warn().Err(parseErr).Str("path", path).Msg("existing config is invalid JSON, creating new")
			res.Reset = true
		} else {
			doc = parsed
		}
	}

	servers, _ := doc["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers[name] = entry
	doc["mcpServers"] = servers

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return res, fmt.Errorf("encode config: %w", err)
	}

	if existing != nil {
		res.BackupPath = backupPath(path)
		if err := os.WriteFile(res.BackupPath, existing, 0o600); err != nil {
			return res, fmt.Errorf("write backup: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return res, fmt.Errorf("create config directory: %w", err)
	}
	// The file holds the API secret.
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}
	return res, nil
}

// parse accepts the relaxed JSON some users hand-edit the file into:
// comments and trailing commas are stripped before decoding.
func parse(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("config is not a JSON object")
	}
	return doc, nil
}

func backupPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + ".json.bak"
}
