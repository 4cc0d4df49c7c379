// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	EnvServerURL       = "FRAPPE_SERVER_URL"
	EnvAPIKey          = "FRAPPE_API_KEY"
	EnvAPISecret       = "FRAPPE_API_SECRET"
	envDebug           = "MCP_DEBUG"
	envRequestTimeout  = "MCP_TIMEOUT"
	envLogLevel        = "MCP_LOG_LEVEL"
	envInsecure        = "MCP_UPSTREAM_INSECURE"
	envEnvelopeField   = "MCP_ENVELOPE_FIELD"
	envServerName      = "MCP_SERVER_NAME"
	envMaxMessageBytes = "MCP_MAX_MESSAGE_BYTES"

	DefaultRequestTimeout  = 5 * time.Second
	DefaultEnvelopeField   = "message"
	DefaultServerName      = "erpnext-fac"
	DefaultMaxMessageBytes = 4 << 20
	defaultLogLevel        = "info"
)

// Config captures runtime settings for the bridge. Values are read once at
// startup and never mutated afterwards.
type Config struct {
	ServerURL          *url.URL
	APIKey             string
	APISecret          string
	Debug              bool
	RequestTimeout     time.Duration
	LogLevel           string
	InsecureSkipVerify bool
	EnvelopeField      string
	ServerName         string
	MaxMessageBytes    int
}

// Load reads configuration from environment variables. Every missing or
// malformed required value is reported in the returned error.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup.
func LoadFrom(getenv func(string) string) (Config, error) {
	var result *multierror.Error

	serverURL, err := ParseServerURL(getenv(EnvServerURL))
	if err != nil {
		result = multierror.Append(result, err)
	}

	apiKey := strings.TrimSpace(getenv(EnvAPIKey))
	if apiKey == "" {
		result = multierror.Append(result, fmt.Errorf("%s is required", EnvAPIKey))
	}

	apiSecret := strings.TrimSpace(getenv(EnvAPISecret))
	if apiSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s is required", EnvAPISecret))
	}

	if err := result.ErrorOrNil(); err != nil {
		return Config{}, err
	}

	debug := getBool(getenv, envDebug, false)
	level := strings.ToLower(getString(getenv, envLogLevel, defaultLogLevel))
	if debug {
		level = "debug"
	}

	cfg := Config{
		ServerURL:          serverURL,
		APIKey:             apiKey,
		APISecret:          apiSecret,
		Debug:              debug,
		RequestTimeout:     getTimeout(getenv, envRequestTimeout, DefaultRequestTimeout),
		LogLevel:           level,
		InsecureSkipVerify: getBool(getenv, envInsecure, false),
		EnvelopeField:      getString(getenv, envEnvelopeField, DefaultEnvelopeField),
		ServerName:         getString(getenv, envServerName, DefaultServerName),
		MaxMessageBytes:    getInt(getenv, envMaxMessageBytes, DefaultMaxMessageBytes),
	}

	return cfg, nil
}

// ParseServerURL validates a site URL such as https://erp.example.com and
// strips any trailing slash from its path.
func ParseServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s is required", EnvServerURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvServerURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%s must be absolute (scheme://host)", EnvServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New(EnvServerURL + " must use http or https")
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func getString(getenv func(string) string, key, fallback string) string {
	if val := strings.TrimSpace(getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(getenv func(string) string, key string, fallback bool) bool {
	val := strings.TrimSpace(getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(getenv func(string) string, key string, fallback int) int {
	val := strings.TrimSpace(getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// maxTimeoutSeconds is the largest whole-second value a time.Duration holds.
const maxTimeoutSeconds = float64(math.MaxInt64 / int64(time.Second))

// getTimeout accepts either a Go duration ("750ms") or a bare number of
// seconds ("10").
func getTimeout(getenv func(string) string, key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(getenv(key))
	if val == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		if !(secs > 0 && secs <= maxTimeoutSeconds) {
			return fallback
		}
		return time.Duration(secs * float64(time.Second))
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
