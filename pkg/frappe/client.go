// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package frappe

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/auth"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/config"
)

const (
	// MCPEndpoint is the whitelisted method exposed by Frappe Assistant Core.
	MCPEndpoint = "/api/method/frappe_assistant_core.api.fac_endpoint.handle_mcp"
	// LoggedUserEndpoint returns the user owning the API key.
	LoggedUserEndpoint = "/api/method/frappe.auth.get_logged_user"

	maxErrorBody    = 500
	maxResponseBody = 32 << 20
)

// Client posts JSON-RPC payloads to an ERPNext site and returns the unwrapped
// inner responses.
type Client struct {
	// baseURL is the site root, e.g. https://erp.example.com.
	baseURL *url.URL
	// envelopeField is the member Frappe wraps method results in.
	envelopeField string
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	// token injects the API key/secret pair.
	token *auth.Token
	// logger emits structured logs on stderr.
	logger zerolog.Logger
}

// New constructs a Client backed by an http.Client whose overall timeout is
// the configured request timeout.
func New(cfg config.Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for self-signed dev sites
		},
	}

	envelope := cfg.EnvelopeField
	if envelope == "" {
		envelope = config.DefaultEnvelopeField
	}

	return &Client{
		baseURL:       cloneURL(cfg.ServerURL),
		envelopeField: envelope,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		token:  auth.NewToken(cfg.APIKey, cfg.APISecret),
		logger: log.With().Str("component", "frappe").Logger(),
	}
}

// Server returns the site URL requests are sent to.
func (c *Client) Server() string {
	return c.baseURL.String()
}

// Close releases idle keep-alive connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Call posts payload to the MCP endpoint and returns the inner JSON-RPC
// response recovered from the Frappe envelope.
func (c *Client) Call(ctx context.Context, payload []byte) ([]byte, error) {
	body, err := c.do(ctx, http.MethodPost, MCPEndpoint, payload)
	if err != nil {
		return nil, err
	}
	return Unwrap(body, c.envelopeField)
}

// do performs a single authenticated round trip and returns the body of a
// 2xx response.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	start := time.Now()
	target := c.endpoint(path)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.token.Attach(req); err != nil {
		return nil, fmt.Errorf("authenticate request: %w", err)
	}

	event := c.logger.With().Str("method", method).Str("path", path).Logger()

	resp, err := c.client.Do(req)
	if err != nil {
		event.Error().Err(err).Dur("duration", time.Since(start)).Msg("upstream request failed")
		return nil, c.classify(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			event.Error().Err(closeErr).Msg("close upstream response body failed")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.classify(fmt.Errorf("read upstream response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		event.Warn().
			Int("status", resp.StatusCode).
			Bytes("upstream_body", snippet).
			Msg("upstream returned error")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	event.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("upstream responded")

	return body, nil
}

// classify maps transport failures onto the typed errors callers inspect.
func (c *Client) classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Timeout: c.client.Timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Timeout: c.client.Timeout, Err: err}
	}
	return &ConnectError{Server: c.Server(), Err: err}
}

// endpoint resolves an absolute API path against the site URL, keeping any
// sub-path the site is mounted under.
func (c *Client) endpoint(path string) string {
	target := cloneURL(c.baseURL)
	target.Path = c.baseURL.Path + path
	return target.String()
}

// cloneURL makes a shallow copy of the provided URL pointer.
func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	clone := *u
	return &clone
}
