// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package relay implements the stdio side of the bridge: it reads
// newline-delimited JSON-RPC requests, answers the handshake locally,
// forwards everything else to the ERPNext site one request at a time and
// writes each response back as a single line.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/frappe"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/jsonrpc"
)

// ProtocolVersion is the MCP revision reported to clients on initialize.
const ProtocolVersion = "2025-03-26"

const defaultMaxMessageBytes = 4 << 20

// Upstream forwards one JSON-RPC payload and returns the inner response.
type Upstream interface {
	Call(ctx context.Context, payload []byte) ([]byte, error)
}

// Options tune the locally answered handshake and the input limits.
type Options struct {
	// ServerName and ServerVersion are reported in serverInfo.
	ServerName    string
	ServerVersion string
	// Server is the site URL quoted in connection failure messages.
	Server string
	// MaxMessageBytes bounds a single input line.
	MaxMessageBytes int
}

// Relay is a synchronous stdin-to-upstream forwarder.
type Relay struct {
	upstream Upstream
	opts     Options
	logger   zerolog.Logger
}

// New returns a Relay that forwards to upstream.
func New(upstream Upstream, opts Options) *Relay {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Relay{
		upstream: upstream,
		opts:     opts,
		logger:   log.With().Str("component", "relay").Logger(),
	}
}

// Run processes requests from input until EOF or until ctx is cancelled.
// Exactly one request is in flight at any time.
func (r *Relay) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	reader := bufio.NewReaderSize(input, min(64*1024, r.opts.MaxMessageBytes))
	writer := jsonrpc.NewWriter(output)

	r.logger.Debug().Str("server", r.opts.Server).Msg("bridge started")

	for {
		raw, oversized, readErr := readLine(reader, r.opts.MaxMessageBytes)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read input: %w", readErr)
		}

		var resp []byte
		if oversized {
			r.logger.Error().Int("limit", r.opts.MaxMessageBytes).Msg("message too large; skipped")
			resp = r.encode(jsonrpc.ErrorResponse(nil, jsonrpc.NewError(jsonrpc.CodeParseError, "Parse error",
				fmt.Sprintf("message exceeds %d bytes", r.opts.MaxMessageBytes))))
		} else if line := bytes.TrimSpace(raw); len(line) > 0 {
			resp = r.Handle(ctx, line)
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if resp != nil {
			if err := writer.WriteRaw(resp); err != nil {
				return err
			}
		}

		if readErr != nil {
			r.logger.Debug().Msg("input closed; stopping")
			return nil
		}
	}
}

// readLine returns the next newline-terminated line. A line longer than limit
// is consumed up to its newline and reported as oversized with no content.
func readLine(reader *bufio.Reader, limit int) ([]byte, bool, error) {
	var (
		line      []byte
		oversized bool
	)
	for {
		chunk, err := reader.ReadSlice('\n')
		if !oversized {
			if len(line)+len(bytes.TrimSuffix(chunk, []byte("\n"))) > limit {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

// Handle processes a single input line and returns the response to write,
// or nil when the line was a notification or ctx was cancelled mid-call.
func (r *Relay) Handle(ctx context.Context, line []byte) []byte {
	req, err := jsonrpc.Decode(line)
	if err != nil {
		var syntaxErr *jsonrpc.SyntaxError
		if errors.As(err, &syntaxErr) {
			r.logger.Error().Err(err).Msg("invalid JSON")
			return r.encode(jsonrpc.ErrorResponse(nil,
				jsonrpc.NewError(jsonrpc.CodeParseError, "Parse error", err.Error())))
		}
		r.logger.Error().Err(err).Msg("invalid request")
		return r.encode(jsonrpc.ErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "Invalid Request", err.Error())))
	}

	event := r.logger.With().Str("rpc_method", req.Method).RawJSON("rpc_id", idOrNull(req.ID)).Logger()

	if result, ok := r.local(req); ok {
		event.Debug().Msg("answered locally")
		if req.IsNotification() {
			return nil
		}
		return r.encode(jsonrpc.ResultResponse(req.ID, result))
	}

	start := time.Now()
	event.Debug().Msg(">> forwarding")

	inner, err := r.upstream.Call(ctx, line)
	if req.IsNotification() {
		if err != nil {
			event.Warn().Err(err).Msg("notification delivery failed")
		} else {
			event.Debug().Msg("notification delivered")
		}
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return r.encode(jsonrpc.ErrorResponse(req.ID, r.upstreamError(err)))
	}

	out, err := normalize(inner, req.ID)
	if err != nil {
		event.Error().Err(err).Msg("normalize upstream response")
		return r.encode(jsonrpc.ErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error", err.Error())))
	}

	event.Debug().Dur("duration", time.Since(start)).Msg("<< response relayed")
	return out
}

// local answers the methods the site does not need to see.
func (r *Relay) local(req *jsonrpc.Request) (any, bool) {
	switch req.Method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: map[string]any{
				"tools":   map[string]any{},
				"prompts": map[string]any{},
			},
			ServerInfo: serverInfo{Name: r.opts.ServerName, Version: r.opts.ServerVersion},
		}, true
	case "resources/list":
		return map[string]any{"resources": []any{}}, true
	case "ping":
		return map[string]any{}, true
	}
	return nil, false
}

// upstreamError maps a failed round trip onto a JSON-RPC error.
func (r *Relay) upstreamError(err error) *jsonrpc.Error {
	var (
		timeoutErr  *frappe.TimeoutError
		connectErr  *frappe.ConnectError
		statusErr   *frappe.StatusError
		envelopeErr *frappe.EnvelopeError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return jsonrpc.NewError(jsonrpc.CodeTimeout, "Request timed out", nil)
	case errors.As(err, &connectErr):
		server := connectErr.Server
		if server == "" {
			server = r.opts.Server
		}
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "Connection failed", "Cannot reach "+server)
	case errors.As(err, &statusErr):
		return jsonrpc.NewError(jsonrpc.CodeInternalError,
			fmt.Sprintf("Server error: %d", statusErr.StatusCode), statusErr.Body)
	case errors.As(err, &envelopeErr):
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "Invalid upstream response", envelopeErr.Reason)
	default:
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error", err.Error())
	}
}

func (r *Relay) encode(resp jsonrpc.Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Only reachable through an unencodable local result.
		r.logger.Error().Err(err).Msg("encode response")
		b, _ = json.Marshal(jsonrpc.ErrorResponse(resp.ID,
			jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error", nil)))
	}
	return b
}

// normalize turns the site's inner payload into a response for id. A
// well-formed response carrying the right id is returned unchanged.
func normalize(inner []byte, id json.RawMessage) ([]byte, error) {
	payload := gjson.ParseBytes(inner)
	if !payload.IsObject() || (!payload.Get("result").Exists() && !payload.Get("error").Exists()) {
		return json.Marshal(jsonrpc.ResultResponse(id, json.RawMessage(inner)))
	}

	out := inner
	var err error
	if !payload.Get("jsonrpc").Exists() {
		if out, err = sjson.SetBytes(out, "jsonrpc", jsonrpc.Version); err != nil {
			return nil, fmt.Errorf("set jsonrpc: %w", err)
		}
	}
	if got := payload.Get("id"); !got.Exists() || !sameID(got.Raw, id) {
		if got.Exists() {
			log.Warn().Str("component", "relay").
				RawJSON("want_id", id).Str("got_id", got.Raw).
				Msg("upstream answered with a different id; restoring request id")
		}
		if out, err = sjson.SetRawBytes(out, "id", id); err != nil {
			return nil, fmt.Errorf("set id: %w", err)
		}
	}
	return out, nil
}

func sameID(raw string, id json.RawMessage) bool {
	var a, b bytes.Buffer
	if json.Compact(&a, []byte(raw)) != nil || json.Compact(&b, id) != nil {
		return false
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

func idOrNull(id json.RawMessage) []byte {
	if len(id) == 0 {
		return jsonrpc.Null
	}
	return id
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
