// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package jsonrpc holds the JSON-RPC 2.0 message shapes exchanged with the
// desktop client, plus helpers for writing newline-delimited responses.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const Version = "2.0"

// Standard and implementation-defined error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeInternalError  = -32603
	CodeTimeout        = -32001
)

// Null is the JSON literal used as id when the request id is unknown.
var Null = json.RawMessage("null")

// Request is an inbound JSON-RPC request or notification. The id is kept
// as raw JSON so numbers, strings and null round-trip unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id member.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is an outbound JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error object; data is omitted when nil or empty.
func NewError(code int, message string, data any) *Error {
	if s, ok := data.(string); ok && s == "" {
		data = nil
	}
	return &Error{Code: code, Message: message, Data: data}
}

// ErrorResponse wraps err into a response for id (null when id is empty).
func ErrorResponse(id json.RawMessage, err *Error) Response {
	return Response{JSONRPC: Version, ID: normalizeID(id), Error: err}
}

// ResultResponse wraps result into a response for id.
func ResultResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return Null
	}
	return id
}

// ErrNotObject is returned by Decode for valid JSON that is not an object.
var ErrNotObject = errors.New("request must be a JSON object")

// Decode parses one message. A *SyntaxError means the line was not JSON at
// all; ErrNotObject and missing-method errors
// mean the JSON was well-formed but not a request. In the latter case the
// returned request still carries whatever id could be recovered.
func Decode(line []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(line)
	if !json.Valid(trimmed) {
		var v any
		err := json.Unmarshal(trimmed, &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, &SyntaxError{Err: err}
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &Request{}, ErrNotObject
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return &Request{}, ErrNotObject
	}

	req := &Request{ID: raw["id"]}
	if v, ok := raw["jsonrpc"]; ok {
		if err := json.Unmarshal(v, &req.JSONRPC); err != nil {
			return req, errors.New("jsonrpc member must be a string")
		}
	}
	m, ok := raw["method"]
	if !ok {
		return req, errors.New("method is required")
	}
	if err := json.Unmarshal(m, &req.Method); err != nil || req.Method == "" {
		return req, errors.New("method must be a non-empty string")
	}
	req.Params = raw["params"]
	return req, nil
}

// SyntaxError marks input that could not be parsed as JSON.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string { return e.Err.Error() }

func (e *SyntaxError) Unwrap() error { return e.Err }

// Writer emits one JSON value per line.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRaw compacts raw JSON onto one line and writes it.
func (w *Writer) WriteRaw(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return fmt.Errorf("compact response: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
