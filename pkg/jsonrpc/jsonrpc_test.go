// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	req, err := Decode([]byte(`{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"get_document"}}`))
	require.NoError(t, err)

	assert.Equal(t, Version, req.JSONRPC)
	assert.Equal(t, `"abc"`, string(req.ID))
	assert.Equal(t, "tools/call", req.Method)
	assert.JSONEq(t, `{"name":"get_document"}`, string(req.Params))
	assert.False(t, req.IsNotification())
}

func TestDecodeNotification(t *testing.T) {
	req, err := Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.True(t, req.IsNotification())
}

func TestDecodeSyntaxError(t *testing.T) {
	req, err := Decode([]byte(`{"jsonrpc":`))
	assert.Nil(t, req)

	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.NotEmpty(t, syntaxErr.Error())
}

func TestDecodeInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantID string
	}{
		{name: "array", line: `[1,2]`},
		{name: "scalar", line: `42`},
		{name: "missing method", line: `{"jsonrpc":"2.0","id":7}`, wantID: "7"},
		{name: "numeric method", line: `{"jsonrpc":"2.0","id":"x","method":3}`, wantID: `"x"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := Decode([]byte(tc.line))
			require.Error(t, err)

			var syntaxErr *SyntaxError
			assert.False(t, errors.As(err, &syntaxErr))
			require.NotNil(t, req)
			assert.Equal(t, tc.wantID, string(req.ID))
		})
	}
}

func TestErrorResponseDefaultsToNullID(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	b, err := json.Marshal(ErrorResponse(nil, NewError(CodeParseError, "Parse error", "")))
	require.NoError(t, err)
	require.NoError(t, w.WriteRaw(b))

	assert.Equal(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`+"\n", buf.String())
}

func TestWriteRawCompactsToOneLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteRaw([]byte("{\n  \"jsonrpc\": \"2.0\",\n  \"id\": 1,\n  \"result\": \"ok\"\n}")))

	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":"ok"}`+"\n", buf.String())
}

func TestResultResponseKeepsRawResult(t *testing.T) {
	b, err := json.Marshal(ResultResponse(json.RawMessage(`3`), json.RawMessage(`null`)))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":3,"result":null}`, string(b))
}
