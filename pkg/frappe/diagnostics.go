// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package frappe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/config"
)

// Tools served by Frappe Assistant Core. The relay never interprets them; the
// list only lets diagnostics report what a site is missing.
var KnownTools = []string{
	"create_document",
	"get_document",
	"update_document",
	"delete_document",
	"list_documents",
	"submit_document",
	"search_documents",
	"search_doctype",
	"search_link",
	"search",
	"fetch",
	"get_doctype_info",
	"generate_report",
	"report_list",
	"report_requirements",
	"run_workflow",
}

var toolsListRequest = []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1,"params":{}}`)

// LoggedUser returns the user the API key authenticates as.
func (c *Client) LoggedUser(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, LoggedUserEndpoint, nil)
	if err != nil {
		return "", err
	}
	// Frappe's own methods always answer under "message".
	inner, err := Unwrap(body, config.DefaultEnvelopeField)
	if err != nil {
		return "", err
	}
	user := gjson.ParseBytes(inner)
	if user.Type != gjson.String || user.String() == "" {
		return "", &EnvelopeError{Reason: "logged user is not a string"}
	}
	return user.String(), nil
}

// ListTools asks the MCP endpoint for its tool catalogue and returns the names.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	inner, err := c.Call(ctx, toolsListRequest)
	if err != nil {
		return nil, err
	}

	resp := gjson.ParseBytes(inner)
	if rpcErr := resp.Get("error"); rpcErr.Exists() {
		return nil, fmt.Errorf("tools/list failed: %d %s",
			rpcErr.Get("code").Int(), rpcErr.Get("message").String())
	}

	tools := resp.Get("result.tools")
	if !tools.IsArray() {
		return nil, errors.New("tools/list result has no tools array")
	}

	var names []string
	for _, t := range tools.Array() {
		if name := t.Get("name").String(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// MissingTools returns the entries of KnownTools absent from names.
func MissingTools(names []string) []string {
	have := make(map[string]struct{}, len(names))
	for _, n := range names {
		have[n] = struct{}{}
	}
	var missing []string
	for _, n := range KnownTools {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}
