// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package frappe

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Unwrap extracts the inner JSON-RPC response from a Frappe reply body.
//
// Lookup order:
//   - a body that already is a JSON-RPC response (has "jsonrpc") is returned as-is;
//   - the configured envelope field, normally "message";
//   - "result", for gateways that wrap with {"result": ...}.
//
// The inner value is returned byte-for-byte, member order included.
func Unwrap(body []byte, field string) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, &EnvelopeError{Reason: "response body is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &EnvelopeError{Reason: "response body is not a JSON object"}
	}

	if _, ok := member(root, "jsonrpc"); ok {
		return body, nil
	}

	for _, key := range []string{field, "result"} {
		if v, ok := member(root, key); ok {
			return []byte(v.Raw), nil
		}
	}

	reason := fmt.Sprintf("missing %q envelope field", field)
	if exc, ok := member(root, "exc_type"); ok {
		reason += " (exception " + exc.String() + ")"
	}
	return nil, &EnvelopeError{Reason: reason}
}

// member looks up a top-level key without interpreting gjson path syntax, so
// envelope names containing dots or wildcards match literally.
func member(obj gjson.Result, key string) (gjson.Result, bool) {
	var (
		found gjson.Result
		ok    bool
	)
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}
