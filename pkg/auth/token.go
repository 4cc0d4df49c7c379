// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"errors"
	"net/http"
)

const (
	HeaderAuthorization = "Authorization"
	tokenScheme         = "token"
)

// ErrMissingCredentials is returned when either half of the key pair is empty.
var ErrMissingCredentials = errors.New("api key and secret must be set")

// Token injects Frappe API key authentication into outbound requests.
type Token struct {
	Key    string
	Secret string
}

// NewToken constructs a Token for the provided key/secret pair.
func NewToken(key, secret string) *Token {
	return &Token{
		Key:    key,
		Secret: secret,
	}
}

// Value renders the Authorization header value, "token <key>:<secret>".
func (t *Token) Value() string {
	return tokenScheme + " " + t.Key + ":" + t.Secret
}

// Attach mutates the request by setting the Authorization header.
func (t *Token) Attach(req *http.Request) error {
	if t.Key == "" || t.Secret == "" {
		return ErrMissingCredentials
	}
	req.Header.Set(HeaderAuthorization, t.Value())
	return nil
}
