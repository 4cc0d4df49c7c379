// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package frappe

import (
	"fmt"
	"time"
)

// TimeoutError reports a round trip that exceeded the request timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectError reports a failure to reach the site at all.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// StatusError wraps a non-2xx reply. Body holds at most the first 500 bytes.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// EnvelopeError reports a 2xx reply whose body could not be unwrapped.
type EnvelopeError struct {
	Reason string
}

func (e *EnvelopeError) Error() string {
	return "invalid upstream envelope: " + e.Reason
}
