// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package frappe provides the HTTPS client that talks to the Frappe Assistant
// Core MCP endpoint of an ERPNext site. It injects API token authentication,
// posts JSON-RPC payloads, unwraps the {"message": ...} envelope that Frappe
// puts around whitelisted method results, and classifies failures so callers
// can map them onto JSON-RPC errors.
package frappe
