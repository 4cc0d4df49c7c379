// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package cmd wires the bridge's command line: the stdio relay (default),
// the desktop setup helper and a connectivity check.
package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context, version string) error {
	root := newRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("erpnext-mcp-bridge failed")
		return err
	}
	return nil
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "erpnext-mcp-bridge",
		Short: "Stdio MCP bridge to Frappe Assistant Core on an ERPNext site",
		Long: `erpnext-mcp-bridge relays newline-delimited JSON-RPC between an MCP client
on stdin/stdout and the Frappe Assistant Core endpoint of an ERPNext site.

Without a subcommand it runs the relay. Configuration comes from
FRAPPE_SERVER_URL, FRAPPE_API_KEY and FRAPPE_API_SECRET.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}

	root.AddCommand(
		serveCmd(version),
		setupCmd(),
		checkCmd(),
	)
	return root
}

// applyLogLevel sets the global zerolog level.
func applyLogLevel(raw string) error {
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	log.Logger = log.Level(level)
	return nil
}
