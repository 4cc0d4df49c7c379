// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/config"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/frappe"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/relay"
)

func serveCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Relay JSON-RPC between stdio and the ERPNext site (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}
}

func runServe(cmd *cobra.Command, version string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := applyLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	client := frappe.New(cfg)
	defer client.Close()

	r := relay.New(client, relay.Options{
		ServerName:      cfg.ServerName,
		ServerVersion:   version,
		Server:          client.Server(),
		MaxMessageBytes: cfg.MaxMessageBytes,
	})

	log.Info().
		Str("upstream", client.Server()).
		Dur("timeout", cfg.RequestTimeout).
		Msg("starting ERPNext MCP bridge")

	ctx := cmd.Context()

	// The read loop blocks on stdin, so it runs aside while we wait for a signal.
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("bridge stopped")
	return nil
}
