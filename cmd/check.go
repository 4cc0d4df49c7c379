// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/config"
	"github.com/No-Smoke/erpnext-mcp-bridge/pkg/frappe"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the environment credentials against the ERPNext site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if err := applyLogLevel(cfg.LogLevel); err != nil {
				return err
			}

			client := frappe.New(cfg)
			defer client.Close()

			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			p.printf("Site: %s\n", client.Server())

			if err := reportLogin(cmd.Context(), client, p); err != nil {
				return fmt.Errorf("login check: %w", err)
			}
			if err := reportTools(cmd.Context(), client, p); err != nil {
				return fmt.Errorf("tools check: %w", err)
			}
			return nil
		},
	}
}
