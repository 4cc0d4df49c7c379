// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/No-Smoke/erpnext-mcp-bridge/cmd"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	// stdout carries protocol traffic; diagnostics go to stderr only.
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, version); err != nil {
		stop()
		os.Exit(1)
	}
}
