// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command xypsu controls Sinilink XY series power supplies over Modbus RTU.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/xypsu/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the loaded configuration to the subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "xypsu",
		Short: "Control Sinilink XY series power supplies",
		Long: "xypsu talks Modbus RTU to XY series programmable power supplies over a\n" +
			"serial line or an RTU over TCP bridge, and can simulate one.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogger(cfg.Log)
			return nil
		},
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		a.infoCmd(),
		a.measureCmd(),
		a.setCmd(),
		a.protectionsCmd(),
		a.presetCmd(),
		a.rawCmd(),
		a.simulateCmd(),
		a.traceCmd(),
	)
	return root
}

// setupLogger logs to stderr unless a file is configured, keeping stdout
// for command output.
func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
		} else {
			w = f
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
}
