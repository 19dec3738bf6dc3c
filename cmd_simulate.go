// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ffutop/xypsu/internal/simulator"
	"github.com/ffutop/xypsu/internal/simulator/persistence"
)

func (a *app) simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated power supply",
		Long: "Serve a simulated power supply on the configured serial device, or as an\n" +
			"RTU over TCP slave when simulator.listen is \"tcp\".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg := a.cfg.Simulator
			logger := slog.Default()

			storage, err := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
			if err != nil {
				return err
			}
			bank, err := storage.Load()
			if err != nil {
				storage.Close()
				return fmt.Errorf("failed to load registers: %w", err)
			}
			if simulator.Seed(bank, cfg.Model) {
				logger.Info("Seeded simulator registers", "model", cfg.Model)
			}
			defer func() {
				err = errors.Join(err, storage.Save(bank), storage.Close())
			}()

			dev := simulator.New(bank,
				simulator.WithUnitID(byte(cfg.UnitID)),
				simulator.WithEcho(cfg.Echo),
				simulator.WithStorage(storage),
				simulator.WithLogger(logger),
			)

			ctx := cmd.Context()
			if cfg.Listen == "tcp" {
				return dev.ListenTCP(ctx, cfg.Address)
			}
			return dev.ListenSerial(ctx, a.cfg.Serial.SerialPort())
		},
	}
}
