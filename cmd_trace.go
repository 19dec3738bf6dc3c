// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ffutop/xypsu/internal/trace"
)

func (a *app) traceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect frame trace files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump <file>",
		Short: "Print the frames of a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := trace.NewReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = trace.Dump(cmd.OutOrStdout(), r)
			return err
		},
	})
	return cmd
}
