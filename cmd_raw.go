// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ffutop/xypsu/psu"
)

// parseAddress accepts a register name such as "V-SET" or a numeric
// address ("0x50", "18").
func parseAddress(s string) (uint16, error) {
	if r, ok := psu.LookupRegister(strings.ToUpper(s)); ok {
		return r.Address(), nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return uint16(v), nil
}

func parseValue(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register value %q", s)
	}
	return uint16(v), nil
}

func registerLabel(address uint16) string {
	r := psu.Register(address)
	if r.Valid() {
		return r.String()
	}
	return ""
}

func (a *app) rawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Read and write holding registers without scaling",
	}

	read := &cobra.Command{
		Use:   "read <register> [count]",
		Short: "Read holding registers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			count := uint16(1)
			if len(args) == 2 {
				n, err := strconv.ParseUint(args[1], 0, 16)
				if err != nil || n == 0 {
					return fmt.Errorf("invalid count %q", args[1])
				}
				count = uint16(n)
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				values, err := s.Engine().ReadHoldingRegisters(ctx, address, count)
				if err != nil {
					return err
				}
				for i, v := range values {
					addr := address + uint16(i)
					fmt.Fprintf(cmd.OutOrStdout(), "0x%04X %-8s 0x%04X %d\n", addr, registerLabel(addr), v, v)
				}
				return nil
			})
		},
	}

	write := &cobra.Command{
		Use:   "write <register> <value>...",
		Short: "Write one register, or consecutive registers with several values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			values := make([]uint16, 0, len(args)-1)
			for _, arg := range args[1:] {
				v, err := parseValue(arg)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if len(values) == 1 {
					return s.Engine().WriteSingleRegister(ctx, address, values[0])
				}
				return s.Engine().WriteMultipleRegisters(ctx, address, values)
			})
		},
	}

	cmd.AddCommand(read, write)
	return cmd
}
