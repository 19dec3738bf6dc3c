// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ffutop/xypsu/internal/presetfile"
	"github.com/ffutop/xypsu/psu"
)

func (a *app) protectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protections",
		Short: "Show or change the protections of the active preset",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the protection thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.GetProtections(ctx)
				if err != nil {
					return err
				}
				return printProtections(cmd.OutOrStdout(), c)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Change protection thresholds, keeping the ones not given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.GetProtections(ctx)
				if err != nil {
					return err
				}
				if err := applyProtectionFlags(cmd.Flags(), &c); err != nil {
					return err
				}
				if err := s.SetProtections(ctx, c); err != nil {
					return err
				}
				return printProtections(cmd.OutOrStdout(), c)
			})
		},
	}
	addProtectionFlags(set.Flags())

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear a tripped protection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				return s.ClearProtection(ctx)
			})
		},
	}

	cmd.AddCommand(get, set, clearCmd)
	return cmd
}

func addProtectionFlags(fs *pflag.FlagSet) {
	fs.String("lvp", "", "Under-voltage threshold in volts.")
	fs.String("ovp", "", "Over-voltage threshold in volts.")
	fs.String("ocp", "", "Over-current threshold in amps.")
	fs.String("opp", "", "Over-power threshold in watts.")
	fs.Duration("ohp", 0, "Output on-time limit, whole hours and minutes.")
	fs.String("oah", "", "Capacity limit in amp-hours.")
	fs.String("owh", "", "Energy limit in watt-hours.")
	fs.String("otp", "", "Over-temperature threshold, such as 80C or 176F.")
}

// applyProtectionFlags overwrites the thresholds of c whose flag was set.
func applyProtectionFlags(fs *pflag.FlagSet, c *psu.ProtectionConfig) error {
	milli := []struct {
		flag   string
		suffix string
		dst    *uint32
	}{
		{"lvp", "V", &c.UnderVoltage},
		{"ovp", "V", &c.OverVoltage},
		{"ocp", "A", &c.OverCurrent},
		{"opp", "W", &c.OverPower},
		{"oah", "Ah", &c.OverCapacity},
		{"owh", "Wh", &c.OverEnergy},
	}
	for _, m := range milli {
		if !fs.Changed(m.flag) {
			continue
		}
		s, _ := fs.GetString(m.flag)
		v, err := parseMilli(s, m.suffix)
		if err != nil {
			return fmt.Errorf("--%s: %w", m.flag, err)
		}
		*m.dst = v
	}
	if fs.Changed("ohp") {
		d, _ := fs.GetDuration("ohp")
		c.OverTime = d
	}
	if fs.Changed("otp") {
		s, _ := fs.GetString("otp")
		t, err := presetfile.ParseTemperature(s)
		if err != nil {
			return fmt.Errorf("--otp: %w", err)
		}
		c.OverTemperature = t
	}
	return nil
}

func printProtections(out io.Writer, c psu.ProtectionConfig) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Under-voltage:\t%s\n", formatMilli(c.UnderVoltage, "V"))
	fmt.Fprintf(w, "Over-voltage:\t%s\n", formatMilli(c.OverVoltage, "V"))
	fmt.Fprintf(w, "Over-current:\t%s\n", formatMilli(c.OverCurrent, "A"))
	fmt.Fprintf(w, "Over-power:\t%s\n", formatMilli(c.OverPower, "W"))
	fmt.Fprintf(w, "On-time limit:\t%s\n", c.OverTime.Truncate(time.Minute))
	fmt.Fprintf(w, "Capacity limit:\t%s\n", formatMilli(c.OverCapacity, "Ah"))
	fmt.Fprintf(w, "Energy limit:\t%s\n", formatMilli(c.OverEnergy, "Wh"))
	fmt.Fprintf(w, "Over-temperature:\t%s\n", c.OverTemperature)
	return w.Flush()
}

func parseGroup(s string) (psu.PresetGroup, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid preset group %q", s)
	}
	return psu.ParsePresetGroup(n)
}

func (a *app) presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Read, write and select preset groups",
	}

	show := &cobra.Command{
		Use:   "show [group...]",
		Short: "Print preset groups as a YAML preset document",
		Long:  "Print preset groups as a YAML document that \"preset apply\" accepts. Without arguments the active group is shown.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				var groups []psu.PresetGroup
				for _, arg := range args {
					g, err := parseGroup(arg)
					if err != nil {
						return err
					}
					groups = append(groups, g)
				}
				if len(groups) == 0 {
					g, err := s.ActivePresetGroup(ctx)
					if err != nil {
						return err
					}
					groups = append(groups, g)
				}

				presets := make([]psu.Preset, 0, len(groups))
				for _, g := range groups {
					p, err := s.ReadPreset(ctx, g)
					if err != nil {
						return err
					}
					presets = append(presets, p)
				}
				data, err := presetfile.Marshal(presets...)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}

	var selectAfter int
	apply := &cobra.Command{
		Use:   "apply <file>",
		Short: "Write the preset groups of a YAML preset document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := presetfile.Load(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				for _, p := range presets {
					if err := s.WritePreset(ctx, p); err != nil {
						return err
					}
					slog.Info("Preset written", "group", p.Group)
				}
				if selectAfter >= 0 {
					g, err := psu.ParsePresetGroup(selectAfter)
					if err != nil {
						return err
					}
					return s.SelectPresetGroup(ctx, g)
				}
				return nil
			})
		},
	}
	apply.Flags().IntVar(&selectAfter, "select", -1, "Select this group after writing.")

	sel := &cobra.Command{
		Use:   "select <group>",
		Short: "Load a preset group into the live settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseGroup(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				return s.SelectPresetGroup(ctx, g)
			})
		},
	}

	cmd.AddCommand(show, apply, sel)
	return cmd
}
