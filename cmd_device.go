// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ffutop/xypsu/psu"
)

// withSession runs fn on a freshly opened session and closes it afterwards.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), s)
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show model, firmware and settings of the power supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				return printInfo(ctx, cmd.OutOrStdout(), s.PSU)
			})
		},
	}
}

func printInfo(ctx context.Context, out io.Writer, p *psu.PSU) error {
	code, err := p.ProductModelRaw(ctx)
	if err != nil {
		return err
	}
	version, err := p.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Model:\t%s\n", modelName(code))
	fmt.Fprintf(w, "Firmware:\t0x%04X\n", version)

	if addr, err := p.SlaveAddress(ctx); err == nil {
		fmt.Fprintf(w, "Slave address:\t%d\n", addr)
	}
	if b, err := p.BaudRate(ctx); err == nil {
		fmt.Fprintf(w, "Baud rate:\t%s\n", b)
	}
	if g, err := p.ActivePresetGroup(ctx); err == nil {
		fmt.Fprintf(w, "Active preset:\t%s\n", g)
	}
	if u, err := p.TemperatureUnit(ctx); err == nil {
		fmt.Fprintf(w, "Temperature unit:\t%s\n", u)
	}
	if s, err := p.ScalingFactors(ctx); err == nil {
		fmt.Fprintf(w, "Scaling:\tV/%d I/%d P/%d Ah/%d Wh/%d\n", s.Voltage, s.Current, s.Power, s.Capacity, s.Energy)
		if v, err := p.VoltageSetpoint(ctx); err == nil {
			fmt.Fprintf(w, "Voltage setpoint:\t%s\n", formatMilli(v, "V"))
		}
		if i, err := p.CurrentLimit(ctx); err == nil {
			fmt.Fprintf(w, "Current limit:\t%s\n", formatMilli(i, "A"))
		}
	} else {
		fmt.Fprintf(w, "Scaling:\tunavailable (%v)\n", err)
	}
	if o, err := p.OutputState(ctx); err == nil {
		fmt.Fprintf(w, "Output:\t%s\n", o)
	}
	return w.Flush()
}

func modelName(code uint16) string {
	if m, err := psu.ParseProductModel(code); err == nil {
		return m.String()
	}
	return fmt.Sprintf("unknown (%d)", code)
}

func (a *app) measureCmd() *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Read the live measurements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				for {
					m, err := s.ReadMeasurements(ctx)
					if err != nil {
						return err
					}
					if err := printMeasurements(cmd.OutOrStdout(), m); err != nil {
						return err
					}
					if watch <= 0 {
						return nil
					}
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(watch):
					}
					fmt.Fprintln(cmd.OutOrStdout())
				}
			})
		},
	}
	cmd.Flags().DurationVarP(&watch, "watch", "w", 0, "Repeat at this interval until interrupted.")
	return cmd
}

func printMeasurements(out io.Writer, m psu.Measurements) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Output:\t%s (%s)\n", m.Output, m.Mode)
	fmt.Fprintf(w, "Voltage:\t%s\n", formatMilli(m.OutputVoltage, "V"))
	fmt.Fprintf(w, "Current:\t%s\n", formatMilli(m.OutputCurrent, "A"))
	fmt.Fprintf(w, "Power:\t%s\n", formatMilli(m.OutputPower, "W"))
	fmt.Fprintf(w, "Input voltage:\t%s\n", formatMilli(m.InputVoltage, "V"))
	fmt.Fprintf(w, "Capacity:\t%s\n", formatMilli(m.OutputCapacity, "Ah"))
	fmt.Fprintf(w, "Energy:\t%s\n", formatMilli(m.OutputEnergy, "Wh"))
	fmt.Fprintf(w, "On time:\t%s\n", m.OutputTime)
	fmt.Fprintf(w, "Temperature:\t%s internal, %s external\n", m.InternalTemperature, m.ExternalTemperature)
	fmt.Fprintf(w, "Key lock:\t%s\n", m.KeyLock)
	fmt.Fprintf(w, "Protection:\t%s\n", m.Protection)
	return w.Flush()
}

func (a *app) setCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change a setting of the power supply",
	}

	scaled := func(use, short, suffix string, set func(*psu.PSU, context.Context, uint32) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseMilli(args[0], suffix)
				if err != nil {
					return err
				}
				return a.withSession(cmd, func(ctx context.Context, s *session) error {
					return set(s.PSU, ctx, v)
				})
			},
		}
	}
	state := func(use, short string, set func(*psu.PSU, context.Context, psu.State) error) *cobra.Command {
		return &cobra.Command{
			Use:       use + " on|off",
			Short:     short,
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := psu.ParseState(args[0])
				if err != nil {
					return err
				}
				return a.withSession(cmd, func(ctx context.Context, s *session) error {
					return set(s.PSU, ctx, st)
				})
			},
		}
	}

	cmd.AddCommand(
		scaled("voltage <volts>", "Set the output voltage", "V", (*psu.PSU).SetVoltageSetpoint),
		scaled("current <amps>", "Set the current limit", "A", (*psu.PSU).SetCurrentLimit),
		state("output", "Switch the output", (*psu.PSU).SetOutput),
		state("lock", "Lock the front panel keys", (*psu.PSU).SetKeyLock),
		state("buzzer", "Enable the buzzer", (*psu.PSU).SetBuzzer),
		&cobra.Command{
			Use:   "backlight <0-5>",
			Short: "Set the display backlight level",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.ParseUint(args[0], 10, 16)
				if err != nil {
					return fmt.Errorf("invalid backlight level %q", args[0])
				}
				b, err := psu.ParseBacklightBrightness(uint16(n))
				if err != nil {
					return err
				}
				return a.withSession(cmd, func(ctx context.Context, s *session) error {
					return s.SetBacklight(ctx, b)
				})
			},
		},
		&cobra.Command{
			Use:       "unit C|F",
			Short:     "Set the temperature unit",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"C", "F"},
			RunE: func(cmd *cobra.Command, args []string) error {
				var u psu.TemperatureUnit
				switch strings.ToUpper(args[0]) {
				case "C":
					u = psu.Celsius
				case "F":
					u = psu.Fahrenheit
				default:
					return fmt.Errorf("invalid temperature unit %q", args[0])
				}
				return a.withSession(cmd, func(ctx context.Context, s *session) error {
					return s.SetTemperatureUnit(ctx, u)
				})
			},
		},
	)
	return cmd
}
