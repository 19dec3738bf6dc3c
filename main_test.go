// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/xypsu/internal/simulator"
	"github.com/ffutop/xypsu/internal/simulator/model"
)

// startSimulator serves a seeded XY6020L on a loopback RTU over TCP port.
func startSimulator(t *testing.T) (*model.RegisterBank, string) {
	t.Helper()
	bank := model.NewRegisterBank()
	require.True(t, simulator.Seed(bank, 6020))
	dev := simulator.New(bank)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		dev.ServeListener(ctx, l)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bank, l.Addr().String()
}

func run(t *testing.T, address string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--transport", "rtu-over-tcp", "--address", address, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Info(t *testing.T) {
	_, addr := startSimulator(t)
	out, err := run(t, addr, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "XY6020L")
	assert.Contains(t, out, "Active preset:")
	assert.Contains(t, out, "5.000V")
}

func TestCLI_SetAndMeasure(t *testing.T) {
	bank, addr := startSimulator(t)

	_, err := run(t, addr, "set", "voltage", "12.5")
	require.NoError(t, err)
	assert.Equal(t, uint16(1250), bank.Get(0x00))

	_, err = run(t, addr, "set", "output", "on")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), bank.Get(0x12))

	out, err := run(t, addr, "measure")
	require.NoError(t, err)
	assert.Contains(t, out, "12.500V")
	assert.Contains(t, out, "on")

	_, err = run(t, addr, "set", "backlight", "9")
	assert.Error(t, err)
}

func TestCLI_Raw(t *testing.T) {
	bank, addr := startSimulator(t)

	_, err := run(t, addr, "raw", "write", "0x50", "700", "80")
	require.NoError(t, err)
	assert.Equal(t, uint16(700), bank.Get(0x50))
	assert.Equal(t, uint16(80), bank.Get(0x51))

	out, err := run(t, addr, "raw", "read", "model")
	require.NoError(t, err)
	assert.Contains(t, out, "0x0016 MODEL")
	assert.Contains(t, out, "6020")

	_, err = run(t, addr, "raw", "read", "nonsense")
	assert.Error(t, err)
}

func TestCLI_Protections(t *testing.T) {
	_, addr := startSimulator(t)

	out, err := run(t, addr, "protections", "set", "--ovp", "13", "--otp", "70C", "--ohp", "2h")
	require.NoError(t, err)
	assert.Contains(t, out, "13.000V")

	out, err = run(t, addr, "protections", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "13.000V")
	assert.Contains(t, out, "70°C")
	assert.Contains(t, out, "2h0m0s")
}

func TestCLI_PresetApplyShow(t *testing.T) {
	bank, addr := startSimulator(t)

	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  - group: 2
    voltage_mv: 3300
    current_ma: 1500
    protections:
      over_voltage_mv: 4000
`), 0644))

	_, err := run(t, addr, "preset", "apply", path, "--select", "2")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), bank.Get(0x1D))
	assert.Equal(t, uint16(330), bank.Get(0x00))

	out, err := run(t, addr, "preset", "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "voltage_mv: 3300")
	assert.Contains(t, out, "over_voltage_mv: 4000")
}

func TestCLI_Trace(t *testing.T) {
	_, addr := startSimulator(t)
	path := filepath.Join(t.TempDir(), "frames.cbor")

	_, err := run(t, addr, "--trace", path, "raw", "read", "0x16")
	require.NoError(t, err)

	out, err := run(t, addr, "trace", "dump", path)
	require.NoError(t, err)
	assert.Contains(t, out, "tx unit=1 ok")
	assert.Contains(t, out, "rx unit=1 ok")
}
