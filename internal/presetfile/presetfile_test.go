// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package presetfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/xypsu/psu"
)

const sample = `
presets:
  - group: 1
    voltage_mv: 12000
    current_ma: 2000
    output: on
    protections:
      over_voltage_mv: 13000
      over_time: 2h30m
      over_temperature: 176F
  - group: 9
    voltage_mv: 5000
    current_ma: 500
`

func TestParse(t *testing.T) {
	presets, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, presets, 2)

	p := presets[0]
	assert.Equal(t, psu.PresetGroup(1), p.Group)
	assert.Equal(t, uint32(12000), p.Voltage)
	assert.Equal(t, uint32(2000), p.Current)
	assert.Equal(t, psu.On, p.Output)
	assert.Equal(t, uint32(13000), p.Protections.OverVoltage)
	assert.Equal(t, 150*time.Minute, p.Protections.OverTime)
	assert.Equal(t, psu.DegreesF(176), p.Protections.OverTemperature)
	// Unset thresholds keep the defaults.
	assert.Equal(t, psu.DefaultProtections().OverCurrent, p.Protections.OverCurrent)

	assert.Equal(t, psu.PresetGroup(9), presets[1].Group)
	assert.Equal(t, psu.Off, presets[1].Output)
	assert.Equal(t, psu.DefaultProtections(), presets[1].Protections)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown key", "presets:\n  - group: 1\n    volts: 3\n"},
		{"group range", "presets:\n  - group: 10\n"},
		{"duplicate group", "presets:\n  - group: 2\n  - group: 2\n"},
		{"bad output", "presets:\n  - group: 1\n    output: maybe\n"},
		{"bad duration", "presets:\n  - group: 1\n    protections:\n      over_time: soon\n"},
		{"bad temperature", "presets:\n  - group: 1\n    protections:\n      over_temperature: hot\n"},
		{"negative temperature", "presets:\n  - group: 1\n    protections:\n      over_temperature: -5C\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		in   string
		want psu.Temperature
	}{
		{"80C", psu.DegreesC(80)},
		{"80", psu.DegreesC(80)},
		{"176f", psu.DegreesF(176)},
		{" 70°F ", psu.DegreesF(70)},
	}
	for _, tt := range tests {
		got, err := ParseTemperature(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseTemperature("C")
	assert.ErrorIs(t, err, psu.ErrInvalidRange)
}

func TestMarshal_ParseBack(t *testing.T) {
	want, err := psu.NewPresetBuilder().
		ForGroup(3).
		WithVoltage(3300).
		WithCurrentLimit(1500).
		WithOutput(psu.On).
		WithUnderVoltage(2800).
		WithOverTime(90 * time.Minute).
		WithOverTemperature(psu.DegreesC(65)).
		Build()
	require.NoError(t, err)

	data, err := Marshal(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "over_time: 1h30m0s")

	got, err := Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	presets, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, presets, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
