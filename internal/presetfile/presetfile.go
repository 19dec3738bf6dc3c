// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package presetfile reads and writes preset groups as YAML documents.
//
//	presets:
//	  - group: 1
//	    voltage_mv: 12000
//	    current_ma: 2000
//	    output: on
//	    protections:
//	      over_voltage_mv: 13000
//	      over_time: 2h30m
//	      over_temperature: 80C
//
// Protection fields that are left out keep psu.DefaultProtections.
package presetfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ffutop/xypsu/psu"
)

// File is the top level of a preset document.
type File struct {
	Presets []Entry `yaml:"presets"`
}

// Entry is one preset group.
type Entry struct {
	Group       int          `yaml:"group"`
	Voltage     uint32       `yaml:"voltage_mv"`
	Current     uint32       `yaml:"current_ma"`
	Output      string       `yaml:"output,omitempty"`
	Protections *Protections `yaml:"protections,omitempty"`
}

// Protections holds optional thresholds. Nil fields are not set.
type Protections struct {
	UnderVoltage    *uint32 `yaml:"under_voltage_mv,omitempty"`
	OverVoltage     *uint32 `yaml:"over_voltage_mv,omitempty"`
	OverCurrent     *uint32 `yaml:"over_current_ma,omitempty"`
	OverPower       *uint32 `yaml:"over_power_mw,omitempty"`
	OverTime        string  `yaml:"over_time,omitempty"`
	OverCapacity    *uint32 `yaml:"over_capacity_mah,omitempty"`
	OverEnergy      *uint32 `yaml:"over_energy_mwh,omitempty"`
	OverTemperature string  `yaml:"over_temperature,omitempty"`
}

// Load reads the preset document at path.
func Load(path string) ([]psu.Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	presets, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return presets, nil
}

// Parse decodes a preset document. Unknown keys are rejected.
func Parse(r io.Reader) ([]psu.Preset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty preset document")
		}
		return nil, fmt.Errorf("decode preset document: %w", err)
	}

	seen := make(map[int]bool, len(f.Presets))
	presets := make([]psu.Preset, 0, len(f.Presets))
	for i, e := range f.Presets {
		if seen[e.Group] {
			return nil, fmt.Errorf("preset %d: group %d listed twice", i, e.Group)
		}
		seen[e.Group] = true

		p, err := e.Preset()
		if err != nil {
			return nil, fmt.Errorf("preset %d: %w", i, err)
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// Preset validates the entry and converts it.
func (e Entry) Preset() (psu.Preset, error) {
	g, err := psu.ParsePresetGroup(e.Group)
	if err != nil {
		return psu.Preset{}, err
	}
	b := psu.NewPresetBuilder().
		ForGroup(g).
		WithVoltage(e.Voltage).
		WithCurrentLimit(e.Current)

	if e.Output != "" {
		s, err := psu.ParseState(e.Output)
		if err != nil {
			return psu.Preset{}, err
		}
		b.WithOutput(s)
	}
	if e.Protections != nil {
		if err := e.Protections.apply(b); err != nil {
			return psu.Preset{}, err
		}
	}
	return b.Build()
}

func (p *Protections) apply(b *psu.PresetBuilder) error {
	if p.UnderVoltage != nil {
		b.WithUnderVoltage(*p.UnderVoltage)
	}
	if p.OverVoltage != nil {
		b.WithOverVoltage(*p.OverVoltage)
	}
	if p.OverCurrent != nil {
		b.WithOverCurrent(*p.OverCurrent)
	}
	if p.OverPower != nil {
		b.WithOverPower(*p.OverPower)
	}
	if p.OverTime != "" {
		d, err := time.ParseDuration(p.OverTime)
		if err != nil {
			return fmt.Errorf("over_time: %w", err)
		}
		b.WithOverTime(d)
	}
	if p.OverCapacity != nil {
		b.WithOverCapacity(*p.OverCapacity)
	}
	if p.OverEnergy != nil {
		b.WithOverEnergy(*p.OverEnergy)
	}
	if p.OverTemperature != "" {
		t, err := ParseTemperature(p.OverTemperature)
		if err != nil {
			return fmt.Errorf("over_temperature: %w", err)
		}
		b.WithOverTemperature(t)
	}
	return nil
}

// ParseTemperature accepts a whole number of degrees followed by C or F,
// such as "80C" or "176F". A bare number is taken as Celsius.
func ParseTemperature(s string) (psu.Temperature, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	unit := psu.Celsius
	switch {
	case strings.HasSuffix(s, "F"):
		unit = psu.Fahrenheit
		s = strings.TrimSuffix(s, "F")
	case strings.HasSuffix(s, "C"):
		s = strings.TrimSuffix(s, "C")
	}
	v, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(s, "°")))
	if err != nil {
		return psu.Temperature{}, fmt.Errorf("%w: temperature %q", psu.ErrInvalidRange, s)
	}
	return psu.Temperature{Value: v, Unit: unit}, nil
}

// FromPreset converts a preset to its document form with every field set.
func FromPreset(p psu.Preset) Entry {
	c := p.Protections
	u := func(v uint32) *uint32 { return &v }
	return Entry{
		Group:   int(p.Group),
		Voltage: p.Voltage,
		Current: p.Current,
		Output:  p.Output.String(),
		Protections: &Protections{
			UnderVoltage:    u(c.UnderVoltage),
			OverVoltage:     u(c.OverVoltage),
			OverCurrent:     u(c.OverCurrent),
			OverPower:       u(c.OverPower),
			OverTime:        c.OverTime.String(),
			OverCapacity:    u(c.OverCapacity),
			OverEnergy:      u(c.OverEnergy),
			OverTemperature: fmt.Sprintf("%d%s", c.OverTemperature.Value, c.OverTemperature.Unit),
		},
	}
}

// Marshal renders presets as a document Parse accepts.
func Marshal(presets ...psu.Preset) ([]byte, error) {
	f := File{Presets: make([]Entry, 0, len(presets))}
	for _, p := range presets {
		f.Presets = append(f.Presets, FromPreset(p))
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
