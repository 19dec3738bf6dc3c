// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"fmt"
	"math"
	"time"
)

const (
	// PresetBase is the address of the first register of group 0.
	PresetBase = 0x50
	// PresetStride is the distance between the blocks of two groups.
	PresetStride = 0x10
	// PresetGroups is the number of preset groups (M0-M9).
	PresetGroups = 10
)

// PresetGroup is a preset slot, 0 to 9.
type PresetGroup uint8

// ParsePresetGroup validates a preset group number.
func ParsePresetGroup(n int) (PresetGroup, error) {
	if n < 0 || n >= PresetGroups {
		return 0, fmt.Errorf("%w: preset group %d (want 0-%d)", ErrInvalidRange, n, PresetGroups-1)
	}
	return PresetGroup(n), nil
}

// Base returns the address of the group's first register.
func (g PresetGroup) Base() uint16 { return PresetVSet.AddressInGroup(g) }

func (g PresetGroup) String() string { return fmt.Sprintf("M%d", uint8(g)) }

// PresetOffset is a register offset within a preset block.
type PresetOffset uint16

const (
	PresetVSet  PresetOffset = 0x00
	PresetISet  PresetOffset = 0x01
	PresetSLvp  PresetOffset = 0x02 // under-voltage protection
	PresetSOvp  PresetOffset = 0x03 // over-voltage protection
	PresetSOcp  PresetOffset = 0x04 // over-current protection
	PresetSOpp  PresetOffset = 0x05 // over-power protection
	PresetSOhpH PresetOffset = 0x06 // over-time protection, hours
	PresetSOhpM PresetOffset = 0x07 // over-time protection, minutes
	PresetSOahL PresetOffset = 0x08 // over-capacity protection, low word
	PresetSOahH PresetOffset = 0x09
	PresetSOwhL PresetOffset = 0x0A // over-energy protection, low word
	PresetSOwhH PresetOffset = 0x0B
	PresetSOtp  PresetOffset = 0x0C // over-temperature protection
	PresetSIni  PresetOffset = 0x0D // output state when the group is loaded
	PresetSEtp  PresetOffset = 0x0E // external over-temperature protection

	// PresetRegisters is the number of registers in a preset block.
	PresetRegisters = 15
)

// AddressInGroup returns PresetBase + group*PresetStride + o.
func (o PresetOffset) AddressInGroup(g PresetGroup) uint16 {
	return PresetBase + uint16(g)*PresetStride + uint16(o)
}

// ProtectionConfig is the set of protection thresholds of a preset. Every
// field is written, so a zero field is a zero threshold: OCP, OPP and OTP
// at zero trip at once. Start from DefaultProtections and change the
// thresholds of interest, or use PresetBuilder.
type ProtectionConfig struct {
	UnderVoltage    uint32 // mV
	OverVoltage     uint32 // mV
	OverCurrent     uint32 // mA
	OverPower       uint32 // mW
	OverTime        time.Duration
	OverCapacity    uint32 // mAh
	OverEnergy      uint32 // mWh
	OverTemperature Temperature
}

// DefaultProtections returns thresholds high enough to never trip.
func DefaultProtections() ProtectionConfig {
	return ProtectionConfig{
		UnderVoltage:    0,
		OverVoltage:     99999,
		OverCurrent:     9999,
		OverPower:       99999,
		OverTime:        999 * time.Hour,
		OverCapacity:    99999,
		OverEnergy:      99999,
		OverTemperature: DegreesC(100),
	}
}

// Preset is the full content of a preset group.
type Preset struct {
	Group       PresetGroup
	Voltage     uint32 // mV
	Current     uint32 // mA
	Protections ProtectionConfig
	Output      State
}

// Encode serialises p into its register block. Temperatures are written in
// unit, the unit the device is configured for.
func (p Preset) Encode(s ScalingFactors, unit TemperatureUnit) (base uint16, regs [PresetRegisters]uint16, err error) {
	if p.Group >= PresetGroups {
		return 0, regs, fmt.Errorf("%w: preset group %d", ErrInvalidRange, p.Group)
	}
	if regs[PresetVSet], err = s.VoltageToRaw(p.Voltage); err != nil {
		return
	}
	if regs[PresetISet], err = s.CurrentToRaw(p.Current); err != nil {
		return
	}
	if err = p.Protections.encode(&regs, s, unit); err != nil {
		return
	}
	regs[PresetSIni] = SIniValue(p.Output)
	return p.Group.Base(), regs, nil
}

// SIniValue is the register value of an output state in a preset block.
func SIniValue(s State) uint16 {
	if s {
		return 1
	}
	return 0
}

// encode writes the protection fields of a preset block, leaving the
// setpoints and output state untouched.
func (c ProtectionConfig) encode(regs *[PresetRegisters]uint16, s ScalingFactors, unit TemperatureUnit) (err error) {
	if regs[PresetSLvp], err = s.VoltageToRaw(c.UnderVoltage); err != nil {
		return err
	}
	if regs[PresetSOvp], err = s.VoltageToRaw(c.OverVoltage); err != nil {
		return err
	}
	if regs[PresetSOcp], err = s.CurrentToRaw(c.OverCurrent); err != nil {
		return err
	}
	if regs[PresetSOpp], err = s.PowerToRaw(c.OverPower); err != nil {
		return err
	}

	if c.OverTime < 0 {
		return fmt.Errorf("%w: negative over-time %v", ErrInvalidRange, c.OverTime)
	}
	hours := c.OverTime / time.Hour
	if hours > math.MaxUint16 {
		return fmt.Errorf("%w: over-time %v", ErrInvalidRange, c.OverTime)
	}
	regs[PresetSOhpH] = uint16(hours)
	regs[PresetSOhpM] = uint16((c.OverTime % time.Hour) / time.Minute)

	capacity, err := s.CapacityToRaw(c.OverCapacity)
	if err != nil {
		return err
	}
	regs[PresetSOahL], regs[PresetSOahH] = splitWords(capacity)
	energy, err := s.EnergyToRaw(c.OverEnergy)
	if err != nil {
		return err
	}
	regs[PresetSOwhL], regs[PresetSOwhH] = splitWords(energy)

	temp := c.OverTemperature.In(unit)
	if temp < 0 || temp > math.MaxUint16 {
		return fmt.Errorf("%w: over-temperature %v", ErrInvalidRange, c.OverTemperature)
	}
	regs[PresetSOtp] = uint16(temp)
	regs[PresetSEtp] = uint16(temp)
	return nil
}

// DecodePreset is the inverse of Preset.Encode.
func DecodePreset(g PresetGroup, regs [PresetRegisters]uint16, s ScalingFactors, unit TemperatureUnit) Preset {
	return Preset{
		Group:       g,
		Voltage:     s.RawToVoltage(regs[PresetVSet]),
		Current:     s.RawToCurrent(regs[PresetISet]),
		Protections: decodeProtections(regs, s, unit),
		Output:      State(regs[PresetSIni] != 0),
	}
}

func decodeProtections(regs [PresetRegisters]uint16, s ScalingFactors, unit TemperatureUnit) ProtectionConfig {
	return ProtectionConfig{
		UnderVoltage:    s.RawToVoltage(regs[PresetSLvp]),
		OverVoltage:     s.RawToVoltage(regs[PresetSOvp]),
		OverCurrent:     s.RawToCurrent(regs[PresetSOcp]),
		OverPower:       s.RawToPower(regs[PresetSOpp]),
		OverTime:        time.Duration(regs[PresetSOhpH])*time.Hour + time.Duration(regs[PresetSOhpM])*time.Minute,
		OverCapacity:    s.RawToCapacity(joinWords(regs[PresetSOahL], regs[PresetSOahH])),
		OverEnergy:      s.RawToEnergy(joinWords(regs[PresetSOwhL], regs[PresetSOwhH])),
		OverTemperature: Temperature{Value: int(regs[PresetSOtp]), Unit: unit},
	}
}

// PresetBuilder assembles a Preset step by step. Protections start at
// DefaultProtections.
type PresetBuilder struct {
	group    PresetGroup
	groupSet bool
	preset   Preset
}

// NewPresetBuilder returns a builder with no group selected.
func NewPresetBuilder() *PresetBuilder {
	return &PresetBuilder{preset: Preset{Protections: DefaultProtections()}}
}

func (b *PresetBuilder) ForGroup(g PresetGroup) *PresetBuilder {
	b.group, b.groupSet = g, true
	return b
}

func (b *PresetBuilder) WithVoltage(mV uint32) *PresetBuilder {
	b.preset.Voltage = mV
	return b
}

func (b *PresetBuilder) WithCurrentLimit(mA uint32) *PresetBuilder {
	b.preset.Current = mA
	return b
}

func (b *PresetBuilder) WithOutput(s State) *PresetBuilder {
	b.preset.Output = s
	return b
}

func (b *PresetBuilder) WithProtections(c ProtectionConfig) *PresetBuilder {
	b.preset.Protections = c
	return b
}

func (b *PresetBuilder) WithUnderVoltage(mV uint32) *PresetBuilder {
	b.preset.Protections.UnderVoltage = mV
	return b
}

func (b *PresetBuilder) WithOverVoltage(mV uint32) *PresetBuilder {
	b.preset.Protections.OverVoltage = mV
	return b
}

func (b *PresetBuilder) WithOverCurrent(mA uint32) *PresetBuilder {
	b.preset.Protections.OverCurrent = mA
	return b
}

func (b *PresetBuilder) WithOverPower(mW uint32) *PresetBuilder {
	b.preset.Protections.OverPower = mW
	return b
}

func (b *PresetBuilder) WithOverTime(d time.Duration) *PresetBuilder {
	b.preset.Protections.OverTime = d
	return b
}

func (b *PresetBuilder) WithOverCapacity(mAh uint32) *PresetBuilder {
	b.preset.Protections.OverCapacity = mAh
	return b
}

func (b *PresetBuilder) WithOverEnergy(mWh uint32) *PresetBuilder {
	b.preset.Protections.OverEnergy = mWh
	return b
}

func (b *PresetBuilder) WithOverTemperature(t Temperature) *PresetBuilder {
	b.preset.Protections.OverTemperature = t
	return b
}

// Build validates and returns the preset.
func (b *PresetBuilder) Build() (Preset, error) {
	if !b.groupSet {
		return Preset{}, ErrPresetGroupUnset
	}
	if _, err := ParsePresetGroup(int(b.group)); err != nil {
		return Preset{}, err
	}
	c := b.preset.Protections
	if c.OverTime < 0 || c.OverTime/time.Hour > math.MaxUint16 {
		return Preset{}, fmt.Errorf("%w: over-time %v", ErrInvalidRange, c.OverTime)
	}
	if c.OverTemperature.Value < 0 {
		return Preset{}, fmt.Errorf("%w: over-temperature %v", ErrInvalidRange, c.OverTemperature)
	}
	if c.OverTemperature.Unit != Celsius && c.OverTemperature.Unit != Fahrenheit {
		return Preset{}, fmt.Errorf("%w: temperature unit %v", ErrInvalidRange, c.OverTemperature.Unit)
	}
	p := b.preset
	p.Group = b.group
	return p, nil
}
