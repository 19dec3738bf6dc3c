// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"fmt"
	"math"
)

// ScalingFactors converts raw register values to physical units and back.
// Each field is the number of physical units (mV, mA, mW, mAh, mWh) one
// raw count stands for.
type ScalingFactors struct {
	Voltage  uint32
	Current  uint32
	Power    uint32
	Capacity uint32
	Energy   uint32
}

// NewScalingFactors returns factors with the energy divisor derived from
// the power divisor (Power/10, at least 1).
func NewScalingFactors(voltage, current, power, capacity uint32) ScalingFactors {
	energy := power / 10
	if energy == 0 {
		energy = 1
	}
	return ScalingFactors{
		Voltage:  voltage,
		Current:  current,
		Power:    power,
		Capacity: capacity,
		Energy:   energy,
	}
}

// Validate rejects zero divisors.
func (s ScalingFactors) Validate() error {
	for _, d := range []struct {
		name string
		v    uint32
	}{
		{"voltage", s.Voltage},
		{"current", s.Current},
		{"power", s.Power},
		{"capacity", s.Capacity},
		{"energy", s.Energy},
	} {
		if d.v == 0 {
			return fmt.Errorf("%w: %s divisor is zero", ErrInvalidRange, d.name)
		}
	}
	return nil
}

func (s ScalingFactors) RawToVoltage(raw uint16) uint32  { return scaleUp(uint32(raw), s.Voltage) }
func (s ScalingFactors) RawToCurrent(raw uint16) uint32  { return scaleUp(uint32(raw), s.Current) }
func (s ScalingFactors) RawToPower(raw uint16) uint32    { return scaleUp(uint32(raw), s.Power) }
func (s ScalingFactors) RawToCapacity(raw uint32) uint32 { return scaleUp(raw, s.Capacity) }
func (s ScalingFactors) RawToEnergy(raw uint32) uint32   { return scaleUp(raw, s.Energy) }

// VoltageToRaw converts millivolts to a register value.
func (s ScalingFactors) VoltageToRaw(mV uint32) (uint16, error) {
	return scaleDown16("voltage", mV, s.Voltage)
}

// CurrentToRaw converts milliamps to a register value.
func (s ScalingFactors) CurrentToRaw(mA uint32) (uint16, error) {
	return scaleDown16("current", mA, s.Current)
}

// PowerToRaw converts milliwatts to a register value.
func (s ScalingFactors) PowerToRaw(mW uint32) (uint16, error) {
	return scaleDown16("power", mW, s.Power)
}

// CapacityToRaw converts milliamp hours to a 32-bit register pair value.
func (s ScalingFactors) CapacityToRaw(mAh uint32) (uint32, error) {
	if s.Capacity == 0 {
		return 0, fmt.Errorf("%w: capacity divisor is zero", ErrInvalidRange)
	}
	return mAh / s.Capacity, nil
}

// EnergyToRaw converts milliwatt hours to a 32-bit register pair value.
func (s ScalingFactors) EnergyToRaw(mWh uint32) (uint32, error) {
	if s.Energy == 0 {
		return 0, fmt.Errorf("%w: energy divisor is zero", ErrInvalidRange)
	}
	return mWh / s.Energy, nil
}

// scaleUp multiplies, saturating at the largest uint32.
func scaleUp(raw, divisor uint32) uint32 {
	v := uint64(raw) * uint64(divisor)
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func scaleDown16(quantity string, v, divisor uint32) (uint16, error) {
	if divisor == 0 {
		return 0, fmt.Errorf("%w: %s divisor is zero", ErrInvalidRange, quantity)
	}
	raw := v / divisor
	if raw > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %s %d exceeds register range (max %d)", ErrInvalidRange, quantity, v, uint64(math.MaxUint16)*uint64(divisor))
	}
	return uint16(raw), nil
}

// splitWords returns the low and high register of a 32-bit value.
func splitWords(v uint32) (low, high uint16) {
	return uint16(v), uint16(v >> 16)
}

func joinWords(low, high uint16) uint32 {
	return uint32(high)<<16 | uint32(low)
}
