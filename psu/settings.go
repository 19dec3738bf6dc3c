// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ffutop/xypsu/modbus/rtu"
)

func (p *PSU) VoltageSetpointRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, VSet)
}

func (p *PSU) SetVoltageSetpointRaw(ctx context.Context, v uint16) error {
	return p.WriteRegisterRaw(ctx, VSet, v)
}

func (p *PSU) CurrentLimitRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, ISet)
}

func (p *PSU) SetCurrentLimitRaw(ctx context.Context, v uint16) error {
	return p.WriteRegisterRaw(ctx, ISet, v)
}

// VoltageSetpoint returns the output voltage setpoint in mV.
func (p *PSU) VoltageSetpoint(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, VSet, ScalingFactors.RawToVoltage)
}

// SetVoltageSetpoint sets the output voltage in mV.
func (p *PSU) SetVoltageSetpoint(ctx context.Context, mV uint32) error {
	return p.writeScaled(ctx, VSet, mV, ScalingFactors.VoltageToRaw)
}

// CurrentLimit returns the output current limit in mA.
func (p *PSU) CurrentLimit(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, ISet, ScalingFactors.RawToCurrent)
}

// SetCurrentLimit sets the output current limit in mA.
func (p *PSU) SetCurrentLimit(ctx context.Context, mA uint32) error {
	return p.writeScaled(ctx, ISet, mA, ScalingFactors.CurrentToRaw)
}

func (p *PSU) OutputState(ctx context.Context) (State, error) { return p.readState(ctx, OnOff) }

// SetOutput switches the output on or off.
func (p *PSU) SetOutput(ctx context.Context, s State) error { return p.writeState(ctx, OnOff, s) }

func (p *PSU) KeyLock(ctx context.Context) (State, error) { return p.readState(ctx, Lock) }

// SetKeyLock locks or unlocks the front panel keys.
func (p *PSU) SetKeyLock(ctx context.Context, s State) error { return p.writeState(ctx, Lock, s) }

func (p *PSU) Buzzer(ctx context.Context) (State, error) { return p.readState(ctx, Buzzer) }

func (p *PSU) SetBuzzer(ctx context.Context, s State) error { return p.writeState(ctx, Buzzer, s) }

// DeviceSleep reports whether the device is asleep (display off).
func (p *PSU) DeviceSleep(ctx context.Context) (State, error) { return p.readState(ctx, Device) }

// SetDeviceSleep puts the device to sleep or wakes it.
func (p *PSU) SetDeviceSleep(ctx context.Context, s State) error { return p.writeState(ctx, Device, s) }

func (p *PSU) MPPT(ctx context.Context) (State, error) { return p.readState(ctx, MpptSw) }

func (p *PSU) SetMPPT(ctx context.Context, s State) error { return p.writeState(ctx, MpptSw, s) }

// MPPTCoefficient returns the raw maximum power point coefficient.
func (p *PSU) MPPTCoefficient(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, MpptK)
}

func (p *PSU) SetMPPTCoefficient(ctx context.Context, v uint16) error {
	return p.WriteRegisterRaw(ctx, MpptK, v)
}

// BatteryFullCurrent returns the charge termination current in mA.
func (p *PSU) BatteryFullCurrent(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, BatFul, ScalingFactors.RawToCurrent)
}

func (p *PSU) SetBatteryFullCurrent(ctx context.Context, mA uint32) error {
	return p.writeScaled(ctx, BatFul, mA, ScalingFactors.CurrentToRaw)
}

func (p *PSU) ConstantPower(ctx context.Context) (State, error) { return p.readState(ctx, CwSw) }

func (p *PSU) SetConstantPower(ctx context.Context, s State) error {
	return p.writeState(ctx, CwSw, s)
}

// ConstantPowerValue returns the constant power target in mW.
func (p *PSU) ConstantPowerValue(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, Cw, ScalingFactors.RawToPower)
}

func (p *PSU) SetConstantPowerValue(ctx context.Context, mW uint32) error {
	return p.writeScaled(ctx, Cw, mW, ScalingFactors.PowerToRaw)
}

// TemperatureUnit returns the unit temperatures are shown and set in.
func (p *PSU) TemperatureUnit(ctx context.Context) (TemperatureUnit, error) {
	v, err := p.ReadRegisterRaw(ctx, FC)
	if err != nil {
		return 0, err
	}
	return ParseTemperatureUnit(v)
}

func (p *PSU) SetTemperatureUnit(ctx context.Context, u TemperatureUnit) error {
	if _, err := ParseTemperatureUnit(uint16(u)); err != nil {
		return err
	}
	return p.WriteRegisterRaw(ctx, FC, uint16(u))
}

// InternalTemperatureOffset returns the calibration offset of the internal
// sensor in tenths of a degree.
func (p *PSU) InternalTemperatureOffset(ctx context.Context) (int16, error) {
	v, err := p.ReadRegisterRaw(ctx, TInOffset)
	return int16(v), err
}

func (p *PSU) SetInternalTemperatureOffset(ctx context.Context, tenths int16) error {
	return p.WriteRegisterRaw(ctx, TInOffset, uint16(tenths))
}

// ExternalTemperatureOffset returns the calibration offset of the external
// probe in tenths of a degree.
func (p *PSU) ExternalTemperatureOffset(ctx context.Context) (int16, error) {
	v, err := p.ReadRegisterRaw(ctx, TExOffset)
	return int16(v), err
}

func (p *PSU) SetExternalTemperatureOffset(ctx context.Context, tenths int16) error {
	return p.WriteRegisterRaw(ctx, TExOffset, uint16(tenths))
}

func (p *PSU) Backlight(ctx context.Context) (BacklightBrightness, error) {
	v, err := p.ReadRegisterRaw(ctx, BLed)
	if err != nil {
		return 0, err
	}
	return ParseBacklightBrightness(v)
}

func (p *PSU) SetBacklight(ctx context.Context, b BacklightBrightness) error {
	if _, err := ParseBacklightBrightness(uint16(b)); err != nil {
		return err
	}
	return p.WriteRegisterRaw(ctx, BLed, uint16(b))
}

// SleepTimeout returns how long the display stays on without input.
func (p *PSU) SleepTimeout(ctx context.Context) (time.Duration, error) {
	v, err := p.ReadRegisterRaw(ctx, Sleep)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Minute, nil
}

// SetSleepTimeout sets the display timeout, truncated to whole minutes.
func (p *PSU) SetSleepTimeout(ctx context.Context, d time.Duration) error {
	minutes := d / time.Minute
	if minutes < 0 || minutes > math.MaxUint16 {
		return fmt.Errorf("%w: sleep timeout %v", ErrInvalidRange, d)
	}
	return p.WriteRegisterRaw(ctx, Sleep, uint16(minutes))
}

func (p *PSU) BaudRate(ctx context.Context) (BaudRate, error) {
	v, err := p.ReadRegisterRaw(ctx, BaudRateL)
	if err != nil {
		return 0, err
	}
	return ParseBaudRate(v)
}

// SetBaudRate changes the line speed of the device. It takes effect after
// the device restarts.
func (p *PSU) SetBaudRate(ctx context.Context, b BaudRate) error {
	if _, err := ParseBaudRate(uint16(b)); err != nil {
		return err
	}
	return p.WriteRegisterRaw(ctx, BaudRateL, uint16(b))
}

func (p *PSU) SlaveAddress(ctx context.Context) (uint8, error) {
	v, err := p.ReadRegisterRaw(ctx, SlaveAdd)
	return uint8(v), err
}

// SetSlaveAddress changes the Modbus address of the device. This session
// keeps using the old address.
func (p *PSU) SetSlaveAddress(ctx context.Context, addr int) error {
	if addr < rtu.MinSlaveID || addr > rtu.MaxSlaveID {
		return fmt.Errorf("%w: slave address %d (want %d-%d)", ErrInvalidRange, addr, rtu.MinSlaveID, rtu.MaxSlaveID)
	}
	return p.WriteRegisterRaw(ctx, SlaveAdd, uint16(addr))
}

// ClearProtection clears a tripped protection and silences the buzzer.
func (p *PSU) ClearProtection(ctx context.Context) error {
	return p.WriteRegisterRaw(ctx, Protect, 0)
}

// ActivePresetGroup returns the preset group the live settings came from.
func (p *PSU) ActivePresetGroup(ctx context.Context) (PresetGroup, error) {
	v, err := p.ReadRegisterRaw(ctx, ExtractM)
	if err != nil {
		return 0, err
	}
	return ParsePresetGroup(int(v))
}

// SelectPresetGroup loads group g into the live settings.
func (p *PSU) SelectPresetGroup(ctx context.Context, g PresetGroup) error {
	if _, err := ParsePresetGroup(int(g)); err != nil {
		return err
	}
	return p.WriteRegisterRaw(ctx, ExtractM, uint16(g))
}

func (p *PSU) writeScaled(ctx context.Context, r Register, v uint32, scale func(ScalingFactors, uint32) (uint16, error)) error {
	if !r.Writable() {
		return fmt.Errorf("write %s: %w", r, ErrReadOnly)
	}
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return err
	}
	raw, err := scale(s, v)
	if err != nil {
		return fmt.Errorf("write %s: %w", r, err)
	}
	return p.WriteRegisterRaw(ctx, r, raw)
}
