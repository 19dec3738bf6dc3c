// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"time"
)

func (p *PSU) ReadOutputVoltageRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, VOut)
}

func (p *PSU) ReadInputVoltageRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, UIn)
}

func (p *PSU) ReadOutputCurrentRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, IOut)
}

func (p *PSU) ReadOutputPowerRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, Power)
}

// ReadOutputVoltage returns the measured output voltage in mV.
func (p *PSU) ReadOutputVoltage(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, VOut, ScalingFactors.RawToVoltage)
}

// ReadInputVoltage returns the measured input voltage in mV.
func (p *PSU) ReadInputVoltage(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, UIn, ScalingFactors.RawToVoltage)
}

// ReadOutputCurrent returns the measured output current in mA.
func (p *PSU) ReadOutputCurrent(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, IOut, ScalingFactors.RawToCurrent)
}

// ReadOutputPower returns the measured output power in mW.
func (p *PSU) ReadOutputPower(ctx context.Context) (uint32, error) {
	return p.readScaled(ctx, Power, ScalingFactors.RawToPower)
}

// ReadOutputCapacity returns the charge delivered since the output was
// switched on, in mAh.
func (p *PSU) ReadOutputCapacity(ctx context.Context) (uint32, error) {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return 0, err
	}
	v, err := p.readRegisters(ctx, AhLow, 2)
	if err != nil {
		return 0, err
	}
	return s.RawToCapacity(joinWords(v[0], v[1])), nil
}

// ReadOutputEnergy returns the energy delivered since the output was
// switched on, in mWh.
func (p *PSU) ReadOutputEnergy(ctx context.Context) (uint32, error) {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return 0, err
	}
	v, err := p.readRegisters(ctx, WhLow, 2)
	if err != nil {
		return 0, err
	}
	return s.RawToEnergy(joinWords(v[0], v[1])), nil
}

// ReadOutputTime returns how long the output has been on.
func (p *PSU) ReadOutputTime(ctx context.Context) (time.Duration, error) {
	v, err := p.readRegisters(ctx, OutH, 3)
	if err != nil {
		return 0, err
	}
	return hms(v[0], v[1], v[2]), nil
}

// ReadInternalTemperature returns the internal temperature in the unit the
// device is configured for.
func (p *PSU) ReadInternalTemperature(ctx context.Context) (Temperature, error) {
	return p.readTemperature(ctx, TIn)
}

// ReadExternalTemperature returns the external probe temperature in the
// unit the device is configured for.
func (p *PSU) ReadExternalTemperature(ctx context.Context) (Temperature, error) {
	return p.readTemperature(ctx, TEx)
}

func (p *PSU) ReadControlMode(ctx context.Context) (ControlMode, error) {
	v, err := p.ReadRegisterRaw(ctx, CvCc)
	if err != nil {
		return 0, err
	}
	return controlModeFromRaw(v), nil
}

func (p *PSU) ReadProtectionStatus(ctx context.Context) (ProtectionStatus, error) {
	v, err := p.ReadRegisterRaw(ctx, Protect)
	if err != nil {
		return 0, err
	}
	return ProtectionStatus(v), nil
}

// ReadMeasurements reads every measurement register, VOUT through F-C, in
// one transaction.
func (p *PSU) ReadMeasurements(ctx context.Context) (Measurements, error) {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return Measurements{}, err
	}
	v, err := p.readRegisters(ctx, VOut, uint16(FC-VOut)+1)
	if err != nil {
		return Measurements{}, err
	}
	at := func(r Register) uint16 { return v[r-VOut] }
	unit, err := ParseTemperatureUnit(at(FC))
	if err != nil {
		return Measurements{}, err
	}
	return Measurements{
		OutputVoltage:       s.RawToVoltage(at(VOut)),
		OutputCurrent:       s.RawToCurrent(at(IOut)),
		OutputPower:         s.RawToPower(at(Power)),
		InputVoltage:        s.RawToVoltage(at(UIn)),
		OutputCapacity:      s.RawToCapacity(joinWords(at(AhLow), at(AhHigh))),
		OutputEnergy:        s.RawToEnergy(joinWords(at(WhLow), at(WhHigh))),
		OutputTime:          hms(at(OutH), at(OutM), at(OutS)),
		InternalTemperature: temperatureFromTenths(at(TIn), unit),
		ExternalTemperature: temperatureFromTenths(at(TEx), unit),
		KeyLock:             Lock.state(at(Lock)),
		Protection:          ProtectionStatus(at(Protect)),
		Mode:                controlModeFromRaw(at(CvCc)),
		Output:              OnOff.state(at(OnOff)),
	}, nil
}

func (p *PSU) readScaled(ctx context.Context, r Register, scale func(ScalingFactors, uint16) uint32) (uint32, error) {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return 0, err
	}
	v, err := p.ReadRegisterRaw(ctx, r)
	if err != nil {
		return 0, err
	}
	return scale(s, v), nil
}

func (p *PSU) readTemperature(ctx context.Context, r Register) (Temperature, error) {
	unit, err := p.TemperatureUnit(ctx)
	if err != nil {
		return Temperature{}, err
	}
	v, err := p.ReadRegisterRaw(ctx, r)
	if err != nil {
		return Temperature{}, err
	}
	return temperatureFromTenths(v, unit), nil
}

func hms(h, m, s uint16) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}
