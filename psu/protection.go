// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"errors"
	"fmt"
)

// ReadPresetRaw reads the register block of group g.
func (p *PSU) ReadPresetRaw(ctx context.Context, g PresetGroup) (regs [PresetRegisters]uint16, err error) {
	if _, err = ParsePresetGroup(int(g)); err != nil {
		return
	}
	v, err := p.engine.ReadHoldingRegisters(ctx, g.Base(), PresetRegisters)
	if err != nil {
		return regs, fmt.Errorf("read preset %s: %w", g, err)
	}
	copy(regs[:], v)
	return regs, nil
}

// ReadPreset reads and decodes preset group g.
func (p *PSU) ReadPreset(ctx context.Context, g PresetGroup) (Preset, error) {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return Preset{}, err
	}
	regs, err := p.ReadPresetRaw(ctx, g)
	if err != nil {
		return Preset{}, err
	}
	unit, err := p.TemperatureUnit(ctx)
	if err != nil {
		return Preset{}, err
	}
	return DecodePreset(g, regs, s, unit), nil
}

// WritePreset stores preset in its group with a single bulk write. A
// failed write is returned as *PresetWriteError.
func (p *PSU) WritePreset(ctx context.Context, preset Preset) error {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return err
	}
	unit, err := p.TemperatureUnit(ctx)
	if err != nil {
		return err
	}
	base, regs, err := preset.Encode(s, unit)
	if err != nil {
		return err
	}
	return p.writePresetBlock(ctx, preset.Group, base, regs)
}

// GetProtections returns the protection thresholds of the active preset group.
func (p *PSU) GetProtections(ctx context.Context) (ProtectionConfig, error) {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return ProtectionConfig{}, err
	}
	g, err := p.ActivePresetGroup(ctx)
	if err != nil {
		return ProtectionConfig{}, err
	}
	regs, err := p.ReadPresetRaw(ctx, g)
	if err != nil {
		return ProtectionConfig{}, err
	}
	unit, err := p.TemperatureUnit(ctx)
	if err != nil {
		return ProtectionConfig{}, err
	}
	return decodeProtections(regs, s, unit), nil
}

// SetProtections replaces the protection thresholds of the active preset
// group. The group's setpoints and output state are read back and written
// unchanged, since the block can only be written as a whole.
func (p *PSU) SetProtections(ctx context.Context, c ProtectionConfig) error {
	s, err := p.ScalingFactors(ctx)
	if err != nil {
		return err
	}
	g, err := p.ActivePresetGroup(ctx)
	if err != nil {
		return err
	}
	regs, err := p.ReadPresetRaw(ctx, g)
	if err != nil {
		return err
	}
	unit, err := p.TemperatureUnit(ctx)
	if err != nil {
		return err
	}
	if err = c.encode(&regs, s, unit); err != nil {
		return err
	}
	if err = p.writePresetBlock(ctx, g, g.Base(), regs); err != nil {
		return err
	}
	reselect, err := p.reselectAfterWrite(ctx)
	if err != nil || !reselect {
		return err
	}
	p.logger.Debug("reselecting preset group", "group", g)
	return p.SelectPresetGroup(ctx, g)
}

func (p *PSU) writePresetBlock(ctx context.Context, g PresetGroup, base uint16, regs [PresetRegisters]uint16) error {
	if err := p.engine.WriteMultipleRegisters(ctx, base, regs[:]); err != nil {
		return &PresetWriteError{Group: g, Err: err}
	}
	return nil
}

// reselectAfterWrite applies the explicit option, else the model default.
// An unrecognised model reselects; failing to read the model is an error.
func (p *PSU) reselectAfterWrite(ctx context.Context) (bool, error) {
	if p.reselect != nil {
		return *p.reselect, nil
	}
	m, err := p.ProductModel(ctx)
	if err != nil {
		var unknown *UnknownModelError
		if !errors.As(err, &unknown) {
			return false, err
		}
		p.logger.Debug("model unknown, reselecting preset group", "err", err)
		return true, nil
	}
	return m.ReselectAfterPresetWrite(), nil
}
