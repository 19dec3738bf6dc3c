// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package psu drives Sinilink XY series programmable power supplies over
// Modbus RTU. Physical quantities are integers in mV, mA, mW, mAh and mWh.
package psu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/xypsu/transaction"
	"github.com/ffutop/xypsu/transport"
)

// PSU is a session with one power supply. It exclusively owns its port
// and is not safe for concurrent use.
type PSU struct {
	engine *transaction.Engine
	logger *slog.Logger

	// scaling is resolved on first scaled access unless set explicitly.
	scaling  *ScalingFactors
	model    *ProductModel
	reselect *bool
}

// Option configures a PSU.
type Option func(*options)

type options struct {
	engine   []transaction.Option
	logger   *slog.Logger
	scaling  *ScalingFactors
	reselect *bool
}

// WithUnitID sets the Modbus slave address (default 1). It panics if id
// is outside 1-247.
func WithUnitID(id int) Option {
	opt := transaction.WithUnitID(id)
	return func(o *options) { o.engine = append(o.engine, opt) }
}

// WithBufferSize sets the capacity of the reply buffer.
func WithBufferSize(n int) Option {
	return func(o *options) { o.engine = append(o.engine, transaction.WithBufferSize(n)) }
}

// WithVerifier selects how replies are checked against requests.
func WithVerifier(v transaction.Verifier) Option {
	return func(o *options) { o.engine = append(o.engine, transaction.WithVerifier(v)) }
}

// WithTracer observes every frame on the wire.
func WithTracer(t transaction.Tracer) Option {
	return func(o *options) { o.engine = append(o.engine, transaction.WithTracer(t)) }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
		o.engine = append(o.engine, transaction.WithLogger(l))
	}
}

// WithScalingFactors skips model detection. It panics if s has a zero
// divisor; use SetScalingFactors to handle that as an error.
func WithScalingFactors(s ScalingFactors) Option {
	if err := s.Validate(); err != nil {
		panic(fmt.Sprintf("psu: %v", err))
	}
	return func(o *options) { o.scaling = &s }
}

// WithPresetReselect overrides whether SetProtections selects the active
// group again after rewriting it.
func WithPresetReselect(reselect bool) Option {
	return func(o *options) { o.reselect = &reselect }
}

// New returns a session on port.
func New(port transport.Port, opts ...Option) *PSU {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &PSU{
		engine:   transaction.New(port, o.engine...),
		logger:   o.logger,
		scaling:  o.scaling,
		reselect: o.reselect,
	}
}

// Engine returns the transaction engine for register access outside the
// live register map, such as preset blocks.
func (p *PSU) Engine() *transaction.Engine { return p.engine }

// SetScalingFactors sets the factors used by scaled accessors for the rest
// of the session.
func (p *PSU) SetScalingFactors(s ScalingFactors) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p.scaling = &s
	return nil
}

// ScalingFactors returns the session's factors, detecting the model on
// first use.
func (p *PSU) ScalingFactors(ctx context.Context) (ScalingFactors, error) {
	if p.scaling != nil {
		return *p.scaling, nil
	}
	m, err := p.ProductModel(ctx)
	if err != nil {
		var unknown *UnknownModelError
		if errors.As(err, &unknown) {
			return ScalingFactors{}, fmt.Errorf("%w: %w", ErrScalingUnavailable, err)
		}
		return ScalingFactors{}, err
	}
	s, ok := m.ScalingFactors()
	if !ok {
		return ScalingFactors{}, fmt.Errorf("%w: no confirmed factors for %s", ErrScalingUnavailable, m)
	}
	p.logger.Debug("resolved scaling factors", "model", m, "scaling", s)
	p.scaling = &s
	return s, nil
}

// ProductModelRaw returns the MODEL register.
func (p *PSU) ProductModelRaw(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, Model)
}

// ProductModel reads and parses the MODEL register. A recognised model is
// cached for the session.
func (p *PSU) ProductModel(ctx context.Context) (ProductModel, error) {
	if p.model != nil {
		return *p.model, nil
	}
	code, err := p.ProductModelRaw(ctx)
	if err != nil {
		return 0, err
	}
	m, err := ParseProductModel(code)
	if err != nil {
		return 0, err
	}
	p.model = &m
	return m, nil
}

// FirmwareVersion returns the VERSION register.
func (p *PSU) FirmwareVersion(ctx context.Context) (uint16, error) {
	return p.ReadRegisterRaw(ctx, Version)
}

// ReadRegisterRaw reads one register of the live map.
func (p *PSU) ReadRegisterRaw(ctx context.Context, r Register) (uint16, error) {
	if !r.Valid() {
		return 0, fmt.Errorf("%w: register %s", ErrInvalidRange, r)
	}
	v, err := p.engine.ReadHoldingRegister(ctx, r.Address())
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", r, err)
	}
	return v, nil
}

// WriteRegisterRaw writes one register of the live map. Read-only
// registers fail with ErrReadOnly without touching the bus.
func (p *PSU) WriteRegisterRaw(ctx context.Context, r Register, v uint16) error {
	if !r.Valid() {
		return fmt.Errorf("%w: register %s", ErrInvalidRange, r)
	}
	if !r.Writable() {
		return fmt.Errorf("write %s: %w", r, ErrReadOnly)
	}
	if err := p.engine.WriteSingleRegister(ctx, r.Address(), v); err != nil {
		return fmt.Errorf("write %s: %w", r, err)
	}
	return nil
}

// readRegisters reads count registers starting at r.
func (p *PSU) readRegisters(ctx context.Context, r Register, count uint16) ([]uint16, error) {
	v, err := p.engine.ReadHoldingRegisters(ctx, r.Address(), count)
	if err != nil {
		return nil, fmt.Errorf("read %s+%d: %w", r, count, err)
	}
	return v, nil
}

func (p *PSU) readState(ctx context.Context, r Register) (State, error) {
	v, err := p.ReadRegisterRaw(ctx, r)
	if err != nil {
		return Off, err
	}
	return r.state(v), nil
}

func (p *PSU) writeState(ctx context.Context, r Register, s State) error {
	return p.WriteRegisterRaw(ctx, r, r.stateValue(s))
}
