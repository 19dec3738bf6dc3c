// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/xypsu/internal/config"
	"github.com/ffutop/xypsu/internal/trace"
	"github.com/ffutop/xypsu/psu"
	"github.com/ffutop/xypsu/transaction"
	"github.com/ffutop/xypsu/transport"
	"github.com/ffutop/xypsu/transport/rtuovertcp"
	"github.com/ffutop/xypsu/transport/serial"
)

// session is an open connection to the configured power supply.
type session struct {
	*psu.PSU
	closers []io.Closer
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openPort builds the transport named by cfg.Transport.
func openPort(cfg *config.Config, logger *slog.Logger) (transport.Port, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		p := serial.New(cfg.Serial.SerialPort(), logger)
		return p, p, nil
	case config.TransportRTUOverTCP:
		p := rtuovertcp.New(cfg.TCP.Address, logger)
		if cfg.TCP.DialTimeout > 0 {
			p.DialTimeout = cfg.TCP.DialTimeout
		}
		if cfg.TCP.Timeout > 0 {
			p.ReadTimeout = cfg.TCP.Timeout
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// open connects to the power supply. Nothing is sent until the first
// command.
func (a *app) open() (*session, error) {
	cfg := a.cfg
	logger := slog.Default()

	port, closer, err := openPort(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &session{closers: []io.Closer{closer}}

	verifier, err := transaction.VerifierByName(cfg.Device.Verifier)
	if err != nil {
		s.Close()
		return nil, err
	}
	opts := []psu.Option{
		psu.WithUnitID(cfg.Device.UnitID),
		psu.WithBufferSize(cfg.Device.BufferSize),
		psu.WithVerifier(verifier),
		psu.WithLogger(logger),
	}
	if f, ok := cfg.Device.Scaling.Factors(); ok {
		opts = append(opts, psu.WithScalingFactors(f))
	}
	if r := cfg.Device.ReselectPolicy(); r != nil {
		opts = append(opts, psu.WithPresetReselect(*r))
	}
	if cfg.Trace.File != "" {
		tracer, err := trace.NewFileTracer(cfg.Trace.File)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		logger.Debug("tracing frames", "file", cfg.Trace.File, "session", tracer.SessionID())
		s.closers = append(s.closers, tracer)
		opts = append(opts, psu.WithTracer(tracer))
	}

	s.PSU = psu.New(port, opts...)
	return s, nil
}
