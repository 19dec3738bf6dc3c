// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial provides a transport.Port backed by a local serial device.
package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/xypsu/transport"
)

const (
	// Defaults of the XY series firmware.
	DefaultBaudRate    = 115200
	DefaultTimeout     = 300 * time.Millisecond
	DefaultIdleTimeout = 60 * time.Second
)

// Config describes the serial line.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	// Timeout bounds a single Read before it reports transport.ErrNoData.
	Timeout time.Duration
	// IdleTimeout closes the device after this long without traffic. Zero keeps it open.
	IdleTimeout time.Duration

	// RS485 specific
	RS485              bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

// Port is a transport.Port over a serial device. The device is opened on
// first use and reopened after a fatal error or an idle close.
type Port struct {
	config      serial.Config
	idleTimeout time.Duration
	logger      *slog.Logger

	open func(*serial.Config) (io.ReadWriteCloser, error)

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

var _ transport.Port = (*Port)(nil)

// New returns a Port for cfg. Zero fields take the XY series defaults
// (115200 8N1, 300ms read timeout).
func New(cfg Config, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Port{
		config: serial.Config{
			Address:  cfg.Device,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			Parity:   cfg.Parity,
			StopBits: cfg.StopBits,
			Timeout:  cfg.Timeout,
			RS485: serial.RS485Config{
				Enabled:            cfg.RS485,
				DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
				DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
				RtsHighDuringSend:  cfg.RtsHighDuringSend,
				RtsHighAfterSend:   cfg.RtsHighAfterSend,
				RxDuringTx:         cfg.RxDuringTx,
			},
		},
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		open: func(c *serial.Config) (io.ReadWriteCloser, error) {
			return serial.Open(c)
		},
	}
	if p.config.BaudRate == 0 {
		p.config.BaudRate = DefaultBaudRate
	}
	if p.config.DataBits == 0 {
		p.config.DataBits = 8
	}
	if p.config.StopBits == 0 {
		p.config.StopBits = 1
	}
	if p.config.Parity == "" {
		p.config.Parity = "N"
	}
	if p.config.Timeout == 0 {
		p.config.Timeout = DefaultTimeout
	}
	return p
}

// Read reads from the device. A read timeout is reported as transport.ErrNoData.
func (p *Port) Read(b []byte) (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.connect(); err != nil {
		return 0, err
	}
	n, err = p.port.Read(b)
	if n > 0 {
		p.touch()
	}
	switch {
	case errors.Is(err, serial.ErrTimeout):
		if n > 0 {
			return n, nil
		}
		return 0, transport.ErrNoData
	case err == nil && n == 0:
		return 0, transport.ErrNoData
	case err != nil:
		p.logger.Debug("serial read failed, closing port", "device", p.config.Address, "err", err)
		p.close()
	}
	return n, err
}

// Write waits out the inter-frame silence since the last byte on the line
// and then writes b.
func (p *Port) Write(b []byte) (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.connect(); err != nil {
		return 0, err
	}
	if !p.lastActivity.IsZero() {
		if wait := p.frameDelay() - time.Since(p.lastActivity); wait > 0 {
			time.Sleep(wait)
		}
	}
	n, err = p.port.Write(b)
	p.touch()
	if err != nil {
		p.logger.Debug("serial write failed, closing port", "device", p.config.Address, "err", err)
		p.close()
	}
	return n, err
}

// Close closes the device if it is open.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closeTimer != nil {
		p.closeTimer.Stop()
	}
	return p.close()
}

// connect opens the device if it is not open. Caller must hold the mutex.
func (p *Port) connect() error {
	if p.port == nil {
		port, err := p.open(&p.config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", p.config.Address, err)
		}
		p.logger.Debug("serial port opened", "device", p.config.Address, "baud", p.config.BaudRate)
		p.port = port
	}
	return nil
}

// close closes the device if it is open. Caller must hold the mutex.
func (p *Port) close() (err error) {
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return
}

// touch records line activity and rearms the idle timer. Caller must hold the mutex.
func (p *Port) touch() {
	p.lastActivity = time.Now()
	if p.idleTimeout <= 0 {
		return
	}
	if p.closeTimer == nil {
		p.closeTimer = time.AfterFunc(p.idleTimeout, p.closeIdle)
	} else {
		p.closeTimer.Reset(p.idleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (p *Port) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idle := time.Since(p.lastActivity); idle >= p.idleTimeout {
		p.logger.Debug("closing serial port due to idle timeout", "device", p.config.Address, "idle", idle)
		p.close()
	}
}

// frameDelay is the 3.5 character silence that separates RTU frames.
func (p *Port) frameDelay() time.Duration {
	if p.config.BaudRate <= 0 || p.config.BaudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/p.config.BaudRate) * time.Microsecond
}
