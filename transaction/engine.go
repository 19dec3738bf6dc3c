// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transaction runs Modbus RTU request/response exchanges over a
// transport.Port: it writes the request, accumulates the reply in a buffer
// allocated once, verifies it and decodes it.
package transaction

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/xypsu/modbus/rtu"
	"github.com/ffutop/xypsu/transport"
)

// DefaultBufferSize holds the largest reply the XY series sends (a 15
// register preset block) together with an echo of its request.
const DefaultBufferSize = 128

// Engine exchanges frames with one device. It exclusively owns its port.
// Calls are serialised; the engine is not meant to be shared between
// goroutines.
type Engine struct {
	port     transport.Port
	unitID   byte
	verifier Verifier
	tracer   Tracer
	logger   *slog.Logger

	mu    sync.Mutex
	req   []byte
	buf   []byte
	probe [1]byte
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	unitID     byte
	bufferSize int
	verifier   Verifier
	tracer     Tracer
	logger     *slog.Logger
}

// WithUnitID sets the slave address. It panics if id is outside 1-247.
func WithUnitID(id int) Option {
	if id < rtu.MinSlaveID || id > rtu.MaxSlaveID {
		panic(fmt.Sprintf("transaction: unit id %d outside %d-%d", id, rtu.MinSlaveID, rtu.MaxSlaveID))
	}
	return func(c *config) { c.unitID = byte(id) }
}

// WithBufferSize sets the capacity of the reply buffer. Values below 1
// keep the default.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithVerifier replaces the default EchoVerifier.
func WithVerifier(v Verifier) Option {
	return func(c *config) {
		if v != nil {
			c.verifier = v
		}
	}
}

// WithTracer installs a frame tracer.
func WithTracer(t Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLogger sets the logger used for frame dumps.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// New allocates an Engine on port.
func New(port transport.Port, opts ...Option) *Engine {
	c := config{
		unitID:     rtu.DefaultSlaveID,
		bufferSize: DefaultBufferSize,
		verifier:   EchoVerifier{},
		tracer:     nopTracer{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &Engine{
		port:     port,
		unitID:   c.unitID,
		verifier: c.verifier,
		tracer:   c.tracer,
		logger:   c.logger,
		req:      make([]byte, 0, rtu.MaxSize),
		buf:      make([]byte, 0, c.bufferSize),
	}
}

// UnitID returns the slave address requests are sent to.
func (e *Engine) UnitID() byte { return e.unitID }

// BufferSize returns the capacity of the reply buffer.
func (e *Engine) BufferSize() int { return cap(e.buf) }

// ReadHoldingRegister reads one holding register.
func (e *Engine) ReadHoldingRegister(ctx context.Context, address uint16) (uint16, error) {
	values, err := e.ReadHoldingRegisters(ctx, address, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// ReadHoldingRegisters reads count consecutive holding registers starting at address.
func (e *Engine) ReadHoldingRegisters(ctx context.Context, address, count uint16) ([]uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := rtu.AppendReadHoldingRegisters(e.req[:0], e.unitID, address, count)
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	frame, err := e.transact(ctx, req)
	if err != nil {
		return nil, err
	}
	values, err := rtu.ParseReadHoldingRegistersResponse(make([]uint16, 0, count), e.unitID, int(count), frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return values, nil
}

// WriteSingleRegister writes value to the holding register at address.
func (e *Engine) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req := rtu.AppendWriteSingleRegister(e.req[:0], e.unitID, address, value)
	_, err := e.transact(ctx, req)
	return err
}

// WriteMultipleRegisters writes values to consecutive holding registers
// starting at address in a single request.
func (e *Engine) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := rtu.AppendWriteMultipleRegisters(e.req[:0], e.unitID, address, values)
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	_, err = e.transact(ctx, req)
	return err
}

// transact writes req and returns the verified response frame. The frame
// aliases the reply buffer. Caller must hold the mutex.
func (e *Engine) transact(ctx context.Context, req []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.tracer.TraceFrame(DirectionTx, e.unitID, req)
	e.logger.Debug("send to power supply", "unit", e.unitID, "request", hex.EncodeToString(req))
	if err := e.writeFull(req); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	reply, err := e.accumulate(ctx, req)
	if len(reply) > 0 {
		e.tracer.TraceFrame(DirectionRx, e.unitID, reply)
		e.logger.Debug("recv from power supply", "unit", e.unitID, "response", hex.EncodeToString(reply))
	}
	if err != nil {
		return nil, err
	}

	frame, err := e.verifier.Verify(req, reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return frame, nil
}

// writeFull writes all of b, looping over short writes.
func (e *Engine) writeFull(b []byte) error {
	for len(b) > 0 {
		n, err := e.port.Write(b)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// accumulate reads the reply to req into the fixed buffer until the
// verifier considers it complete or the port runs dry.
func (e *Engine) accumulate(ctx context.Context, req []byte) ([]byte, error) {
	buf := e.buf[:0]
	for {
		if len(buf) > 0 {
			if want := e.verifier.Expect(req, buf); len(buf) >= want {
				if len(buf) > want {
					// The device answered after the looped back request.
					e.logger.Debug("discarding bytes after reply", "unit", e.unitID, "extra", len(buf)-want)
					buf = buf[:want]
				}
				return buf, nil
			}
		}
		if len(buf) == cap(buf) {
			return buf, e.probeFull()
		}
		if err := ctx.Err(); err != nil {
			return buf, err
		}

		n, err := e.port.Read(buf[len(buf):cap(buf)])
		if n > 0 {
			buf = buf[:len(buf)+n]
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, transport.ErrNoData):
			if len(buf) == 0 {
				return buf, ErrTimeout
			}
			return buf, nil
		default:
			return buf, &TransportError{Op: "read", Err: err}
		}
	}
}

// probeFull is called with a full buffer and an incomplete exchange. If the
// device has nothing more to send the buffered bytes are the reply.
func (e *Engine) probeFull() error {
	n, err := e.port.Read(e.probe[:])
	switch {
	case n > 0:
		return fmt.Errorf("%w: capacity %d", ErrBufferExhausted, cap(e.buf))
	case err == nil, errors.Is(err, transport.ErrNoData):
		return nil
	default:
		return &TransportError{Op: "read", Err: err}
	}
}
