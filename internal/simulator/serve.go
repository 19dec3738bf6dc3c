// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/ffutop/xypsu/modbus/rtu"
	"github.com/ffutop/xypsu/transport"
	"github.com/ffutop/xypsu/transport/serial"
)

// pollInterval bounds how long a TCP read blocks before the context is
// checked again.
const pollInterval = 200 * time.Millisecond

// Serve answers request frames read from port until ctx is done or the
// port reaches EOF. Reads reporting transport.ErrNoData are idle line; a
// frame interrupted by silence is dropped.
func (d *Device) Serve(ctx context.Context, port transport.Port) error {
	buf := make([]byte, rtu.MaxSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Read 1 byte to detect the start of a frame.
		n, err := port.Read(buf[:1])
		if errors.Is(err, transport.ErrNoData) || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			return d.serveError(ctx, err)
		}

		// Every supported request is at least 8 bytes, and 7 cover the
		// byte count of a write multiple request.
		current, err := fill(port, buf, 1, 7)
		if err != nil {
			if errors.Is(err, transport.ErrNoData) {
				d.logger.Debug("simulator dropped partial frame", "len", current)
				continue
			}
			return d.serveError(ctx, err)
		}

		expectedLen, err := rtu.CalculateRequestLength(buf[1], buf[:current])
		if err != nil || expectedLen > len(buf) {
			d.logger.Debug("simulator dropped frame", "func", buf[1], "err", err)
			continue
		}

		current, err = fill(port, buf, current, expectedLen)
		if err != nil {
			if errors.Is(err, transport.ErrNoData) {
				d.logger.Debug("simulator dropped partial frame", "len", current)
				continue
			}
			return d.serveError(ctx, err)
		}

		reply, ok := d.Handle(buf[:expectedLen])
		if !ok {
			continue
		}
		if _, err := port.Write(reply); err != nil {
			return d.serveError(ctx, err)
		}
	}
}

func (d *Device) serveError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// fill reads into buf until it holds need bytes.
func fill(port transport.Port, buf []byte, current, need int) (int, error) {
	for current < need {
		n, err := port.Read(buf[current:need])
		current += n
		if err != nil {
			return current, err
		}
	}
	return current, nil
}

// ListenSerial serves the device on a serial line until ctx is done.
func (d *Device) ListenSerial(ctx context.Context, cfg serial.Config) error {
	port := serial.New(cfg, d.logger)
	defer port.Close()

	d.logger.Info("Simulator listening", "device", cfg.Device, "unit", d.unitID)
	return d.Serve(ctx, port)
}

// ListenTCP serves the device as an RTU over TCP slave on address until
// ctx is done.
func (d *Device) ListenTCP(ctx context.Context, address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return d.ServeListener(ctx, l)
}

// ServeListener accepts RTU over TCP connections on l until ctx is done.
// It closes l.
func (d *Device) ServeListener(ctx context.Context, l net.Listener) error {
	d.logger.Info("Simulator listening", "addr", l.Addr().String(), "unit", d.unitID)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.logger.Error("Failed to accept connection", "err", err)
			continue
		}
		go d.handleConnection(ctx, conn)
	}
}

func (d *Device) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	d.logger.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	if err := d.Serve(ctx, connPort{conn}); err != nil {
		d.logger.Error("Connection closed", "addr", conn.RemoteAddr(), "err", err)
	}
}

// connPort reports a quiet connection as transport.ErrNoData so Serve can
// observe its context.
type connPort struct {
	net.Conn
}

func (c connPort) Read(b []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, err
	}
	n, err := c.Conn.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if n > 0 {
			return n, nil
		}
		return 0, transport.ErrNoData
	}
	return n, err
}
