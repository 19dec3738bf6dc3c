// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp provides a transport.Port for RTU frames carried
// unchanged over TCP, as spoken by serial-to-Ethernet bridges.
package rtuovertcp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ffutop/xypsu/transport"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultReadTimeout = 300 * time.Millisecond
)

// Port is a transport.Port over a TCP connection. The connection is dialed
// on first use and redialed after a fatal error.
type Port struct {
	Address     string
	DialTimeout time.Duration
	// ReadTimeout bounds a single Read before it reports transport.ErrNoData.
	ReadTimeout time.Duration

	logger *slog.Logger
	dial   func(network, address string, timeout time.Duration) (net.Conn, error)

	mu   sync.Mutex
	conn net.Conn
}

var _ transport.Port = (*Port)(nil)

// New allocates a Port for the bridge at address.
func New(address string, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{
		Address:     address,
		DialTimeout: DefaultDialTimeout,
		ReadTimeout: DefaultReadTimeout,
		logger:      logger,
		dial:        net.DialTimeout,
	}
}

// Read reads from the connection. An expired read deadline is reported as
// transport.ErrNoData.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return 0, err
	}
	if err := p.conn.SetReadDeadline(time.Now().Add(p.ReadTimeout)); err != nil {
		p.close()
		return 0, err
	}
	n, err := p.conn.Read(b)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			if n > 0 {
				return n, nil
			}
			return 0, transport.ErrNoData
		}
		// Close connection on read failure to force reconnect next time
		p.logger.Debug("rtu-over-tcp read failed, closing connection", "addr", p.Address, "err", err)
		p.close()
	}
	return n, err
}

// Write writes b to the connection.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return 0, err
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.DialTimeout)); err != nil {
		p.close()
		return 0, err
	}
	n, err := p.conn.Write(b)
	if err != nil {
		p.logger.Debug("rtu-over-tcp write failed, closing connection", "addr", p.Address, "err", err)
		p.close()
	}
	return n, err
}

// Close closes the connection if it is open.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.close()
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (p *Port) connect() error {
	if p.conn != nil {
		return nil
	}
	conn, err := p.dial("tcp", p.Address, p.DialTimeout)
	if err != nil {
		return fmt.Errorf("modbus: failed to connect to %s: %w", p.Address, err)
	}
	p.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (p *Port) close() (err error) {
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return
}
