// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"sync"

	"github.com/ffutop/xypsu/modbus/rtu"
	"github.com/ffutop/xypsu/transport"
)

// Port is an in-memory transport.Port wired to a Device. A request is
// answered as soon as its last byte is written; reads return
// transport.ErrNoData once the reply is drained. Unread bytes stay queued
// across requests, as on a real line. A Read never spans a looped back
// request and the answer behind it.
type Port struct {
	dev *Device

	mu     sync.Mutex
	chunk  int
	silent bool
	in     []byte
	out    [][]byte
	writes int
}

var _ transport.Port = (*Port)(nil)

// NewPort returns a port to d.
func NewPort(d *Device) *Port {
	return &Port{dev: d}
}

// SetChunkSize limits how many bytes a single Read returns. Zero or less
// removes the limit.
func (p *Port) SetChunkSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunk = n
}

// SetSilent makes the device process requests without replying.
func (p *Port) SetSilent(silent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silent = silent
}

// Writes returns the number of request frames the device has seen.
func (p *Port) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Pending returns the number of reply bytes not read yet.
func (p *Port) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, seg := range p.out {
		n += len(seg)
	}
	return n
}

// Write feeds request bytes to the device.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.in = append(p.in, b...)
	for {
		need, ok := p.frameLength()
		if !ok || len(p.in) < need {
			break
		}
		p.writes++
		reply, answered := p.dev.Handle(p.in[:need])
		if answered && !p.silent {
			if p.dev.echo {
				p.out = append(p.out, reply[:need:need])
				reply = reply[need:]
			}
			p.out = append(p.out, reply)
		}
		p.in = append(p.in[:0], p.in[need:]...)
	}
	return len(b), nil
}

// frameLength returns the length of the frame at the head of the input.
// An unparseable head discards the input.
func (p *Port) frameLength() (int, bool) {
	if len(p.in) < 2 {
		return 0, false
	}
	need, err := rtu.CalculateRequestLength(p.in[1], p.in)
	if err != nil {
		// A write multiple request needs its byte count first.
		if len(p.in) >= rtu.RequestHeaderSize+1 {
			p.in = p.in[:0]
		}
		return 0, false
	}
	return need, true
}

// Read returns reply bytes, at most the chunk size at a time.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.out) == 0 {
		return 0, transport.ErrNoData
	}
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	n := copy(b, p.out[0])
	if p.out[0] = p.out[0][n:]; len(p.out[0]) == 0 {
		p.out = p.out[1:]
	}
	return n, nil
}
