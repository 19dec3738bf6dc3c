// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transaction

// Direction tells whether a traced frame was sent or received.
type Direction uint8

const (
	DirectionTx Direction = iota
	DirectionRx
)

func (d Direction) String() string {
	switch d {
	case DirectionTx:
		return "tx"
	case DirectionRx:
		return "rx"
	default:
		return "unknown"
	}
}

// Tracer observes every request written and every reply accumulated.
// frame aliases the engine's buffers and is only valid during the call.
type Tracer interface {
	TraceFrame(dir Direction, unitID byte, frame []byte)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(dir Direction, unitID byte, frame []byte)

func (f TracerFunc) TraceFrame(dir Direction, unitID byte, frame []byte) {
	f(dir, unitID, frame)
}

type nopTracer struct{}

func (nopTracer) TraceFrame(Direction, byte, []byte) {}
