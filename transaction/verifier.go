// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transaction

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ffutop/xypsu/modbus"
	"github.com/ffutop/xypsu/modbus/rtu"
)

// Verifier decides when a reply is complete and whether it answers the
// request. Devices and bus adapters differ in whether the request is
// echoed back before the response, so the policy is pluggable.
type Verifier interface {
	// Expect returns the reply length, in bytes, after which the exchange
	// is complete, given the bytes accumulated so far.
	Expect(req, buf []byte) int
	// Verify checks reply against req and returns the response frame with
	// any echo removed. Returned errors are wrapped in ErrInvalidResponse
	// by the engine.
	Verify(req, reply []byte) ([]byte, error)
}

// VerifierByName returns the verifier configured as "echo" or "decode".
func VerifierByName(name string) (Verifier, error) {
	switch name {
	case "", "echo":
		return EchoVerifier{}, nil
	case "decode":
		return DecodeVerifier{}, nil
	default:
		return nil, fmt.Errorf("transaction: unknown verifier %q", name)
	}
}

// EchoVerifier is the default policy for a half-duplex line that loops
// every request back before the device answers. The looped back request
// is stripped when present. A single register write must then be answered
// byte for byte, a multiple register write must answer with the request
// header, and a read reply is decoded.
type EchoVerifier struct{}

func (EchoVerifier) Expect(req, buf []byte) int {
	respLen := rtu.CalculateResponseLength(req)
	n := min(len(buf), len(req))
	if bytes.Equal(buf[:n], req[:n]) {
		// Looped back request so far; the answer follows it. Without a
		// loopback the idle line ends the reply instead.
		return len(req) + respLen
	}
	return respLen
}

func (EchoVerifier) Verify(req, reply []byte) ([]byte, error) {
	resp := stripEcho(req, reply)
	switch req[1] {
	case modbus.FuncCodeWriteSingleRegister:
		if bytes.Equal(resp, req) {
			return resp, nil
		}
		if err := checkException(req, resp); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: sent % X, received % X", ErrEchoMismatch, req, resp)
	case modbus.FuncCodeWriteMultipleRegisters:
		if len(resp) < rtu.RequestHeaderSize || !bytes.Equal(resp[:rtu.RequestHeaderSize], req[:rtu.RequestHeaderSize]) {
			if err := checkException(req, resp); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: sent header % X, received % X", ErrEchoMismatch, req[:rtu.RequestHeaderSize], resp)
		}
		if !bytes.Equal(resp, req) {
			if _, err := rtu.Decode(resp); err != nil {
				return nil, err
			}
		}
		return resp, nil
	default:
		return resp, nil
	}
}

// stripEcho removes a looped back req from the front of reply. A reply
// that is only the echo is returned as is.
func stripEcho(req, reply []byte) []byte {
	if len(reply) > len(req) && bytes.Equal(reply[:len(req)], req) {
		return reply[len(req):]
	}
	return reply
}

// DecodeVerifier checks replies structurally: every reply is CRC checked
// and decoded, and write replies must confirm the address and value (or
// count) of the request. It does not tolerate echoes before a read reply.
type DecodeVerifier struct{}

func (DecodeVerifier) Expect(req, _ []byte) int {
	return rtu.CalculateResponseLength(req)
}

func (DecodeVerifier) Verify(req, reply []byte) ([]byte, error) {
	if err := checkException(req, reply); err != nil {
		return nil, err
	}
	switch req[1] {
	case modbus.FuncCodeWriteSingleRegister:
		_, addr, value, err := rtu.ParseWriteSingleRegister(reply)
		if err != nil {
			return nil, err
		}
		wantAddr, wantValue := binary.BigEndian.Uint16(req[2:]), binary.BigEndian.Uint16(req[4:])
		if addr != wantAddr || value != wantValue {
			return nil, fmt.Errorf("%w: wrote %#04x=%#04x, device confirmed %#04x=%#04x", rtu.ErrMalformed, wantAddr, wantValue, addr, value)
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		_, addr, count, err := rtu.ParseWriteMultipleRegistersResponse(reply)
		if err != nil {
			return nil, err
		}
		wantAddr, wantCount := binary.BigEndian.Uint16(req[2:]), binary.BigEndian.Uint16(req[4:])
		if addr != wantAddr || count != wantCount {
			return nil, fmt.Errorf("%w: wrote %d registers at %#04x, device confirmed %d at %#04x", rtu.ErrMalformed, wantCount, wantAddr, count, addr)
		}
	}
	return reply, nil
}

// checkException decodes reply and reports a slave id mismatch, a Modbus
// exception or a function code mismatch against req.
func checkException(req, reply []byte) error {
	resp, err := rtu.Decode(reply)
	if err != nil {
		return err
	}
	adu := rtu.ApplicationDataUnit{SlaveID: req[0], Pdu: modbus.ProtocolDataUnit{FunctionCode: req[1]}}
	return adu.Verify(resp)
}
