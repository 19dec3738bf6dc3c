// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/xypsu/modbus"
)

var (
	// ErrCRCMismatch is returned when a frame's trailing CRC is wrong.
	ErrCRCMismatch = errors.New("modbus: crc mismatch")
	// ErrMalformed is returned for structurally invalid frames.
	ErrMalformed = errors.New("modbus: malformed frame")
)

type InvalidLengthError struct {
	Length int
	Want   int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("modbus: invalid frame length %d, want %d", e.Length, e.Want)
}

func (e *InvalidLengthError) Unwrap() error { return ErrMalformed }

// ExceptionError is a Modbus exception response sent by the slave.
type ExceptionError struct {
	FunctionCode byte
	Code         byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception 0x%02X (%s) for function 0x%02X", e.Code, modbus.ExceptionText(e.Code), e.FunctionCode)
}
