// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"errors"
	"fmt"

	"github.com/ffutop/xypsu/transaction"
)

var (
	// ErrInvalidRange is returned when a value cannot be represented in
	// its register, or is outside the range the device accepts.
	ErrInvalidRange = errors.New("psu: value out of range")
	// ErrScalingUnavailable is returned by scaled accessors when no
	// scaling factors were set and the detected model has none confirmed.
	ErrScalingUnavailable = errors.New("psu: scaling factors unavailable")
	// ErrReadOnly is returned, before any I/O, when writing a read-only register.
	ErrReadOnly = errors.New("psu: register is read-only")
	// ErrPresetGroupUnset is returned by PresetBuilder.Build without a group.
	ErrPresetGroupUnset = errors.New("psu: preset group not set")
)

// Errors of the transaction engine, re-exported for callers of this package.
var (
	ErrTransport       = transaction.ErrTransport
	ErrInvalidResponse = transaction.ErrInvalidResponse
	ErrTimeout         = transaction.ErrTimeout
	ErrBufferExhausted = transaction.ErrBufferExhausted
)

// UnknownModelError is returned when the model register holds a code that
// is not a recognised product.
type UnknownModelError struct {
	Code uint16
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("psu: unknown product model code %d", e.Code)
}

// PresetWriteError is returned when the bulk write of a preset block
// failed. The device may have applied part of the block.
type PresetWriteError struct {
	Group PresetGroup
	Err   error
}

func (e *PresetWriteError) Error() string {
	return fmt.Sprintf("psu: writing preset group %d may be incomplete: %v", e.Group, e.Err)
}

func (e *PresetWriteError) Unwrap() error { return e.Err }
