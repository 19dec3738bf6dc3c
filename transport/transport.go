// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the byte stream a power supply is reached over.
package transport

import (
	"errors"
	"io"
)

// ErrNoData is returned by Port.Read when no byte is currently available.
// It is not fatal: the caller may read again. Implementations apply their
// own per-read timeout before reporting it.
var ErrNoData = errors.New("transport: no data available")

// Port is a half-duplex byte stream to a single device.
//
// Read may return fewer bytes than requested. It returns (0, ErrNoData)
// when nothing arrived within the port's read timeout; any other error is
// fatal for the exchange in progress.
type Port interface {
	io.Reader
	io.Writer
}
