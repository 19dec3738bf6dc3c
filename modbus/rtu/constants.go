// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// WriteResponseSize is the length of a write single/multiple register response.
	WriteResponseSize = 8
	// RequestHeaderSize covers slave id, function code, address and quantity/value.
	RequestHeaderSize = 6
)

// Slave address bounds for unicast requests.
const (
	MinSlaveID     = 1
	MaxSlaveID     = 247
	DefaultSlaveID = 0x01
)

// ReadResponseSize returns the length of a read holding registers response
// carrying count registers.
func ReadResponseSize(count int) int {
	// SlaveID(1) + Func(1) + ByteCount(1) + Data(2N) + CRC(2)
	return 5 + 2*count
}
