// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Size is the number of holding registers of a simulated power supply. It
// covers the live map and all ten preset blocks.
const Size = 256

// ErrOutOfRange is returned for accesses outside the register bank.
var ErrOutOfRange = errors.New("address range out of bounds")

// RegisterBank holds the holding registers of one simulated device.
type RegisterBank struct {
	mu sync.RWMutex

	// Registers is exported so storage backends can map it onto a file.
	Registers []uint16
}

// NewRegisterBank creates a bank initialized to zero.
func NewRegisterBank() *RegisterBank {
	return &RegisterBank{Registers: make([]uint16, Size)}
}

// ReadHoldingRegisters returns a range of registers as big-endian bytes.
func (m *RegisterBank) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], m.Registers[int(address)+i])
	}
	return result, nil
}

// WriteSingleRegister writes a single holding register.
func (m *RegisterBank) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateRange(address, 1); err != nil {
		return err
	}
	m.Registers[address] = value
	return nil
}

// WriteMultipleRegisters writes a range of holding registers from
// big-endian bytes.
func (m *RegisterBank) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < int(quantity)*2 {
		return fmt.Errorf("insufficient data length %d for %d registers", len(data), quantity)
	}
	for i := 0; i < int(quantity); i++ {
		m.Registers[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

// Get returns one register. Addresses outside the bank read as zero.
func (m *RegisterBank) Get(address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if int(address) >= len(m.Registers) {
		return 0
	}
	return m.Registers[address]
}

// Set writes one register. Addresses outside the bank are ignored.
func (m *RegisterBank) Set(address, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(address) < len(m.Registers) {
		m.Registers[address] = value
	}
}

// Update runs fn with exclusive access to the registers.
func (m *RegisterBank) Update(fn func(regs []uint16)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.Registers)
}

func (m *RegisterBank) validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	if int(address)+int(quantity) > len(m.Registers) {
		return fmt.Errorf("%w: %d+%d", ErrOutOfRange, address, quantity)
	}
	return nil
}
