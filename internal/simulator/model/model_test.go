// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package model

import (
	"bytes"
	"errors"
	"testing"
)

func TestRegisterBank_ReadWrite(t *testing.T) {
	m := NewRegisterBank()

	if err := m.WriteSingleRegister(0x10, 0x1234); err != nil {
		t.Fatalf("WriteSingleRegister: %v", err)
	}
	if err := m.WriteMultipleRegisters(0x50, 2, []byte{0x01, 0xF4, 0x00, 0x64}); err != nil {
		t.Fatalf("WriteMultipleRegisters: %v", err)
	}

	got, err := m.ReadHoldingRegisters(0x50, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	if want := []byte{0x01, 0xF4, 0x00, 0x64}; !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
	if v := m.Get(0x10); v != 0x1234 {
		t.Errorf("Get(0x10) = %#x", v)
	}
}

func TestRegisterBank_Bounds(t *testing.T) {
	m := NewRegisterBank()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"ReadPastEnd", func() error { _, err := m.ReadHoldingRegisters(Size-1, 2); return err }},
		{"WriteSinglePastEnd", func() error { return m.WriteSingleRegister(Size, 1) }},
		{"WriteMultiplePastEnd", func() error { return m.WriteMultipleRegisters(Size-1, 2, make([]byte, 4)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("err = %v, want ErrOutOfRange", err)
			}
		})
	}

	if _, err := m.ReadHoldingRegisters(0, 0); err == nil {
		t.Error("zero quantity accepted")
	}
	if err := m.WriteMultipleRegisters(0, 2, []byte{0x00}); err == nil {
		t.Error("short data accepted")
	}
	m.Set(Size+10, 7)
	if v := m.Get(Size + 10); v != 0 {
		t.Errorf("Get past end = %d", v)
	}
}

func TestRegisterBank_Update(t *testing.T) {
	m := NewRegisterBank()
	m.Update(func(regs []uint16) {
		regs[1] = regs[0] + 5
	})
	if v := m.Get(1); v != 5 {
		t.Errorf("Get(1) = %d, want 5", v)
	}
}
