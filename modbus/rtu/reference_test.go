// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	goburrow "github.com/goburrow/modbus"

	"github.com/ffutop/xypsu/modbus/rtu"
)

// referenceEncode frames pdu with an independent Modbus implementation.
func referenceEncode(t *testing.T, slaveID byte, functionCode byte, data []byte) []byte {
	t.Helper()
	handler := goburrow.NewRTUClientHandler("")
	handler.SlaveId = slaveID
	adu, err := handler.Encode(&goburrow.ProtocolDataUnit{FunctionCode: functionCode, Data: data})
	if err != nil {
		t.Fatalf("reference encode: %v", err)
	}
	return adu
}

func TestRequestsMatchReferenceEncoder(t *testing.T) {
	be := func(vs ...uint16) []byte {
		var b []byte
		for _, v := range vs {
			b = binary.BigEndian.AppendUint16(b, v)
		}
		return b
	}

	t.Run("ReadHoldingRegisters", func(t *testing.T) {
		got, err := rtu.AppendReadHoldingRegisters(nil, 0x11, 0x0050, 15)
		if err != nil {
			t.Fatal(err)
		}
		want := referenceEncode(t, 0x11, 0x03, be(0x0050, 15))
		if !bytes.Equal(got, want) {
			t.Errorf("got % X, want % X", got, want)
		}
	})

	t.Run("WriteSingleRegister", func(t *testing.T) {
		got := rtu.AppendWriteSingleRegister(nil, 0x01, 0x0012, 0x0001)
		want := referenceEncode(t, 0x01, 0x06, be(0x0012, 0x0001))
		if !bytes.Equal(got, want) {
			t.Errorf("got % X, want % X", got, want)
		}
	})

	t.Run("WriteMultipleRegisters", func(t *testing.T) {
		values := []uint16{500, 1000, 0, 9999, 9999, 9999, 999, 59, 0x869F, 0x0001, 0x869F, 0x0001, 100, 0, 100}
		got, err := rtu.AppendWriteMultipleRegisters(nil, 0x01, 0x0060, values)
		if err != nil {
			t.Fatal(err)
		}
		data := append(be(0x0060, uint16(len(values))), byte(2*len(values)))
		data = append(data, be(values...)...)
		want := referenceEncode(t, 0x01, 0x10, data)
		if !bytes.Equal(got, want) {
			t.Errorf("got % X, want % X", got, want)
		}
	})
}
