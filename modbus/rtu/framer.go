// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ffutop/xypsu/modbus"
	"github.com/ffutop/xypsu/modbus/crc"
)

// ErrQuantity is returned when a request asks for an unsupported number of registers.
var ErrQuantity = errors.New("modbus: register quantity out of range")

// AppendReadHoldingRegisters appends a read holding registers request to dst:
//
//	[slave, 0x03, addrHi, addrLo, countHi, countLo, crcLo, crcHi]
func AppendReadHoldingRegisters(dst []byte, slaveID byte, address, count uint16) ([]byte, error) {
	if count < 1 || count > modbus.MaxReadRegisters {
		return dst, fmt.Errorf("%w: %d", ErrQuantity, count)
	}
	start := len(dst)
	dst = append(dst, slaveID, modbus.FuncCodeReadHoldingRegisters)
	dst = binary.BigEndian.AppendUint16(dst, address)
	dst = binary.BigEndian.AppendUint16(dst, count)
	return appendCRC(dst, start), nil
}

// AppendWriteSingleRegister appends a write single register request to dst:
//
//	[slave, 0x06, addrHi, addrLo, dataHi, dataLo, crcLo, crcHi]
func AppendWriteSingleRegister(dst []byte, slaveID byte, address, value uint16) []byte {
	start := len(dst)
	dst = append(dst, slaveID, modbus.FuncCodeWriteSingleRegister)
	dst = binary.BigEndian.AppendUint16(dst, address)
	dst = binary.BigEndian.AppendUint16(dst, value)
	return appendCRC(dst, start)
}

// AppendWriteMultipleRegisters appends a write multiple registers request to dst:
//
//	[slave, 0x10, addrHi, addrLo, countHi, countLo, byteCount, data..., crcLo, crcHi]
func AppendWriteMultipleRegisters(dst []byte, slaveID byte, address uint16, values []uint16) ([]byte, error) {
	count := len(values)
	if count < 1 || count > modbus.MaxWriteRegisters {
		return dst, fmt.Errorf("%w: %d", ErrQuantity, count)
	}
	start := len(dst)
	dst = append(dst, slaveID, modbus.FuncCodeWriteMultipleRegisters)
	dst = binary.BigEndian.AppendUint16(dst, address)
	dst = binary.BigEndian.AppendUint16(dst, uint16(count))
	dst = append(dst, byte(2*count))
	for _, v := range values {
		dst = binary.BigEndian.AppendUint16(dst, v)
	}
	return appendCRC(dst, start), nil
}

// ReadHoldingRegistersRequest returns a new read holding registers request frame.
func ReadHoldingRegistersRequest(slaveID byte, address, count uint16) ([]byte, error) {
	return AppendReadHoldingRegisters(make([]byte, 0, 8), slaveID, address, count)
}

// WriteSingleRegisterRequest returns a new write single register request frame.
func WriteSingleRegisterRequest(slaveID byte, address, value uint16) []byte {
	return AppendWriteSingleRegister(make([]byte, 0, 8), slaveID, address, value)
}

// WriteMultipleRegistersRequest returns a new write multiple registers request frame.
func WriteMultipleRegistersRequest(slaveID byte, address uint16, values []uint16) ([]byte, error) {
	return AppendWriteMultipleRegisters(make([]byte, 0, 9+2*len(values)), slaveID, address, values)
}

func appendCRC(dst []byte, start int) []byte {
	sum := crc.Checksum(dst[start:])
	return append(dst, byte(sum), byte(sum>>8))
}

// ParseReadHoldingRegistersResponse validates a read holding registers
// response for count registers and appends the register values to dst.
func ParseReadHoldingRegistersResponse(dst []uint16, slaveID byte, count int, raw []byte) ([]uint16, error) {
	adu, err := Decode(raw)
	if err != nil {
		return dst, err
	}
	req := ApplicationDataUnit{SlaveID: slaveID, Pdu: modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters}}
	if err = req.Verify(adu); err != nil {
		return dst, err
	}
	data := adu.Pdu.Data
	if len(data) < 1 {
		return dst, &InvalidLengthError{Length: len(raw), Want: ReadResponseSize(count)}
	}
	byteCount := int(data[0])
	if byteCount != 2*count || len(data)-1 != byteCount {
		return dst, fmt.Errorf("%w: byte count %d for %d registers with %d data bytes", ErrMalformed, byteCount, count, len(data)-1)
	}
	for i := 0; i < count; i++ {
		dst = append(dst, binary.BigEndian.Uint16(data[1+2*i:]))
	}
	return dst, nil
}

// ParseWriteSingleRegister decodes a write single register frame. Requests
// and responses share this layout.
func ParseWriteSingleRegister(raw []byte) (slaveID byte, address, value uint16, err error) {
	adu, err := Decode(raw)
	if err != nil {
		return
	}
	if adu.Pdu.FunctionCode != modbus.FuncCodeWriteSingleRegister {
		err = fmt.Errorf("%w: function code 0x%02X is not write single register", ErrMalformed, adu.Pdu.FunctionCode)
		return
	}
	if len(adu.Pdu.Data) != 4 {
		err = &InvalidLengthError{Length: len(raw), Want: WriteResponseSize}
		return
	}
	slaveID = adu.SlaveID
	address = binary.BigEndian.Uint16(adu.Pdu.Data[0:2])
	value = binary.BigEndian.Uint16(adu.Pdu.Data[2:4])
	return
}

// ParseWriteMultipleRegistersResponse decodes the response to a write
// multiple registers request.
func ParseWriteMultipleRegistersResponse(raw []byte) (slaveID byte, address, count uint16, err error) {
	adu, err := Decode(raw)
	if err != nil {
		return
	}
	if adu.Pdu.FunctionCode != modbus.FuncCodeWriteMultipleRegisters {
		err = fmt.Errorf("%w: function code 0x%02X is not write multiple registers", ErrMalformed, adu.Pdu.FunctionCode)
		return
	}
	if len(adu.Pdu.Data) != 4 {
		err = &InvalidLengthError{Length: len(raw), Want: WriteResponseSize}
		return
	}
	slaveID = adu.SlaveID
	address = binary.BigEndian.Uint16(adu.Pdu.Data[0:2])
	count = binary.BigEndian.Uint16(adu.Pdu.Data[2:4])
	return
}

// CalculateResponseLength returns the expected length of a response ADU.
func CalculateResponseLength(adu []byte) int {
	length := MinSize
	switch adu[1] {
	case modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadCoils:
		count := int(binary.BigEndian.Uint16(adu[4:]))
		length += 1 + count/8
		if count%8 != 0 {
			length++
		}
	case modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadWriteMultipleRegisters:
		count := int(binary.BigEndian.Uint16(adu[4:]))
		length += 1 + count*2
	case modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleRegisters:
		length += 4
	case modbus.FuncCodeMaskWriteRegister:
		length += 6
	default:
		// undetermined
	}
	return length
}

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		byteCount := int(header[6])
		return 7 + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}
