// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/xypsu/modbus"
	"github.com/ffutop/xypsu/modbus/crc"
)

// ApplicationDataUnit is a Modbus RTU frame without its trailing CRC.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks the CRC of raw and splits it into slave id and PDU.
// The returned PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = &InvalidLengthError{Length: length, Want: MinSize}
		return
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = fmt.Errorf("%w: received 0x%04X, computed 0x%04X", ErrCRCMismatch, checksum, c.Value())
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("%w: length of data '%v' must not be bigger than '%v'", ErrMalformed, length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := c.Value()

	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// Verify checks that resp answers req: same slave and function, and no
// exception.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	if req.SlaveID != resp.SlaveID {
		err = fmt.Errorf("%w: response slave id '%v' does not match request '%v'", ErrMalformed, resp.SlaveID, req.SlaveID)
		return
	}
	if resp.Pdu.FunctionCode == req.Pdu.FunctionCode|modbus.ExceptionFlag {
		code := byte(0)
		if len(resp.Pdu.Data) > 0 {
			code = resp.Pdu.Data[0]
		}
		err = &ExceptionError{FunctionCode: req.Pdu.FunctionCode, Code: code}
		return
	}
	if resp.Pdu.FunctionCode != req.Pdu.FunctionCode {
		err = fmt.Errorf("%w: response function code 0x%02X does not match request 0x%02X", ErrMalformed, resp.Pdu.FunctionCode, req.Pdu.FunctionCode)
		return
	}
	return
}
