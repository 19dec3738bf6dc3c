// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator emulates an XY series power supply on the register
// level. It answers Modbus RTU frames from an in-memory port, a serial
// device or a TCP listener.
package simulator

import (
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/ffutop/xypsu/internal/simulator/model"
	"github.com/ffutop/xypsu/internal/simulator/persistence"
	"github.com/ffutop/xypsu/modbus"
	"github.com/ffutop/xypsu/modbus/rtu"
)

// Device implements the Modbus register logic of a power supply on top of
// a RegisterBank.
type Device struct {
	bank    *model.RegisterBank
	storage persistence.Storage
	unitID  byte
	echo    bool
	logger  *slog.Logger

	// mu makes each request atomic, including preset loading.
	mu sync.Mutex
}

// Option configures a Device.
type Option func(*Device)

// WithUnitID sets the slave address the device answers to (default 1).
func WithUnitID(id byte) Option {
	return func(d *Device) { d.unitID = id }
}

// WithEcho makes the device loop every request back before its reply, as
// a half-duplex RS-485 adapter does.
func WithEcho(echo bool) Option {
	return func(d *Device) { d.echo = echo }
}

// WithStorage persists every register write.
func WithStorage(s persistence.Storage) Option {
	return func(d *Device) { d.storage = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a device backed by bank.
func New(bank *model.RegisterBank, opts ...Option) *Device {
	d := &Device{
		bank:    bank,
		storage: persistence.NewMemoryStorage(),
		unitID:  rtu.DefaultSlaveID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bank returns the registers of the device.
func (d *Device) Bank() *model.RegisterBank { return d.bank }

// UnitID returns the slave address the device answers to.
func (d *Device) UnitID() byte { return d.unitID }

// Handle answers one RTU request frame. ok is false when the device stays
// silent: the frame is corrupt or addressed to another slave.
func (d *Device) Handle(frame []byte) (reply []byte, ok bool) {
	adu, err := rtu.Decode(frame)
	if err != nil {
		d.logger.Debug("simulator dropped frame", "frame", hex.EncodeToString(frame), "err", err)
		return nil, false
	}
	if adu.SlaveID != d.unitID {
		return nil, false
	}
	resp := rtu.ApplicationDataUnit{SlaveID: d.unitID, Pdu: d.Process(adu.Pdu)}
	raw, err := resp.Encode()
	if err != nil {
		d.logger.Error("simulator failed to encode response", "err", err)
		return nil, false
	}
	if d.echo {
		reply = make([]byte, 0, len(frame)+len(raw))
		reply = append(reply, frame...)
	}
	return append(reply, raw...), true
}

// Process executes a request PDU against the registers.
func (d *Device) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return d.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleRegister:
		return d.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return d.handleWriteMultipleRegisters(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (d *Device) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := d.bank.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData}
}

func (d *Device) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if !writable(address) {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	if address == regExtractM && value >= presetGroups {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := d.bank.WriteSingleRegister(address, value); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	d.afterWrite(address, 1)

	return req
}

func (d *Device) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if int(byteCount) != len(req.Data)-5 || int(byteCount) != int(quantity)*2 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	for i := uint16(0); i < quantity; i++ {
		if !writable(address + i) {
			return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
		}
	}
	if err := d.bank.WriteMultipleRegisters(address, quantity, req.Data[5:]); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	d.afterWrite(address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData}
}

// afterWrite applies the side effects of a register write and persists it.
func (d *Device) afterWrite(address, quantity uint16) {
	if address <= regExtractM && regExtractM < address+quantity {
		d.loadPreset()
	}
	d.bank.Update(updateOutputs)
	d.storage.OnWrite(address, quantity)
}

// loadPreset copies the setpoints and output state of the group named by
// EXTRACT-M into the live registers.
func (d *Device) loadPreset() {
	d.bank.Update(func(regs []uint16) {
		g := regs[regExtractM]
		if g >= presetGroups {
			return
		}
		regs[regVSet] = regs[presetAddress(g, presetVSet)]
		regs[regISet] = regs[presetAddress(g, presetISet)]
		regs[regOnOff] = regs[presetAddress(g, presetSIni)]
		d.logger.Debug("simulator loaded preset", "group", g, "vset", regs[regVSet], "iset", regs[regISet])
	})
}

// updateOutputs derives the measurements of an unloaded output.
func updateOutputs(regs []uint16) {
	if regs[regOnOff] != 0 {
		regs[regVOut] = regs[regVSet]
	} else {
		regs[regVOut] = 0
	}
	regs[regIOut] = 0
	regs[regPower] = 0
	regs[regCvCc] = 0
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionFlag,
		Data:         []byte{code},
	}
}
