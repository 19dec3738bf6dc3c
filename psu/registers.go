// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import "fmt"

// Register is a holding register of the live (non-preset) register map.
type Register uint16

const (
	VSet      Register = 0x00 // voltage setpoint
	ISet      Register = 0x01 // current limit
	VOut      Register = 0x02 // measured output voltage
	IOut      Register = 0x03 // measured output current
	Power     Register = 0x04 // measured output power
	UIn       Register = 0x05 // measured input voltage
	AhLow     Register = 0x06
	AhHigh    Register = 0x07
	WhLow     Register = 0x08
	WhHigh    Register = 0x09
	OutH      Register = 0x0A // output on time, hours
	OutM      Register = 0x0B
	OutS      Register = 0x0C
	TIn       Register = 0x0D // internal temperature, tenths of a degree
	TEx       Register = 0x0E // external temperature, tenths of a degree
	Lock      Register = 0x0F
	Protect   Register = 0x10 // protection status; writing 0 clears it
	CvCc      Register = 0x11
	OnOff     Register = 0x12
	FC        Register = 0x13 // temperature unit
	BLed      Register = 0x14 // backlight level 0-5
	Sleep     Register = 0x15 // screen off delay, minutes
	Model     Register = 0x16
	Version   Register = 0x17
	SlaveAdd  Register = 0x18
	BaudRateL Register = 0x19
	TInOffset Register = 0x1A
	TExOffset Register = 0x1B
	Buzzer    Register = 0x1C
	ExtractM  Register = 0x1D // active preset group; writing loads the group
	Device    Register = 0x1E // 0 while the device sleeps
	MpptSw    Register = 0x1F
	MpptK     Register = 0x20
	BatFul    Register = 0x21
	CwSw      Register = 0x22
	Cw        Register = 0x23
)

// Access is the capability of a register.
type Access uint8

const (
	ReadOnly Access = iota + 1
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "R"
	case ReadWrite:
		return "RW"
	default:
		return "?"
	}
}

type registerInfo struct {
	name   string
	access Access
	// inverted registers hold 0 for State On.
	inverted bool
}

var registerTable = [...]registerInfo{
	VSet:      {"V-SET", ReadWrite, false},
	ISet:      {"I-SET", ReadWrite, false},
	VOut:      {"VOUT", ReadOnly, false},
	IOut:      {"IOUT", ReadOnly, false},
	Power:     {"POWER", ReadOnly, false},
	UIn:       {"UIN", ReadOnly, false},
	AhLow:     {"AH-LOW", ReadOnly, false},
	AhHigh:    {"AH-HIGH", ReadOnly, false},
	WhLow:     {"WH-LOW", ReadOnly, false},
	WhHigh:    {"WH-HIGH", ReadOnly, false},
	OutH:      {"OUT_H", ReadOnly, false},
	OutM:      {"OUT_M", ReadOnly, false},
	OutS:      {"OUT_S", ReadOnly, false},
	TIn:       {"T_IN", ReadOnly, false},
	TEx:       {"T_EX", ReadOnly, false},
	Lock:      {"LOCK", ReadWrite, false},
	Protect:   {"PROTECT", ReadWrite, false},
	CvCc:      {"CVCC", ReadOnly, false},
	OnOff:     {"ONOFF", ReadWrite, false},
	FC:        {"F-C", ReadWrite, false},
	BLed:      {"B-LED", ReadWrite, false},
	Sleep:     {"SLEEP", ReadWrite, false},
	Model:     {"MODEL", ReadOnly, false},
	Version:   {"VERSION", ReadOnly, false},
	SlaveAdd:  {"SLAVE-ADD", ReadWrite, false},
	BaudRateL: {"BAUDRATE_L", ReadWrite, false},
	TInOffset: {"T-IN-OFFSET", ReadWrite, false},
	TExOffset: {"T-EX-OFFSET", ReadWrite, false},
	Buzzer:    {"BUZZER", ReadWrite, false},
	ExtractM:  {"EXTRACT-M", ReadWrite, false},
	Device:    {"DEVICE", ReadWrite, true},
	MpptSw:    {"MPPT-SW", ReadWrite, false},
	MpptK:     {"MPPT-K", ReadWrite, false},
	BatFul:    {"BATFUL", ReadWrite, false},
	CwSw:      {"CW-SW", ReadWrite, false},
	Cw:        {"CW", ReadWrite, false},
}

// Registers returns every register of the live map in address order.
func Registers() []Register {
	regs := make([]Register, len(registerTable))
	for i := range registerTable {
		regs[i] = Register(i)
	}
	return regs
}

// LookupRegister returns the register with the given name.
func LookupRegister(name string) (Register, bool) {
	for i, info := range registerTable {
		if info.name == name {
			return Register(i), true
		}
	}
	return 0, false
}

// Address returns the wire address of r.
func (r Register) Address() uint16 { return uint16(r) }

// Valid reports whether r is part of the register map.
func (r Register) Valid() bool { return int(r) < len(registerTable) }

func (r Register) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Register(%#04x)", uint16(r))
	}
	return registerTable[r].name
}

// Access returns whether r is read-only or read-write. Unknown registers
// report zero.
func (r Register) Access() Access {
	if !r.Valid() {
		return 0
	}
	return registerTable[r].access
}

// Writable reports whether r accepts writes.
func (r Register) Writable() bool { return r.Access() == ReadWrite }

// Inverted reports whether r holds 0 for State On.
func (r Register) Inverted() bool { return r.Valid() && registerTable[r].inverted }

// stateValue encodes s for r.
func (r Register) stateValue(s State) uint16 {
	if r.Inverted() {
		s = !s
	}
	if s {
		return 1
	}
	return 0
}

// state decodes a raw value of r. Any non-zero value is On.
func (r Register) state(v uint16) State {
	s := State(v != 0)
	if r.Inverted() {
		s = !s
	}
	return s
}
