// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"fmt"
	"strings"
	"time"
)

// State is an on/off switch value.
type State bool

const (
	Off State = false
	On  State = true
)

func (s State) String() string {
	if s {
		return "on"
	}
	return "off"
}

// ParseState accepts on/off, true/false and 1/0.
func ParseState(s string) (State, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return On, nil
	case "off", "false", "0":
		return Off, nil
	}
	return Off, fmt.Errorf("%w: state %q", ErrInvalidRange, s)
}

// ControlMode is the regulation mode the output is in.
type ControlMode uint16

const (
	ConstantVoltage ControlMode = 0
	ConstantCurrent ControlMode = 1
)

func controlModeFromRaw(v uint16) ControlMode {
	if v != 0 {
		return ConstantCurrent
	}
	return ConstantVoltage
}

func (m ControlMode) String() string {
	if m == ConstantCurrent {
		return "CC"
	}
	return "CV"
}

// TemperatureUnit is the unit the device reports and accepts temperatures in.
type TemperatureUnit uint16

const (
	Celsius    TemperatureUnit = 0
	Fahrenheit TemperatureUnit = 1
)

// ParseTemperatureUnit decodes the F-C register.
func ParseTemperatureUnit(v uint16) (TemperatureUnit, error) {
	switch TemperatureUnit(v) {
	case Celsius, Fahrenheit:
		return TemperatureUnit(v), nil
	}
	return 0, fmt.Errorf("%w: temperature unit code %d", ErrInvalidRange, v)
}

func (u TemperatureUnit) String() string {
	switch u {
	case Celsius:
		return "C"
	case Fahrenheit:
		return "F"
	default:
		return fmt.Sprintf("TemperatureUnit(%d)", uint16(u))
	}
}

// Temperature is a whole-degree temperature in a given unit.
type Temperature struct {
	Value int
	Unit  TemperatureUnit
}

// DegreesC returns a Celsius temperature.
func DegreesC(v int) Temperature { return Temperature{Value: v, Unit: Celsius} }

// DegreesF returns a Fahrenheit temperature.
func DegreesF(v int) Temperature { return Temperature{Value: v, Unit: Fahrenheit} }

// temperatureFromTenths rounds a reading in tenths of a degree.
func temperatureFromTenths(raw uint16, unit TemperatureUnit) Temperature {
	return Temperature{Value: roundTenths(int(int16(raw))), Unit: unit}
}

// Celsius returns t in degrees Celsius.
func (t Temperature) Celsius() int {
	if t.Unit == Fahrenheit {
		return roundTenths(((t.Value*10 - 320) * 5) / 9)
	}
	return t.Value
}

// Fahrenheit returns t in degrees Fahrenheit.
func (t Temperature) Fahrenheit() int {
	if t.Unit == Fahrenheit {
		return t.Value
	}
	return roundTenths((t.Value*90)/5 + 320)
}

// In returns t converted to unit.
func (t Temperature) In(unit TemperatureUnit) int {
	if unit == Fahrenheit {
		return t.Fahrenheit()
	}
	return t.Celsius()
}

func (t Temperature) String() string {
	return fmt.Sprintf("%d°%s", t.Value, t.Unit)
}

// roundTenths divides v by ten, rounding half away from zero.
func roundTenths(v int) int {
	if v < 0 {
		return -roundTenths(-v)
	}
	return (v + 5) / 10
}

// BaudRate is the index code stored in the BAUDRATE_L register.
type BaudRate uint16

const (
	Baud9600   BaudRate = 0
	Baud14400  BaudRate = 1
	Baud19200  BaudRate = 2
	Baud38400  BaudRate = 3
	Baud56000  BaudRate = 4
	Baud576000 BaudRate = 5
	Baud115200 BaudRate = 6 // factory default
	Baud2400   BaudRate = 7 // not supported by every model
	Baud4800   BaudRate = 8 // not supported by every model
)

var baudRates = [...]int{9600, 14400, 19200, 38400, 56000, 576000, 115200, 2400, 4800}

// ParseBaudRate decodes the BAUDRATE_L register.
func ParseBaudRate(v uint16) (BaudRate, error) {
	if int(v) >= len(baudRates) {
		return 0, fmt.Errorf("%w: baud rate code %d", ErrInvalidRange, v)
	}
	return BaudRate(v), nil
}

// BaudRateFor returns the code for a line speed in bits per second.
func BaudRateFor(bps int) (BaudRate, error) {
	for i, r := range baudRates {
		if r == bps {
			return BaudRate(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidRange, bps)
}

// BitsPerSecond returns the line speed of b, or 0 for an unknown code.
func (b BaudRate) BitsPerSecond() int {
	if int(b) >= len(baudRates) {
		return 0
	}
	return baudRates[b]
}

func (b BaudRate) String() string { return fmt.Sprintf("%d", b.BitsPerSecond()) }

// BacklightBrightness is the display backlight level, 0 (darkest) to 5.
type BacklightBrightness uint16

const MaxBacklight BacklightBrightness = 5

// ParseBacklightBrightness validates a backlight level.
func ParseBacklightBrightness(v uint16) (BacklightBrightness, error) {
	if v > uint16(MaxBacklight) {
		return 0, fmt.Errorf("%w: backlight level %d", ErrInvalidRange, v)
	}
	return BacklightBrightness(v), nil
}

// ProtectionStatus is the raw value of the PROTECT register.
//
// Firmware documentation does not settle whether the register is a bit
// field or holds a single protection code, so both readings are offered.
type ProtectionStatus uint16

// ProtectionFlags is the bit field reading of ProtectionStatus.
type ProtectionFlags uint16

const (
	FlagOverVoltage ProtectionFlags = 1 << iota
	FlagOverCurrent
	FlagOverPower
	FlagInputUnderVoltage
	FlagOverCapacity
	FlagOverTime
	FlagOverTemperature
	FlagOEP
	FlagOverEnergy
	FlagInputOverCurrent
	FlagExternalOverTemperature

	allProtectionFlags = FlagExternalOverTemperature<<1 - 1
)

var protectionNames = [...]string{"OVP", "OCP", "OPP", "LVP", "OAH", "OHP", "OTP", "OEP", "OWH", "ICP", "ETP"}

func (f ProtectionFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i, name := range protectionNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if rest := f &^ allProtectionFlags; rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint16(rest)))
	}
	return strings.Join(names, "|")
}

// ProtectionKind is the single-code reading of ProtectionStatus.
type ProtectionKind uint16

const (
	KindNone ProtectionKind = iota
	KindOverVoltage
	KindOverCurrent
	KindOverPower
	KindInputUnderVoltage
	KindOverCapacity
	KindOverTime
	KindOverTemperature
	KindOEP
	KindOverEnergy
	KindInputOverCurrent
	KindExternalOverTemperature
)

func (k ProtectionKind) String() string {
	switch {
	case k == KindNone:
		return "none"
	case int(k) <= len(protectionNames):
		return protectionNames[k-1]
	default:
		return fmt.Sprintf("ProtectionKind(%d)", uint16(k))
	}
}

// Active reports whether any protection has tripped.
func (s ProtectionStatus) Active() bool { return s != 0 }

// Flags reads s as a bit field.
func (s ProtectionStatus) Flags() ProtectionFlags { return ProtectionFlags(s) }

// Kind reads s as a single protection code. ok is false when s is not a
// known code.
func (s ProtectionStatus) Kind() (kind ProtectionKind, ok bool) {
	if s > ProtectionStatus(KindExternalOverTemperature) {
		return ProtectionKind(s), false
	}
	return ProtectionKind(s), true
}

func (s ProtectionStatus) String() string {
	kind, _ := s.Kind()
	return fmt.Sprintf("%#04x (flags %s, code %s)", uint16(s), s.Flags(), kind)
}

// Measurements is a snapshot of the live measurement registers taken in a
// single transaction.
type Measurements struct {
	OutputVoltage       uint32 // mV
	OutputCurrent       uint32 // mA
	OutputPower         uint32 // mW
	InputVoltage        uint32 // mV
	OutputCapacity      uint32 // mAh
	OutputEnergy        uint32 // mWh
	OutputTime          time.Duration
	InternalTemperature Temperature
	ExternalTemperature Temperature
	KeyLock             State
	Protection          ProtectionStatus
	Mode                ControlMode
	Output              State
}
