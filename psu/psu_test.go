// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/xypsu/internal/simulator"
	"github.com/ffutop/xypsu/internal/simulator/model"
	"github.com/ffutop/xypsu/modbus"
	"github.com/ffutop/xypsu/modbus/rtu"
	"github.com/ffutop/xypsu/transaction"
)

// newSimulated returns a session on a simulated power supply reporting
// model code.
func newSimulated(t *testing.T, code uint16, devOpts []simulator.Option, opts ...Option) (*PSU, *simulator.Device, *simulator.Port) {
	t.Helper()
	bank := model.NewRegisterBank()
	require.True(t, simulator.Seed(bank, code))
	dev := simulator.New(bank, devOpts...)
	port := simulator.NewPort(dev)
	return New(port, opts...), dev, port
}

func TestPSU_DetectsScaling(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newSimulated(t, uint16(XY6020L), nil)

	m, err := p.ProductModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, XY6020L, m)

	s, err := p.ScalingFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewScalingFactors(10, 10, 1000, 10), s)

	v, err := p.FirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(simulator.DefaultVersion), v)
}

func TestPSU_UnknownModel(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newSimulated(t, 9999, nil)

	_, err := p.ReadOutputVoltage(ctx)
	assert.ErrorIs(t, err, ErrScalingUnavailable)
	var unknown *UnknownModelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint16(9999), unknown.Code)

	// Raw access needs no scaling.
	raw, err := p.VoltageSetpointRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), raw)

	// An explicit override makes scaled access work.
	require.NoError(t, p.SetScalingFactors(NewScalingFactors(10, 1, 100, 1)))
	mV, err := p.VoltageSetpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5000), mV)
}

func TestPSU_ModelWithoutScaling(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newSimulated(t, uint16(XY6506), nil)

	_, err := p.CurrentLimit(ctx)
	assert.ErrorIs(t, err, ErrScalingUnavailable)
	var unknown *UnknownModelError
	assert.False(t, errors.As(err, &unknown))

	p, _, _ = newSimulated(t, uint16(XY6506), nil, WithScalingFactors(NewScalingFactors(10, 10, 1000, 10)))
	mA, err := p.CurrentLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), mA)
}

func TestPSU_SetInvalidScaling(t *testing.T) {
	p, _, _ := newSimulated(t, uint16(XY6020L), nil)
	assert.ErrorIs(t, p.SetScalingFactors(ScalingFactors{}), ErrInvalidRange)

	assert.Panics(t, func() { WithScalingFactors(ScalingFactors{}) })
	assert.Panics(t, func() { WithScalingFactors(NewScalingFactors(10, 0, 100, 1)) })
	assert.NotPanics(t, func() { WithScalingFactors(NewScalingFactors(10, 10, 1000, 10)) })
}

func TestPSU_Setpoints(t *testing.T) {
	ctx := context.Background()
	p, dev, _ := newSimulated(t, uint16(XY3607F), nil)

	require.NoError(t, p.SetVoltageSetpoint(ctx, 12340))
	require.NoError(t, p.SetCurrentLimit(ctx, 1500))
	assert.Equal(t, uint16(1234), dev.Bank().Get(uint16(VSet)))
	assert.Equal(t, uint16(1500), dev.Bank().Get(uint16(ISet)))

	mV, err := p.VoltageSetpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(12340), mV)

	err = p.SetVoltageSetpoint(ctx, 10*70000)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPSU_ReadOnlyWriteDoesNoIO(t *testing.T) {
	ctx := context.Background()
	p, _, port := newSimulated(t, uint16(XY6020L), nil)

	err := p.WriteRegisterRaw(ctx, VOut, 1)
	assert.ErrorIs(t, err, ErrReadOnly)
	err = p.WriteRegisterRaw(ctx, Register(0x40), 1)
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Zero(t, port.Writes())
}

func TestPSU_States(t *testing.T) {
	ctx := context.Background()
	p, dev, _ := newSimulated(t, uint16(XY6020L), nil)

	asleep, err := p.DeviceSleep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Off, asleep)

	require.NoError(t, p.SetDeviceSleep(ctx, On))
	assert.Equal(t, uint16(0), dev.Bank().Get(uint16(Device)), "DEVICE is inverted")
	asleep, err = p.DeviceSleep(ctx)
	require.NoError(t, err)
	assert.Equal(t, On, asleep)

	for _, tt := range []struct {
		set func(context.Context, State) error
		get func(context.Context) (State, error)
		reg Register
	}{
		{p.SetOutput, p.OutputState, OnOff},
		{p.SetKeyLock, p.KeyLock, Lock},
		{p.SetBuzzer, p.Buzzer, Buzzer},
		{p.SetMPPT, p.MPPT, MpptSw},
		{p.SetConstantPower, p.ConstantPower, CwSw},
	} {
		require.NoError(t, tt.set(ctx, On), tt.reg.String())
		assert.Equal(t, uint16(1), dev.Bank().Get(uint16(tt.reg)), tt.reg.String())
		s, err := tt.get(ctx)
		require.NoError(t, err)
		assert.Equal(t, On, s, tt.reg.String())
	}
}

func TestPSU_Settings(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newSimulated(t, uint16(XY6020L), nil)

	b, err := p.Backlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, MaxBacklight, b)
	require.NoError(t, p.SetBacklight(ctx, 2))
	b, err = p.Backlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, BacklightBrightness(2), b)
	assert.ErrorIs(t, p.SetBacklight(ctx, 6), ErrInvalidRange)

	rate, err := p.BaudRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Baud115200, rate)
	assert.ErrorIs(t, p.SetBaudRate(ctx, 9), ErrInvalidRange)

	require.NoError(t, p.SetSleepTimeout(ctx, 5*time.Minute+30*time.Second))
	d, err := p.SleepTimeout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
	assert.ErrorIs(t, p.SetSleepTimeout(ctx, -time.Minute), ErrInvalidRange)

	addr, err := p.SlaveAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), addr)
	assert.ErrorIs(t, p.SetSlaveAddress(ctx, 0), ErrInvalidRange)
	assert.ErrorIs(t, p.SetSlaveAddress(ctx, 248), ErrInvalidRange)

	require.NoError(t, p.SetInternalTemperatureOffset(ctx, -15))
	off, err := p.InternalTemperatureOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int16(-15), off)

	require.NoError(t, p.SetExternalTemperatureOffset(ctx, 20))
	off, err = p.ExternalTemperatureOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int16(20), off)

	require.NoError(t, p.SetMPPTCoefficient(ctx, 80))
	k, err := p.MPPTCoefficient(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(80), k)

	require.NoError(t, p.SetBatteryFullCurrent(ctx, 200))
	mA, err := p.BatteryFullCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), mA)

	require.NoError(t, p.SetConstantPowerValue(ctx, 25000))
	mW, err := p.ConstantPowerValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(25000), mW)

	require.NoError(t, p.SetTemperatureUnit(ctx, Fahrenheit))
	u, err := p.TemperatureUnit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Fahrenheit, u)
	assert.ErrorIs(t, p.SetTemperatureUnit(ctx, 3), ErrInvalidRange)
}

func TestPSU_ReadMeasurements(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newSimulated(t, uint16(XY6020L), nil)

	require.NoError(t, p.SetVoltageSetpoint(ctx, 12000))
	require.NoError(t, p.SetOutput(ctx, On))

	m, err := p.ReadMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(12000), m.OutputVoltage)
	assert.Equal(t, uint32(24000), m.InputVoltage)
	assert.Equal(t, On, m.Output)
	assert.Equal(t, ConstantVoltage, m.Mode)
	assert.Equal(t, DegreesC(25), m.InternalTemperature)
	assert.False(t, m.Protection.Active())

	v, err := p.ReadOutputVoltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(12000), v)
	in, err := p.ReadInputVoltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(24000), in)
	temp, err := p.ReadExternalTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, DegreesC(25), temp)
	status, err := p.ReadProtectionStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Active())
	require.NoError(t, p.ClearProtection(ctx))
}

func TestPSU_Counters(t *testing.T) {
	ctx := context.Background()
	p, dev, _ := newSimulated(t, uint16(XY6020L), nil)
	bank := dev.Bank()
	bank.Set(uint16(AhLow), 0x86A0)
	bank.Set(uint16(AhHigh), 0x0001)
	bank.Set(uint16(WhLow), 500)
	bank.Set(uint16(OutH), 1)
	bank.Set(uint16(OutM), 2)
	bank.Set(uint16(OutS), 3)
	bank.Set(uint16(CvCc), 1)

	ah, err := p.ReadOutputCapacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1_000_000), ah)
	wh, err := p.ReadOutputEnergy(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(50_000), wh)
	d, err := p.ReadOutputTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)
	mode, err := p.ReadControlMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ConstantCurrent, mode)
}

func TestPSU_ProtectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, dev, _ := newSimulated(t, uint16(XY6020L), nil)

	cfg := exactProtections()
	require.NoError(t, p.SetProtections(ctx, cfg))
	got, err := p.GetProtections(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	// The setpoints of the group are untouched.
	preset, err := p.ReadPreset(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5000), preset.Voltage)
	assert.Equal(t, uint32(1000), preset.Current)

	// The active group is selected again after the write, unless disabled.
	countWrites := func(opts ...Option) int {
		port := simulator.NewPort(dev)
		require.NoError(t, New(port, opts...).SetProtections(ctx, cfg))
		return port.Writes()
	}
	assert.Equal(t, countWrites(WithPresetReselect(false))+1, countWrites())
	assert.Equal(t, countWrites(WithPresetReselect(true)), countWrites())
}

// exactProtections returns thresholds the XY6020L represents without
// rounding.
func exactProtections() ProtectionConfig {
	return ProtectionConfig{
		UnderVoltage:    10000,
		OverVoltage:     30000,
		OverCurrent:     5000,
		OverPower:       100000,
		OverTime:        2*time.Hour + 30*time.Minute,
		OverCapacity:    12340,
		OverEnergy:      200000,
		OverTemperature: DegreesC(80),
	}
}

func TestPSU_ProtectionsFahrenheit(t *testing.T) {
	ctx := context.Background()
	p, dev, _ := newSimulated(t, uint16(XY6020L), nil)
	require.NoError(t, p.SetTemperatureUnit(ctx, Fahrenheit))
	require.NoError(t, p.SelectPresetGroup(ctx, 4))

	cfg := DefaultProtections()
	cfg.OverCurrent = 9990
	cfg.OverPower = 99000
	cfg.OverTemperature = DegreesC(80)
	require.NoError(t, p.SetProtections(ctx, cfg))
	assert.Equal(t, uint16(176), dev.Bank().Get(PresetSOtp.AddressInGroup(4)))

	got, err := p.GetProtections(ctx)
	require.NoError(t, err)
	assert.Equal(t, DegreesF(176), got.OverTemperature)
	assert.Equal(t, 80, got.OverTemperature.Celsius())
}

func TestPSU_PresetWriteAndSelect(t *testing.T) {
	ctx := context.Background()
	p, dev, _ := newSimulated(t, uint16(XY6020L), nil)

	preset, err := NewPresetBuilder().
		ForGroup(7).
		WithVoltage(3300).
		WithCurrentLimit(500).
		WithOutput(On).
		WithProtections(exactProtections()).
		Build()
	require.NoError(t, err)
	require.NoError(t, p.WritePreset(ctx, preset))

	got, err := p.ReadPreset(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, preset, got)

	require.NoError(t, p.SelectPresetGroup(ctx, 7))
	g, err := p.ActivePresetGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, PresetGroup(7), g)
	assert.Equal(t, uint16(330), dev.Bank().Get(uint16(VSet)))
	out, err := p.OutputState(ctx)
	require.NoError(t, err)
	assert.Equal(t, On, out)

	assert.ErrorIs(t, p.SelectPresetGroup(ctx, 10), ErrInvalidRange)
	_, err = p.ReadPreset(ctx, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

// bulkWriteFails drops the line on every write multiple request.
type bulkWriteFails struct {
	*simulator.Port
}

func (b bulkWriteFails) Write(p []byte) (int, error) {
	if len(p) > 1 && p[1] == modbus.FuncCodeWriteMultipleRegisters {
		return 0, errors.New("line down")
	}
	return b.Port.Write(p)
}

// modelReadFails drops the line on every read of the MODEL register.
type modelReadFails struct {
	*simulator.Port
}

func (m modelReadFails) Write(p []byte) (int, error) {
	if len(p) > 3 && p[1] == modbus.FuncCodeReadHoldingRegisters && p[2] == 0 && p[3] == byte(Model) {
		return 0, errors.New("line down")
	}
	return m.Port.Write(p)
}

func TestPSU_ReselectModelReadError(t *testing.T) {
	ctx := context.Background()
	bank := model.NewRegisterBank()
	simulator.Seed(bank, uint16(XY6020L))
	port := simulator.NewPort(simulator.New(bank))
	p := New(modelReadFails{port}, WithScalingFactors(NewScalingFactors(10, 10, 1000, 10)))

	err := p.SetProtections(ctx, exactProtections())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, uint16(3000), bank.Get(PresetSOvp.AddressInGroup(0)), "block written before the model read")
}

func TestPSU_ReselectUnknownModel(t *testing.T) {
	ctx := context.Background()
	scaling := WithScalingFactors(NewScalingFactors(10, 10, 1000, 10))
	writes := func(opts ...Option) int {
		_, _, port := newSimulated(t, 9999, nil)
		p := New(port, append([]Option{scaling}, opts...)...)
		require.NoError(t, p.SetProtections(ctx, DefaultProtections()))
		return port.Writes()
	}
	assert.Equal(t, writes(WithPresetReselect(false))+2, writes(), "model read and reselect")
}

func TestPSU_PresetWriteError(t *testing.T) {
	ctx := context.Background()
	bank := model.NewRegisterBank()
	simulator.Seed(bank, uint16(XY6020L))
	p := New(bulkWriteFails{simulator.NewPort(simulator.New(bank))})

	err := p.WritePreset(ctx, Preset{Group: 2, Protections: DefaultProtections()})
	var pwErr *PresetWriteError
	require.ErrorAs(t, err, &pwErr)
	assert.Equal(t, PresetGroup(2), pwErr.Group)
	assert.ErrorIs(t, err, ErrTransport)

	err = p.SetProtections(ctx, DefaultProtections())
	require.ErrorAs(t, err, &pwErr)
	assert.Equal(t, PresetGroup(0), pwErr.Group)
}

func TestPSU_Echo(t *testing.T) {
	ctx := context.Background()
	p, dev, port := newSimulated(t, uint16(XY6020L), []simulator.Option{simulator.WithEcho(true)})
	port.SetChunkSize(5)

	require.NoError(t, p.SetVoltageSetpoint(ctx, 9000))
	assert.Equal(t, uint16(900), dev.Bank().Get(uint16(VSet)))
	mV, err := p.VoltageSetpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(9000), mV)

	m, err := p.ReadMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(24000), m.InputVoltage)
	assert.Zero(t, port.Pending())
}

func TestPSU_EchoWritesConsumeReply(t *testing.T) {
	ctx := context.Background()
	for _, chunk := range []int{0, 3} {
		p, dev, port := newSimulated(t, uint16(XY6020L), []simulator.Option{simulator.WithEcho(true)})
		port.SetChunkSize(chunk)

		// Write single, then read.
		require.NoError(t, p.SetVoltageSetpoint(ctx, 12340))
		assert.Zero(t, port.Pending())
		mV, err := p.VoltageSetpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(12340), mV)

		// Write multiple, then the model read of the reselect, then a read.
		cfg := exactProtections()
		require.NoError(t, p.SetProtections(ctx, cfg))
		assert.Zero(t, port.Pending())
		assert.Equal(t, uint16(3000), dev.Bank().Get(PresetSOvp.AddressInGroup(0)))
		got, err := p.GetProtections(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	}
}

func TestPSU_DecodeVerifier(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newSimulated(t, uint16(XY6020L), nil, WithVerifier(transaction.DecodeVerifier{}))

	require.NoError(t, p.SetCurrentLimit(ctx, 2000))
	mA, err := p.CurrentLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2000), mA)
	cfg := DefaultProtections()
	cfg.OverVoltage = 20000
	require.NoError(t, p.SetProtections(ctx, cfg))
}

func TestPSU_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Timeout", func(t *testing.T) {
		p, _, port := newSimulated(t, uint16(XY6020L), nil)
		port.SetSilent(true)
		_, err := p.ReadOutputVoltageRaw(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("WrongUnit", func(t *testing.T) {
		p, _, _ := newSimulated(t, uint16(XY6020L), nil, WithUnitID(2))
		_, err := p.ReadOutputCurrentRaw(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("Exception", func(t *testing.T) {
		p, _, _ := newSimulated(t, uint16(XY6020L), nil)
		err := p.WriteRegisterRaw(ctx, ExtractM, 10)
		assert.ErrorIs(t, err, ErrInvalidResponse)
		var exc *rtu.ExceptionError
		require.ErrorAs(t, err, &exc)
		assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataValue), exc.Code)
	})

	t.Run("BufferExhausted", func(t *testing.T) {
		p, _, _ := newSimulated(t, uint16(XY6020L), nil, WithBufferSize(16))
		_, err := p.ReadMeasurements(ctx)
		assert.ErrorIs(t, err, ErrBufferExhausted)

		// Small transactions still fit.
		p, _, _ = newSimulated(t, uint16(XY6020L), nil, WithBufferSize(16))
		_, err = p.ReadOutputPowerRaw(ctx)
		assert.NoError(t, err)
	})
}

func TestPSU_Tracer(t *testing.T) {
	ctx := context.Background()
	var frames []transaction.Direction
	tracer := transaction.TracerFunc(func(dir transaction.Direction, unitID byte, frame []byte) {
		frames = append(frames, dir)
	})
	p, _, _ := newSimulated(t, uint16(XY6020L), nil, WithTracer(tracer), WithLogger(nil))

	_, err := p.ProductModelRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, []transaction.Direction{transaction.DirectionTx, transaction.DirectionRx}, frames)
	assert.NotNil(t, p.Engine())
}
