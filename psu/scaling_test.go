// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalingRoundTrip(t *testing.T) {
	for _, m := range []ProductModel{XY3607F, XY6020L} {
		s, ok := m.ScalingFactors()
		require.True(t, ok, m.String())
		t.Run(m.String(), func(t *testing.T) {
			for _, raw := range []uint16{0, 1, 500, 1234, math.MaxUint16} {
				v, err := s.VoltageToRaw(s.RawToVoltage(raw))
				require.NoError(t, err)
				assert.Equal(t, raw, v)

				c, err := s.CurrentToRaw(s.RawToCurrent(raw))
				require.NoError(t, err)
				assert.Equal(t, raw, c)

				p, err := s.PowerToRaw(s.RawToPower(raw))
				require.NoError(t, err)
				assert.Equal(t, raw, p)
			}
			for _, raw := range []uint32{0, 70000, 1 << 20} {
				c, err := s.CapacityToRaw(s.RawToCapacity(raw))
				require.NoError(t, err)
				assert.Equal(t, raw, c)

				e, err := s.EnergyToRaw(s.RawToEnergy(raw))
				require.NoError(t, err)
				assert.Equal(t, raw, e)
			}
		})
	}
}

func TestScalingOutOfRange(t *testing.T) {
	s := NewScalingFactors(10, 1, 100, 1)

	_, err := s.VoltageToRaw(10 * (math.MaxUint16 + 1))
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = s.CurrentToRaw(math.MaxUint16 + 1)
	assert.ErrorIs(t, err, ErrInvalidRange)

	v, err := s.VoltageToRaw(10*math.MaxUint16 + 9)
	require.NoError(t, err)
	assert.Equal(t, uint16(math.MaxUint16), v)

	_, err = ScalingFactors{}.VoltageToRaw(1)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = ScalingFactors{}.CapacityToRaw(1)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestScalingSaturates(t *testing.T) {
	s := ScalingFactors{Capacity: 1000}
	assert.Equal(t, uint32(math.MaxUint32), s.RawToCapacity(math.MaxUint32))
}

func TestNewScalingFactors(t *testing.T) {
	s := NewScalingFactors(10, 10, 1000, 10)
	assert.Equal(t, uint32(100), s.Energy)
	require.NoError(t, s.Validate())

	s = NewScalingFactors(10, 1, 5, 1)
	assert.Equal(t, uint32(1), s.Energy)

	err := NewScalingFactors(10, 0, 100, 1).Validate()
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestProductModels(t *testing.T) {
	for _, m := range ProductModels() {
		got, err := ParseProductModel(uint16(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
		assert.True(t, m.ReselectAfterPresetWrite())
	}

	_, err := ParseProductModel(9999)
	var unknown *UnknownModelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint16(9999), unknown.Code)

	_, ok := XY6506.ScalingFactors()
	assert.False(t, ok)
	assert.Equal(t, "ProductModel(1)", ProductModel(1).String())
	assert.True(t, ProductModel(1).ReselectAfterPresetWrite())
}

func TestWords(t *testing.T) {
	low, high := splitWords(0x0001_86A0)
	assert.Equal(t, uint16(0x86A0), low)
	assert.Equal(t, uint16(0x0001), high)
	assert.Equal(t, uint32(100000), joinWords(low, high))
}
