// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import "github.com/ffutop/xypsu/internal/simulator/model"

// Register addresses of the emulated device.
const (
	regVSet     = 0x00
	regISet     = 0x01
	regVOut     = 0x02
	regIOut     = 0x03
	regPower    = 0x04
	regUIn      = 0x05
	regTIn      = 0x0D
	regTEx      = 0x0E
	regProtect  = 0x10
	regCvCc     = 0x11
	regOnOff    = 0x12
	regBLed     = 0x14
	regModel    = 0x16
	regVersion  = 0x17
	regSlaveAdd = 0x18
	regBaudRate = 0x19
	regExtractM = 0x1D
	regDevice   = 0x1E
	regLast     = 0x23

	presetBase      = 0x50
	presetStride    = 0x10
	presetGroups    = 10
	presetRegisters = 15

	presetVSet = 0x00
	presetISet = 0x01
	presetSIni = 0x0D
)

// DefaultVersion is the firmware version reported by a fresh device.
const DefaultVersion = 0x0071

func readOnly(address uint16) bool {
	switch {
	case address >= regVOut && address <= regTEx:
		return true
	case address == regCvCc, address == regModel, address == regVersion:
		return true
	}
	return false
}

// writable reports whether address is a writable register of the live map
// or of a preset block.
func writable(address uint16) bool {
	if address <= regLast {
		return !readOnly(address)
	}
	if address < presetBase || address >= presetBase+presetGroups*presetStride {
		return false
	}
	return (address-presetBase)%presetStride < presetRegisters
}

func presetAddress(group, offset uint16) uint16 {
	return presetBase + group*presetStride + offset
}

// Seed loads factory defaults into a bank whose model register is still
// zero, so a persisted bank keeps its state. It returns whether the bank
// was seeded.
func Seed(bank *model.RegisterBank, modelCode uint16) bool {
	seeded := false
	bank.Update(func(regs []uint16) {
		if regs[regModel] != 0 {
			return
		}
		seeded = true
		regs[regModel] = modelCode
		regs[regVersion] = DefaultVersion
		regs[regSlaveAdd] = 1
		regs[regBaudRate] = 6 // 115200
		regs[regBLed] = 5
		regs[regDevice] = 1
		regs[regUIn] = 2400
		regs[regTIn] = 250
		regs[regTEx] = 250
		for g := uint16(0); g < presetGroups; g++ {
			block := regs[presetAddress(g, 0) : presetAddress(g, 0)+presetRegisters]
			block[presetVSet] = 500
			block[presetISet] = 100
			block[0x02] = 0     // SLVP
			block[0x03] = 6200  // SOVP
			block[0x04] = 2100  // SOCP
			block[0x05] = 12000 // SOPP
			block[0x06] = 99    // SOHP_H
			block[0x07] = 0     // SOHP_M
			block[0x0C] = 110   // SOTP
			block[0x0E] = 110   // SETP
		}
		regs[regVSet] = regs[presetAddress(0, presetVSet)]
		regs[regISet] = regs[presetAddress(0, presetISet)]
	})
	return seeded
}
