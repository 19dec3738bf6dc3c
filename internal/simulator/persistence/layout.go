// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ffutop/xypsu/internal/simulator/model"
)

// totalSize is the size of a storage file: every register, two bytes each.
const totalSize = model.Size * 2

// openBankFile opens the storage file at path, creating it or fixing its
// size so that it holds exactly one register bank.
func openBankFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err == nil && fi.Size() != totalSize {
		err = f.Truncate(totalSize)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size %s: %w", path, err)
	}
	return f, nil
}

// mapBytesToBank constructs a RegisterBank backed by data.
// Warning: registers are read in host byte order through an unsafe cast,
// so a storage file is not portable across architectures of different
// endianness.
func mapBytesToBank(data []byte) *model.RegisterBank {
	return &model.RegisterBank{
		Registers: unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), model.Size),
	}
}
