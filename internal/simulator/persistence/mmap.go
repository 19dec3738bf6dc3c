// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/xypsu/internal/simulator/model"
)

// MmapStorage shares the register bank with a memory-mapped file, so a
// register write is in the page cache as soon as the device applies it.
// OnWrite flushes the mapping to disk.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the storage file and returns a bank backed by the mapping.
func (ms *MmapStorage) Load() (*model.RegisterBank, error) {
	f, err := openBankFile(ms.path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map %s: %w", ms.path, err)
	}
	ms.file, ms.data = f, data
	return mapBytesToBank(data), nil
}

// Save flushes the mapping. The bank is the mapping itself.
func (ms *MmapStorage) Save(*model.RegisterBank) error {
	if ms.data == nil {
		return nil
	}
	return ms.data.Flush()
}

func (ms *MmapStorage) OnWrite(address, quantity uint16) {
	if err := ms.Save(nil); err != nil {
		slog.Error("Failed to flush registers", "path", ms.path, "addr", address, "quantity", quantity, "err", err)
	}
}

// Close unmaps and closes the file. The bank returned by Load must not be
// used afterwards.
func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}
