// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/xypsu/internal/simulator/model"
)

// FileStorage reads the register bank into memory and writes the whole
// bank back, followed by fsync, after every register write.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the storage file and returns a bank backed by its contents.
func (fs *FileStorage) Load() (*model.RegisterBank, error) {
	f, err := openBankFile(fs.path)
	if err != nil {
		return nil, err
	}
	data := make([]byte, totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", fs.path, err)
	}
	fs.file, fs.data = f, data
	return mapBytesToBank(data), nil
}

// Save writes the bank back to the file.
func (fs *FileStorage) Save(*model.RegisterBank) error {
	if fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("failed to write %s: %w", fs.path, err)
	}
	return fs.file.Sync()
}

func (fs *FileStorage) OnWrite(address, quantity uint16) {
	if err := fs.Save(nil); err != nil {
		slog.Error("Failed to persist registers", "path", fs.path, "addr", address, "quantity", quantity, "err", err)
	}
}

func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
