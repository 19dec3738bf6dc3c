// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the register bank of a simulated power supply
// across restarts.
package persistence

import (
	"fmt"

	"github.com/ffutop/xypsu/internal/simulator/model"
)

// Storage defines the interface for persisting a register bank.
type Storage interface {
	// Load returns the stored bank, or a zeroed one if nothing is stored.
	Load() (*model.RegisterBank, error)

	// Save saves the current bank to storage.
	Save(bank *model.RegisterBank) error

	// OnWrite is called after registers were modified so the storage can
	// persist them right away.
	OnWrite(address, quantity uint16)

	Close() error
}

// Known reports whether New accepts kind.
func Known(kind string) bool {
	switch kind {
	case "", "memory", "file", "mmap", "sqlite":
		return true
	}
	return false
}

// New returns the storage of the given kind: "memory", "file", "mmap" or
// "sqlite". The file backed kinds need a path.
func New(kind, path string) (Storage, error) {
	if kind != "" && kind != "memory" {
		if path == "" {
			return nil, fmt.Errorf("%s storage needs a path", kind)
		}
	}
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		return NewFileStorage(path), nil
	case "mmap":
		return NewMmapStorage(path), nil
	case "sqlite":
		return NewSQLiteStorage(path), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", kind)
	}
}
