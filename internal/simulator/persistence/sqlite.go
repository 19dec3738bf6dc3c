// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ffutop/xypsu/internal/simulator/model"
)

// registerRow is one holding register. Only registers that were ever
// written have a row.
type registerRow struct {
	Address uint16 `gorm:"primaryKey;autoIncrement:false"`
	Value   uint16
}

func (registerRow) TableName() string { return "holding_registers" }

// SQLiteStorage keeps the register bank in a SQLite database, upserting
// the written registers after every write.
type SQLiteStorage struct {
	path string
	db   *gorm.DB
	bank *model.RegisterBank
}

// NewSQLiteStorage creates a new SQLiteStorage for the database at path.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Load opens the database, creating the table if needed, and loads the
// stored registers.
func (s *SQLiteStorage) Load() (*model.RegisterBank, error) {
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if err := db.AutoMigrate(&registerRow{}); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	var rows []registerRow
	if err := db.Find(&rows).Error; err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}

	bank := model.NewRegisterBank()
	for _, r := range rows {
		if int(r.Address) >= model.Size {
			continue
		}
		bank.Set(r.Address, r.Value)
	}
	s.bank = bank
	return bank, nil
}

// Save writes every register of bank.
func (s *SQLiteStorage) Save(bank *model.RegisterBank) error {
	if s.db == nil {
		return nil
	}
	rows := make([]registerRow, 0, model.Size)
	for addr := 0; addr < model.Size; addr++ {
		rows = append(rows, registerRow{Address: uint16(addr), Value: bank.Get(uint16(addr))})
	}
	return s.upsert(rows)
}

// OnWrite upserts the changed registers.
func (s *SQLiteStorage) OnWrite(address, quantity uint16) {
	if s.db == nil || s.bank == nil {
		return
	}
	rows := make([]registerRow, 0, quantity)
	for i := 0; i < int(quantity) && int(address)+i < model.Size; i++ {
		addr := address + uint16(i)
		rows = append(rows, registerRow{Address: addr, Value: s.bank.Get(addr)})
	}
	if err := s.upsert(rows); err != nil {
		slog.Error("Failed to persist registers", "addr", address, "quantity", quantity, "err", err)
	}
}

func (s *SQLiteStorage) upsert(rows []registerRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
}

func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
