package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type tripRecord struct {
	ID       string `gorm:"primaryKey"`
	TripData string `gorm:"column:trip_data;not null"`
}

func (tripRecord) TableName() string { return Table }

// SQLiteStore keeps trips in the on-device database.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore migrates the trip table and returns the store.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&tripRecord{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, id, payload string) error {
	var stmtErr error
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmtErr = tx.Create(&tripRecord{ID: id, TripData: payload}).Error
		return stmtErr
	})
	if stmtErr == nil && txErr == nil {
		return nil
	}

	perr := &PersistError{}
	if stmtErr != nil {
		perr.StmtErr = stmtErr.Error()
	}
	if txErr != nil && !errors.Is(txErr, stmtErr) {
		perr.TransErr = txErr.Error()
	}
	return perr
}
