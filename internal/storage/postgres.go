package storage

import (
	"context"

	"backend-triptracker/internal/db"
)

type PostgresStore struct {
	db db.TxBeginner
}

func NewPostgresStore(pool db.TxBeginner) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, id, payload string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return &PersistError{TransErr: err.Error()}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO trip_tracker (id, trip_data)
		VALUES ($1,$2)
	`, id, payload); err != nil {
		perr := &PersistError{StmtErr: err.Error()}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			perr.TransErr = rbErr.Error()
		}
		return perr
	}

	if err := tx.Commit(ctx); err != nil {
		return &PersistError{TransErr: err.Error()}
	}
	return nil
}
