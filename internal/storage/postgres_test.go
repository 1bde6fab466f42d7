package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

func TestPostgresStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trip_tracker`).
		WithArgs("trip-1", `[]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := NewPostgresStore(mock).Insert(context.Background(), "trip-1", `[]`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreStatementAndRollbackErrors(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trip_tracker`).
		WithArgs("trip-2", `[]`).
		WillReturnError(errStmt)
	mock.ExpectRollback().WillReturnError(errTrans)

	err = NewPostgresStore(mock).Insert(context.Background(), "trip-2", `[]`)
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("expected persist error, got %v", err)
	}
	if perr.StmtErr != errStmt.Error() || perr.TransErr != errTrans.Error() {
		t.Fatalf("unexpected persist error: %+v", perr)
	}
	if perr.Error() != "duplicate key. connection reset" {
		t.Fatalf("unexpected combined diagnostic: %q", perr.Error())
	}
}

func TestPostgresStoreBeginError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errTrans)

	err = NewPostgresStore(mock).Insert(context.Background(), "trip-3", `[]`)
	var perr *PersistError
	if !errors.As(err, &perr) || perr.TransErr != errTrans.Error() || perr.StmtErr != "" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPostgresStoreCommitError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trip_tracker`).
		WithArgs("trip-4", `[]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(errTrans)

	err = NewPostgresStore(mock).Insert(context.Background(), "trip-4", `[]`)
	var perr *PersistError
	if !errors.As(err, &perr) || perr.TransErr != errTrans.Error() {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPersistErrorMessage(t *testing.T) {
	if (&PersistError{}).Error() != "persist failed" {
		t.Fatalf("unexpected empty message")
	}
	if (&PersistError{TransErr: "boom"}).Error() != "boom" {
		t.Fatalf("unexpected trans-only message")
	}
}

var (
	errStmt  = errors.New("duplicate key")
	errTrans = errors.New("connection reset")
)
