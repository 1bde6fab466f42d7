package storage

import (
	"context"
	"errors"
	"strings"
)

// Table is the record table shared by every store backend.
const Table = "trip_tracker"

var ErrSaveInFlight = errors.New("save already in progress for record")

// Store inserts one serialized trip under a unique id. Failures are
// returned as *PersistError.
type Store interface {
	Insert(ctx context.Context, id, payload string) error
}

// PersistError carries the statement and transaction failures of one
// insert attempt. Either may be empty.
type PersistError struct {
	StmtErr  string
	TransErr string
}

func (e *PersistError) Error() string {
	parts := make([]string, 0, 2)
	if e.StmtErr != "" {
		parts = append(parts, e.StmtErr)
	}
	if e.TransErr != "" {
		parts = append(parts, e.TransErr)
	}
	if len(parts) == 0 {
		return "persist failed"
	}
	return strings.Join(parts, ". ")
}
