package tracking

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid trip transition")
	ErrFixRejected       = errors.New("fix rejected")
	ErrSaveInFlight      = errors.New("save already in progress")
	ErrEngineClosed      = errors.New("engine closed")
)
