package store

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnknownStoreClass    = errors.New("unknown store class")
	ErrInitialisation       = errors.New("store initialisation failed")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrPropertiesFrozen     = errors.New("store properties are frozen")
	ErrInvalidProperty      = errors.New("invalid store property")
	ErrInvalidDeclaration   = errors.New("invalid operation declaration")
	ErrJobTrackerDisabled   = errors.New("job tracker is disabled")
	ErrStoreClosed          = errors.New("store closed")
)

// Error wraps a failure raised while a handler ran. errors.Unwrap returns
// the cause.
type Error struct {
	// Op is the class of the operation that failed.
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}
