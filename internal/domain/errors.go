package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInterval is returned when a check-out does not come strictly after its check-in.
	ErrInvalidInterval = errors.New("check-out must be after check-in")
	// ErrSessionAlreadyOpen is returned when a user already has an active session.
	ErrSessionAlreadyOpen = errors.New("session already open")
)

// StorageError wraps any failure coming out of the attendance store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage converts a store failure into a StorageError. Nil stays nil and
// ErrSessionAlreadyOpen passes through untouched.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionAlreadyOpen) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
