package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown robot or mission ID.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning and ErrNotRunning signal scheduler lifecycle misuse.
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")

	// ErrAlreadyInitialized signals a second fleet initialization.
	ErrAlreadyInitialized = errors.New("fleet already initialized")
)

// InvalidTransitionError reports a state-machine operation invoked from a
// state that does not permit it.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s (%s)", e.Entity, e.From, e.To, e.ID)
}

// NewInvalidTransition builds an InvalidTransitionError for entity/id.
func NewInvalidTransition(entity, id, from, to string) error {
	return &InvalidTransitionError{Entity: entity, ID: id, From: from, To: to}
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
