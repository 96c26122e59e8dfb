package session

import (
	"errors"
	"fmt"
)

// ErrNotFound means no session exists with the given id.
var ErrNotFound = errors.New("session not found")

// ErrNotRateable means rating was attempted on a session that is not
// completed.
var ErrNotRateable = errors.New("only completed sessions can be rated")

// InvalidTransitionError reports a state-machine violation. Callers treat it
// as recoverable: it usually means a race between client and professional
// actions, not a fault.
type InvalidTransitionError struct {
	From      string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition from %s to %s", e.From, e.Attempted)
}
