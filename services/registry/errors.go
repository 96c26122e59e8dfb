package registry

import (
	"errors"
	"fmt"
)

// ErrNotEligible means the professional is offline, unavailable, or at max
// workload and cannot accept a new reservation.
var ErrNotEligible = errors.New("professional is not eligible for a new session")

// ErrNotHolder means the presented token does not match the current lock.
var ErrNotHolder = errors.New("lock is held by a different client")

// ErrUnknownProfessional means the id has never been registered.
var ErrUnknownProfessional = errors.New("professional not registered")

// AlreadyLockedError carries the identity of the current lock holder so the
// caller can report who beat them to the professional.
type AlreadyLockedError struct {
	Holder string
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("professional already locked by %s", e.Holder)
}
