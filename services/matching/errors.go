package matching

import "fmt"

// MatchError is the recoverable failure surface of the coordinator.
type MatchError struct {
	Code    string
	Message string
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes.
const (
	CodeNoCandidates            = "noCandidates"
	CodeProfessionalUnavailable = "professionalUnavailable"
	CodeAlreadyReserved         = "alreadyReserved"
)

func NewNoCandidatesError(category string) error {
	return &MatchError{
		Code:    CodeNoCandidates,
		Message: fmt.Sprintf("no professionals found matching category '%s'", category),
	}
}

func NewUnavailableError(professionalID string) error {
	return &MatchError{
		Code:    CodeProfessionalUnavailable,
		Message: fmt.Sprintf("professional %s is not available", professionalID),
	}
}

func NewAlreadyReservedError(professionalID, holder string) error {
	return &MatchError{
		Code:    CodeAlreadyReserved,
		Message: fmt.Sprintf("professional %s is already reserved by %s", professionalID, holder),
	}
}

// IsCode reports whether err is a MatchError with the given code.
func IsCode(err error, code string) bool {
	me, ok := err.(*MatchError)
	return ok && me.Code == code
}
