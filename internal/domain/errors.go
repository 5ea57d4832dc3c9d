package domain

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")

	// ErrNoDocument is returned by a storage backend that holds no document yet.
	ErrNoDocument = errors.New("no document")
)

// CommandError carries a user-facing message for a rejected command.
// Kind is one of ErrValidation, ErrConflict or ErrNotFound.
type CommandError struct {
	Kind    error
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Kind
}

func Invalid(message string) error {
	return &CommandError{Kind: ErrValidation, Message: message}
}

func Conflict(message string) error {
	return &CommandError{Kind: ErrConflict, Message: message}
}

func NotFound(message string) error {
	return &CommandError{Kind: ErrNotFound, Message: message}
}
