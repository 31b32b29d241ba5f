package store

import "errors"

// Code classifies store failures so they can cross module boundaries as
// typed results rather than stringly-matched errors.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeValidation        Code = "VALIDATION"
	CodeDuplicateReaction Code = "DUPLICATE_REACTION"
	CodeLimitExceeded     Code = "LIMIT_EXCEEDED"
	CodeNotFound          Code = "NOT_FOUND"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrEmptyMessage     = &Error{Code: CodeValidation, Message: "message must not be empty"}
	ErrEmptyDisplayName = &Error{Code: CodeValidation, Message: "display name must not be empty"}

	ErrDuplicateReaction = &Error{Code: CodeDuplicateReaction, Message: "you already reacted with this emoji"}
	ErrReactionLimit     = &Error{Code: CodeLimitExceeded, Message: "you can only add up to 2 reactions per message"}
	ErrMessageNotFound   = &Error{Code: CodeNotFound, Message: "message not found"}
)

// CodeOf extracts the failure code, CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}
