package domain

import "errors"

// Precondition failures. They are checked before any remote call and are
// shown to the user as warnings, not errors.
var (
	ErrMissingCredential = errors.New("api key is required")
	ErrEmptyPrompt       = errors.New("please enter a description")
	ErrEmptyMessage      = errors.New("message is empty")
)

// IsPrecondition reports whether err is one of the precondition failures.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrEmptyPrompt) ||
		errors.Is(err, ErrEmptyMessage)
}
