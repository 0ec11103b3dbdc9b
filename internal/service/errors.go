package service

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrEmailVerifiedConflict = errors.New("email already in use and verified")
	ErrEmailPendingConflict  = errors.New("email already in use and pending verification")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailUnverified       = errors.New("email verification required")
	ErrAccountNotFound       = errors.New("account not found")
)

// InputError carries per-field validation failures and matches ErrInvalidInput.
type InputError struct {
	Fields validation.Errors
}

func (e *InputError) Error() string {
	return e.Fields.Error()
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// FieldMessages flattens the validation errors into field -> message.
func (e *InputError) FieldMessages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for field, err := range e.Fields {
		out[field] = err.Error()
	}
	return out
}

func asInputError(err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return &InputError{Fields: fields}
	}
	return err
}
