package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrCaregiverNotFound  = errors.New("caregiver not found")
	ErrConflict           = errors.New("already exists")
	ErrAlreadyLinked      = errors.New("patient already has a caregiver")
	// ErrInvalidToken covers every rejected association or reset token.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// ValidationError carries a message that is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AlreadyLinkedError reports the caregiver the patient is linked to.
type AlreadyLinkedError struct {
	CaregiverID int64
}

func (e *AlreadyLinkedError) Error() string {
	return fmt.Sprintf("patient already linked to caregiver %d", e.CaregiverID)
}

func (e *AlreadyLinkedError) Is(target error) bool {
	return target == ErrAlreadyLinked
}
