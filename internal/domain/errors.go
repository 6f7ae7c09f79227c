package domain

import "fmt"

// AppError is an error with a stable code that handlers can branch on.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same code, so wrapped copies of a
// sentinel compare equal to it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	// ErrInvalidTimezone is a configuration error: the stored timezone
	// name cannot be resolved.
	ErrInvalidTimezone = &AppError{Code: "CONFIG_001", Message: "invalid timezone"}

	ErrValidation    = &AppError{Code: "VALID_001", Message: "validation failed"}
	ErrNotFound      = &AppError{Code: "SCHED_001", Message: "schedule not found or doesn't belong to you"}
	ErrScheduleEnded = &AppError{Code: "SCHED_002", Message: "schedule has ended"}
	ErrUserNotFound  = &AppError{Code: "USER_001", Message: "user not found"}
	ErrNoDoseSlot    = &AppError{Code: "DOSE_001", Message: "no dose slot found"}
)

// NewValidationError returns a validation error carrying a user-facing message.
func NewValidationError(msg string) *AppError {
	return &AppError{Code: ErrValidation.Code, Message: msg}
}

// Wrap attaches a cause to a copy of the sentinel.
func Wrap(sentinel *AppError, cause error) *AppError {
	return &AppError{Code: sentinel.Code, Message: sentinel.Message, Cause: cause}
}
