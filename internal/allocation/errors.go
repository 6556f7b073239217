package allocation

import (
	"errors"
	"fmt"

	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// Code classifies a rejected operation.  Codes are part of the API
// contract and are returned to clients verbatim.
type Code string

const (
	CodeAlreadyInQueue         Code = "ALREADY_IN_QUEUE"
	CodeNoAvailableSpots       Code = "NO_AVAILABLE_SPOTS"
	CodeMaxReservationAttempts Code = "MAX_RESERVATION_ATTEMPTS"
	CodeNotInQueue             Code = "NOT_IN_QUEUE"
	CodeInvalidReservationCode Code = "INVALID_RESERVATION_CODE"
	CodeReservationExpired     Code = "RESERVATION_EXPIRED"
	CodeReservationFull        Code = "RESERVATION_FULL"
	CodeReservationNotActive   Code = "RESERVATION_NOT_ACTIVE"
	CodeNotFound               Code = "NOT_FOUND"
	CodeCannotCancel           Code = "CANNOT_CANCEL"
	CodeConflict               Code = "CONFLICT"
	CodeCodeGenerationFailed   Code = "CODE_GENERATION_FAILED"
	CodeInvalidInput           Code = "INVALID_INPUT"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeDatabaseError          Code = "DATABASE_ERROR"
)

// Error is a business rule rejection.  It is returned, never panicked,
// and leaves the store untouched because the surrounding transaction
// is rolled back.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func reject(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the business code carried by err.  A conflict that
// survived every retry is CONFLICT; anything else that is not a
// rejection is DATABASE_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, repository.ErrConflict) {
		return CodeConflict
	}
	return CodeDatabaseError
}

// IsRejection reports whether err is a business rule rejection.
func IsRejection(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
