package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyAssigned      ErrorCode = "ALREADY_ASSIGNED"
	ErrCodeNotEligible          ErrorCode = "NOT_ELIGIBLE"
	ErrCodeCapacityExceeded     ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeNoOperatorsAvailable ErrorCode = "NO_OPERATORS_AVAILABLE"
	ErrCodeInvalidState         ErrorCode = "INVALID_STATE"
	ErrCodeInvalid              ErrorCode = "INVALID"
	ErrCodeForbidden            ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal             ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrChatNotFound         = NewError(ErrCodeNotFound, "chat not found")
	ErrOperatorNotFound     = NewError(ErrCodeNotFound, "operator not found")
	ErrChatAlreadyAssigned  = NewError(ErrCodeAlreadyAssigned, "chat is already assigned")
	ErrChatNotEligible      = NewError(ErrCodeNotEligible, "chat is not eligible for reassignment")
	ErrCapacityExceeded     = NewError(ErrCodeCapacityExceeded, "operator cannot accept new chats")
	ErrNoOperatorsAvailable = NewError(ErrCodeNoOperatorsAvailable, "no available operators found")
	ErrChatClosed           = NewError(ErrCodeInvalidState, "chat is closed")
	ErrOperatorOffline      = NewError(ErrCodeInvalidState, "operator is offline")
	ErrUnauthorized         = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden            = NewError(ErrCodeForbidden, "forbidden")
	ErrInvalidPayload       = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf extracts the domain code from an error, falling back to INTERNAL
// for unclassified failures.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}
