// Package autherr defines the user-facing failures of the authentication core.
// Every failure carries a stable machine-readable code and a human message;
// callers match them with errors.Is against the exported sentinels.
package autherr

import (
	"errors"
	"fmt"
)

// Code is the machine-readable kind of an authentication failure.
type Code string

const (
	CodeDuplicateEmail         Code = "DUPLICATE_EMAIL"
	CodeInvalidCredentials     Code = "INVALID_CREDENTIALS"
	CodeAccountLocked          Code = "ACCOUNT_LOCKED"
	CodeMFARequired            Code = "MFA_REQUIRED"
	CodeMFANotEnabled          Code = "MFA_NOT_ENABLED"
	CodeInvalidMFAToken        Code = "INVALID_MFA_TOKEN"
	CodeAuthenticationRequired Code = "UNAUTHENTICATED"
	CodeMFAEnableFailed        Code = "MFA_ENABLE_FAILED"
	CodeMFADisableFailed       Code = "MFA_DISABLE_FAILED"
	CodeBadUserInput           Code = "BAD_USER_INPUT"
	CodeInternal               Code = "INTERNAL_SERVER_ERROR"
)

// Error is a typed authentication failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ErrAccountLocked) matches regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Extensions exposes the code to GraphQL clients.
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": string(e.Code)}
}

var (
	ErrDuplicateEmail         = &Error{Code: CodeDuplicateEmail, Message: "Email already registered"}
	ErrInvalidCredentials     = &Error{Code: CodeInvalidCredentials, Message: "Invalid email or password"}
	ErrAccountLocked          = &Error{Code: CodeAccountLocked, Message: "Account is locked"}
	ErrMFARequired            = &Error{Code: CodeMFARequired, Message: "MFA verification required"}
	ErrMFANotEnabled          = &Error{Code: CodeMFANotEnabled, Message: "MFA is not enabled for this account"}
	ErrInvalidMFAToken        = &Error{Code: CodeInvalidMFAToken, Message: "Invalid MFA token"}
	ErrAuthenticationRequired = &Error{Code: CodeAuthenticationRequired, Message: "Authentication required. Please provide a valid token."}
	ErrMFAEnableFailed        = &Error{Code: CodeMFAEnableFailed, Message: "Failed to enable MFA"}
	ErrMFADisableFailed       = &Error{Code: CodeMFADisableFailed, Message: "Failed to disable MFA"}
	ErrInternal               = &Error{Code: CodeInternal, Message: "Internal server error"}
)

// Locked reports an active lock with the whole minutes left until it expires.
func Locked(minutesLeft int) *Error {
	return &Error{
		Code:    CodeAccountLocked,
		Message: fmt.Sprintf("Account is locked. Please try again in %d minutes.", minutesLeft),
	}
}

// LockTripped reports a lock that the current attempt just triggered.
func LockTripped(lockoutMinutes int) *Error {
	return &Error{
		Code:    CodeAccountLocked,
		Message: fmt.Sprintf("Account locked due to too many failed attempts. Try again in %d minutes.", lockoutMinutes),
	}
}

// BadInput reports a request the caller has to correct.
func BadInput(message string) *Error {
	return &Error{Code: CodeBadUserInput, Message: message}
}

// CodeOf returns the code carried by err, or CodeInternal when err is not typed.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
