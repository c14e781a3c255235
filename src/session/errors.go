package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for exit codes and status reporting.
type ErrorKind int

const (
	// HardwareError covers rfkill, missing AP mode, unsupported band and
	// interfaces in monitor mode.
	HardwareError ErrorKind = iota + 1
	// SafetyBlock covers the single-adapter lockout.
	SafetyBlock
	// ConfigurationError covers tool failures and timeouts.
	ConfigurationError
	// InvalidArgument covers malformed operator input.
	InvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case HardwareError:
		return "hardware"
	case SafetyBlock:
		return "safety"
	case ConfigurationError:
		return "config"
	case InvalidArgument:
		return "argument"
	}
	return "unknown"
}

// Error is a classified hotspot error. Code is namespaced by kind, e.g.
// "hardware.rfkill_blocked", so a front end can classify from it alone.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Record converts the error to its persisted form.
func (e *Error) Record() *ErrorRecord {
	return &ErrorRecord{Code: e.Code, Message: e.Error()}
}

// NewError builds an Error whose code is prefixed with the kind.
func NewError(kind ErrorKind, code, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    kind.String() + "." + code,
		Message: message,
		Cause:   cause,
	}
}

// Invalidf builds an InvalidArgument error.
func Invalidf(code, format string, args ...interface{}) *Error {
	return NewError(InvalidArgument, code, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// RecordOf returns a persisted record for any error.
func RecordOf(err error) *ErrorRecord {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Record()
	}
	return &ErrorRecord{Code: ConfigurationError.String() + ".internal", Message: err.Error()}
}
