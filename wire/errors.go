package wire

import (
	"errors"
	"fmt"
)

// Error is the protocol's structured error. Every failure that can reach a
// peer is expressed as one of these so it maps onto exactly one ReturnCode.
//
// Callers should branch on Code rather than matching error strings; Message is
// intended for humans and ends up in TensorMessage.Message.
type Error struct {
	Code    ReturnCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Errorf builds an *Error with a formatted message.
func Errorf(code ReturnCode, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that keeps cause for errors.Is/As.
func Wrap(code ReturnCode, msg string, cause error) error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the ReturnCode carried by err. Nil maps to Success and any
// error that is not (and does not wrap) an *Error maps to UnknownException.
func CodeOf(err error) ReturnCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return UnknownException
}

// MessageOf returns the human-readable part of err suitable for TensorMessage.Message.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

// IsCode reports whether err carries code.
func IsCode(err error, code ReturnCode) bool {
	return err != nil && CodeOf(err) == code
}
