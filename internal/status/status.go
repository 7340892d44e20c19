// Package status defines the runtime's numeric status codes and the error
// and result types built on them.
//
// Codes are assigned in ranges:
//
//	  1-99   non-recoverable: the app image or the runtime configuration is
//	         invalid, so restarting would reproduce the failure
//	100-249  recoverable: restarting the scan loop is likely to succeed
//	250-255  special: scheduler state transitions (yield, restart, hibernate)
//
// The numeric values are part of the process contract: the exit status of the
// svm process is exactly the code of the first error encountered.
package status

import (
	"errors"
	"fmt"
)

// Code is a numeric runtime status.
type Code uint8

// Non-recoverable codes.
const (
	OK                   Code = 0
	InvalidArgs          Code = 40
	CannotInitApp        Code = 41
	CannotOpenFile       Code = 42
	InvalidMagic         Code = 43
	InvalidVersion       Code = 44
	InvalidSchema        Code = 45
	UnexpectedEOF        Code = 46
	InvalidKitID         Code = 47
	InvalidTypeID        Code = 48
	CannotMalloc         Code = 49
	CannotInsert         Code = 50
	CannotLoadLink       Code = 51
	InvalidAppEndMarker  Code = 52
	NoPlatformService    Code = 53
	BadPlatformService   Code = 54
	InvalidCompEndMarker Code = 60
	NameTooLong          Code = 61
)

// Recoverable codes.
const (
	// RuntimeFault is reported when a running app hits a condition that a
	// fresh start is expected to clear.
	RuntimeFault Code = 140
)

// Special codes signalling scheduler transitions.
const (
	Yield     Code = 253
	Restart   Code = 254
	Hibernate Code = 255
)

// Class groups codes by how a supervisor should react to them.
type Class int

const (
	ClassOK Class = iota
	ClassFatal
	ClassRecoverable
	ClassTransition
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassFatal:
		return "fatal"
	case ClassRecoverable:
		return "recoverable"
	case ClassTransition:
		return "transition"
	}
	return "unknown"
}

// Class returns the range the code falls into.
func (c Code) Class() Class {
	switch {
	case c == OK:
		return ClassOK
	case c < 100:
		return ClassFatal
	case c < 250:
		return ClassRecoverable
	default:
		return ClassTransition
	}
}

var codeNames = map[Code]string{
	OK:                   "ok",
	InvalidArgs:          "invalidArgs",
	CannotInitApp:        "cannotInitApp",
	CannotOpenFile:       "cannotOpenFile",
	InvalidMagic:         "invalidMagic",
	InvalidVersion:       "invalidVersion",
	InvalidSchema:        "invalidSchema",
	UnexpectedEOF:        "unexpectedEOF",
	InvalidKitID:         "invalidKitId",
	InvalidTypeID:        "invalidTypeId",
	CannotMalloc:         "cannotMalloc",
	CannotInsert:         "cannotInsert",
	CannotLoadLink:       "cannotLoadLink",
	InvalidAppEndMarker:  "invalidAppEndMarker",
	NoPlatformService:    "noPlatformService",
	BadPlatformService:   "badPlatformService",
	InvalidCompEndMarker: "invalidCompEndMarker",
	NameTooLong:          "nameTooLong",
	RuntimeFault:         "runtimeFault",
	Yield:                "yield",
	Restart:              "restart",
	Hibernate:            "hibernate",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Error is an error carrying a status code.
type Error struct {
	// Code is the numeric status reported to the host.
	Code Code

	// Op names the operation that failed (e.g. "loadApp").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %v", msg, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%d)", msg, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so sentinel comparisons
// like errors.Is(err, &Error{Code: InvalidMagic}) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == "" && t.Err == nil
}

// New creates an Error.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the status code from err.
// nil maps to OK; errors without a code map to CannotInitApp.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CannotInitApp
}

// IsFatal reports whether err carries a non-recoverable code.
func IsFatal(err error) bool {
	return err != nil && CodeOf(err).Class() == ClassFatal
}

// IsRecoverable reports whether err carries a recoverable code.
func IsRecoverable(err error) bool {
	return err != nil && CodeOf(err).Class() == ClassRecoverable
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
