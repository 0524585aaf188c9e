package framework

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure raised by a test body, a hook, or the protocol client.
type ErrorKind int

const (
	// KindFailure is an ordinary failure. A test that ends with it is "failed".
	KindFailure ErrorKind = iota

	// KindNotSupported means the requirement being tested does not apply to the server
	// under test. A test that ends with it is "not-supported" and never triggers bail.
	KindNotSupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotSupported:
		return "not supported"
	default:
		return "failure"
	}
}

// TestError is an error that carries an ErrorKind.
type TestError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *TestError) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return e.Message + ": " + e.Cause.Error()
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return e.Kind.String()
	}
}

func (e *TestError) Unwrap() error {
	return e.Cause
}

// NotSupported returns an error of kind KindNotSupported.
func NotSupported(format string, args ...interface{}) error {
	return &TestError{Kind: KindNotSupported, Message: fmt.Sprintf(format, args...)}
}

// Failure returns an error of kind KindFailure.
func Failure(format string, args ...interface{}) error {
	return &TestError{Kind: KindFailure, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the first TestError in err's chain, or KindFailure if
// there is none.
func KindOf(err error) ErrorKind {
	var te *TestError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindFailure
}

// IsNotSupported is shorthand for KindOf(err) == KindNotSupported.
func IsNotSupported(err error) bool {
	return err != nil && KindOf(err) == KindNotSupported
}
