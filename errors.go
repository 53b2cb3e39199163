package blockfile

import (
	"errors"
	"fmt"
)

// Error is the base error of the blockfile package.
type Error struct {
	err error
}

// Error implements error.
func (e Error) Error() string {
	return fmt.Sprintf("blockfile: %s", e.err.Error())
}

// Unwrap implements errors.Unwrap.
func (e Error) Unwrap() error {
	return e.err
}

// Errorf returns a new Error wrapping an error formatted from format and
// args.
func (e Error) Errorf(format string, args ...interface{}) Error {
	return Error{fmt.Errorf(format, args...)}
}

var (
	// ErrIO is the base error for underlying file/mmap syscall failures.
	ErrIO = Error{errors.New("i/o error")}

	// ErrDecode is returned when serialized header/frame/node bytes fail
	// to parse.
	ErrDecode = Error{errors.New("decode error")}

	// ErrOutOfBounds is returned when a caller-supplied handle refers
	// outside the current frame grid.
	ErrOutOfBounds = Error{errors.New("out of bounds")}

	// ErrInvariant is returned when a live record chain or node violates
	// an invariant the package relies on - a corruption signal.
	ErrInvariant = Error{errors.New("invariant violation")}

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = Error{errors.New("invalid key")}
)
