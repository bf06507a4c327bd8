package dbusvalue

import (
	"errors"
	"fmt"
	"reflect"
)

// Errors returned by [Encode] and the [Encoder].
var (
	// ErrBadKeyType is returned when a map key does not encode to a
	// [BasicValue].
	ErrBadKeyType = errors.New("map key is not a DBus basic type")
	// ErrUnsupported is returned when a value has no DBus
	// representation.
	ErrUnsupported = errors.New("value has no DBus representation")
	// ErrEmptyArray is returned when encoding an empty array, whose
	// element signature cannot be inferred.
	ErrEmptyArray = errors.New("cannot infer the signature of an empty array")
	// ErrEmptyMap is returned when encoding an empty map, whose
	// key and value signatures cannot be inferred.
	ErrEmptyMap = errors.New("cannot infer the signature of an empty map")
)

// Errors returned by [Decode] and the [Decoder].
var (
	// ErrBadSignature is returned when a value's type does not match
	// the type being decoded.
	ErrBadSignature = errors.New("value does not match the requested type")
	// ErrNotSupported is returned when decoding into a type that no
	// DBus value can decode into.
	ErrNotSupported = errors.New("type cannot be decoded from a DBus value")
	// ErrIntTooNarrow is returned when an integer value does not fit
	// in the requested integer type.
	ErrIntTooNarrow = errors.New("integer does not fit in the requested type")
)

// TypeError is the error returned when a Go type cannot be converted
// to or from DBus values.
type TypeError struct {
	// Type is the name of the type that caused the error.
	Type string
	// Reason is an explanation of why the type isn't representable by
	// DBus.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("dbus cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(t reflect.Type, reason string, args ...any) error {
	ts := ""
	if t != nil {
		ts = t.String()
	}
	return TypeError{ts, fmt.Errorf(reason, args...)}
}

// SignatureError is the error returned when a type signature is
// malformed, or does not agree with the value it describes.
type SignatureError struct {
	// Path locates the offending value within a value tree, or is
	// empty if the error is about a standalone signature.
	Path string
	// Signature is the offending signature.
	Signature Signature
	// Reason explains what is wrong with the signature.
	Reason string

	// err is the sentinel the error unwraps to, or nil for
	// ErrBadSignature.
	err error
}

func (e *SignatureError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid type signature %q: %s", e.Signature, e.Reason)
	}
	return fmt.Sprintf("invalid type signature %q at %s: %s", e.Signature, e.Path, e.Reason)
}

func (e *SignatureError) Unwrap() error {
	if e.err != nil {
		return e.err
	}
	return ErrBadSignature
}
