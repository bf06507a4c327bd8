package dbusvalue

import (
	"cmp"
	"fmt"
)

// Value is a node in a DBus value tree.
//
// The set of Value implementations is closed: the basic types
// ([Byte], [Bool], [Int16], [Uint16], [Int32], [Uint32], [Int64],
// [Uint64], [String], [ObjectPath], [Signature]), [Double], and the
// containers [Array], [Struct], [Dictionary] and [Variant].
type Value interface {
	// SignatureDBus returns the DBus type signature of the value.
	SignatureDBus() Signature
	isValue()
}

// BasicValue is a [Value] that can be used as a [Dictionary] key.
//
// BasicValues are comparable with ==, and totally ordered by
// [CompareBasic].
type BasicValue interface {
	Value
	isBasic()
}

// Byte is a DBus BYTE.
type Byte uint8

// Bool is a DBus BOOLEAN.
type Bool bool

// Int16 is a DBus INT16.
type Int16 int16

// Uint16 is a DBus UINT16.
type Uint16 uint16

// Int32 is a DBus INT32.
type Int32 int32

// Uint32 is a DBus UINT32.
type Uint32 uint32

// Int64 is a DBus INT64.
type Int64 int64

// Uint64 is a DBus UINT64.
type Uint64 uint64

// Double is a DBus DOUBLE. Unlike the other numeric types, Double is
// not a [BasicValue] and cannot be a dictionary key.
type Double float64

// String is a DBus STRING.
type String string

func (Byte) SignatureDBus() Signature   { return "y" }
func (Bool) SignatureDBus() Signature   { return "b" }
func (Int16) SignatureDBus() Signature  { return "n" }
func (Uint16) SignatureDBus() Signature { return "q" }
func (Int32) SignatureDBus() Signature  { return "i" }
func (Uint32) SignatureDBus() Signature { return "u" }
func (Int64) SignatureDBus() Signature  { return "x" }
func (Uint64) SignatureDBus() Signature { return "t" }
func (Double) SignatureDBus() Signature { return "d" }
func (String) SignatureDBus() Signature { return "s" }

func (Byte) isValue()       {}
func (Bool) isValue()       {}
func (Int16) isValue()      {}
func (Uint16) isValue()     {}
func (Int32) isValue()      {}
func (Uint32) isValue()     {}
func (Int64) isValue()      {}
func (Uint64) isValue()     {}
func (Double) isValue()     {}
func (String) isValue()     {}
func (ObjectPath) isValue() {}
func (Signature) isValue()  {}
func (Array) isValue()      {}
func (Struct) isValue()     {}
func (Dictionary) isValue() {}
func (Variant) isValue()    {}

func (Byte) isBasic()       {}
func (Bool) isBasic()       {}
func (Int16) isBasic()      {}
func (Uint16) isBasic()     {}
func (Int32) isBasic()      {}
func (Uint32) isBasic()     {}
func (Int64) isBasic()      {}
func (Uint64) isBasic()     {}
func (String) isBasic()     {}
func (ObjectPath) isBasic() {}
func (Signature) isBasic()  {}

// CompareBasic returns -1, 0 or 1 depending on whether a sorts
// before, equal to, or after b.
//
// Values of different types are ordered by their type signature.
// Values of the same type are ordered by their natural order, with
// false sorting before true.
func CompareBasic(a, b BasicValue) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if c := cmp.Compare(a.SignatureDBus(), b.SignatureDBus()); c != 0 {
		return c
	}
	switch av := a.(type) {
	case Byte:
		return cmp.Compare(av, b.(Byte))
	case Bool:
		bv := b.(Bool)
		if av == bv {
			return 0
		} else if !av {
			return -1
		}
		return 1
	case Int16:
		return cmp.Compare(av, b.(Int16))
	case Uint16:
		return cmp.Compare(av, b.(Uint16))
	case Int32:
		return cmp.Compare(av, b.(Int32))
	case Uint32:
		return cmp.Compare(av, b.(Uint32))
	case Int64:
		return cmp.Compare(av, b.(Int64))
	case Uint64:
		return cmp.Compare(av, b.(Uint64))
	case String:
		return cmp.Compare(av, b.(String))
	case ObjectPath:
		return cmp.Compare(av, b.(ObjectPath))
	case Signature:
		return cmp.Compare(av, b.(Signature))
	default:
		panic(fmt.Sprintf("unknown basic value type %T", a))
	}
}

// Equal reports whether a and b are structurally identical value
// trees, including their type signatures.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Array:
		bv, ok := b.(Array)
		return ok && av.Equal(bv)
	case Struct:
		bv, ok := b.(Struct)
		return ok && av.Equal(bv)
	case Dictionary:
		bv, ok := b.(Dictionary)
		return ok && av.Equal(bv)
	case Variant:
		bv, ok := b.(Variant)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}
