package dbusvalue

import (
	"reflect"

	"github.com/creachadair/mds/mapset"
)

var (
	anyType        = reflect.TypeFor[any]()
	valueType      = reflect.TypeFor[Value]()
	basicValueType = reflect.TypeFor[BasicValue]()
	objectPathType = reflect.TypeFor[ObjectPath]()
	signatureType  = reflect.TypeFor[Signature]()

	// strToType maps the single character DBus type codes to the Go
	// type that values of that type decode into when no other target
	// type is known.
	strToType = map[byte]reflect.Type{
		'y': reflect.TypeFor[uint8](),
		'b': reflect.TypeFor[bool](),
		'n': reflect.TypeFor[int16](),
		'q': reflect.TypeFor[uint16](),
		'i': reflect.TypeFor[int32](),
		'u': reflect.TypeFor[uint32](),
		'x': reflect.TypeFor[int64](),
		't': reflect.TypeFor[uint64](),
		'd': reflect.TypeFor[float64](),
		's': reflect.TypeFor[string](),
		'o': objectPathType,
		'g': signatureType,
		'v': anyType,
	}

	// kindToStr maps the reflect.Kinds that encode to DBus basic
	// types to their type code.
	kindToStr = map[reflect.Kind]byte{
		reflect.Bool:    'b',
		reflect.Uint8:   'y',
		reflect.Int16:   'n',
		reflect.Uint16:  'q',
		reflect.Int32:   'i',
		reflect.Uint32:  'u',
		reflect.Int:     'x',
		reflect.Int64:   'x',
		reflect.Uint:    't',
		reflect.Uintptr: 't',
		reflect.Uint64:  't',
		reflect.String:  's',
	}

	// mapKeyKinds is the set of reflect.Kinds that can be in a DBus map
	// key. Floats are absent: Double is not a basic value.
	mapKeyKinds = mapset.New(
		reflect.Bool,
		reflect.Uint8,
		reflect.Int16,
		reflect.Uint16,
		reflect.Int32,
		reflect.Uint32,
		reflect.Int,
		reflect.Int64,
		reflect.Uint,
		reflect.Uintptr,
		reflect.Uint64,
		reflect.String,
	)
)

// basicSignatureFor returns the signature of the basic value that t
// encodes to, if t is a valid map key type.
func basicSignatureFor(t reflect.Type) (Signature, bool) {
	switch t {
	case objectPathType:
		return "o", true
	case signatureType:
		return "g", true
	}
	if !mapKeyKinds.Has(t.Kind()) {
		return "", false
	}
	return Signature(kindToStr[t.Kind()]), true
}
