package dbusvalue

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/zap"
)

// Encode returns the DBus value tree for v.
//
// Encode traverses the value v recursively. If an encountered value
// implements [Marshaler], Encode calls MarshalDBus on it to produce
// its encoding. Values that are already [Value] nodes, including
// values of interface type Value and BasicValue, are inserted into
// the tree unchanged.
//
// Otherwise, Encode uses the following type-dependent default
// encodings:
//
// uint{8,16,32,64}, int{16,32,64}, float64, bool and string values
// encode to the corresponding DBus basic type.
//
// Array and slice values encode as DBus arrays. Since the element
// signature is inferred from the elements, empty arrays and slices
// cannot be encoded, and cause Encode to return [ErrEmptyArray].
//
// Struct values encode as DBus structs. Each exported struct field is
// encoded in declaration order, according to its own type. Embedded
// struct fields are encoded as if their inner exported fields were
// fields in the outer struct, subject to the usual Go visibility
// rules. A struct with no exported fields encodes as the empty struct
// "()".
//
// Map values encode as a DBus dictionary. The map's key underlying
// type must be uint{8,16,32,64}, int{16,32,64}, bool, or string,
// otherwise Encode returns an error wrapping [ErrBadKeyType]. Empty
// maps cause Encode to return [ErrEmptyMap].
//
// Several DBus protocols use map[K]any values to extend structs with
// new fields in a backwards compatible way. To support this "vardict"
// idiom, structs may contain a single "vardict" field and several
// "associated" fields:
//
//	struct Vardict{
//	    // A "vardict" map for the struct.
//	    M map[uint8]any `dbus:"vardict"`
//
//	    // "associated" fields. Associated fields can be declared
//	    // anywhere in the struct, before or after the vardict field.
//	    Foo string `dbus:"key=1"`
//	    Bar uint32 `dbus:"key=2"`
//	}
//
// A vardict field encodes as a DBus dictionary with variant values,
// like a regular map[K]any, except that associated fields with
// nonzero values are encoded as additional key/value pairs. An
// associated field can be tagged with `dbus:"key=X,encodeZero"` to
// encode its zero value as well. Vardicts may be empty.
//
// Pointer values encode as the value pointed to. Nil pointers cannot
// be encoded, since DBus has no null or optional values.
//
// Interface values of type any encode as DBus variants containing
// the encoding of the interface's dynamic value.
//
// int encodes as an INT64, and uint and uintptr as a UINT64,
// regardless of platform. float32 encodes as a DOUBLE.
//
// int8, complex64, complex128, other interface, channel, and function
// values cannot be encoded.
// Attempting to encode such values causes Encode to return a
// [TypeError].
//
// DBus cannot represent cyclic or recursive types. Attempting to
// encode such values causes Encode to return a [TypeError]. Structs
// that embed themselves are the exception: the embedded copy is
// skipped, since Go's promotion rules hide all its fields.
func Encode(v any) (Value, error) {
	if v == nil {
		return nil, fmt.Errorf("can't encode nil interface: %w", ErrUnsupported)
	}
	val := reflect.ValueOf(v)
	enc, err := encoderFor(val.Type())
	if err != nil {
		return nil, err
	}
	e := Encoder{Mapper: encoderFor}
	if err := enc(&e, val); err != nil {
		return nil, err
	}
	return e.Result()
}

// Marshaler is the interface implemented by types that can encode
// themselves to a DBus value.
//
// MarshalDBus must emit exactly one value into the Encoder.
type Marshaler interface {
	MarshalDBus(e *Encoder) error
}

var marshalerType = reflect.TypeFor[Marshaler]()

var encoders cache[reflect.Type, EncoderFunc]

func encoderFor(t reflect.Type) (EncoderFunc, error) {
	return encoderForStack(t, nil)
}

func encoderForStack(t reflect.Type, stack []reflect.Type) (ret EncoderFunc, err error) {
	if ret, err := encoders.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	if slices.Contains(stack, t) {
		return nil, typeErr(t, "recursive type: %w", ErrUnsupported)
	}
	stack = append(stack, t)

	// Note, defer captures the type value in case it gets messed with
	// below.
	defer func(t reflect.Type) {
		if err != nil {
			Logger().Debug("no encoder for type", zap.Stringer("type", t), zap.Error(err))
			encoders.SetErr(t, err)
		} else {
			Logger().Debug("built encoder", zap.Stringer("type", t))
			encoders.Set(t, ret)
		}
	}(t)

	// If a value's pointer type implements Marshaler, we can avoid
	// a value copy by using it. But we can only use it for
	// addressable values, which requires an additional runtime check.
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(marshalerType) {
		return newCondAddrMarshalEncoder(t), nil
	} else if t.Implements(marshalerType) {
		return newMarshalEncoder(t), nil
	}

	if isNodeType(t) {
		return newNodeEncoder(), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		return newPtrEncoder(t, stack)
	case reflect.Interface:
		return newInterfaceEncoder(t)
	case reflect.Bool:
		return newBoolEncoder(), nil
	case reflect.Int8:
		return nil, typeErr(t, "int8 has no corresponding DBus type, use uint8 instead: %w", ErrUnsupported)
	case reflect.Int, reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntEncoder(t), nil
	case reflect.Uint, reflect.Uintptr, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintEncoder(t), nil
	case reflect.Float32, reflect.Float64:
		return newFloatEncoder(), nil
	case reflect.String:
		return newStringEncoder(), nil
	case reflect.Slice, reflect.Array:
		return newSliceEncoder(t, stack)
	case reflect.Struct:
		return newStructEncoder(t, stack)
	case reflect.Map:
		return newMapEncoder(t, stack)
	}
	return nil, typeErr(t, "no dbus mapping for type: %w", ErrUnsupported)
}

func newCondAddrMarshalEncoder(t reflect.Type) EncoderFunc {
	ptr := newMarshalEncoder(reflect.PointerTo(t))
	if t.Implements(marshalerType) {
		val := newMarshalEncoder(t)
		return func(e *Encoder, v reflect.Value) error {
			if v.CanAddr() {
				return ptr(e, v.Addr())
			} else {
				return val(e, v)
			}
		}
	} else {
		return func(e *Encoder, v reflect.Value) error {
			if !v.CanAddr() {
				return typeErr(t, "Marshaler is only implemented on pointer receiver, and cannot take the address of given value")
			}
			return ptr(e, v.Addr())
		}
	}
}

func newMarshalEncoder(t reflect.Type) EncoderFunc {
	return func(e *Encoder, v reflect.Value) error {
		if t.Kind() == reflect.Pointer && v.IsNil() {
			return e.Nil()
		}
		m := v.Interface().(Marshaler)
		return m.MarshalDBus(e)
	}
}

// isNodeType reports whether t is one of the concrete [Value] types.
func isNodeType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer:
		return false
	}
	return t.Implements(valueType)
}

// newNodeEncoder returns an encoder for the concrete [Value] types,
// which are inserted into the tree as-is.
func newNodeEncoder() EncoderFunc {
	return func(e *Encoder, v reflect.Value) error {
		e.push(v.Interface().(Value))
		return nil
	}
}

func newPtrEncoder(t reflect.Type, stack []reflect.Type) (EncoderFunc, error) {
	elemEnc, err := encoderForStack(t.Elem(), stack)
	if err != nil {
		return nil, err
	}
	fn := func(e *Encoder, v reflect.Value) error {
		if v.IsNil() {
			return fmt.Errorf("nil %s: %w", t, ErrUnsupported)
		}
		return elemEnc(e, v.Elem())
	}
	return fn, nil
}

func newInterfaceEncoder(t reflect.Type) (EncoderFunc, error) {
	switch t {
	case valueType, basicValueType:
		return func(e *Encoder, v reflect.Value) error {
			if v.IsNil() {
				return e.Nil()
			}
			e.push(v.Elem().Interface().(Value))
			return nil
		}, nil
	case anyType:
		return func(e *Encoder, v reflect.Value) error {
			if v.IsNil() {
				return e.Nil()
			}
			return e.Variant(func() error {
				return e.Value(v.Elem().Interface())
			})
		}, nil
	}
	return nil, typeErr(t, "only interface types any, Value and BasicValue can be encoded: %w", ErrUnsupported)
}

func newBoolEncoder() EncoderFunc {
	return func(e *Encoder, v reflect.Value) error {
		e.Bool(v.Bool())
		return nil
	}
}

func newIntEncoder(t reflect.Type) EncoderFunc {
	size := t.Size()
	if t.Kind() == reflect.Int {
		// int is always an Int64, so that its signature does not
		// depend on the platform.
		size = 8
	}
	switch size {
	case 2:
		return func(e *Encoder, v reflect.Value) error {
			e.Int16(int16(v.Int()))
			return nil
		}
	case 4:
		return func(e *Encoder, v reflect.Value) error {
			e.Int32(int32(v.Int()))
			return nil
		}
	case 8:
		return func(e *Encoder, v reflect.Value) error {
			e.Int64(v.Int())
			return nil
		}
	default:
		panic("invalid newIntEncoder type")
	}
}

func newUintEncoder(t reflect.Type) EncoderFunc {
	size := t.Size()
	if t.Kind() == reflect.Uint || t.Kind() == reflect.Uintptr {
		size = 8
	}
	switch size {
	case 1:
		return func(e *Encoder, v reflect.Value) error {
			e.Uint8(uint8(v.Uint()))
			return nil
		}
	case 2:
		return func(e *Encoder, v reflect.Value) error {
			e.Uint16(uint16(v.Uint()))
			return nil
		}
	case 4:
		return func(e *Encoder, v reflect.Value) error {
			e.Uint32(uint32(v.Uint()))
			return nil
		}
	case 8:
		return func(e *Encoder, v reflect.Value) error {
			e.Uint64(v.Uint())
			return nil
		}
	default:
		panic("invalid newUintEncoder type")
	}
}

func newFloatEncoder() EncoderFunc {
	return func(e *Encoder, v reflect.Value) error {
		e.Float64(v.Float())
		return nil
	}
}

func newStringEncoder() EncoderFunc {
	return func(e *Encoder, v reflect.Value) error {
		e.String(v.String())
		return nil
	}
}

func newSliceEncoder(t reflect.Type, stack []reflect.Type) (EncoderFunc, error) {
	elemEnc, err := encoderForStack(t.Elem(), stack)
	if err != nil {
		return nil, err
	}

	fn := func(e *Encoder, v reflect.Value) error {
		n := v.Len()
		return e.Array(n, func() error {
			for i := range n {
				err := e.ArrayElem(i, func() error {
					return elemEnc(e, v.Index(i))
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	return fn, nil
}

func newStructEncoder(t reflect.Type, stack []reflect.Type) (EncoderFunc, error) {
	fs, err := getStructInfo(t)
	if err != nil {
		return nil, typeErr(t, "getting struct info: %w", err)
	}

	var frags []EncoderFunc
	for _, f := range fs.StructFields {
		fEnc, err := newStructFieldEncoder(f, stack)
		if err != nil {
			return nil, err
		}
		frags = append(frags, fEnc)
	}

	fn := func(e *Encoder, v reflect.Value) error {
		return e.Struct(fs.Name, len(frags), func() error {
			for i, frag := range frags {
				err := e.StructField(fs.StructFields[i].Name, i, func() error {
					return frag(e, v)
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	return fn, nil
}

// Note, the returned encoder expects to be given the entire struct,
// not just the one field being encoded.
func newStructFieldEncoder(f *structField, stack []reflect.Type) (EncoderFunc, error) {
	if f.IsVarDict() {
		return newVarDictFieldEncoder(f, stack)
	}

	fEnc, err := encoderForStack(f.Type, stack)
	if err != nil {
		return nil, err
	}
	fn := func(e *Encoder, v reflect.Value) error {
		fv := f.GetWithZero(v)
		return fEnc(e, fv)
	}
	return fn, nil
}

// Note, the returned encoder expects to be given the entire struct,
// not just the one field being encoded.
func newVarDictFieldEncoder(f *structField, stack []reflect.Type) (EncoderFunc, error) {
	kt := f.Type.Key()
	kEnc, err := encoderForStack(kt, stack)
	if err != nil {
		return nil, err
	}
	vEnc, err := encoderForStack(anyType, stack)
	if err != nil {
		return nil, err
	}
	ks, ok := basicSignatureFor(kt)
	if !ok {
		return nil, typeErr(f.Type, "invalid vardict key type %s: %w", kt, ErrBadKeyType)
	}
	sig := mustParseSignature("a{" + string(ks) + "v}")
	kCmp := f.VarDictKeyCmp()

	fieldKeys := f.VarDictFields.MapKeys()
	slices.SortFunc(fieldKeys, kCmp)
	var (
		varDictFields []*varDictField
		fieldEncs     []EncoderFunc
	)
	for _, k := range fieldKeys {
		vf := f.VarDictField(k)
		fEnc, err := encoderForStack(vf.Type, stack)
		if err != nil {
			return nil, err
		}
		varDictFields = append(varDictFields, vf)
		fieldEncs = append(fieldEncs, fEnc)
	}

	fn := func(e *Encoder, v reflect.Value) error {
		type pair struct {
			key reflect.Value
			val func() error
		}
		var pairs []pair
		for i, vf := range varDictFields {
			fv := vf.GetWithZero(v)
			if fv.IsZero() && !vf.EncodeZero {
				continue
			}
			fEnc := fieldEncs[i]
			pairs = append(pairs, pair{vf.Key, func() error {
				return e.Variant(func() error { return fEnc(e, fv) })
			}})
		}
		other := f.GetWithZero(v)
		mks := other.MapKeys()
		slices.SortFunc(mks, kCmp)
		for _, mk := range mks {
			mv := other.MapIndex(mk)
			pairs = append(pairs, pair{mk, func() error { return vEnc(e, mv) }})
		}

		return e.MapWithSignature(sig, len(pairs), func() error {
			for i, p := range pairs {
				if err := e.MapKey(i, func() error { return kEnc(e, p.key) }); err != nil {
					return err
				}
				if err := e.MapValue(i, p.val); err != nil {
					return fmt.Errorf("vardict key %v: %w", p.key, err)
				}
			}
			return nil
		})
	}
	return fn, nil
}

func newMapEncoder(t reflect.Type, stack []reflect.Type) (EncoderFunc, error) {
	kt := t.Key()
	if _, ok := basicSignatureFor(kt); !ok {
		return nil, typeErr(t, "invalid map key type %s: %w", kt, ErrBadKeyType)
	}
	kEnc, err := encoderForStack(kt, stack)
	if err != nil {
		return nil, err
	}
	vEnc, err := encoderForStack(t.Elem(), stack)
	if err != nil {
		return nil, err
	}
	kCmp := mapKeyCmp(kt)

	fn := func(e *Encoder, v reflect.Value) error {
		ks := v.MapKeys()
		slices.SortFunc(ks, kCmp)
		return e.Map(len(ks), func() error {
			for i, mk := range ks {
				if err := e.MapKey(i, func() error { return kEnc(e, mk) }); err != nil {
					return err
				}
				if err := e.MapValue(i, func() error { return vEnc(e, v.MapIndex(mk)) }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return fn, nil
}
