package dbusvalue

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/zap"
)

// Decode decodes the DBus value tree v into a value of type T.
//
// See [DecodeTo] for the decoding rules.
func Decode[T any](v Value) (T, error) {
	var ret T
	if err := DecodeTo(v, &ret); err != nil {
		var zero T
		return zero, err
	}
	return ret, nil
}

// DecodeTo decodes the DBus value tree v and stores the result in the
// value pointed to by out. If out is nil or not a pointer, DecodeTo
// returns an error.
//
// Generally, DecodeTo applies the inverse of the rules used by
// [Encode]. The shape of v must be compatible with the target's
// type, otherwise DecodeTo returns an error wrapping
// [ErrBadSignature].
//
// DecodeTo traverses the value out recursively. If an encountered
// value implements [Unmarshaler], DecodeTo calls UnmarshalDBus to
// decode it. Types implementing [Unmarshaler] must implement
// UnmarshalDBus with a pointer receiver. Attempting to decode using
// an UnmarshalDBus method with a value receiver results in a
// [TypeError].
//
// Otherwise, DecodeTo uses the following type-dependent default
// decodings:
//
// Unsigned integer types decode any DBus unsigned integer, and signed
// integer types (including int8) decode any DBus signed integer, as
// long as the value fits in the target type. Values that do not fit
// cause an error wrapping [ErrIntTooNarrow]. float64 decodes DBus
// doubles, and bool decodes DBus booleans.
//
// string values decode DBus strings, object paths and signatures.
//
// Array and slice values decode DBus arrays. When decoding into an
// array, the array's length must match the target array's length.
// When decoding into a slice, DecodeTo replaces the slice with a new
// one of the right length.
//
// Struct values decode DBus structs. The struct's fields decode into
// the target struct's fields in declaration order, and the number of
// fields must match. Embedded struct fields are decoded as if their
// inner exported fields were fields in the outer struct, subject to
// the usual Go visibility rules.
//
// Maps decode DBus dictionaries. When decoding into a map, DecodeTo
// first clears the map, or allocates a new one if the target map is
// nil.
//
// Vardict structs (see [Encode]) decode a DBus dictionary just like a
// regular map, except that if an incoming key matches an associated
// field's tag, the corresponding value decodes into that associated
// field instead, with the variant envelope removed.
//
// Pointers decode as the value pointed to. DecodeTo allocates zero
// values as needed when it encounters nil pointers.
//
// Interface values of type any decode DBus variants. The type of the
// variant's inner value is determined by its type signature, as
// described by [DecodeAny].
//
// [Value] and [BasicValue] interface values, and the concrete value
// types, receive the subtree unchanged.
//
// int, uint and uintptr decode from any signed or unsigned integer
// respectively, if the value fits.
//
// float32, complex64, complex128, other interface, channel, and
// function values cannot decode any DBus type. Attempting to decode such values causes DecodeTo to return a
// [TypeError].
func DecodeTo(v Value, out any) error {
	d := Decoder{
		Mapper: decoderFor,
		cur:    v,
	}
	return d.Value(out)
}

// DecodeAny decodes v into the Go type that naturally corresponds to
// its signature:
//
//	y: uint8, b: bool, n: int16, q: uint16, i: int32, u: uint32,
//	x: int64, t: uint64, d: float64, s: string, o: ObjectPath,
//	g: Signature, v: any
//
// Arrays decode into slices, dictionaries into maps, and structs into
// anonymous structs with fields named Field0, Field1, ..., FieldN.
func DecodeAny(v Value) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("can't decode nil value: %w", ErrBadSignature)
	}
	t, err := typeForSignature(v.SignatureDBus())
	if err != nil {
		return nil, err
	}
	ret := reflect.New(t)
	if err := DecodeTo(v, ret.Interface()); err != nil {
		return nil, err
	}
	return ret.Elem().Interface(), nil
}

// Unmarshaler is the interface implemented by types that can decode
// themselves from a DBus value.
//
// UnmarshalDBus must have a pointer receiver. If DecodeTo encounters
// an Unmarshaler whose UnmarshalDBus method takes a value receiver,
// it will return a [TypeError].
type Unmarshaler interface {
	UnmarshalDBus(d *Decoder) error
}

var unmarshalerType = reflect.TypeFor[Unmarshaler]()

var decoders cache[reflect.Type, DecoderFunc]

// decoderFor returns the decoder func for the given type, if the type
// is representable as a DBus value.
func decoderFor(t reflect.Type) (DecoderFunc, error) {
	return decoderForStack(t, nil)
}

func decoderForStack(t reflect.Type, stack []reflect.Type) (ret DecoderFunc, err error) {
	if ret, err := decoders.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	if slices.Contains(stack, t) {
		return nil, typeErr(t, "recursive type: %w", ErrNotSupported)
	}
	stack = append(stack, t)

	// Note, defer captures the type value before we mess with it
	// below.
	defer func(t reflect.Type) {
		if err != nil {
			Logger().Debug("no decoder for type", zap.Stringer("type", t), zap.Error(err))
			decoders.SetErr(t, err)
		} else {
			Logger().Debug("built decoder", zap.Stringer("type", t))
			decoders.Set(t, ret)
		}
	}(t)

	// We only want Unmarshalers with pointer receivers, since a value
	// receiver would silently discard the results of the
	// UnmarshalDBus call and lead to confusing bugs. There are two
	// cases we need to look for.
	//
	// The first is a pointer that implements Unmarshaler, and whose
	// pointed-to type does not implement Unmarshaler. This means the
	// type implements Unmarshaler with pointer receivers, and we can
	// call it.
	//
	// The second is a value that does not implement Unmarshaler, but
	// whose pointer does. In that case, we can take the value's
	// address and use the pointer unmarshaler. DecodeTo only hands
	// us values that are addressable, so we don't need an
	// addressability check to do this.
	isPtr := t.Kind() == reflect.Pointer
	if t.Kind() != reflect.Interface && t.Implements(unmarshalerType) {
		if !isPtr || t.Elem().Implements(unmarshalerType) {
			return nil, typeErr(t, "refusing to use dbusvalue.Unmarshaler implementation with value receiver, Unmarshalers must use pointer receivers.")
		} else {
			// First case, can unmarshal into pointer.
			return newMarshalDecoder(t), nil
		}
	} else if !isPtr && reflect.PointerTo(t).Implements(unmarshalerType) {
		// Second case, unmarshal into value.
		return newAddrMarshalDecoder(t), nil
	}

	if isNodeType(t) && t.Kind() == reflect.Struct {
		return newNodeDecoder(t), nil
	}
	if t == signatureType {
		return newSignatureDecoder(), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		// Note, pointers to Unmarshaler are handled above.
		return newPtrDecoder(t, stack)
	case reflect.Interface:
		return newInterfaceDecoder(t)
	case reflect.Bool:
		return newBoolDecoder(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntDecoder(t), nil
	case reflect.Uint, reflect.Uintptr, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintDecoder(t), nil
	case reflect.Float32:
		return nil, typeErr(t, "float32 has no corresponding DBus type, use float64 instead: %w", ErrNotSupported)
	case reflect.Float64:
		return newFloatDecoder(), nil
	case reflect.String:
		return newStringDecoder(), nil
	case reflect.Slice, reflect.Array:
		return newSliceDecoder(t, stack)
	case reflect.Struct:
		return newStructDecoder(t, stack)
	case reflect.Map:
		return newMapDecoder(t, stack)
	}

	return nil, typeErr(t, "no dbus mapping for type: %w", ErrNotSupported)
}

func newAddrMarshalDecoder(t reflect.Type) DecoderFunc {
	ptr := newMarshalDecoder(reflect.PointerTo(t))
	return func(d *Decoder, v reflect.Value) error {
		return ptr(d, v.Addr())
	}
}

func newMarshalDecoder(t reflect.Type) DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		if v.IsNil() {
			elem := reflect.New(t.Elem())
			v.Set(elem)
		}
		m := v.Interface().(Unmarshaler)
		return m.UnmarshalDBus(d)
	}
}

// newNodeDecoder returns a decoder for the container [Value] types,
// which receive the subtree unchanged.
func newNodeDecoder(t reflect.Type) DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		raw := d.Raw()
		if raw == nil || reflect.TypeOf(raw) != t {
			return d.mismatch(t.String())
		}
		v.Set(reflect.ValueOf(raw))
		return nil
	}
}

func newSignatureDecoder() DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		s, err := d.String()
		if err != nil {
			return err
		}
		sig, err := ParseSignature(s)
		if err != nil {
			return err
		}
		v.SetString(string(sig))
		return nil
	}
}

func newPtrDecoder(t reflect.Type, stack []reflect.Type) (DecoderFunc, error) {
	elem := t.Elem()
	elemDec, err := decoderForStack(elem, stack)
	if err != nil {
		return nil, err
	}
	fn := func(d *Decoder, v reflect.Value) error {
		if v.IsNil() {
			if !v.CanSet() {
				panic("got an unsettable nil pointer, should be impossible!")
			}
			elem := reflect.New(elem)
			if err := elemDec(d, elem.Elem()); err != nil {
				return err
			}
			v.Set(elem)
		} else if err := elemDec(d, v.Elem()); err != nil {
			return err
		}
		return nil
	}
	return fn, nil
}

func newInterfaceDecoder(t reflect.Type) (DecoderFunc, error) {
	switch t {
	case valueType:
		return func(d *Decoder, v reflect.Value) error {
			if d.Raw() == nil {
				return d.mismatch("Value")
			}
			v.Set(reflect.ValueOf(d.Raw()))
			return nil
		}, nil
	case basicValueType:
		return func(d *Decoder, v reflect.Value) error {
			b, ok := d.Raw().(BasicValue)
			if !ok {
				return d.mismatch("BasicValue")
			}
			v.Set(reflect.ValueOf(b))
			return nil
		}, nil
	case anyType:
		return newAnyDecoder(), nil
	}
	return nil, typeErr(t, "only interface types any, Value and BasicValue can be decoded: %w", ErrNotSupported)
}

// newAnyDecoder returns a decoder that unboxes a variant into the Go
// type given by the variant's inner signature.
func newAnyDecoder() DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		return d.Variant(func(inner *Decoder) error {
			t, err := typeForSignature(inner.Raw().SignatureDBus())
			if err != nil {
				return err
			}
			dec, err := inner.mapper()(t)
			if err != nil {
				return err
			}
			ret := reflect.New(t).Elem()
			if err := dec(inner, ret); err != nil {
				return err
			}
			v.Set(ret)
			return nil
		})
	}
}

func newBoolDecoder() DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		b, err := d.Bool()
		if err != nil {
			return err
		}
		v.SetBool(b)
		return nil
	}
}

func newIntDecoder(t reflect.Type) DecoderFunc {
	if t.Kind() == reflect.Int {
		return func(d *Decoder, v reflect.Value) error {
			i, err := d.Int()
			if err != nil {
				return err
			}
			v.SetInt(int64(i))
			return nil
		}
	}
	switch t.Size() {
	case 1:
		return func(d *Decoder, v reflect.Value) error {
			i8, err := d.Int8()
			if err != nil {
				return err
			}
			v.SetInt(int64(i8))
			return nil
		}
	case 2:
		return func(d *Decoder, v reflect.Value) error {
			i16, err := d.Int16()
			if err != nil {
				return err
			}
			v.SetInt(int64(i16))
			return nil
		}
	case 4:
		return func(d *Decoder, v reflect.Value) error {
			i32, err := d.Int32()
			if err != nil {
				return err
			}
			v.SetInt(int64(i32))
			return nil
		}
	case 8:
		return func(d *Decoder, v reflect.Value) error {
			i64, err := d.Int64()
			if err != nil {
				return err
			}
			v.SetInt(i64)
			return nil
		}
	default:
		panic("invalid newIntDecoder type")
	}
}

func newUintDecoder(t reflect.Type) DecoderFunc {
	switch t.Kind() {
	case reflect.Uint:
		return func(d *Decoder, v reflect.Value) error {
			u, err := d.Uint()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u))
			return nil
		}
	case reflect.Uintptr:
		limit := uint64(1)<<(8*t.Size()-1)<<1 - 1
		return func(d *Decoder, v reflect.Value) error {
			u, err := d.unsigned("uintptr", limit)
			if err != nil {
				return err
			}
			v.SetUint(u)
			return nil
		}
	}
	switch t.Size() {
	case 1:
		return func(d *Decoder, v reflect.Value) error {
			u8, err := d.Uint8()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u8))
			return nil
		}
	case 2:
		return func(d *Decoder, v reflect.Value) error {
			u16, err := d.Uint16()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u16))
			return nil
		}
	case 4:
		return func(d *Decoder, v reflect.Value) error {
			u32, err := d.Uint32()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u32))
			return nil
		}
	case 8:
		return func(d *Decoder, v reflect.Value) error {
			u64, err := d.Uint64()
			if err != nil {
				return err
			}
			v.SetUint(u64)
			return nil
		}
	default:
		panic("invalid newUintDecoder type")
	}
}

func newFloatDecoder() DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		f, err := d.Float64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
		return nil
	}
}

func newStringDecoder() DecoderFunc {
	return func(d *Decoder, v reflect.Value) error {
		s, err := d.String()
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil
	}
}

func newSliceDecoder(t reflect.Type, stack []reflect.Type) (DecoderFunc, error) {
	elemDec, err := decoderForStack(t.Elem(), stack)
	if err != nil {
		return nil, err
	}
	isArray := t.Kind() == reflect.Array

	fn := func(d *Decoder, v reflect.Value) error {
		return d.Array(func(n int) error {
			if isArray {
				if n != t.Len() {
					return fmt.Errorf("cannot decode array of length %d into %s: %w", n, t, ErrBadSignature)
				}
			} else {
				v.Set(reflect.MakeSlice(t, n, n))
			}
			for i := range n {
				err := d.ArrayElem(i, func(elem *Decoder) error {
					return elemDec(elem, v.Index(i))
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

func newStructDecoder(t reflect.Type, stack []reflect.Type) (DecoderFunc, error) {
	fs, err := getStructInfo(t)
	if err != nil {
		return nil, typeErr(t, "getting struct info: %w", err)
	}

	var frags []DecoderFunc
	for _, f := range fs.StructFields {
		fDec, err := newStructFieldDecoder(f, stack)
		if err != nil {
			return nil, err
		}
		frags = append(frags, fDec)
	}

	fn := func(d *Decoder, v reflect.Value) error {
		return d.Struct(fs.Name, len(frags), func() error {
			for i, frag := range frags {
				err := d.StructField(fs.StructFields[i].Name, i, func(field *Decoder) error {
					return frag(field, v)
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

// Note, the returned decoder expects to be given the entire struct,
// not just the one field being decoded.
func newStructFieldDecoder(f *structField, stack []reflect.Type) (DecoderFunc, error) {
	if f.IsVarDict() {
		return newVarDictFieldDecoder(f, stack)
	}

	fDec, err := decoderForStack(f.Type, stack)
	if err != nil {
		return nil, err
	}
	fn := func(d *Decoder, v reflect.Value) error {
		fv := f.GetWithAlloc(v)
		return fDec(d, fv)
	}
	return fn, nil
}

// Note, the returned decoder expects to be given the entire struct,
// not just the one field being decoded.
func newVarDictFieldDecoder(f *structField, stack []reflect.Type) (DecoderFunc, error) {
	kt := f.Type.Key()
	kDec, err := decoderForStack(kt, stack)
	if err != nil {
		return nil, err
	}
	vDec, err := decoderForStack(anyType, stack)
	if err != nil {
		return nil, err
	}

	type assocField struct {
		*varDictField
		dec DecoderFunc
	}
	fields := map[string]assocField{}
	for _, key := range f.VarDictFields.MapKeys() {
		vf := f.VarDictField(key)
		fDec, err := decoderForStack(vf.Type, stack)
		if err != nil {
			return nil, err
		}
		fields[vf.StrKey] = assocField{vf, fDec}
	}

	fn := func(d *Decoder, v reflect.Value) error {
		unknown := f.GetWithAlloc(v)
		if !unknown.IsNil() {
			unknown.Clear()
		}

		return d.Map(func(n int) error {
			for i := range n {
				key := reflect.New(kt).Elem()
				if err := d.MapKey(i, func(k *Decoder) error { return kDec(k, key) }); err != nil {
					return err
				}

				if field, ok := fields[fmt.Sprint(key)]; ok {
					err := d.MapValue(i, func(val *Decoder) error {
						return val.Variant(func(inner *Decoder) error {
							return field.dec(inner, field.GetWithAlloc(v))
						})
					})
					if err != nil {
						return fmt.Errorf("vardict field %s: %w", field.Name, err)
					}
					continue
				}

				val := reflect.New(anyType).Elem()
				if err := d.MapValue(i, func(vd *Decoder) error { return vDec(vd, val) }); err != nil {
					return err
				}
				if unknown.IsNil() {
					unknown.Set(reflect.MakeMap(unknown.Type()))
				}
				unknown.SetMapIndex(key, val)
			}
			return nil
		})
	}
	return fn, nil
}

func newMapDecoder(t reflect.Type, stack []reflect.Type) (DecoderFunc, error) {
	kt := t.Key()
	if _, ok := basicSignatureFor(kt); !ok {
		return nil, typeErr(t, "invalid map key type %s: %w", kt, ErrNotSupported)
	}
	kDec, err := decoderForStack(kt, stack)
	if err != nil {
		return nil, err
	}
	vt := t.Elem()
	vDec, err := decoderForStack(vt, stack)
	if err != nil {
		return nil, err
	}

	fn := func(d *Decoder, v reflect.Value) error {
		return d.Map(func(n int) error {
			if v.IsNil() {
				v.Set(reflect.MakeMapWithSize(t, n))
			} else {
				v.Clear()
			}
			for i := range n {
				key := reflect.New(kt).Elem()
				val := reflect.New(vt).Elem()
				if err := d.MapKey(i, func(k *Decoder) error { return kDec(k, key) }); err != nil {
					return err
				}
				if err := d.MapValue(i, func(vd *Decoder) error { return vDec(vd, val) }); err != nil {
					return err
				}
				v.SetMapIndex(key, val)
			}
			return nil
		})
	}
	return fn, nil
}
