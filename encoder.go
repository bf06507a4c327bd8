package dbusvalue

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creachadair/mds/value"
)

// An EncoderFunc writes v to e.
type EncoderFunc func(e *Encoder, v reflect.Value) error

// Encoder builds a DBus value tree.
//
// Each method of Encoder emits one value into the aggregate currently
// being built. Aggregates are built by calling [Encoder.Struct],
// [Encoder.Array] or [Encoder.Map] with a body function that emits the
// aggregate's children using [Encoder.StructField],
// [Encoder.ArrayElem], and [Encoder.MapKey] followed by
// [Encoder.MapValue].
//
// Declaring a child count and then emitting a different number of
// children is a programming error, and panics.
//
// The zero Encoder is ready to use, and maps Go types to DBus values
// using the same rules as [Encode].
type Encoder struct {
	// Mapper provides the EncoderFunc for a type, for use by
	// [Encoder.Value]. If nil, Encoder uses the mapping described in
	// [Encode].
	Mapper func(reflect.Type) (EncoderFunc, error)

	// vals collects the values emitted into the aggregate being
	// built.
	vals []Value
	// entries and key collect the entries of the dictionary being
	// built. key holds a key emitted by MapKey that is waiting for
	// its MapValue.
	entries []DictEntry
	key     value.Maybe[BasicValue]
}

// Result returns the single top-level value emitted into e.
func (e *Encoder) Result() (Value, error) {
	switch len(e.vals) {
	case 0:
		return nil, errors.New("no value was encoded")
	case 1:
		return e.vals[0], nil
	default:
		return nil, fmt.Errorf("%d top-level values were encoded, want 1", len(e.vals))
	}
}

func (e *Encoder) push(v Value) {
	e.vals = append(e.vals, v)
}

// collect runs body with an empty value buffer, and returns the values
// it emitted. collect panics if body does not emit exactly n values.
func (e *Encoder) collect(what string, n int, body func() error) ([]Value, error) {
	saved := e.vals
	e.vals = nil
	err := body()
	ret := e.vals
	e.vals = saved
	if err != nil {
		return nil, err
	}
	if len(ret) != n {
		panic(fmt.Sprintf("%s declared %d values, but %d were emitted", what, n, len(ret)))
	}
	return ret, nil
}

// one runs body and returns the single value it emitted.
func (e *Encoder) one(what string, body func() error) (Value, error) {
	vs, err := e.collect(what, 1, body)
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// Bool emits a [Bool].
func (e *Encoder) Bool(b bool) { e.push(Bool(b)) }

// Uint8 emits a [Byte].
func (e *Encoder) Uint8(u uint8) { e.push(Byte(u)) }

// Uint16 emits a [Uint16].
func (e *Encoder) Uint16(u uint16) { e.push(Uint16(u)) }

// Uint32 emits a [Uint32].
func (e *Encoder) Uint32(u uint32) { e.push(Uint32(u)) }

// Uint64 emits a [Uint64].
func (e *Encoder) Uint64(u uint64) { e.push(Uint64(u)) }

// Int16 emits an [Int16].
func (e *Encoder) Int16(i int16) { e.push(Int16(i)) }

// Int32 emits an [Int32].
func (e *Encoder) Int32(i int32) { e.push(Int32(i)) }

// Int64 emits an [Int64].
func (e *Encoder) Int64(i int64) { e.push(Int64(i)) }

// Float64 emits a [Double].
func (e *Encoder) Float64(f float64) { e.push(Double(f)) }

// Float32 emits a [Double] holding f.
func (e *Encoder) Float32(f float32) { e.push(Double(f)) }

// String emits a [String].
func (e *Encoder) String(s string) { e.push(String(s)) }

// ObjectPath emits an [ObjectPath].
func (e *Encoder) ObjectPath(p ObjectPath) { e.push(p) }

// Signature emits a [Signature].
func (e *Encoder) Signature(s Signature) { e.push(s) }

// Char emits r as a [Byte]. DBus has no character type, so runes
// outside the range of a byte cannot be encoded.
func (e *Encoder) Char(r rune) error {
	if r < 0 || r > 0xff {
		return fmt.Errorf("rune %q does not fit in a byte: %w", r, ErrUnsupported)
	}
	e.push(Byte(r))
	return nil
}

// Int8 returns [ErrUnsupported]. DBus has no signed 8-bit integer.
func (e *Encoder) Int8(int8) error {
	return fmt.Errorf("int8: %w", ErrUnsupported)
}

// Nil returns [ErrUnsupported]. DBus has no null value.
func (e *Encoder) Nil() error {
	return fmt.Errorf("nil: %w", ErrUnsupported)
}

// Option returns [ErrUnsupported]. DBus has no optional values.
func (e *Encoder) Option(present bool, body func() error) error {
	return fmt.Errorf("optional value: %w", ErrUnsupported)
}

// Enum returns [ErrUnsupported]. DBus has no tagged unions, use
// [Encoder.Variant] instead.
func (e *Encoder) Enum(name, variant string, body func() error) error {
	return fmt.Errorf("enum %s::%s: %w", name, variant, ErrUnsupported)
}

// Struct emits a [Struct] with n fields. body must emit exactly n
// fields with [Encoder.StructField].
func (e *Encoder) Struct(name string, n int, body func() error) error {
	fields, err := e.collect("struct "+name, n, body)
	if err != nil {
		return err
	}
	e.push(NewStruct(fields...))
	return nil
}

// Tuple emits a [Struct] with n fields, like [Encoder.Struct].
func (e *Encoder) Tuple(n int, body func() error) error {
	return e.Struct("tuple", n, body)
}

// StructField emits the idx-th field of the struct being built. body
// must emit exactly one value.
func (e *Encoder) StructField(name string, idx int, body func() error) error {
	v, err := e.one(fmt.Sprintf("struct field %d (%s)", idx, name), body)
	if err != nil {
		return fmt.Errorf("struct field %s: %w", name, err)
	}
	e.push(v)
	return nil
}

// Array emits an [Array] with n elements. body must emit exactly n
// elements with [Encoder.ArrayElem].
//
// Array returns [ErrEmptyArray] if n is zero, and [ErrUnsupported] if
// the elements do not all have the same signature.
func (e *Encoder) Array(n int, body func() error) error {
	if n == 0 {
		return ErrEmptyArray
	}
	elems, err := e.collect("array", n, body)
	if err != nil {
		return err
	}
	sig := elems[0].SignatureDBus()
	if err := checkElems(elems, sig); err != nil {
		return err
	}
	e.push(NewArrayWithSignature("a"+sig, elems...))
	return nil
}

// ArrayWithSignature emits an [Array] with the given array signature,
// for example "as". Unlike [Encoder.Array], n may be zero.
func (e *Encoder) ArrayWithSignature(sig Signature, n int, body func() error) error {
	if !sig.single() || !strings.HasPrefix(string(sig), "a") || strings.HasPrefix(string(sig), "a{") {
		return &SignatureError{Signature: sig, Reason: "not an array signature", err: ErrUnsupported}
	}
	elems, err := e.collect("array", n, body)
	if err != nil {
		return err
	}
	if err := checkElems(elems, sig[1:]); err != nil {
		return err
	}
	e.push(NewArrayWithSignature(sig, elems...))
	return nil
}

func checkElems(elems []Value, want Signature) error {
	for i, v := range elems {
		if got := v.SignatureDBus(); got != want {
			return fmt.Errorf("array element %d has signature %q, want %q: %w", i, got, want, ErrUnsupported)
		}
	}
	return nil
}

// ArrayElem emits the idx-th element of the array being built. body
// must emit exactly one value.
func (e *Encoder) ArrayElem(idx int, body func() error) error {
	v, err := e.one(fmt.Sprintf("array element %d", idx), body)
	if err != nil {
		return err
	}
	e.push(v)
	return nil
}

// Map emits a [Dictionary] with n entries. body must emit exactly n
// key/value pairs, by calling [Encoder.MapKey] then
// [Encoder.MapValue] for each pair.
//
// The dictionary's signature is inferred from the emitted entries.
// Map returns [ErrEmptyMap] if n is zero, and [ErrUnsupported] if the
// entries do not all have the same key and value signatures.
func (e *Encoder) Map(n int, body func() error) error {
	if n == 0 {
		return ErrEmptyMap
	}
	entries, err := e.collectEntries(n, body)
	if err != nil {
		return err
	}
	first := entries[0]
	sig := Signature("a{" + first.Key.SignatureDBus() + first.Value.SignatureDBus() + "}")
	if err := checkEntries(entries, sig); err != nil {
		return err
	}
	e.push(NewDictionaryWithSignature(sig, entries...))
	return nil
}

// MapWithSignature emits a [Dictionary] with the given signature, for
// example "a{sv}". Unlike [Encoder.Map], n may be zero.
func (e *Encoder) MapWithSignature(sig Signature, n int, body func() error) error {
	if !sig.single() || !strings.HasPrefix(string(sig), "a{") {
		return &SignatureError{Signature: sig, Reason: "not a dictionary signature", err: ErrUnsupported}
	}
	entries, err := e.collectEntries(n, body)
	if err != nil {
		return err
	}
	if err := checkEntries(entries, sig); err != nil {
		return err
	}
	e.push(NewDictionaryWithSignature(sig, entries...))
	return nil
}

func checkEntries(entries []DictEntry, sig Signature) error {
	ks, vs := sig[2:3], sig[3:len(sig)-1]
	for _, ent := range entries {
		if got := ent.Key.SignatureDBus(); got != ks {
			return fmt.Errorf("map key %v has signature %q, want %q: %w", ent.Key, got, ks, ErrUnsupported)
		}
		if got := ent.Value.SignatureDBus(); got != vs {
			return fmt.Errorf("map value for key %v has signature %q, want %q: %w", ent.Key, got, vs, ErrUnsupported)
		}
	}
	return nil
}

// collectEntries runs body with an empty entry buffer, and returns
// the entries it emitted. collectEntries panics if body does not emit
// exactly n complete entries.
func (e *Encoder) collectEntries(n int, body func() error) ([]DictEntry, error) {
	savedVals, savedEntries, savedKey := e.vals, e.entries, e.key
	e.vals, e.entries, e.key = nil, nil, value.Maybe[BasicValue]{}
	err := body()
	ret, stray, dangling := e.entries, len(e.vals), e.key.Present()
	e.vals, e.entries, e.key = savedVals, savedEntries, savedKey
	if err != nil {
		return nil, err
	}
	if stray > 0 {
		panic(fmt.Sprintf("%d values emitted directly into a map, outside MapKey and MapValue", stray))
	}
	if dangling {
		panic("map key emitted without a matching MapValue")
	}
	if len(ret) != n {
		panic(fmt.Sprintf("map declared %d entries, but %d were emitted", n, len(ret)))
	}
	return ret, nil
}

// MapKey emits the key of the idx-th map entry. body must emit exactly
// one value, which must be a [BasicValue].
//
// MapKey panics if the previous key has not yet received its value.
func (e *Encoder) MapKey(idx int, body func() error) error {
	if e.key.Present() {
		panic(fmt.Sprintf("MapKey(%d) called while the previous key is waiting for MapValue", idx))
	}
	v, err := e.one(fmt.Sprintf("map key %d", idx), body)
	if err != nil {
		return err
	}
	k, ok := v.(BasicValue)
	if !ok {
		return fmt.Errorf("map key of type %q: %w", v.SignatureDBus(), ErrBadKeyType)
	}
	e.key = value.Just(k)
	return nil
}

// MapValue emits the value of the idx-th map entry. body must emit
// exactly one value.
//
// MapValue panics if it is not preceded by a call to [Encoder.MapKey].
func (e *Encoder) MapValue(idx int, body func() error) error {
	k, ok := e.key.GetOK()
	if !ok {
		panic(fmt.Sprintf("MapValue(%d) called without a preceding MapKey", idx))
	}
	v, err := e.one(fmt.Sprintf("map value %d", idx), body)
	if err != nil {
		return err
	}
	e.key = value.Maybe[BasicValue]{}
	e.entries = append(e.entries, DictEntry{k, v})
	return nil
}

// Variant emits a [Variant] boxing the single value emitted by body.
func (e *Encoder) Variant(body func() error) error {
	v, err := e.one("variant", body)
	if err != nil {
		return err
	}
	e.push(NewVariant(v))
	return nil
}

// Value emits v, using the EncoderFunc provided by e.Mapper.
func (e *Encoder) Value(v any) error {
	if v == nil {
		return e.Nil()
	}
	mapper := e.Mapper
	if mapper == nil {
		mapper = encoderFor
	}
	rv := reflect.ValueOf(v)
	enc, err := mapper(rv.Type())
	if err != nil {
		return err
	}
	return enc(e, rv)
}
