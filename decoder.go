package dbusvalue

import (
	"fmt"
	"math"
	"reflect"

	"github.com/creachadair/mds/value"
)

// A DecoderFunc reads a value from d and stores it in v.
type DecoderFunc func(d *Decoder, v reflect.Value) error

// Decoder reads native values out of one node of a DBus value tree.
//
// Methods that read a primitive check that the node has a compatible
// type and convert it. Aggregate nodes are read by calling
// [Decoder.Struct], [Decoder.Array] or [Decoder.Map] with a body
// function that extracts children with [Decoder.StructField],
// [Decoder.ArrayElem], and [Decoder.MapKey] followed by
// [Decoder.MapValue]. Each child is handed to its own Decoder.
//
// Children may be extracted in any order, but each child can only be
// extracted once. Extracting a child twice is a programming error, and
// panics.
//
// Decoder never modifies the tree it is reading.
type Decoder struct {
	// Mapper provides the DecoderFunc for a type, for use by
	// [Decoder.Value]. If nil, Decoder uses the mapping described in
	// [Decode].
	Mapper func(reflect.Type) (DecoderFunc, error)

	cur Value

	// taken records which children of cur have been extracted.
	taken []bool
	// pending is the value of the dictionary entry whose key was
	// extracted by MapKey, waiting for MapValue.
	pending value.Maybe[pendingValue]
}

type pendingValue struct {
	idx int
	val Value
}

// NewDecoder returns a Decoder that reads v.
func NewDecoder(v Value) *Decoder {
	return &Decoder{cur: v}
}

// sub returns a Decoder for v that shares d's Mapper.
func (d *Decoder) sub(v Value) *Decoder {
	return &Decoder{Mapper: d.Mapper, cur: v}
}

func (d *Decoder) mapper() func(reflect.Type) (DecoderFunc, error) {
	if d.Mapper != nil {
		return d.Mapper
	}
	return decoderFor
}

// Raw returns the value being decoded.
func (d *Decoder) Raw() Value {
	return d.cur
}

func (d *Decoder) mismatch(want string) error {
	if d.cur == nil {
		return fmt.Errorf("cannot read %s from nil value: %w", want, ErrBadSignature)
	}
	return fmt.Errorf("cannot read %s from value of type %q: %w", want, d.cur.SignatureDBus(), ErrBadSignature)
}

// unsigned reads any unsigned integer node, and checks that it fits
// in max.
func (d *Decoder) unsigned(what string, max uint64) (uint64, error) {
	var u uint64
	switch v := d.cur.(type) {
	case Byte:
		u = uint64(v)
	case Uint16:
		u = uint64(v)
	case Uint32:
		u = uint64(v)
	case Uint64:
		u = uint64(v)
	default:
		return 0, d.mismatch(what)
	}
	if u > max {
		return 0, fmt.Errorf("%d does not fit in %s: %w", u, what, ErrIntTooNarrow)
	}
	return u, nil
}

// signed reads any signed integer node, and checks that it fits
// between min and max.
func (d *Decoder) signed(what string, min, max int64) (int64, error) {
	var i int64
	switch v := d.cur.(type) {
	case Int16:
		i = int64(v)
	case Int32:
		i = int64(v)
	case Int64:
		i = int64(v)
	default:
		return 0, d.mismatch(what)
	}
	if i < min || i > max {
		return 0, fmt.Errorf("%d does not fit in %s: %w", i, what, ErrIntTooNarrow)
	}
	return i, nil
}

// Uint8 reads an unsigned integer that fits in a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	u, err := d.unsigned("uint8", math.MaxUint8)
	return uint8(u), err
}

// Uint16 reads an unsigned integer that fits in a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	u, err := d.unsigned("uint16", math.MaxUint16)
	return uint16(u), err
}

// Uint32 reads an unsigned integer that fits in a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	u, err := d.unsigned("uint32", math.MaxUint32)
	return uint32(u), err
}

// Uint64 reads an unsigned integer.
func (d *Decoder) Uint64() (uint64, error) {
	return d.unsigned("uint64", math.MaxUint64)
}

// Int8 reads a signed integer that fits in an int8.
func (d *Decoder) Int8() (int8, error) {
	i, err := d.signed("int8", math.MinInt8, math.MaxInt8)
	return int8(i), err
}

// Int16 reads a signed integer that fits in an int16.
func (d *Decoder) Int16() (int16, error) {
	i, err := d.signed("int16", math.MinInt16, math.MaxInt16)
	return int16(i), err
}

// Int32 reads a signed integer that fits in an int32.
func (d *Decoder) Int32() (int32, error) {
	i, err := d.signed("int32", math.MinInt32, math.MaxInt32)
	return int32(i), err
}

// Int64 reads a signed integer.
func (d *Decoder) Int64() (int64, error) {
	return d.signed("int64", math.MinInt64, math.MaxInt64)
}

// Int reads a signed integer that fits in an int.
func (d *Decoder) Int() (int, error) {
	i, err := d.signed("int", math.MinInt, math.MaxInt)
	return int(i), err
}

// Uint reads an unsigned integer that fits in a uint.
func (d *Decoder) Uint() (uint, error) {
	u, err := d.unsigned("uint", math.MaxUint)
	return uint(u), err
}

// Bool reads a [Bool].
func (d *Decoder) Bool() (bool, error) {
	b, ok := d.cur.(Bool)
	if !ok {
		return false, d.mismatch("bool")
	}
	return bool(b), nil
}

// Float64 reads a [Double].
func (d *Decoder) Float64() (float64, error) {
	f, ok := d.cur.(Double)
	if !ok {
		return 0, d.mismatch("float64")
	}
	return float64(f), nil
}

// Float32 returns [ErrNotSupported]. DBus has no 32-bit float.
func (d *Decoder) Float32() (float32, error) {
	return 0, fmt.Errorf("float32: %w", ErrNotSupported)
}

// String reads a [String], [ObjectPath] or [Signature] as a string.
func (d *Decoder) String() (string, error) {
	switch v := d.cur.(type) {
	case String:
		return string(v), nil
	case ObjectPath:
		return string(v), nil
	case Signature:
		return string(v), nil
	default:
		return "", d.mismatch("string")
	}
}

// Char reads a byte-sized unsigned integer as a rune.
func (d *Decoder) Char() (rune, error) {
	u, err := d.Uint8()
	if err != nil {
		return 0, err
	}
	return rune(u), nil
}

// Nil returns [ErrNotSupported]. DBus has no null value.
func (d *Decoder) Nil() error {
	return fmt.Errorf("nil: %w", ErrNotSupported)
}

// Option returns [ErrNotSupported]. DBus has no optional values.
func (d *Decoder) Option(body func(present bool, d *Decoder) error) error {
	return fmt.Errorf("optional value: %w", ErrNotSupported)
}

// Enum returns [ErrNotSupported]. DBus has no tagged unions.
func (d *Decoder) Enum(name string, body func(variant string, d *Decoder) error) error {
	return fmt.Errorf("enum %s: %w", name, ErrNotSupported)
}

// Tuple returns [ErrNotSupported]. Use [Decoder.Struct] to read
// DBus structs.
func (d *Decoder) Tuple(n int, body func() error) error {
	return fmt.Errorf("tuple: %w", ErrNotSupported)
}

// take marks the idx-th child of the current node as extracted. It
// panics if the child was already extracted.
func (d *Decoder) take(what string, idx int) {
	if d.taken[idx] {
		panic(fmt.Sprintf("%s %d extracted twice", what, idx))
	}
	d.taken[idx] = true
}

// Array reads an [Array]. body is called with the number of elements,
// and extracts them with [Decoder.ArrayElem].
func (d *Decoder) Array(body func(n int) error) error {
	a, ok := d.cur.(Array)
	if !ok {
		return d.mismatch("array")
	}
	d.taken = make([]bool, a.Len())
	return body(a.Len())
}

// ArrayElem calls body with a Decoder for the idx-th element of the
// array being read.
func (d *Decoder) ArrayElem(idx int, body func(*Decoder) error) error {
	a, ok := d.cur.(Array)
	if !ok || d.taken == nil {
		panic("ArrayElem called outside of Array")
	}
	if idx < 0 || idx >= a.Len() {
		return fmt.Errorf("array element %d out of range for array of length %d: %w", idx, a.Len(), ErrBadSignature)
	}
	d.take("array element", idx)
	return body(d.sub(a.Index(idx)))
}

// Struct reads a [Struct] with n fields. body extracts the fields with
// [Decoder.StructField].
//
// Struct returns [ErrBadSignature] if the struct does not have exactly
// n fields.
func (d *Decoder) Struct(name string, n int, body func() error) error {
	s, ok := d.cur.(Struct)
	if !ok {
		return d.mismatch("struct " + name)
	}
	if s.Len() != n {
		return fmt.Errorf("cannot read struct %s with %d fields from value of type %q: %w", name, n, s.SignatureDBus(), ErrBadSignature)
	}
	d.taken = make([]bool, n)
	return body()
}

// StructField calls body with a Decoder for the idx-th field of the
// struct being read.
func (d *Decoder) StructField(name string, idx int, body func(*Decoder) error) error {
	s, ok := d.cur.(Struct)
	if !ok || d.taken == nil {
		panic("StructField called outside of Struct")
	}
	if idx < 0 || idx >= s.Len() {
		return fmt.Errorf("struct field %d (%s) out of range for struct of type %q: %w", idx, name, s.SignatureDBus(), ErrBadSignature)
	}
	d.take("struct field", idx)
	if err := body(d.sub(s.Field(idx))); err != nil {
		return fmt.Errorf("struct field %s: %w", name, err)
	}
	return nil
}

// Map reads a [Dictionary]. body is called with the number of
// entries, and extracts them by calling [Decoder.MapKey] then
// [Decoder.MapValue] for each entry.
//
// Entries are numbered in key order, see [Dictionary].
func (d *Decoder) Map(body func(n int) error) error {
	m, ok := d.cur.(Dictionary)
	if !ok {
		return d.mismatch("map")
	}
	d.taken = make([]bool, m.Len())
	d.pending = value.Maybe[pendingValue]{}
	if err := body(m.Len()); err != nil {
		return err
	}
	if p, ok := d.pending.GetOK(); ok {
		panic(fmt.Sprintf("map key %d extracted without a matching MapValue", p.idx))
	}
	return nil
}

// MapKey calls body with a Decoder for the key of the idx-th entry of
// the dictionary being read.
//
// MapKey panics if the previous key has not yet had its value
// extracted.
func (d *Decoder) MapKey(idx int, body func(*Decoder) error) error {
	m, ok := d.cur.(Dictionary)
	if !ok || d.taken == nil {
		panic("MapKey called outside of Map")
	}
	if p, ok := d.pending.GetOK(); ok {
		panic(fmt.Sprintf("MapKey(%d) called while map key %d is waiting for MapValue", idx, p.idx))
	}
	if idx < 0 || idx >= m.Len() {
		return fmt.Errorf("map entry %d out of range for map of length %d: %w", idx, m.Len(), ErrBadSignature)
	}
	d.take("map entry", idx)
	ent := m.Entry(idx)
	d.pending = value.Just(pendingValue{idx, ent.Value})
	return body(d.sub(ent.Key))
}

// MapValue calls body with a Decoder for the value of the idx-th
// entry of the dictionary being read.
//
// MapValue panics if it is not preceded by MapKey for the same entry.
func (d *Decoder) MapValue(idx int, body func(*Decoder) error) error {
	p, ok := d.pending.GetOK()
	if !ok {
		panic(fmt.Sprintf("MapValue(%d) called without a preceding MapKey", idx))
	}
	if p.idx != idx {
		panic(fmt.Sprintf("MapValue(%d) called after MapKey(%d)", idx, p.idx))
	}
	d.pending = value.Maybe[pendingValue]{}
	return body(d.sub(p.val))
}

// Variant calls body with a Decoder for the value boxed in a
// [Variant].
func (d *Decoder) Variant(body func(*Decoder) error) error {
	v, ok := d.cur.(Variant)
	if !ok || v.Inner() == nil {
		return d.mismatch("variant")
	}
	return body(d.sub(v.Inner()))
}

// Value decodes the current node into out, which must be a non-nil
// pointer, using the DecoderFunc provided by d.Mapper.
func (d *Decoder) Value(out any) error {
	if out == nil {
		return fmt.Errorf("can't decode into nil interface")
	}
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer {
		return fmt.Errorf("can't decode into non-pointer %s", v.Type())
	}
	if v.IsNil() {
		return fmt.Errorf("can't decode into nil pointer %s", v.Type())
	}
	dec, err := d.mapper()(v.Type().Elem())
	if err != nil {
		return err
	}
	return dec(d, v.Elem())
}
