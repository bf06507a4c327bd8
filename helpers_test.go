package dbusvalue

import "fmt"

// Simple is a struct with simple fields.
type Simple struct {
	A int16
	B bool
}

// Nested is a struct with a struct field.
type Nested struct {
	A byte
	B Simple
}

// Embedded is a struct that embeds another struct by value.
type Embedded struct {
	Simple
	C byte
}

// EmbeddedShadow is a struct that embeds another struct by value,
// with one of the embedded fields shadowed by an outer field.
type EmbeddedShadow struct {
	Simple
	B byte
}

// Arrays is a struct with various degrees of complicated arrays
// inside.
type Arrays struct {
	A []string
	B []Simple
	C [][]Nested
}

// Tree is a self-referential struct that can't be represented as a
// DBus value.
type Tree struct {
	Left  *Tree
	Right *Tree
}

// SelfEmbed embeds a pointer to itself. Its only visible field is X.
type SelfEmbed struct {
	*SelfEmbed
	X uint32
}

// EmbedLoopA and EmbedLoopB embed each other.
type EmbedLoopA struct {
	*EmbedLoopB
	A uint16
}

type EmbedLoopB struct {
	*EmbedLoopA
	B string
}

// Embedded_P is a struct that embeds another struct by pointer.
type Embedded_P struct {
	*Simple
	C byte
}

// Embedded_PV is a struct with 2 layers of embedding, first by value
// then by pointers.
type Embedded_PV struct {
	Embedded_P
}

// Embedded_PVP is a struct that fights other structs online. And also
// a struct with 3 layers of embedding, pointer then value then
// pointer.
type Embedded_PVP struct {
	*Embedded_PV
	D byte
}

// NestedSelfMashalerVal is a struct with a field that implements
// Marshaler/Unmarshaler using value method
// receivers. NestedSelfMashalerVal cannot be decoded, because
// UnmarshalDBus must be implemented on a pointer receiver.
type NestedSelfMashalerVal struct {
	A byte
	B SelfMarshalerVal
}

// NestedSelfMarshalerPtr is a struct with a struct field that
// implements Marshaler/Unmarshaler with pointer method
// receivers.
type NestedSelfMarshalerPtr struct {
	A byte
	B SelfMarshalerPtr
}

// NestedSelfMarshalerPtrPtr is a struct with a struct pointer field
// that implements Marshaler/Unmarshaler with pointer method
// receivers.
type NestedSelfMarshalerPtrPtr struct {
	A byte
	B *SelfMarshalerPtr
}

// SelfMarshalerVal is a struct that implements Marshaler and
// Unmarshaler, with value method receivers. Note the Unmarshaler
// implementation is deliberately unusable (UnmarshalDBus must have a
// pointer receiver).
type SelfMarshalerVal struct {
	B byte
}

func (s SelfMarshalerVal) MarshalDBus(e *Encoder) error {
	e.Uint16(uint16(s.B) + 1)
	return nil
}

func (s SelfMarshalerVal) UnmarshalDBus(d *Decoder) error {
	u, err := d.Uint16()
	if err != nil {
		return err
	}
	s.B = byte(u - 1)
	return nil
}

// SelfMarshalerPtr is a struct that implements Marshaler and
// Unmarshaler with pointer method receivers.
type SelfMarshalerPtr struct {
	B byte
}

func (s *SelfMarshalerPtr) MarshalDBus(e *Encoder) error {
	e.Uint16(uint16(s.B) + 1)
	return nil
}

func (s *SelfMarshalerPtr) UnmarshalDBus(d *Decoder) error {
	u, err := d.Uint16()
	if err != nil {
		return err
	}
	if u == 0 {
		return fmt.Errorf("unexpected zero value")
	}
	s.B = byte(u - 1)
	return nil
}

// Point is a struct that marshals itself as a DBus struct, using the
// Encoder and Decoder aggregate methods.
type Point struct {
	X, Y int32
}

func (p *Point) MarshalDBus(e *Encoder) error {
	return e.Struct("Point", 2, func() error {
		if err := e.StructField("X", 0, func() error { e.Int32(p.X); return nil }); err != nil {
			return err
		}
		return e.StructField("Y", 1, func() error { e.Int32(p.Y); return nil })
	})
}

func (p *Point) UnmarshalDBus(d *Decoder) error {
	return d.Struct("Point", 2, func() error {
		// Fields can be extracted in any order.
		err := d.StructField("Y", 1, func(d *Decoder) (err error) {
			p.Y, err = d.Int32()
			return err
		})
		if err != nil {
			return err
		}
		return d.StructField("X", 0, func(d *Decoder) (err error) {
			p.X, err = d.Int32()
			return err
		})
	})
}

// VarDict is a struct that encodes to a DBus dict of string to
// variant.
type VarDict struct {
	A uint16 `dbus:"key=foo"`
	B uint32 `dbus:"key=bar,encodeZero"`
	C string `dbus:"key=@"`
	D uint8  `dbus:"key=@"`

	Other map[string]any `dbus:"vardict"`
}

// VarDictByte is a struct that encodes to a DBus dict of byte to
// variant.
type VarDictByte struct {
	A uint16 `dbus:"key=1"`
	B string `dbus:"key=2"`

	Other map[byte]any `dbus:"vardict"`
}

func ptr[T any](v T) *T {
	return &v
}

func mustEncode(v any) Value {
	ret, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return ret
}
