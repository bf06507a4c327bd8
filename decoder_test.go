package dbusvalue

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecoderPrimitives(t *testing.T) {
	type result struct {
		val any
		err error
	}
	wrap := func(v any, err error) result { return result{v, err} }

	tests := []struct {
		name    string
		in      Value
		read    func(d *Decoder) result
		want    any
		wantErr error
	}{
		{"uint8", Byte(7), func(d *Decoder) result { return wrap(d.Uint8()) }, uint8(7), nil},
		{"uint32 from byte", Byte(7), func(d *Decoder) result { return wrap(d.Uint32()) }, uint32(7), nil},
		{"uint64 from uint16", Uint16(300), func(d *Decoder) result { return wrap(d.Uint64()) }, uint64(300), nil},
		{"uint8 too narrow", Uint16(300), func(d *Decoder) result { return wrap(d.Uint8()) }, nil, ErrIntTooNarrow},
		{"uint16 from signed", Int16(1), func(d *Decoder) result { return wrap(d.Uint16()) }, nil, ErrBadSignature},
		{"int8", Int16(-100), func(d *Decoder) result { return wrap(d.Int8()) }, int8(-100), nil},
		{"int8 too narrow", Int16(-200), func(d *Decoder) result { return wrap(d.Int8()) }, nil, ErrIntTooNarrow},
		{"int64 from int32", Int32(-5), func(d *Decoder) result { return wrap(d.Int64()) }, int64(-5), nil},
		{"int32 too narrow", Int64(1 << 40), func(d *Decoder) result { return wrap(d.Int32()) }, nil, ErrIntTooNarrow},
		{"int16 from unsigned", Uint16(1), func(d *Decoder) result { return wrap(d.Int16()) }, nil, ErrBadSignature},
		{"bool", Bool(true), func(d *Decoder) result { return wrap(d.Bool()) }, true, nil},
		{"bool from byte", Byte(1), func(d *Decoder) result { return wrap(d.Bool()) }, nil, ErrBadSignature},
		{"float64", Double(2.5), func(d *Decoder) result { return wrap(d.Float64()) }, 2.5, nil},
		{"float32", Double(2.5), func(d *Decoder) result { return wrap(d.Float32()) }, nil, ErrNotSupported},
		{"string", String("x"), func(d *Decoder) result { return wrap(d.String()) }, "x", nil},
		{"string from path", ObjectPath("/a"), func(d *Decoder) result { return wrap(d.String()) }, "/a", nil},
		{"string from signature", Signature("as"), func(d *Decoder) result { return wrap(d.String()) }, "as", nil},
		{"string from byte", Byte(1), func(d *Decoder) result { return wrap(d.String()) }, nil, ErrBadSignature},
		{"char", Byte('A'), func(d *Decoder) result { return wrap(d.Char()) }, 'A', nil},
		{"char too narrow", Uint16(0x4e16), func(d *Decoder) result { return wrap(d.Char()) }, nil, ErrIntTooNarrow},
		{"nil node", nil, func(d *Decoder) result { return wrap(d.Bool()) }, nil, ErrBadSignature},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.read(NewDecoder(tc.in))
			if tc.wantErr != nil {
				if !errors.Is(got.err, tc.wantErr) {
					t.Fatalf("read got err %v, want %v", got.err, tc.wantErr)
				}
				if testing.Verbose() {
					t.Logf("read err: %v", got.err)
				}
				return
			}
			if got.err != nil {
				t.Fatalf("read failed: %v", got.err)
			}
			if got.val != tc.want {
				t.Fatalf("read got %#v, want %#v", got.val, tc.want)
			}
		})
	}
}

func TestDecoderUnsupported(t *testing.T) {
	d := NewDecoder(NewStruct(Byte(1)))
	noop := func() error { return nil }
	errs := map[string]error{
		"Nil":    d.Nil(),
		"Option": d.Option(func(bool, *Decoder) error { return nil }),
		"Enum":   d.Enum("Color", func(string, *Decoder) error { return nil }),
		"Tuple":  d.Tuple(1, noop),
	}
	for name, err := range errs {
		if !errors.Is(err, ErrNotSupported) {
			t.Errorf("%s() got err %v, want ErrNotSupported", name, err)
		}
	}
}

func TestDecoderStructAnyOrder(t *testing.T) {
	in := NewStruct(String("a"), Uint32(2), NewVariant(Bool(true)))
	orig := NewStruct(String("a"), Uint32(2), NewVariant(Bool(true)))

	var (
		s string
		u uint32
		b bool
	)
	d := NewDecoder(in)
	err := d.Struct("thing", 3, func() error {
		if err := d.StructField("b", 2, func(d *Decoder) error {
			return d.Variant(func(d *Decoder) error {
				var err error
				b, err = d.Bool()
				return err
			})
		}); err != nil {
			return err
		}
		if err := d.StructField("s", 0, func(d *Decoder) error {
			var err error
			s, err = d.String()
			return err
		}); err != nil {
			return err
		}
		return d.StructField("u", 1, func(d *Decoder) error {
			var err error
			u, err = d.Uint32()
			return err
		})
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if s != "a" || u != 2 || !b {
		t.Errorf("decoded (%q, %d, %v), want (\"a\", 2, true)", s, u, b)
	}
	if !Equal(in, orig) {
		t.Errorf("decoding modified the input tree: %v", in)
	}
}

func TestDecoderArray(t *testing.T) {
	in := NewArray(Uint16(1), Uint16(2), Uint16(3))
	d := NewDecoder(in)
	var got []uint16
	err := d.Array(func(n int) error {
		got = make([]uint16, n)
		for i := n - 1; i >= 0; i-- {
			if err := d.ArrayElem(i, func(d *Decoder) error {
				return d.Value(&got[i])
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if diff := cmp.Diff(got, []uint16{1, 2, 3}); diff != "" {
		t.Errorf("wrong result (-got+want):\n%s", diff)
	}
}

func TestDecoderMap(t *testing.T) {
	in := NewDictionary(
		DictEntry{String("b"), NewVariant(Uint32(2))},
		DictEntry{String("a"), NewVariant(String("x"))},
	)
	d := NewDecoder(in)
	got := map[string]any{}
	err := d.Map(func(n int) error {
		for i := range n {
			var k string
			if err := d.MapKey(i, func(d *Decoder) error {
				var err error
				k, err = d.String()
				return err
			}); err != nil {
				return err
			}
			var v any
			if err := d.MapValue(i, func(d *Decoder) error {
				return d.Value(&v)
			}); err != nil {
				return err
			}
			got[k] = v
		}
		return nil
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := map[string]any{"a": "x", "b": uint32(2)}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong result (-got+want):\n%s", diff)
	}
}

func TestDecoderErrors(t *testing.T) {
	noop := func(*Decoder) error { return nil }
	tests := []struct {
		name string
		in   Value
		fn   func(d *Decoder) error
		want error
	}{
		{
			"array from struct",
			NewStruct(Byte(1)),
			func(d *Decoder) error { return d.Array(func(int) error { return nil }) },
			ErrBadSignature,
		},
		{
			"array elem out of range",
			NewArray(Byte(1)),
			func(d *Decoder) error {
				return d.Array(func(int) error { return d.ArrayElem(1, noop) })
			},
			ErrBadSignature,
		},
		{
			"struct field count",
			NewStruct(Byte(1), Byte(2)),
			func(d *Decoder) error { return d.Struct("pair", 3, func() error { return nil }) },
			ErrBadSignature,
		},
		{
			"struct field out of range",
			NewStruct(Byte(1)),
			func(d *Decoder) error {
				return d.Struct("one", 1, func() error { return d.StructField("x", -1, noop) })
			},
			ErrBadSignature,
		},
		{
			"struct field error",
			NewStruct(Uint16(300)),
			func(d *Decoder) error {
				return d.Struct("one", 1, func() error {
					return d.StructField("x", 0, func(d *Decoder) error {
						_, err := d.Uint8()
						return err
					})
				})
			},
			ErrIntTooNarrow,
		},
		{
			"map entry out of range",
			NewDictionary(DictEntry{Byte(1), Byte(1)}),
			func(d *Decoder) error {
				return d.Map(func(int) error { return d.MapKey(5, noop) })
			},
			ErrBadSignature,
		},
		{
			"map from array",
			NewArray(Byte(1)),
			func(d *Decoder) error { return d.Map(func(int) error { return nil }) },
			ErrBadSignature,
		},
		{
			"variant from byte",
			Byte(1),
			func(d *Decoder) error { return d.Variant(noop) },
			ErrBadSignature,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn(NewDecoder(tc.in))
			if !errors.Is(err, tc.want) {
				t.Fatalf("decode got err %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecoderMisusePanics(t *testing.T) {
	noop := func(*Decoder) error { return nil }
	dict := NewDictionary(DictEntry{Byte(1), Byte(1)}, DictEntry{Byte(2), Byte(2)})
	tests := []struct {
		name string
		in   Value
		fn   func(d *Decoder) error
	}{
		{
			"array elem twice",
			NewArray(Byte(1), Byte(2)),
			func(d *Decoder) error {
				return d.Array(func(int) error {
					d.ArrayElem(0, noop)
					return d.ArrayElem(0, noop)
				})
			},
		},
		{
			"struct field twice",
			NewStruct(Byte(1), Byte(2)),
			func(d *Decoder) error {
				return d.Struct("pair", 2, func() error {
					d.StructField("b", 1, noop)
					return d.StructField("b", 1, noop)
				})
			},
		},
		{
			"map entry twice",
			dict,
			func(d *Decoder) error {
				return d.Map(func(int) error {
					d.MapKey(0, noop)
					d.MapValue(0, noop)
					return d.MapKey(0, noop)
				})
			},
		},
		{
			"two keys in a row",
			dict,
			func(d *Decoder) error {
				return d.Map(func(int) error {
					d.MapKey(0, noop)
					return d.MapKey(1, noop)
				})
			},
		},
		{
			"value without key",
			dict,
			func(d *Decoder) error {
				return d.Map(func(int) error { return d.MapValue(0, noop) })
			},
		},
		{
			"value for wrong key",
			dict,
			func(d *Decoder) error {
				return d.Map(func(int) error {
					d.MapKey(0, noop)
					return d.MapValue(1, noop)
				})
			},
		},
		{
			"dangling key",
			dict,
			func(d *Decoder) error {
				return d.Map(func(int) error { return d.MapKey(1, noop) })
			},
		},
		{
			"elem outside array",
			NewArray(Byte(1)),
			func(d *Decoder) error { return d.ArrayElem(0, noop) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("decoder misuse did not panic")
				}
				if testing.Verbose() {
					t.Logf("panic: %v", r)
				}
			}()
			tc.fn(NewDecoder(tc.in))
		})
	}
}

func TestDecoderMapper(t *testing.T) {
	// A Mapper that reads every string target twice over.
	d := NewDecoder(String("ab"))
	d.Mapper = func(t reflect.Type) (DecoderFunc, error) {
		if t.Kind() == reflect.String {
			return func(d *Decoder, v reflect.Value) error {
				s, err := d.String()
				if err != nil {
					return err
				}
				v.SetString(s + s)
				return nil
			}, nil
		}
		return decoderFor(t)
	}
	var got string
	if err := d.Value(&got); err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if got != "abab" {
		t.Errorf("Value() with custom Mapper = %q, want %q", got, "abab")
	}
}

func TestDecoderValueBadTarget(t *testing.T) {
	d := NewDecoder(Byte(1))
	var u uint8
	for _, out := range []any{nil, u, (*uint8)(nil)} {
		if err := d.Value(out); err == nil {
			t.Errorf("Value(%#v) succeeded, want error", out)
		}
	}
}
