package dbusvalue

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// encodeWith runs fn against a fresh Encoder and returns the
// resulting value.
func encodeWith(fn func(e *Encoder) error) (Value, error) {
	var e Encoder
	if err := fn(&e); err != nil {
		return nil, err
	}
	return e.Result()
}

func emit(fn func()) func() error {
	return func() error {
		fn()
		return nil
	}
}

func TestEncoder(t *testing.T) {
	tests := []struct {
		name string
		fn   func(e *Encoder) error
		want Value
	}{
		{
			"primitives",
			func(e *Encoder) error {
				return e.Tuple(12, func() error {
					prims := []func(){
						func() { e.Bool(true) },
						func() { e.Uint8(1) },
						func() { e.Uint16(2) },
						func() { e.Uint32(3) },
						func() { e.Uint64(4) },
						func() { e.Int16(-5) },
						func() { e.Int32(-6) },
						func() { e.Int64(-7) },
						func() { e.Float64(8.5) },
						func() { e.String("nine") },
						func() { e.ObjectPath("/ten") },
						func() { e.Signature("a{sv}") },
					}
					for i, p := range prims {
						if err := e.StructField("", i, emit(p)); err != nil {
							return err
						}
					}
					return nil
				})
			},
			NewStruct(Bool(true), Byte(1), Uint16(2), Uint32(3), Uint64(4), Int16(-5), Int32(-6), Int64(-7), Double(8.5), String("nine"), ObjectPath("/ten"), Signature("a{sv}")),
		},
		{
			"char",
			func(e *Encoder) error { return e.Char('é') },
			Byte(0xe9),
		},
		{
			"array",
			func(e *Encoder) error {
				return e.Array(2, func() error {
					if err := e.ArrayElem(0, emit(func() { e.String("a") })); err != nil {
						return err
					}
					return e.ArrayElem(1, emit(func() { e.String("b") }))
				})
			},
			NewArray(String("a"), String("b")),
		},
		{
			"empty typed array",
			func(e *Encoder) error {
				return e.ArrayWithSignature("a(ii)", 0, func() error { return nil })
			},
			NewArrayWithSignature("a(ii)"),
		},
		{
			"map",
			func(e *Encoder) error {
				return e.Map(2, func() error {
					for i, k := range []string{"z", "a"} {
						if err := e.MapKey(i, emit(func() { e.String(k) })); err != nil {
							return err
						}
						if err := e.MapValue(i, emit(func() { e.Uint32(uint32(i)) })); err != nil {
							return err
						}
					}
					return nil
				})
			},
			NewDictionary(DictEntry{String("a"), Uint32(1)}, DictEntry{String("z"), Uint32(0)}),
		},
		{
			"empty typed map",
			func(e *Encoder) error {
				return e.MapWithSignature("a{ov}", 0, func() error { return nil })
			},
			NewDictionaryWithSignature("a{ov}"),
		},
		{
			"variant",
			func(e *Encoder) error {
				return e.Variant(func() error {
					return e.Value([]uint16{1})
				})
			},
			NewVariant(NewArray(Uint16(1))),
		},
		{
			"nested values",
			func(e *Encoder) error {
				return e.Struct("outer", 2, func() error {
					if err := e.StructField("a", 0, func() error { return e.Value(Simple{1, true}) }); err != nil {
						return err
					}
					return e.StructField("b", 1, func() error { return e.Value(map[byte]bool{7: false}) })
				})
			},
			NewStruct(
				NewStruct(Int16(1), Bool(true)),
				NewDictionary(DictEntry{Byte(7), Bool(false)})),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := encodeWith(tc.fn)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Fatalf("wrong tree (-got+want):\n%s", diff)
			}
			if err := Check(got); err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
		})
	}
}

func TestEncoderErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(e *Encoder) error
		want error
	}{
		{"wide char", func(e *Encoder) error { return e.Char('世') }, ErrUnsupported},
		{"int8", func(e *Encoder) error { return e.Int8(1) }, ErrUnsupported},
		{"nil", func(e *Encoder) error { return e.Nil() }, ErrUnsupported},
		{"option", func(e *Encoder) error { return e.Option(true, func() error { return nil }) }, ErrUnsupported},
		{"enum", func(e *Encoder) error { return e.Enum("Color", "Red", func() error { return nil }) }, ErrUnsupported},
		{"empty array", func(e *Encoder) error { return e.Array(0, func() error { return nil }) }, ErrEmptyArray},
		{"empty map", func(e *Encoder) error { return e.Map(0, func() error { return nil }) }, ErrEmptyMap},
		{
			"mixed array",
			func(e *Encoder) error {
				return e.Array(2, func() error {
					if err := e.ArrayElem(0, emit(func() { e.Uint8(1) })); err != nil {
						return err
					}
					return e.ArrayElem(1, emit(func() { e.String("b") }))
				})
			},
			ErrUnsupported,
		},
		{
			"typed array mismatch",
			func(e *Encoder) error {
				return e.ArrayWithSignature("as", 1, func() error {
					return e.ArrayElem(0, emit(func() { e.Uint8(1) }))
				})
			},
			ErrUnsupported,
		},
		{
			"bad array signature",
			func(e *Encoder) error {
				return e.ArrayWithSignature("a{sv}", 0, func() error { return nil })
			},
			ErrUnsupported,
		},
		{
			"bad map signature",
			func(e *Encoder) error {
				return e.MapWithSignature("as", 0, func() error { return nil })
			},
			ErrUnsupported,
		},
		{
			"struct key",
			func(e *Encoder) error {
				return e.Map(1, func() error {
					return e.MapKey(0, func() error { return e.Value(Simple{}) })
				})
			},
			ErrBadKeyType,
		},
		{
			"float key",
			func(e *Encoder) error {
				return e.Map(1, func() error {
					return e.MapKey(0, emit(func() { e.Float64(1) }))
				})
			},
			ErrBadKeyType,
		},
		{
			"mixed map values",
			func(e *Encoder) error {
				return e.Map(2, func() error {
					vals := []func(){func() { e.Uint8(1) }, func() { e.Uint16(1) }}
					for i, v := range vals {
						if err := e.MapKey(i, emit(func() { e.Uint8(uint8(i)) })); err != nil {
							return err
						}
						if err := e.MapValue(i, emit(v)); err != nil {
							return err
						}
					}
					return nil
				})
			},
			ErrUnsupported,
		},
		{
			"error in nested body",
			func(e *Encoder) error {
				return e.Struct("s", 1, func() error {
					return e.StructField("f", 0, func() error {
						return e.Value(int8(1))
					})
				})
			},
			ErrUnsupported,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := encodeWith(tc.fn)
			if err == nil {
				t.Fatalf("encode succeeded with %v, want error", got)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("encode got err %v, want %v", err, tc.want)
			}
			if errors.Is(err, ErrBadSignature) {
				t.Fatalf("encode got decoder error %v", err)
			}
		})
	}
}

func TestEncoderSignatureError(t *testing.T) {
	_, err := encodeWith(func(e *Encoder) error {
		return e.MapWithSignature("a{sv", 0, func() error { return nil })
	})
	var serr *SignatureError
	if !errors.As(err, &serr) {
		t.Fatalf("MapWithSignature got err %v, want SignatureError", err)
	}
	if serr.Signature != "a{sv" {
		t.Errorf("SignatureError.Signature = %q, want %q", serr.Signature, "a{sv")
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("MapWithSignature got err %v, want ErrUnsupported", err)
	}
}

func TestEncoderResult(t *testing.T) {
	var e Encoder
	if _, err := e.Result(); err == nil {
		t.Error("Result() of empty Encoder succeeded, want error")
	}
	e.Uint8(1)
	e.Uint8(2)
	if _, err := e.Result(); err == nil {
		t.Error("Result() with two values succeeded, want error")
	}
}

func TestEncoderMisusePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(e *Encoder) error
	}{
		{
			"struct too few fields",
			func(e *Encoder) error {
				return e.Struct("s", 2, func() error {
					return e.StructField("a", 0, emit(func() { e.Uint8(1) }))
				})
			},
		},
		{
			"array too many elements",
			func(e *Encoder) error {
				return e.Array(1, func() error {
					e.Uint8(1)
					e.Uint8(2)
					return nil
				})
			},
		},
		{
			"field emits two values",
			func(e *Encoder) error {
				return e.Struct("s", 1, func() error {
					return e.StructField("a", 0, emit(func() {
						e.Uint8(1)
						e.Uint8(2)
					}))
				})
			},
		},
		{
			"variant emits nothing",
			func(e *Encoder) error {
				return e.Variant(func() error { return nil })
			},
		},
		{
			"two keys in a row",
			func(e *Encoder) error {
				return e.Map(2, func() error {
					if err := e.MapKey(0, emit(func() { e.Uint8(1) })); err != nil {
						return err
					}
					return e.MapKey(1, emit(func() { e.Uint8(2) }))
				})
			},
		},
		{
			"value without key",
			func(e *Encoder) error {
				return e.Map(1, func() error {
					return e.MapValue(0, emit(func() { e.Uint8(1) }))
				})
			},
		},
		{
			"dangling key",
			func(e *Encoder) error {
				return e.Map(1, func() error {
					return e.MapKey(0, emit(func() { e.Uint8(1) }))
				})
			},
		},
		{
			"too few entries",
			func(e *Encoder) error {
				return e.Map(2, func() error {
					if err := e.MapKey(0, emit(func() { e.Uint8(1) })); err != nil {
						return err
					}
					return e.MapValue(0, emit(func() { e.Uint8(1) }))
				})
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("encoder misuse did not panic")
				}
				if testing.Verbose() {
					t.Logf("panic: %v", r)
				}
			}()
			encodeWith(tc.fn)
		})
	}
}

func TestEncoderStrayMapValuePanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("value emitted into a map body did not panic")
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, "directly into a map") {
			t.Fatalf("panic %q was not reported by the map", msg)
		}
	}()
	encodeWith(func(e *Encoder) error {
		return e.Struct("s", 1, func() error {
			return e.StructField("m", 0, func() error {
				return e.Map(1, func() error {
					e.Uint8(1)
					if err := e.MapKey(0, emit(func() { e.Uint8(1) })); err != nil {
						return err
					}
					return e.MapValue(0, emit(func() { e.Uint8(2) }))
				})
			})
		})
	})
}

func TestEncoderMapper(t *testing.T) {
	// A Mapper that encodes all strings as object paths.
	e := Encoder{
		Mapper: func(t reflect.Type) (EncoderFunc, error) {
			if t.Kind() == reflect.String {
				return func(e *Encoder, v reflect.Value) error {
					e.ObjectPath(ObjectPath(v.String()))
					return nil
				}, nil
			}
			return encoderFor(t)
		},
	}
	if err := e.Value("/foo"); err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	got, err := e.Result()
	if err != nil {
		t.Fatalf("Result() failed: %v", err)
	}
	if got != ObjectPath("/foo") {
		t.Errorf("Value(string) with custom Mapper = %#v, want ObjectPath", got)
	}
}
