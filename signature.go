package dbusvalue

import (
	"errors"
	"fmt"
	"reflect"
)

// A Signature is a DBus type signature, such as "a{sv}".
//
// Signature is itself a DBus basic type (SIGNATURE), and can appear
// in value trees and as a dictionary key.
type Signature string

func (Signature) SignatureDBus() Signature { return "g" }

func (s Signature) String() string { return string(s) }

// ParseSignature validates sig as a sequence of zero or more complete
// DBus types.
func ParseSignature(sig string) (Signature, error) {
	if _, err := Signature(sig).Split(); err != nil {
		return "", err
	}
	return Signature(sig), nil
}

func mustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

// Split returns the complete types that make up s. For example,
// "ya{sv}(ii)" splits into "y", "a{sv}" and "(ii)".
func (s Signature) Split() ([]Signature, error) {
	var (
		ret  []Signature
		rest = string(s)
	)
	for rest != "" {
		_, next, err := parseOne(rest, false)
		if err != nil {
			return nil, &SignatureError{Signature: s, Reason: err.Error()}
		}
		ret = append(ret, Signature(rest[:len(rest)-len(next)]))
		rest = next
	}
	return ret, nil
}

// single reports whether s is exactly one complete type.
func (s Signature) single() bool {
	if s == "" {
		return false
	}
	_, rest, err := parseOne(string(s), false)
	return err == nil && rest == ""
}

// Type returns the Go type that [DecodeAny] produces for values of
// the single complete type s.
func (s Signature) Type() (reflect.Type, error) {
	return typeForSignature(s)
}

var sigTypes cache[Signature, reflect.Type]

// typeForSignature returns the Go type that values of the single
// complete type sig decode into by default.
func typeForSignature(sig Signature) (ret reflect.Type, err error) {
	if ret, err := sigTypes.Get(sig); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	defer func() {
		if err != nil {
			sigTypes.SetErr(sig, err)
		} else {
			sigTypes.Set(sig, ret)
		}
	}()

	if sig == "" {
		return nil, &SignatureError{Signature: sig, Reason: "empty signature"}
	}
	t, rest, err := parseOne(string(sig), false)
	if err != nil {
		return nil, &SignatureError{Signature: sig, Reason: err.Error()}
	}
	if rest != "" {
		return nil, &SignatureError{Signature: sig, Reason: "more than one complete type"}
	}
	return t, nil
}

// parseOne consumes the first complete type from the front of sig,
// and returns the corresponding reflect.Type as well as the remainder
// of the type string.
func parseOne(sig string, inArray bool) (t reflect.Type, rest string, err error) {
	if sig == "" {
		return nil, "", errors.New("missing type")
	}
	if ret, ok := strToType[sig[0]]; ok {
		return ret, sig[1:], nil
	}

	switch sig[0] {
	case 'a':
		isDict := len(sig) > 1 && sig[1] == '{'
		elem, rest, err := parseOne(sig[1:], true)
		if err != nil {
			return nil, "", err
		}
		if isDict {
			return elem, rest, nil // sub-parser already produced a map
		}
		return reflect.SliceOf(elem), rest, nil
	case '(':
		var (
			fields []reflect.Type
			field  reflect.Type
			rest   = sig[1:]
			err    error
		)
		for rest != "" && rest[0] != ')' {
			field, rest, err = parseOne(rest, false)
			if err != nil {
				return nil, "", err
			}
			fields = append(fields, field)
		}
		if rest == "" {
			return nil, "", errors.New("missing closing ) in struct definition")
		}
		fs := make([]reflect.StructField, len(fields))
		for i, f := range fields {
			fs[i] = reflect.StructField{
				Name: fmt.Sprintf("Field%d", i),
				Type: f,
			}
		}
		return reflect.StructOf(fs), rest[1:], nil
	case '{':
		if !inArray {
			return nil, "", errors.New("dict entry type found outside array")
		}
		key, rest, err := parseOne(sig[1:], false)
		if err != nil {
			return nil, "", err
		}
		if !mapKeyKinds.Has(key.Kind()) {
			return nil, "", fmt.Errorf("invalid dict entry key type %s, must be a dbus basic type", key)
		}
		val, rest, err := parseOne(rest, false)
		if err != nil {
			return nil, "", err
		}
		if rest == "" || rest[0] != '}' {
			return nil, "", errors.New("missing closing } in dict entry definition")
		}
		return reflect.MapOf(key, val), rest[1:], nil
	default:
		return nil, "", fmt.Errorf("unknown type specifier %q", sig[0])
	}
}
