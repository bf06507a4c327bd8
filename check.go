package dbusvalue

import (
	"fmt"
	"strings"
)

// Check verifies that the value tree v is well formed: that every
// container's signature is a valid single complete type, and agrees
// with the signatures of the values it contains.
//
// Trees produced by [Encode], [NewArray], [NewStruct],
// [NewDictionary] and [NewVariant] always pass Check. Trees built
// with [NewArrayWithSignature] or [NewDictionaryWithSignature] may
// not.
//
// The returned error, if any, is a [*SignatureError] locating the
// first problem found.
func Check(v Value) error {
	return check(v, "$")
}

func check(v Value, path string) error {
	bad := func(sig Signature, format string, args ...any) error {
		return &SignatureError{
			Path:      path,
			Signature: sig,
			Reason:    fmt.Sprintf(format, args...),
		}
	}

	switch x := v.(type) {
	case nil:
		return bad("", "nil value")
	case Array:
		sig := x.SignatureDBus()
		if !sig.single() || !strings.HasPrefix(string(sig), "a") || strings.HasPrefix(string(sig), "a{") {
			return bad(sig, "not an array signature")
		}
		want := x.ElemSignature()
		for i, elem := range x.All() {
			p := fmt.Sprintf("%s[%d]", path, i)
			if elem == nil {
				return &SignatureError{Path: p, Reason: "nil value"}
			}
			if got := elem.SignatureDBus(); got != want {
				return &SignatureError{Path: p, Signature: got, Reason: fmt.Sprintf("array element does not match element signature %q", want)}
			}
			if err := check(elem, p); err != nil {
				return err
			}
		}
	case Struct:
		var want strings.Builder
		want.WriteByte('(')
		for i, f := range x.All() {
			p := fmt.Sprintf("%s.%d", path, i)
			if err := check(f, p); err != nil {
				return err
			}
			want.WriteString(string(f.SignatureDBus()))
		}
		want.WriteByte(')')
		if sig := x.SignatureDBus(); string(sig) != want.String() {
			return bad(sig, "struct fields have signature %q", want.String())
		}
	case Dictionary:
		sig := x.SignatureDBus()
		if !sig.single() || !strings.HasPrefix(string(sig), "a{") {
			return bad(sig, "not a dictionary signature")
		}
		ks, vs := x.KeySignature(), x.ValueSignature()
		for i, e := range x.entries {
			p := fmt.Sprintf("%s{%v}", path, e.Key)
			if e.Key == nil {
				return &SignatureError{Path: fmt.Sprintf("%s{#%d}", path, i), Reason: "nil key"}
			}
			if got := e.Key.SignatureDBus(); got != ks {
				return &SignatureError{Path: p, Signature: got, Reason: fmt.Sprintf("key does not match key signature %q", ks)}
			}
			if e.Value == nil {
				return &SignatureError{Path: p, Reason: "nil value"}
			}
			if got := e.Value.SignatureDBus(); got != vs {
				return &SignatureError{Path: p, Signature: got, Reason: fmt.Sprintf("value does not match value signature %q", vs)}
			}
			if err := check(e.Value, p); err != nil {
				return err
			}
		}
	case Variant:
		if x.Inner() == nil {
			return bad("v", "empty variant")
		}
		return check(x.Inner(), path+".(v)")
	case Signature:
		if _, err := x.Split(); err != nil {
			return bad(x, "invalid signature value")
		}
	}
	return nil
}
