package dbusvalue

import (
	"iter"
	"slices"
	"strings"
)

// Array is a DBus ARRAY: an ordered sequence of values that all have
// the same type signature.
//
// The zero Array has no signature and is not a valid value. Use
// [NewArray] or [NewArrayWithSignature] to construct Arrays.
type Array struct {
	elems []Value
	sig   Signature
}

// NewArray returns an Array of elems. The Array's element signature
// is the signature of elems[0].
//
// NewArray panics if elems is empty, since the signature of an empty
// array cannot be inferred. It does not verify that all elements have
// the same signature, use [Check] for that.
func NewArray(elems ...Value) Array {
	if len(elems) == 0 {
		panic("NewArray called with no elements, use NewArrayWithSignature for empty arrays")
	}
	return Array{
		elems: slices.Clone(elems),
		sig:   "a" + elems[0].SignatureDBus(),
	}
}

// NewArrayWithSignature returns an Array of elems with the given
// array signature, for example "as". elems may be empty.
//
// The signature is trusted as given, use [Check] to verify it.
func NewArrayWithSignature(sig Signature, elems ...Value) Array {
	return Array{
		elems: slices.Clone(elems),
		sig:   sig,
	}
}

func (a Array) SignatureDBus() Signature { return a.sig }

// ElemSignature returns the signature of the Array's elements.
func (a Array) ElemSignature() Signature {
	if a.sig == "" {
		return ""
	}
	return a.sig[1:]
}

// Len returns the number of elements in the Array.
func (a Array) Len() int { return len(a.elems) }

// Index returns the i-th element of the Array.
func (a Array) Index(i int) Value { return a.elems[i] }

// Elements returns a copy of the Array's elements.
func (a Array) Elements() []Value { return slices.Clone(a.elems) }

// All iterates over the Array's elements in order.
func (a Array) All() iter.Seq2[int, Value] {
	return slices.All(a.elems)
}

// Equal reports whether a and b have the same signature and equal
// elements.
func (a Array) Equal(b Array) bool {
	return a.sig == b.sig && slices.EqualFunc(a.elems, b.elems, Equal)
}

// Struct is a DBus STRUCT: an ordered sequence of values of
// arbitrary types.
//
// The zero Struct is an empty struct, with signature "()".
type Struct struct {
	fields []Value
	sig    Signature
}

// NewStruct returns a Struct of fields.
func NewStruct(fields ...Value) Struct {
	var sig strings.Builder
	sig.WriteByte('(')
	for _, f := range fields {
		sig.WriteString(string(f.SignatureDBus()))
	}
	sig.WriteByte(')')
	return Struct{
		fields: slices.Clone(fields),
		sig:    Signature(sig.String()),
	}
}

func (s Struct) SignatureDBus() Signature {
	if s.sig == "" {
		return "()"
	}
	return s.sig
}

// Len returns the number of fields in the Struct.
func (s Struct) Len() int { return len(s.fields) }

// Field returns the i-th field of the Struct.
func (s Struct) Field(i int) Value { return s.fields[i] }

// Fields returns a copy of the Struct's fields.
func (s Struct) Fields() []Value { return slices.Clone(s.fields) }

// All iterates over the Struct's fields in order.
func (s Struct) All() iter.Seq2[int, Value] {
	return slices.All(s.fields)
}

// Equal reports whether s and o have equal fields.
func (s Struct) Equal(o Struct) bool {
	return s.SignatureDBus() == o.SignatureDBus() && slices.EqualFunc(s.fields, o.fields, Equal)
}

// DictEntry is a key/value pair in a [Dictionary].
type DictEntry struct {
	Key   BasicValue
	Value Value
}

// Dictionary is a DBus dictionary: an array of key/value pairs, where
// all keys share one basic type and all values share one type.
//
// Entries are kept sorted by key, according to [CompareBasic]. Keys
// are unique.
//
// The zero Dictionary has no signature and is not a valid value. Use
// [NewDictionary] or [NewDictionaryWithSignature] to construct
// Dictionaries.
type Dictionary struct {
	entries []DictEntry
	sig     Signature
}

// NewDictionary returns a Dictionary of entries. The Dictionary's
// signature is inferred from entries[0]. If several entries have the
// same key, the last one wins.
//
// NewDictionary panics if entries is empty, since the signature of
// an empty dictionary cannot be inferred.
func NewDictionary(entries ...DictEntry) Dictionary {
	if len(entries) == 0 {
		panic("NewDictionary called with no entries, use NewDictionaryWithSignature for empty dictionaries")
	}
	e := entries[0]
	return Dictionary{
		entries: sortEntries(entries),
		sig:     "a{" + e.Key.SignatureDBus() + e.Value.SignatureDBus() + "}",
	}
}

// NewDictionaryWithSignature returns a Dictionary of entries with the
// given signature, for example "a{sv}". entries may be empty. If
// several entries have the same key, the last one wins.
//
// The signature is trusted as given, use [Check] to verify it.
func NewDictionaryWithSignature(sig Signature, entries ...DictEntry) Dictionary {
	return Dictionary{
		entries: sortEntries(entries),
		sig:     sig,
	}
}

// sortEntries returns a sorted copy of es, with duplicate keys
// removed. The last entry for a key is kept.
func sortEntries(es []DictEntry) []DictEntry {
	ret := slices.Clone(es)
	slices.SortStableFunc(ret, compareEntries)
	out := ret[:0]
	for i, e := range ret {
		if i+1 < len(ret) && compareEntries(e, ret[i+1]) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func compareEntries(a, b DictEntry) int {
	return CompareBasic(a.Key, b.Key)
}

func (d Dictionary) SignatureDBus() Signature { return d.sig }

// KeySignature returns the signature of the Dictionary's keys.
func (d Dictionary) KeySignature() Signature {
	if len(d.sig) < 4 {
		return ""
	}
	return d.sig[2:3]
}

// ValueSignature returns the signature of the Dictionary's values.
func (d Dictionary) ValueSignature() Signature {
	if len(d.sig) < 4 {
		return ""
	}
	return d.sig[3 : len(d.sig)-1]
}

// Len returns the number of entries in the Dictionary.
func (d Dictionary) Len() int { return len(d.entries) }

// Entry returns the i-th entry of the Dictionary, in key order.
func (d Dictionary) Entry(i int) DictEntry { return d.entries[i] }

// Entries returns a copy of the Dictionary's entries, in key order.
func (d Dictionary) Entries() []DictEntry { return slices.Clone(d.entries) }

// Get returns the value associated with k, if any.
func (d Dictionary) Get(k BasicValue) (Value, bool) {
	i, ok := slices.BinarySearchFunc(d.entries, k, func(e DictEntry, k BasicValue) int {
		return CompareBasic(e.Key, k)
	})
	if !ok {
		return nil, false
	}
	return d.entries[i].Value, true
}

// All iterates over the Dictionary's entries in key order.
func (d Dictionary) All() iter.Seq2[BasicValue, Value] {
	return func(yield func(BasicValue, Value) bool) {
		for _, e := range d.entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// Equal reports whether d and o have the same signature and equal
// entries.
func (d Dictionary) Equal(o Dictionary) bool {
	return d.sig == o.sig && slices.EqualFunc(d.entries, o.entries, func(a, b DictEntry) bool {
		return a.Key == b.Key && Equal(a.Value, b.Value)
	})
}
