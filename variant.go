package dbusvalue

// Variant is a DBus VARIANT: a box around exactly one value of any
// type.
type Variant struct {
	inner Value
}

// NewVariant returns a Variant containing v. NewVariant panics if v
// is nil.
func NewVariant(v Value) Variant {
	if v == nil {
		panic("NewVariant called with nil value")
	}
	return Variant{v}
}

// SignatureDBus returns "v". Use [Variant.InnerSignature] for the
// signature of the boxed value.
func (v Variant) SignatureDBus() Signature { return "v" }

// Inner returns the boxed value.
func (v Variant) Inner() Value { return v.inner }

// InnerSignature returns the signature of the boxed value.
func (v Variant) InnerSignature() Signature {
	if v.inner == nil {
		return ""
	}
	return v.inner.SignatureDBus()
}

// Equal reports whether v and o box equal values.
func (v Variant) Equal(o Variant) bool {
	return Equal(v.inner, o.inner)
}
