// Package dbusvalue converts between Go values and DBus value trees.
//
// A value tree is made of [Value] nodes. Every node knows its own
// DBus type signature: the basic types ([Byte], [Bool], [Int16],
// [Uint16], [Int32], [Uint32], [Int64], [Uint64], [String],
// [ObjectPath], [Signature]), [Double], and the containers [Array],
// [Struct], [Dictionary] and [Variant].
//
// [Encode] builds a value tree from a Go value, inferring signatures
// from the data. [Decode] and [DecodeTo] convert a value tree back
// into Go values, checking that the tree's shape fits the target type
// and that integers fit in their destination. [DecodeAny] decodes a
// tree into the Go types that naturally correspond to its signature.
//
// Types can take control of their own conversion by implementing
// [Marshaler] and [Unmarshaler], which drive an [Encoder] or a
// [Decoder] directly.
//
// Value trees are plain immutable data. This package does not produce
// or parse the DBus wire format, and knows nothing of bus connections
// or messages.
package dbusvalue
