// Package api includes the small set of types shared between host code and
// the interpreter: value types and the external-kind codes. Only the
// function kind is supported by this subset of Wasm v1.
package api

import "fmt"

// ValueType classifies a Value. Only the two integer types needed by the
// supported instruction subset are defined; floats, vectors, and reference
// types are out of scope (see spec non-goals).
type ValueType byte

const (
	// ValueTypeI32 is a 32-bit integer, encoded as 0x7f in the binary format.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer, encoded as 0x7e in the binary format.
	ValueTypeI64 ValueType = 0x7e
)

// ValueTypeName returns the Wasm text-format name of t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	default:
		return "unknown"
	}
}

// ExternType classifies an Import or Export. Only function is implemented;
// decoding any other kind fails with DecodeError.
type ExternType byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// Value is a Wasm value: an I32 or an I64, tagged by Type. Values are
// copied by value throughout the interpreter; there is no heap allocation
// on the hot path of pushing and popping the operand stack.
type Value struct {
	Type ValueType
	bits uint64
}

// I32 constructs an I32-typed Value.
func I32(v int32) Value { return Value{Type: ValueTypeI32, bits: uint64(uint32(v))} }

// I64 constructs an I64-typed Value.
func I64(v int64) Value { return Value{Type: ValueTypeI64, bits: uint64(v)} }

// AsI32 returns the value as an int32, panicking if Type is not I32. Callers
// that aren't certain of the type should check Type directly.
func (v Value) AsI32() int32 {
	if v.Type != ValueTypeI32 {
		panic(fmt.Sprintf("value is %s, not i32", ValueTypeName(v.Type)))
	}
	return int32(uint32(v.bits))
}

// AsI64 returns the value as an int64, panicking if Type is not I64.
func (v Value) AsI64() int64 {
	if v.Type != ValueTypeI64 {
		panic(fmt.Sprintf("value is %s, not i64", ValueTypeName(v.Type)))
	}
	return int64(v.bits)
}

func (v Value) String() string {
	switch v.Type {
	case ValueTypeI32:
		return fmt.Sprintf("i32:%d", v.AsI32())
	case ValueTypeI64:
		return fmt.Sprintf("i64:%d", v.AsI64())
	default:
		return "invalid"
	}
}
