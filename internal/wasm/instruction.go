package wasm

import "github.com/nanowasm/nanowasm/api"

// Opcode is a single Wasm instruction byte. Only the opcodes named in §4.2
// are recognized; decoding any other byte fails with DecodeError.
type Opcode byte

const (
	OpcodeIf        Opcode = 0x04
	OpcodeEnd       Opcode = 0x0b
	OpcodeReturn    Opcode = 0x0f
	OpcodeCall      Opcode = 0x10
	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeI32Store  Opcode = 0x36
	OpcodeI32Const  Opcode = 0x41
	OpcodeI32LtS    Opcode = 0x48
	OpcodeI32Add    Opcode = 0x6a
	OpcodeI32Sub    Opcode = 0x6b
)

// BlockTypeKind distinguishes a void block from one that yields a value.
type BlockTypeKind byte

const (
	BlockTypeVoid BlockTypeKind = iota
	BlockTypeValue
)

// BlockType is the decoded immediate of an If instruction: either void or
// a single result type (multi-value block signatures are out of scope).
type BlockType struct {
	Kind  BlockTypeKind
	Value api.ValueType
}

// ResultCount returns the arity of the block (0 or 1 in this subset).
func (b BlockType) ResultCount() int {
	if b.Kind == BlockTypeValue {
		return 1
	}
	return 0
}

// MemArg is the (align, offset) immediate pair decoded for a memory
// instruction. Align is decoded but never checked (§9 open questions).
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Instruction is a tagged union over every opcode this subset supports. A
// single struct with opcode-specific fields (rather than one Go type per
// opcode) mirrors the teacher's wazeroir.UnionOperation: exhaustive
// switch-on-Opcode dispatch, no interface boxing per instruction.
type Instruction struct {
	Opcode     Opcode
	LocalIndex Index     // LocalGet, LocalSet
	FuncIndex  Index     // Call
	I32Const   int32     // I32Const
	Block      BlockType // If
	MemArg     MemArg    // I32Store
}
