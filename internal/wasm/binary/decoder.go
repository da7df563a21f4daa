// Package binary implements the module decoder: translating the canonical
// Wasm v1 binary encoding into an *wasm.Module (§4.2).
package binary

import (
	"fmt"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/internal/leb128"
	"github.com/nanowasm/nanowasm/internal/wasm"
)

// magic is the 4-byte Wasm preamble, followed by the little-endian version.
var magic = []byte{0x00, 'a', 's', 'm'}

const version = uint32(1)

// section codes, §4.2.
const (
	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11
)

const (
	importExportKindFunc = 0x00
)

// DecodeModule parses b as a complete Wasm v1 binary module.
func DecodeModule(b []byte) (*wasm.Module, error) {
	b, err := decodePreamble(b)
	if err != nil {
		return nil, err
	}

	m := &wasm.Module{ExportSection: map[string]*wasm.Export{}}
	for len(b) > 0 {
		var id byte
		id, b, err = leb128.DecodeUint8(b)
		if err != nil {
			return nil, fmt.Errorf("reading section id: %w", err)
		}

		var size uint32
		size, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("reading section %d size: %w", id, err)
		}
		if uint32(len(b)) < size {
			return nil, fmt.Errorf("%w: section %d declares %d bytes, only %d remain", wasm.ErrMalformed, id, size, len(b))
		}
		body := b[:size]
		b = b[size:]

		switch id {
		case sectionCustom:
			// skipped verbatim, per §4.2.
		case sectionType:
			if m.TypeSection, err = decodeTypeSection(body); err != nil {
				return nil, err
			}
		case sectionImport:
			if m.ImportSection, err = decodeImportSection(body); err != nil {
				return nil, err
			}
		case sectionFunction:
			if m.FunctionSection, err = decodeFunctionSection(body); err != nil {
				return nil, err
			}
		case sectionMemory:
			if m.MemorySection, err = decodeMemorySection(body); err != nil {
				return nil, err
			}
		case sectionExport:
			if m.ExportSection, err = decodeExportSection(body); err != nil {
				return nil, err
			}
		case sectionCode:
			if m.CodeSection, err = decodeCodeSection(body); err != nil {
				return nil, err
			}
		case sectionData:
			if m.DataSection, err = decodeDataSection(body); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %#x", wasm.ErrUnknownSection, id)
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("%w: function section has %d entries but code section has %d",
			wasm.ErrMalformed, len(m.FunctionSection), len(m.CodeSection))
	}
	return m, nil
}

func decodePreamble(b []byte) ([]byte, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: input shorter than the 8-byte preamble", wasm.ErrBadPreamble)
	}
	if string(b[:4]) != string(magic) {
		return nil, fmt.Errorf("%w: missing \\0asm magic", wasm.ErrBadPreamble)
	}
	v, rest, err := leb128.DecodeUint32Le(b[4:])
	if err != nil || v != version {
		return nil, fmt.Errorf("%w: unsupported version", wasm.ErrBadPreamble)
	}
	return rest, nil
}

func decodeValueType(b byte) (api.ValueType, error) {
	switch api.ValueType(b) {
	case api.ValueTypeI32, api.ValueTypeI64:
		return api.ValueType(b), nil
	default:
		return 0, fmt.Errorf("%w: invalid value type %#x", wasm.ErrMalformed, b)
	}
}

func decodeTypeSection(b []byte) ([]*wasm.FunctionType, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("type section count: %w", err)
	}
	out := make([]*wasm.FunctionType, count)
	for i := range out {
		var form byte
		form, b, err = leb128.DecodeUint8(b)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", i, err)
		}
		if form != 0x60 {
			return nil, fmt.Errorf("%w: type %d has form %#x, want 0x60 (func)", wasm.ErrMalformed, i, form)
		}

		var numParams uint32
		numParams, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("type %d param count: %w", i, err)
		}
		params := make([]api.ValueType, numParams)
		for p := range params {
			var vb byte
			vb, b, err = leb128.DecodeUint8(b)
			if err != nil {
				return nil, fmt.Errorf("type %d param %d: %w", i, p, err)
			}
			if params[p], err = decodeValueType(vb); err != nil {
				return nil, err
			}
		}

		var numResults uint32
		numResults, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("type %d result count: %w", i, err)
		}
		results := make([]api.ValueType, numResults)
		for r := range results {
			var vb byte
			vb, b, err = leb128.DecodeUint8(b)
			if err != nil {
				return nil, fmt.Errorf("type %d result %d: %w", i, r, err)
			}
			if results[r], err = decodeValueType(vb); err != nil {
				return nil, err
			}
		}

		out[i] = &wasm.FunctionType{Params: params, Results: results}
	}
	return out, nil
}

func decodeImportSection(b []byte) ([]*wasm.Import, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("import section count: %w", err)
	}
	out := make([]*wasm.Import, count)
	for i := range out {
		var module, name string
		module, b, err = leb128.DecodeName(b)
		if err != nil {
			return nil, fmt.Errorf("import %d module name: %w", i, err)
		}
		name, b, err = leb128.DecodeName(b)
		if err != nil {
			return nil, fmt.Errorf("import %d field name: %w", i, err)
		}
		var kind byte
		kind, b, err = leb128.DecodeUint8(b)
		if err != nil {
			return nil, fmt.Errorf("import %d kind: %w", i, err)
		}
		if kind != importExportKindFunc {
			return nil, fmt.Errorf("%w: import %d has kind %#x, only func imports are supported", wasm.ErrUnsupported, i, kind)
		}
		var typeIdx uint32
		typeIdx, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("import %d type index: %w", i, err)
		}
		out[i] = &wasm.Import{Module: module, Name: name, TypeIndex: typeIdx}
	}
	return out, nil
}

func decodeFunctionSection(b []byte) ([]wasm.Index, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("function section count: %w", err)
	}
	out := make([]wasm.Index, count)
	for i := range out {
		out[i], b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("function %d type index: %w", i, err)
		}
	}
	return out, nil
}

func decodeLimits(b []byte) (*wasm.MemoryType, []byte, error) {
	flags, b, err := leb128.DecodeUint8(b)
	if err != nil {
		return nil, nil, fmt.Errorf("limits flags: %w", err)
	}
	min, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, nil, fmt.Errorf("limits min: %w", err)
	}
	mt := &wasm.MemoryType{Min: min}
	if flags == 1 {
		var max uint32
		max, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, nil, fmt.Errorf("limits max: %w", err)
		}
		mt.Max = &max
	}
	return mt, b, nil
}

func decodeMemorySection(b []byte) ([]*wasm.MemoryType, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("memory section count: %w", err)
	}
	if count != 1 {
		return nil, fmt.Errorf("%w: memory section declares %d memories, only exactly 1 is supported", wasm.ErrUnsupported, count)
	}
	mt, _, err := decodeLimits(b)
	if err != nil {
		return nil, err
	}
	return []*wasm.MemoryType{mt}, nil
}

func decodeExportSection(b []byte) (map[string]*wasm.Export, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("export section count: %w", err)
	}
	out := make(map[string]*wasm.Export, count)
	for i := uint32(0); i < count; i++ {
		var name string
		name, b, err = leb128.DecodeName(b)
		if err != nil {
			return nil, fmt.Errorf("export %d name: %w", i, err)
		}
		var kind byte
		kind, b, err = leb128.DecodeUint8(b)
		if err != nil {
			return nil, fmt.Errorf("export %d kind: %w", i, err)
		}
		if kind != importExportKindFunc {
			return nil, fmt.Errorf("%w: export %q has kind %#x, only func exports are supported", wasm.ErrUnsupported, name, kind)
		}
		var idx uint32
		idx, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("export %d index: %w", i, err)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate export name %q", wasm.ErrMalformed, name)
		}
		out[name] = &wasm.Export{Name: name, Index: idx}
	}
	return out, nil
}

func decodeCodeSection(b []byte) ([]*wasm.Code, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("code section count: %w", err)
	}
	out := make([]*wasm.Code, count)
	for i := range out {
		var bodySize uint32
		bodySize, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("code %d body size: %w", i, err)
		}
		if uint32(len(b)) < bodySize {
			return nil, fmt.Errorf("%w: code %d declares %d bytes, only %d remain", wasm.ErrMalformed, i, bodySize, len(b))
		}
		body := b[:bodySize]
		b = b[bodySize:]

		code, err := decodeFunctionBody(body)
		if err != nil {
			return nil, fmt.Errorf("code %d: %w", i, err)
		}
		out[i] = code
	}
	return out, nil
}

func decodeFunctionBody(b []byte) (*wasm.Code, error) {
	numGroups, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("local group count: %w", err)
	}
	locals := make([]wasm.Local, numGroups)
	for i := range locals {
		var count uint32
		count, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("local group %d count: %w", i, err)
		}
		var vb byte
		vb, b, err = leb128.DecodeUint8(b)
		if err != nil {
			return nil, fmt.Errorf("local group %d type: %w", i, err)
		}
		vt, err := decodeValueType(vb)
		if err != nil {
			return nil, err
		}
		locals[i] = wasm.Local{Count: count, Type: vt}
	}

	insts, err := decodeInstructions(b)
	if err != nil {
		return nil, err
	}
	if len(insts) == 0 || insts[len(insts)-1].Opcode != wasm.OpcodeEnd {
		return nil, fmt.Errorf("%w: function body does not end with an End instruction", wasm.ErrMalformed)
	}
	return &wasm.Code{Locals: locals, Body: insts}, nil
}

// decodeInstructions decodes every instruction in b, in order, until b is
// exhausted. The caller (decodeFunctionBody) has already sliced b to the
// declared body-size boundary.
func decodeInstructions(b []byte) ([]wasm.Instruction, error) {
	var out []wasm.Instruction
	for len(b) > 0 {
		var opByte byte
		var err error
		opByte, b, err = leb128.DecodeUint8(b)
		if err != nil {
			return nil, fmt.Errorf("reading opcode: %w", err)
		}
		op := wasm.Opcode(opByte)

		inst := wasm.Instruction{Opcode: op}
		switch op {
		case wasm.OpcodeIf:
			var bt byte
			bt, b, err = leb128.DecodeUint8(b)
			if err != nil {
				return nil, fmt.Errorf("if block type: %w", err)
			}
			if bt == 0x40 {
				inst.Block = wasm.BlockType{Kind: wasm.BlockTypeVoid}
			} else {
				vt, err := decodeValueType(bt)
				if err != nil {
					return nil, fmt.Errorf("if block type: %w", err)
				}
				inst.Block = wasm.BlockType{Kind: wasm.BlockTypeValue, Value: vt}
			}
		case wasm.OpcodeEnd, wasm.OpcodeReturn:
			// no immediates
		case wasm.OpcodeCall:
			inst.FuncIndex, b, err = leb128.DecodeUint32(b)
			if err != nil {
				return nil, fmt.Errorf("call target: %w", err)
			}
		case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet:
			inst.LocalIndex, b, err = leb128.DecodeUint32(b)
			if err != nil {
				return nil, fmt.Errorf("local index: %w", err)
			}
		case wasm.OpcodeI32Store:
			inst.MemArg.Align, b, err = leb128.DecodeUint32(b)
			if err != nil {
				return nil, fmt.Errorf("i32.store align: %w", err)
			}
			inst.MemArg.Offset, b, err = leb128.DecodeUint32(b)
			if err != nil {
				return nil, fmt.Errorf("i32.store offset: %w", err)
			}
		case wasm.OpcodeI32Const:
			inst.I32Const, b, err = leb128.DecodeInt32(b)
			if err != nil {
				return nil, fmt.Errorf("i32.const immediate: %w", err)
			}
		case wasm.OpcodeI32LtS, wasm.OpcodeI32Add, wasm.OpcodeI32Sub:
			// no immediates
		default:
			return nil, fmt.Errorf("%w: %#x", wasm.ErrUnknownOpcode, opByte)
		}
		out = append(out, inst)
	}
	return out, nil
}

func decodeDataSection(b []byte) ([]*wasm.DataSegment, error) {
	count, b, err := leb128.DecodeUint32(b)
	if err != nil {
		return nil, fmt.Errorf("data section count: %w", err)
	}
	out := make([]*wasm.DataSegment, count)
	for i := range out {
		var memIdx uint32
		memIdx, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("data %d memory index: %w", i, err)
		}

		offset, rest, err := decodeConstI32Expr(b)
		if err != nil {
			return nil, fmt.Errorf("data %d offset expression: %w", i, err)
		}
		b = rest

		var size uint32
		size, b, err = leb128.DecodeUint32(b)
		if err != nil {
			return nil, fmt.Errorf("data %d size: %w", i, err)
		}
		if uint32(len(b)) < size {
			return nil, fmt.Errorf("%w: data %d declares %d bytes, only %d remain", wasm.ErrMalformed, i, size, len(b))
		}
		init := make([]byte, size)
		copy(init, b[:size])
		b = b[size:]

		out[i] = &wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: init}
	}
	return out, nil
}

// decodeConstI32Expr accepts only the literal form [i32.const N, end]; any
// other constant expression is out of scope (§4.2, §9).
func decodeConstI32Expr(b []byte) (int32, []byte, error) {
	opByte, b, err := leb128.DecodeUint8(b)
	if err != nil {
		return 0, nil, fmt.Errorf("reading offset opcode: %w", err)
	}
	if wasm.Opcode(opByte) != wasm.OpcodeI32Const {
		return 0, nil, fmt.Errorf("%w: offset expression must start with i32.const, got %#x", wasm.ErrUnsupported, opByte)
	}
	n, b, err := leb128.DecodeInt32(b)
	if err != nil {
		return 0, nil, fmt.Errorf("offset constant: %w", err)
	}
	endByte, b, err := leb128.DecodeUint8(b)
	if err != nil {
		return 0, nil, fmt.Errorf("reading offset end: %w", err)
	}
	if wasm.Opcode(endByte) != wasm.OpcodeEnd {
		return 0, nil, fmt.Errorf("%w: offset expression must terminate with end", wasm.ErrUnsupported)
	}
	return n, b, nil
}
