package binary

import (
	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/internal/leb128"
	"github.com/nanowasm/nanowasm/internal/wasm"
)

// EncodeModule serializes m back to its canonical binary form. It exists
// primarily so tests can build module fixtures by constructing a
// *wasm.Module in Go and encoding it, rather than hand-writing byte
// literals or depending on a WAT toolchain (out of scope, §1).
func EncodeModule(m *wasm.Module) []byte {
	out := append([]byte{}, magic...)
	out = append(out, byte(version), byte(version>>8), byte(version>>16), byte(version>>24))

	if len(m.TypeSection) > 0 {
		out = append(out, encodeSection(sectionType, encodeTypeSection(m.TypeSection))...)
	}
	if len(m.ImportSection) > 0 {
		out = append(out, encodeSection(sectionImport, encodeImportSection(m.ImportSection))...)
	}
	if len(m.FunctionSection) > 0 {
		out = append(out, encodeSection(sectionFunction, encodeFunctionSection(m.FunctionSection))...)
	}
	if len(m.MemorySection) > 0 {
		out = append(out, encodeSection(sectionMemory, encodeMemorySection(m.MemorySection))...)
	}
	if len(m.ExportSection) > 0 {
		out = append(out, encodeSection(sectionExport, encodeExportSection(m.ExportSection))...)
	}
	if len(m.CodeSection) > 0 {
		out = append(out, encodeSection(sectionCode, encodeCodeSection(m.CodeSection))...)
	}
	if len(m.DataSection) > 0 {
		out = append(out, encodeSection(sectionData, encodeDataSection(m.DataSection))...)
	}
	return out
}

func encodeSection(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	return append(out, body...)
}

func encodeValueTypes(vs []api.ValueType) []byte {
	out := leb128.EncodeUint32(uint32(len(vs)))
	for _, v := range vs {
		out = append(out, byte(v))
	}
	return out
}

func encodeTypeSection(types []*wasm.FunctionType) []byte {
	out := leb128.EncodeUint32(uint32(len(types)))
	for _, t := range types {
		out = append(out, 0x60)
		out = append(out, encodeValueTypes(t.Params)...)
		out = append(out, encodeValueTypes(t.Results)...)
	}
	return out
}

func encodeName(s string) []byte {
	out := leb128.EncodeUint32(uint32(len(s)))
	return append(out, []byte(s)...)
}

func encodeImportSection(imports []*wasm.Import) []byte {
	out := leb128.EncodeUint32(uint32(len(imports)))
	for _, imp := range imports {
		out = append(out, encodeName(imp.Module)...)
		out = append(out, encodeName(imp.Name)...)
		out = append(out, importExportKindFunc)
		out = append(out, leb128.EncodeUint32(imp.TypeIndex)...)
	}
	return out
}

func encodeFunctionSection(indices []wasm.Index) []byte {
	out := leb128.EncodeUint32(uint32(len(indices)))
	for _, idx := range indices {
		out = append(out, leb128.EncodeUint32(idx)...)
	}
	return out
}

func encodeMemorySection(memories []*wasm.MemoryType) []byte {
	out := leb128.EncodeUint32(uint32(len(memories)))
	for _, mt := range memories {
		if mt.Max != nil {
			out = append(out, 1)
			out = append(out, leb128.EncodeUint32(mt.Min)...)
			out = append(out, leb128.EncodeUint32(*mt.Max)...)
		} else {
			out = append(out, 0)
			out = append(out, leb128.EncodeUint32(mt.Min)...)
		}
	}
	return out
}

// encodeExportSection relies on the caller's map having deterministic
// iteration for test purposes; EncodeModule callers in tests use a single
// export per fixture, which sidesteps Go's randomized map order.
func encodeExportSection(exports map[string]*wasm.Export) []byte {
	out := leb128.EncodeUint32(uint32(len(exports)))
	for name, e := range exports {
		out = append(out, encodeName(name)...)
		out = append(out, importExportKindFunc)
		out = append(out, leb128.EncodeUint32(e.Index)...)
	}
	return out
}

func encodeCodeSection(codes []*wasm.Code) []byte {
	out := leb128.EncodeUint32(uint32(len(codes)))
	for _, c := range codes {
		body := encodeFunctionBody(c)
		out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
		out = append(out, body...)
	}
	return out
}

func encodeFunctionBody(c *wasm.Code) []byte {
	out := leb128.EncodeUint32(uint32(len(c.Locals)))
	for _, l := range c.Locals {
		out = append(out, leb128.EncodeUint32(l.Count)...)
		out = append(out, byte(l.Type))
	}
	for _, inst := range c.Body {
		out = append(out, encodeInstruction(inst)...)
	}
	return out
}

func encodeInstruction(inst wasm.Instruction) []byte {
	out := []byte{byte(inst.Opcode)}
	switch inst.Opcode {
	case wasm.OpcodeIf:
		if inst.Block.Kind == wasm.BlockTypeVoid {
			out = append(out, 0x40)
		} else {
			out = append(out, byte(inst.Block.Value))
		}
	case wasm.OpcodeCall:
		out = append(out, leb128.EncodeUint32(inst.FuncIndex)...)
	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet:
		out = append(out, leb128.EncodeUint32(inst.LocalIndex)...)
	case wasm.OpcodeI32Store:
		out = append(out, leb128.EncodeUint32(inst.MemArg.Align)...)
		out = append(out, leb128.EncodeUint32(inst.MemArg.Offset)...)
	case wasm.OpcodeI32Const:
		out = append(out, leb128.EncodeInt32(inst.I32Const)...)
	}
	return out
}

func encodeDataSection(segments []*wasm.DataSegment) []byte {
	out := leb128.EncodeUint32(uint32(len(segments)))
	for _, d := range segments {
		out = append(out, leb128.EncodeUint32(d.MemoryIndex)...)
		out = append(out, byte(wasm.OpcodeI32Const))
		out = append(out, leb128.EncodeInt32(d.Offset)...)
		out = append(out, byte(wasm.OpcodeEnd))
		out = append(out, leb128.EncodeUint32(uint32(len(d.Init)))...)
		out = append(out, d.Init...)
	}
	return out
}
