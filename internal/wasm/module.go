// Package wasm holds the decoded module representation (§3 of the design),
// the store that turns a Module into an instantiated runtime image (§4.3),
// and the error taxonomy both stages raise (§7).
package wasm

import "github.com/nanowasm/nanowasm/api"

// Index is a 0-based index into one of a Module's index spaces (types,
// functions, memories).
type Index = uint32

// FunctionType is a function signature: an ordered parameter vector and an
// ordered result vector. In this subset len(Results) <= 1.
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// MemoryType is the limits of a single linear memory, in units of 64KiB
// pages.
type MemoryType struct {
	Min uint32
	Max *uint32 // nil if no max was declared
}

const MemoryPageSize = 65536

// Import describes a single imported function. Only function imports are
// supported; any other kind fails to decode.
type Import struct {
	Module    string
	Name      string
	TypeIndex Index
}

// Export describes a single exported function, keyed by name in
// Module.ExportSection. Only function exports are supported.
type Export struct {
	Name  string
	Index Index // into the flat function index space
}

// Local is a run-length encoded group of local variable declarations, as
// they appear in a function body: Count locals of type Type.
type Local struct {
	Count uint32
	Type  api.ValueType
}

// Code is one function body: its declared locals (run-length encoded, not
// yet expanded) and its decoded instruction stream. The final instruction
// is always OpcodeEnd.
type Code struct {
	Locals []Local
	Body   []Instruction
}

// ExpandedLocalTypes flattens the run-length Locals encoding into one
// api.ValueType per declared local, in declaration order.
func (c *Code) ExpandedLocalTypes() []api.ValueType {
	var out []api.ValueType
	for _, l := range c.Locals {
		for i := uint32(0); i < l.Count; i++ {
			out = append(out, l.Type)
		}
	}
	return out
}

// DataSegment initializes a range of linear memory at instantiation time.
// The offset expression accepted by this subset is exactly [i32.const N,
// end] (§4.2); Offset holds the decoded constant N.
type DataSegment struct {
	MemoryIndex Index
	Offset      int32
	Init        []byte
}

// Module is the fully decoded, immutable representation of a Wasm binary.
// Zero values of any section mean "this section was absent from the
// binary" (e.g. a module with no MemorySection has no linear memory).
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*Import
	FunctionSection []Index // index into TypeSection, one per CodeSection entry
	MemorySection   []*MemoryType
	ExportSection   map[string]*Export
	CodeSection     []*Code
	DataSection     []*DataSegment
}

// TypeOfFunction resolves the FunctionType for a function index in the flat
// function index space (imports first, then locals).
func (m *Module) TypeOfFunction(funcIdx Index) (*FunctionType, error) {
	importedFuncs := uint32(len(m.ImportSection))
	if funcIdx < importedFuncs {
		imp := m.ImportSection[funcIdx]
		if int(imp.TypeIndex) >= len(m.TypeSection) {
			return nil, newDecodeError("import %d references out-of-range type index %d", funcIdx, imp.TypeIndex)
		}
		return m.TypeSection[imp.TypeIndex], nil
	}
	localIdx := funcIdx - importedFuncs
	if int(localIdx) >= len(m.FunctionSection) {
		return nil, newDecodeError("function index %d is out of range", funcIdx)
	}
	typeIdx := m.FunctionSection[localIdx]
	if int(typeIdx) >= len(m.TypeSection) {
		return nil, newDecodeError("function %d references out-of-range type index %d", funcIdx, typeIdx)
	}
	return m.TypeSection[typeIdx], nil
}
