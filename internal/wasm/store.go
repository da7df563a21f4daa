package wasm

import (
	"fmt"

	"github.com/nanowasm/nanowasm/api"
)

// FunctionInstanceKind distinguishes a function defined inside the module
// (Internal) from one resolved from an import (External). Exactly one of
// the two associated payloads on FunctionInstance is meaningful for a given
// Kind.
type FunctionInstanceKind byte

const (
	FunctionInstanceInternal FunctionInstanceKind = iota
	FunctionInstanceExternal
)

// FunctionInstance is one entry in the store's flat function index space:
// imports occupy the low indices, then local (Code-section) functions
// follow, in declaration order (§4.3 step 1-2).
type FunctionInstance struct {
	Kind      FunctionInstanceKind
	Signature *FunctionType

	// Internal-only.
	LocalTypes []api.ValueType // expanded declared local types, one entry per local
	Body       []Instruction

	// External-only.
	ImportModule string
	ImportField  string
}

// MemoryInstance is linear memory: a fixed-size byte buffer, never grown
// (no memory.grow in this subset).
type MemoryInstance struct {
	Data []byte
	Max  *uint32
}

// Store is the instantiated runtime image built from a decoded Module: the
// flat function table, the (optional) single memory, and the export index.
// Once built its function table and export index do not change; linear
// memory is written by i32.store and by host functions.
type Store struct {
	Functions []*FunctionInstance
	Memory    *MemoryInstance
	Exports   map[string]*Export
}

// Instantiate builds a Store from a decoded Module, resolving type
// indices, allocating memory, and applying data segments (§4.3).
func Instantiate(m *Module) (*Store, error) {
	s := &Store{Exports: m.ExportSection}

	for i, imp := range m.ImportSection {
		if int(imp.TypeIndex) >= len(m.TypeSection) {
			return nil, fmt.Errorf("%w: import %d (%s.%s) references type %d", ErrMissingTypeIndex, i, imp.Module, imp.Name, imp.TypeIndex)
		}
		s.Functions = append(s.Functions, &FunctionInstance{
			Kind:         FunctionInstanceExternal,
			Signature:    m.TypeSection[imp.TypeIndex],
			ImportModule: imp.Module,
			ImportField:  imp.Name,
		})
	}

	for i, code := range m.CodeSection {
		if i >= len(m.FunctionSection) {
			return nil, fmt.Errorf("%w: code %d has no matching function-section entry", ErrMissingTypeIndex, i)
		}
		typeIdx := m.FunctionSection[i]
		if int(typeIdx) >= len(m.TypeSection) {
			return nil, fmt.Errorf("%w: function %d references type %d", ErrMissingTypeIndex, i, typeIdx)
		}
		s.Functions = append(s.Functions, &FunctionInstance{
			Kind:       FunctionInstanceInternal,
			Signature:  m.TypeSection[typeIdx],
			LocalTypes: code.ExpandedLocalTypes(),
			Body:       code.Body,
		})
	}

	if len(m.MemorySection) > 0 {
		mt := m.MemorySection[0]
		s.Memory = &MemoryInstance{
			Data: make([]byte, uint64(mt.Min)*MemoryPageSize),
			Max:  mt.Max,
		}
	}

	for i, d := range m.DataSection {
		if s.Memory == nil {
			return nil, fmt.Errorf("%w: data segment %d", ErrMissingMemoryForSegment, i)
		}
		start := uint64(uint32(d.Offset))
		end := start + uint64(len(d.Init))
		if end > uint64(len(s.Memory.Data)) {
			return nil, fmt.Errorf("%w: data segment %d writes [%d:%d), memory is %d bytes",
				ErrDataSegmentOutOfBounds, i, start, end, len(s.Memory.Data))
		}
		copy(s.Memory.Data[start:end], d.Init)
	}

	return s, nil
}
