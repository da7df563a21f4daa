package nanowasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/internal/wasm"
)

func TestCompilationCache_PutThenGet(t *testing.T) {
	cache, err := NewCompilationCache(tempCachePath(t))
	require.NoError(t, err)
	defer cache.Close()

	b := addModuleBytes()
	_, ok := cache.get(b)
	require.False(t, ok)

	decoded := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 0},
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 1},
			{Opcode: wasm.OpcodeI32Add},
			{Opcode: wasm.OpcodeEnd},
		}}},
		ExportSection: map[string]*wasm.Export{"add": {Name: "add", Index: 0}},
	}
	cache.put(b, decoded)

	got, ok := cache.get(b)
	require.True(t, ok)
	require.Equal(t, decoded, got)
}

func TestCompilationCache_MissOnDifferentBytes(t *testing.T) {
	cache, err := NewCompilationCache(tempCachePath(t))
	require.NoError(t, err)
	defer cache.Close()

	cache.put(addModuleBytes(), &wasm.Module{ExportSection: map[string]*wasm.Export{}})

	_, ok := cache.get([]byte("not the same bytes"))
	require.False(t, ok)
}
