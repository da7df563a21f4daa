package nanowasm

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/imports/wasi_snapshot_preview1"
	"github.com/nanowasm/nanowasm/internal/wasm"
	"github.com/nanowasm/nanowasm/internal/wasm/binary"
)

func addModuleBytes() []byte {
	i32 := api.ValueTypeI32
	return binary.EncodeModule(&wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 0},
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 1},
			{Opcode: wasm.OpcodeI32Add},
			{Opcode: wasm.OpcodeEnd},
		}}},
		ExportSection: map[string]*wasm.Export{"add": {Name: "add", Index: 0}},
	})
}

func TestInstantiate_CallExportedFunction(t *testing.T) {
	rt, err := Instantiate(addModuleBytes())
	require.NoError(t, err)

	result, err := rt.Call(context.Background(), "add", []api.Value{api.I32(2), api.I32(3)})
	require.NoError(t, err)
	require.Equal(t, api.I32(5), *result)
}

func TestInstantiate_AddImport(t *testing.T) {
	i32 := api.ValueTypeI32
	m := binary.EncodeModule(&wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}},
		ImportSection:   []*wasm.Import{{Module: "env", Name: "double", TypeIndex: 0}},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 0},
			{Opcode: wasm.OpcodeCall, FuncIndex: 0},
			{Opcode: wasm.OpcodeEnd},
		}}},
		ExportSection: map[string]*wasm.Export{"call_double": {Name: "call_double", Index: 1}},
	})

	rt, err := Instantiate(m)
	require.NoError(t, err)
	rt.AddImport("env", "double", func(_ *wasm.Store, args []api.Value) (*api.Value, error) {
		r := api.I32(args[0].AsI32() * 2)
		return &r, nil
	})

	result, err := rt.Call(context.Background(), "call_double", []api.Value{api.I32(21)})
	require.NoError(t, err)
	require.Equal(t, api.I32(42), *result)
}

func TestInstantiateWithWASI_FdWrite(t *testing.T) {
	i32 := api.ValueTypeI32
	m := binary.EncodeModule(&wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}}},
		ImportSection:   []*wasm.Import{{Module: "wasi_snapshot_preview1", Name: "fd_write", TypeIndex: 0}},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 0},
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 1},
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 2},
			{Opcode: wasm.OpcodeLocalGet, LocalIndex: 3},
			{Opcode: wasm.OpcodeCall, FuncIndex: 0},
			{Opcode: wasm.OpcodeEnd},
		}}},
		MemorySection: []*wasm.MemoryType{{Min: 1}},
		DataSection:   []*wasm.DataSegment{{Offset: 8, Init: []byte("hi\n")}},
		ExportSection: map[string]*wasm.Export{"write_hi": {Name: "write_hi", Index: 1}},
	})

	var stdout bytes.Buffer
	handler := wasi_snapshot_preview1.NewHandler(&stdout, &bytes.Buffer{})
	rt, err := InstantiateWithWASI(m, handler)
	require.NoError(t, err)

	iovecs := []byte{8, 0, 0, 0, 3, 0, 0, 0}
	copy(rt.Store.Memory.Data[100:], iovecs)

	result, err := rt.Call(context.Background(), "write_hi", []api.Value{api.I32(1), api.I32(100), api.I32(1), api.I32(0)})
	require.NoError(t, err)
	require.Equal(t, api.I32(0), *result)
	require.Equal(t, "hi\n", stdout.String())
}

func TestRuntimeConfig_WithCompilationCache(t *testing.T) {
	cache, err := NewCompilationCache(tempCachePath(t))
	require.NoError(t, err)
	defer cache.Close()

	cfg := NewRuntimeConfig().WithCompilationCache(cache)
	b := addModuleBytes()

	rt, err := cfg.Instantiate(context.Background(), b)
	require.NoError(t, err)
	result, err := rt.Call(context.Background(), "add", []api.Value{api.I32(1), api.I32(1)})
	require.NoError(t, err)
	require.Equal(t, api.I32(2), *result)

	// Second instantiation of identical bytes should hit the cache and still
	// produce a functioning runtime.
	rt2, err := cfg.Instantiate(context.Background(), b)
	require.NoError(t, err)
	result2, err := rt2.Call(context.Background(), "add", []api.Value{api.I32(4), api.I32(5)})
	require.NoError(t, err)
	require.Equal(t, api.I32(9), *result2)
}

func tempCachePath(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/cache.db"
}
