package wasi_snapshot_preview1

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/internal/wasm"
)

func putUint32Le(b []byte, at, v uint32) {
	b[at], b[at+1], b[at+2], b[at+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

// fd_write of a single iovec: "hello" at offset 20, an iovec at offset 8
// pointing to it, result count written to offset 0.
func TestFdWrite_SingleIovec(t *testing.T) {
	mem := &wasm.MemoryInstance{Data: make([]byte, wasm.MemoryPageSize)}
	copy(mem.Data[20:], "hello")
	putUint32Le(mem.Data, 8, 20) // iovs[0].offset
	putUint32Le(mem.Data, 12, 5) // iovs[0].length

	var stdout bytes.Buffer
	h := NewHandler(&stdout, &bytes.Buffer{})

	result, err := h.Invoke(mem, "fd_write", []api.Value{
		api.I32(1),  // fd
		api.I32(8),  // iovs
		api.I32(1),  // iovs_len
		api.I32(0),  // rp
	})
	require.NoError(t, err)
	require.Equal(t, api.I32(0), *result)
	require.Equal(t, "hello", stdout.String())

	written, ok := readUint32Le(mem, 0)
	require.True(t, ok)
	require.Equal(t, uint32(5), written)
}

// Two iovecs concatenate in order, and their combined length lands at rp.
func TestFdWrite_MultipleIovecs(t *testing.T) {
	mem := &wasm.MemoryInstance{Data: make([]byte, wasm.MemoryPageSize)}
	copy(mem.Data[100:], "wasm")
	copy(mem.Data[200:], "!!")
	putUint32Le(mem.Data, 8, 100)
	putUint32Le(mem.Data, 12, 4)
	putUint32Le(mem.Data, 16, 200)
	putUint32Le(mem.Data, 20, 2)

	var stdout bytes.Buffer
	h := NewHandler(&stdout, &bytes.Buffer{})

	result, err := h.Invoke(mem, "fd_write", []api.Value{
		api.I32(1), api.I32(8), api.I32(2), api.I32(0),
	})
	require.NoError(t, err)
	require.Equal(t, api.I32(0), *result)
	require.Equal(t, "wasm!!", stdout.String())

	written, ok := readUint32Le(mem, 0)
	require.True(t, ok)
	require.Equal(t, uint32(6), written)
}

func TestFdWrite_WritesToStderr(t *testing.T) {
	mem := &wasm.MemoryInstance{Data: make([]byte, wasm.MemoryPageSize)}
	copy(mem.Data[20:], "oops")
	putUint32Le(mem.Data, 8, 20)
	putUint32Le(mem.Data, 12, 4)

	var stdout, stderr bytes.Buffer
	h := NewHandler(&stdout, &stderr)

	_, err := h.Invoke(mem, "fd_write", []api.Value{
		api.I32(2), api.I32(8), api.I32(1), api.I32(0),
	})
	require.NoError(t, err)
	require.Equal(t, "oops", stderr.String())
	require.Empty(t, stdout.String())
}

func TestFdWrite_BadFd(t *testing.T) {
	mem := &wasm.MemoryInstance{Data: make([]byte, wasm.MemoryPageSize)}
	h := NewHandler(&bytes.Buffer{}, &bytes.Buffer{})

	_, err := h.Invoke(mem, "fd_write", []api.Value{
		api.I32(99), api.I32(0), api.I32(0), api.I32(0),
	})
	require.ErrorIs(t, err, wasm.ErrBadMemoryAccess)
}

func TestFdWrite_IovecOutOfBounds(t *testing.T) {
	mem := &wasm.MemoryInstance{Data: make([]byte, wasm.MemoryPageSize)}
	putUint32Le(mem.Data, 8, uint32(wasm.MemoryPageSize-2)) // offset near the end
	putUint32Le(mem.Data, 12, 10)                           // length runs past it

	h := NewHandler(&bytes.Buffer{}, &bytes.Buffer{})
	_, err := h.Invoke(mem, "fd_write", []api.Value{
		api.I32(1), api.I32(8), api.I32(1), api.I32(0),
	})
	require.ErrorIs(t, err, wasm.ErrBadMemoryAccess)
}

func TestInvoke_UnimplementedFunction(t *testing.T) {
	mem := &wasm.MemoryInstance{Data: make([]byte, wasm.MemoryPageSize)}
	h := NewHandler(&bytes.Buffer{}, &bytes.Buffer{})

	_, err := h.Invoke(mem, "fd_read", nil)
	require.ErrorIs(t, err, wasm.ErrUnimplemented)
}
