// Package wasi_snapshot_preview1 implements the slice of WASI this runtime
// supports: fd_write against a small file table, enough to run a "hello
// world" style module that writes to stdout. Every other WASI function name
// fails with wasm.ErrUnimplemented rather than being silently stubbed out,
// mirroring the teacher's practice of returning a distinct errno per
// unsupported call rather than pretending success.
package wasi_snapshot_preview1

import (
	"fmt"
	"io"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/internal/wasm"
)

const functionFdWrite = "fd_write"

// Handler implements interpreter.WASIHandler against a fixed file table.
// NewHandler fills fd 1 and fd 2 (stdout/stderr); fd 0 has no entry, so an
// fd_write to it fails as a bad file descriptor. Callers may set any entry,
// including fd 0 and fds beyond 2, before instantiating a module that
// imports from it.
type Handler struct {
	Files map[uint32]io.Writer
}

// NewHandler returns a Handler with fd 1 and fd 2 wired to stdout/stderr.
// Fd 0 is left without a writer since this subset never reads stdin.
func NewHandler(stdout, stderr io.Writer) *Handler {
	return &Handler{Files: map[uint32]io.Writer{1: stdout, 2: stderr}}
}

// Invoke dispatches a single WASI import call by field name (§4.5).
func (h *Handler) Invoke(mem *wasm.MemoryInstance, field string, args []api.Value) (*api.Value, error) {
	switch field {
	case functionFdWrite:
		return h.fdWrite(mem, args)
	default:
		return nil, fmt.Errorf("%w: wasi_snapshot_preview1.%s", wasm.ErrUnimplemented, field)
	}
}

// fdWrite implements fd_write(fd, iovs, iovs_len, rp) -> errno (§4.5):
// read iovs_len (offset, length) pairs from memory starting at iovs, write
// each referenced span to the file at fd in order, then write the total
// byte count to rp as a little-endian u32. Returns I32(0) on success; a bad
// fd or an out-of-bounds pointer is reported as a Go error rather than an
// errno, since this subset has no way to surface errno to the guest beyond
// the single success value the spec's worked examples assume.
func (h *Handler) fdWrite(mem *wasm.MemoryInstance, args []api.Value) (*api.Value, error) {
	fd := uint32(args[0].AsI32())
	iovs := uint32(args[1].AsI32())
	iovsLen := uint32(args[2].AsI32())
	rp := uint32(args[3].AsI32())

	w, ok := h.Files[fd]
	if !ok || w == nil {
		return nil, fmt.Errorf("%w: fd_write: bad file descriptor %d", wasm.ErrBadMemoryAccess, fd)
	}

	var written uint32
	for i := uint32(0); i < iovsLen; i++ {
		entry := iovs + i*8
		offset, ok := readUint32Le(mem, entry)
		if !ok {
			return nil, fmt.Errorf("%w: fd_write: iovec %d pointer", wasm.ErrBadMemoryAccess, i)
		}
		length, ok := readUint32Le(mem, entry+4)
		if !ok {
			return nil, fmt.Errorf("%w: fd_write: iovec %d length", wasm.ErrBadMemoryAccess, i)
		}
		span, ok := readBytes(mem, offset, length)
		if !ok {
			return nil, fmt.Errorf("%w: fd_write: iovec %d data [%d:%d)", wasm.ErrBadMemoryAccess, i, offset, offset+length)
		}
		n, err := w.Write(span)
		if err != nil {
			return nil, fmt.Errorf("fd_write: %w", err)
		}
		written += uint32(n)
	}

	if !writeUint32Le(mem, rp, written) {
		return nil, fmt.Errorf("%w: fd_write: result pointer %d", wasm.ErrBadMemoryAccess, rp)
	}

	result := api.I32(0)
	return &result, nil
}

func readUint32Le(mem *wasm.MemoryInstance, at uint32) (uint32, bool) {
	b, ok := readBytes(mem, at, 4)
	if !ok {
		return 0, false
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

func writeUint32Le(mem *wasm.MemoryInstance, at, v uint32) bool {
	b, ok := readBytes(mem, at, 4)
	if !ok {
		return false
	}
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return true
}

func readBytes(mem *wasm.MemoryInstance, offset, length uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(length)
	if mem == nil || end > uint64(len(mem.Data)) {
		return nil, false
	}
	return mem.Data[offset:end], true
}
