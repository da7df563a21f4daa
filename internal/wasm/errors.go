package wasm

import (
	"errors"
	"fmt"

	"github.com/nanowasm/nanowasm/internal/leb128"
)

// Decode-time sentinels (§7 DecodeError). Every decoder failure wraps one
// of these with fmt.Errorf("...: %w", ...) so callers can errors.Is against
// the class while still seeing a human-readable location. ErrMalformed is
// the same value as leb128.ErrMalformed, so primitive reader failures
// match it too.
var (
	ErrBadPreamble    = errors.New("bad preamble")
	ErrUnknownSection = errors.New("unknown section code")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrMalformed      = leb128.ErrMalformed
	ErrUnsupported    = errors.New("unsupported module feature")
)

// Instantiate-time sentinels (§7 InstantiateError).
var (
	ErrMissingTypeIndex          = errors.New("missing type index")
	ErrDataSegmentOutOfBounds    = errors.New("data segment out of bounds")
	ErrMissingMemoryForSegment   = errors.New("no memory declared for data segment")
)

// Resolution-time sentinels (§7 ResolutionError), raised by Call before any
// instruction executes.
var (
	ErrNotExported       = errors.New("not exported")
	ErrMissingFunction   = errors.New("missing function")
	ErrMissingHostImport = errors.New("missing host function")
)

// Execution-time sentinels (§7 ExecutionError), raised from inside execute.
var (
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrBadLocalIndex  = errors.New("bad local index")
	ErrBadMemoryAccess = errors.New("out of bounds memory access")
	ErrUnimplemented  = errors.New("unimplemented")
)

func newDecodeError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrMalformed}, args...)...)
}
