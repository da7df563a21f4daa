// Package interpreter implements the stack-machine engine (§4.4): the
// operand stack, the call stack of frames, and the per-opcode execute loop.
// Calls never recurse through the host language — internal Call pushes a
// frame and returns control to the single central execute loop — so host
// stack depth stays bounded regardless of Wasm call depth (§9).
package interpreter

import (
	"fmt"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/internal/wasm"
)

// callStackCeiling bounds recursion depth. It is a var, not a const, so
// tests can lower it to exercise the overflow path cheaply, mirroring the
// teacher's callStackCeiling in internal/engine/interpreter/interpreter.go.
var callStackCeiling = 2048

// WASIModuleName is the import module name that, when matched against a
// present WASIHandler, short-circuits the generic host-import lookup
// (§4.4.3 Call row, §9 "WASI as a distinguished import").
const WASIModuleName = "wasi_snapshot_preview1"

// WASIHandler is invoked for External functions imported from
// WASIModuleName. imports/wasi_snapshot_preview1.Handler implements it.
type WASIHandler interface {
	Invoke(mem *wasm.MemoryInstance, field string, args []api.Value) (*api.Value, error)
}

// HostFunction is a callback registered for a non-WASI import. It receives
// the store so it may read or write linear memory.
type HostFunction func(store *wasm.Store, args []api.Value) (*api.Value, error)

// ImportRegistry maps (module, field) to a host callback, populated by
// AddImport prior to any call (§4.5 host import surface).
type ImportRegistry struct {
	modules map[string]map[string]HostFunction
}

// NewImportRegistry returns an empty registry.
func NewImportRegistry() *ImportRegistry {
	return &ImportRegistry{modules: map[string]map[string]HostFunction{}}
}

// Add registers fn under (module, field), overwriting any prior entry.
func (r *ImportRegistry) Add(module, field string, fn HostFunction) {
	if r.modules[module] == nil {
		r.modules[module] = map[string]HostFunction{}
	}
	r.modules[module][field] = fn
}

func (r *ImportRegistry) lookup(module, field string) (HostFunction, bool) {
	fns, ok := r.modules[module]
	if !ok {
		return nil, false
	}
	fn, ok := fns[field]
	return fn, ok
}

// label is pushed on entering an If and popped when the matching End (never
// reached in well-formed modules, §9) or an intervening Return resolves it.
type label struct {
	resumePC int
	sp       int
	arity    int
}

// frame is one function activation: §3's Frame entity.
type frame struct {
	pc     int
	sp     int
	insts  []wasm.Instruction
	arity  int
	locals []api.Value
	labels []label
}

// Runtime owns the operand stack, call stack, import registry, optional
// WASI handler, and the store — the complete state of one interpreter
// (§3 ownership, §5 concurrency: none of this is safe to share across
// goroutines, and there is no internal parallelism to synchronize).
type Runtime struct {
	Store   *wasm.Store
	Imports *ImportRegistry
	WASI    WASIHandler

	operands []api.Value
	frames   []*frame
}

// New constructs a Runtime over an already-instantiated Store.
func New(store *wasm.Store) *Runtime {
	return &Runtime{Store: store, Imports: NewImportRegistry()}
}

func zeroValue(t api.ValueType) api.Value {
	if t == api.ValueTypeI64 {
		return api.I64(0)
	}
	return api.I32(0)
}

func (r *Runtime) pushFrame(f *frame) {
	if len(r.frames) >= callStackCeiling {
		panic(fmt.Sprintf("call stack exceeds ceiling of %d", callStackCeiling))
	}
	r.frames = append(r.frames, f)
}

func (r *Runtime) popFrame() *frame {
	f := r.frames[len(r.frames)-1]
	r.frames = r.frames[:len(r.frames)-1]
	return f
}

func (r *Runtime) push(v api.Value) {
	r.operands = append(r.operands, v)
}

func (r *Runtime) pop() (api.Value, error) {
	if len(r.operands) == 0 {
		return api.Value{}, wasm.ErrStackUnderflow
	}
	v := r.operands[len(r.operands)-1]
	r.operands = r.operands[:len(r.operands)-1]
	return v, nil
}

func (r *Runtime) popI32() (int32, error) {
	v, err := r.pop()
	if err != nil {
		return 0, err
	}
	if v.Type != api.ValueTypeI32 {
		return 0, fmt.Errorf("%w: expected i32, got %s", wasm.ErrTypeMismatch, api.ValueTypeName(v.Type))
	}
	return v.AsI32(), nil
}

// rewind implements the stack rewind rule shared by End, Return, and label
// resolution: drop everything down to sp, preserving the top `arity`
// values if arity > 0.
func (r *Runtime) rewind(sp, arity int) {
	if arity > 0 {
		saved := r.operands[len(r.operands)-arity:]
		top := append([]api.Value{}, saved...)
		r.operands = append(r.operands[:sp], top...)
	} else {
		r.operands = r.operands[:sp]
	}
}

// clear resets both stacks; called before returning any error so the next
// Call starts from a clean Runtime (§7 propagation policy).
func (r *Runtime) clear() {
	r.operands = r.operands[:0]
	r.frames = r.frames[:0]
}

// Call is the façade entry point (§4.4.1): resolve the export, push args,
// dispatch, and return the single result if the signature has one.
func (r *Runtime) Call(exportName string, args []api.Value) (*api.Value, error) {
	export, ok := r.Store.Exports[exportName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", wasm.ErrNotExported, exportName)
	}
	if int(export.Index) >= len(r.Store.Functions) {
		return nil, fmt.Errorf("%w: index %d", wasm.ErrMissingFunction, export.Index)
	}
	fn := r.Store.Functions[export.Index]

	r.operands = append(r.operands, args...)

	var err error
	switch fn.Kind {
	case wasm.FunctionInstanceInternal:
		if err = r.pushInternalFrame(fn); err == nil {
			err = r.execute()
		}
	default:
		err = r.callExternal(fn)
	}
	if err != nil {
		r.clear()
		return nil, err
	}

	if len(fn.Signature.Results) > 0 {
		v, err := r.pop()
		if err != nil {
			r.clear()
			return nil, err
		}
		return &v, nil
	}
	return nil, nil
}

// pushInternalFrame implements §4.4.2 steps 1-3: split params into locals,
// zero-init declared locals, and push the new frame.
func (r *Runtime) pushInternalFrame(fn *wasm.FunctionInstance) error {
	numParams := len(fn.Signature.Params)
	if len(r.operands) < numParams {
		return wasm.ErrStackUnderflow
	}
	base := len(r.operands) - numParams
	locals := make([]api.Value, numParams+len(fn.LocalTypes))
	copy(locals, r.operands[base:])
	r.operands = r.operands[:base]
	for i, t := range fn.LocalTypes {
		locals[numParams+i] = zeroValue(t)
	}

	r.pushFrame(&frame{
		pc:     -1,
		sp:     len(r.operands),
		insts:  fn.Body,
		arity:  len(fn.Signature.Results),
		locals: locals,
	})
	return nil
}

// callExternal implements §4.4.4: pop the declared parameter count into an
// argument vector, dispatch to WASI or the host registry, and push any
// result.
func (r *Runtime) callExternal(fn *wasm.FunctionInstance) error {
	numParams := len(fn.Signature.Params)
	if len(r.operands) < numParams {
		return wasm.ErrStackUnderflow
	}
	base := len(r.operands) - numParams
	args := append([]api.Value{}, r.operands[base:]...)
	r.operands = r.operands[:base]

	var result *api.Value
	var err error
	if fn.ImportModule == WASIModuleName && r.WASI != nil {
		result, err = r.WASI.Invoke(r.Store.Memory, fn.ImportField, args)
	} else {
		hostFn, ok := r.Imports.lookup(fn.ImportModule, fn.ImportField)
		if !ok {
			return fmt.Errorf("%w: %s.%s", wasm.ErrMissingHostImport, fn.ImportModule, fn.ImportField)
		}
		result, err = hostFn(r.Store, args)
	}
	if err != nil {
		return err
	}
	if result != nil {
		r.push(*result)
	}
	return nil
}

// execute is the central loop (§4.4.3): it runs until the call stack is
// empty, dispatching exactly one instruction per iteration from whichever
// frame is currently on top.
func (r *Runtime) execute() error {
	for len(r.frames) > 0 {
		f := r.frames[len(r.frames)-1]
		f.pc++
		if f.pc >= len(f.insts) {
			// Well-formed bodies always terminate via an explicit End;
			// this guards against malformed ones rather than relying on
			// an out-of-bounds slice access.
			r.popFrame()
			r.rewind(f.sp, f.arity)
			continue
		}
		inst := f.insts[f.pc]

		switch inst.Opcode {
		case wasm.OpcodeLocalGet:
			if int(inst.LocalIndex) >= len(f.locals) {
				return wasm.ErrBadLocalIndex
			}
			r.push(f.locals[inst.LocalIndex])

		case wasm.OpcodeLocalSet:
			v, err := r.pop()
			if err != nil {
				return err
			}
			if int(inst.LocalIndex) >= len(f.locals) {
				return wasm.ErrBadLocalIndex
			}
			f.locals[inst.LocalIndex] = v

		case wasm.OpcodeI32Const:
			r.push(api.I32(inst.I32Const))

		case wasm.OpcodeI32Add:
			right, err := r.popI32()
			if err != nil {
				return err
			}
			left, err := r.popI32()
			if err != nil {
				return err
			}
			r.push(api.I32(left + right))

		case wasm.OpcodeI32Sub:
			right, err := r.popI32()
			if err != nil {
				return err
			}
			left, err := r.popI32()
			if err != nil {
				return err
			}
			r.push(api.I32(left - right))

		case wasm.OpcodeI32LtS:
			right, err := r.popI32()
			if err != nil {
				return err
			}
			left, err := r.popI32()
			if err != nil {
				return err
			}
			if left < right {
				r.push(api.I32(1))
			} else {
				r.push(api.I32(0))
			}

		case wasm.OpcodeI32Store:
			if r.Store.Memory == nil {
				return wasm.ErrBadMemoryAccess
			}
			value, err := r.popI32()
			if err != nil {
				return err
			}
			addr, err := r.popI32()
			if err != nil {
				return err
			}
			at := uint64(uint32(addr)) + uint64(inst.MemArg.Offset)
			if at+4 > uint64(len(r.Store.Memory.Data)) {
				return wasm.ErrBadMemoryAccess
			}
			putUint32Le(r.Store.Memory.Data[at:at+4], uint32(value))

		case wasm.OpcodeCall:
			if int(inst.FuncIndex) >= len(r.Store.Functions) {
				return fmt.Errorf("%w: index %d", wasm.ErrMissingFunction, inst.FuncIndex)
			}
			target := r.Store.Functions[inst.FuncIndex]
			var err error
			if target.Kind == wasm.FunctionInstanceInternal {
				err = r.pushInternalFrame(target)
			} else {
				err = r.callExternal(target)
			}
			if err != nil {
				return err
			}

		case wasm.OpcodeIf:
			cond, err := r.popI32()
			if err != nil {
				return err
			}
			resumePC := f.pc
			if cond == 0 {
				end, ferr := matchingEnd(f.insts, f.pc)
				if ferr != nil {
					return ferr
				}
				f.pc = end
			}
			f.labels = append(f.labels, label{resumePC: resumePC, sp: len(r.operands), arity: inst.Block.ResultCount()})

		case wasm.OpcodeReturn:
			if len(f.labels) > 0 {
				l := f.labels[len(f.labels)-1]
				f.labels = f.labels[:len(f.labels)-1]
				f.pc = l.resumePC
				r.rewind(l.sp, l.arity)
			} else {
				r.popFrame()
				r.rewind(f.sp, f.arity)
			}

		case wasm.OpcodeEnd:
			// Unconditionally ends the current function activation. See
			// the label type's doc comment for why an If's own End is
			// never reached in this subset.
			r.popFrame()
			r.rewind(f.sp, f.arity)

		default:
			return fmt.Errorf("%w: opcode %#x", wasm.ErrUnimplemented, inst.Opcode)
		}
	}
	return nil
}

// matchingEnd scans forward from pc (exclusive) for the End that closes the
// If at pc, counting nested Ifs (§4.4.3 If row).
func matchingEnd(insts []wasm.Instruction, pc int) (int, error) {
	depth := 0
	for i := pc + 1; i < len(insts); i++ {
		switch insts[i].Opcode {
		case wasm.OpcodeIf:
			depth++
		case wasm.OpcodeEnd:
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, fmt.Errorf("%w: if at instruction %d has no matching end", wasm.ErrMalformed, pc)
}

func putUint32Le(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
