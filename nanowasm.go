// Package nanowasm is the public façade over the decoder, store, and
// interpreter: decode a module's bytes, instantiate it, optionally wire a
// WASI handler or host imports, and call exported functions (§4.6).
package nanowasm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nanowasm/nanowasm/api"
	"github.com/nanowasm/nanowasm/imports/wasi_snapshot_preview1"
	"github.com/nanowasm/nanowasm/internal/interpreter"
	"github.com/nanowasm/nanowasm/internal/wasm"
	"github.com/nanowasm/nanowasm/internal/wasm/binary"
)

// RuntimeConfig controls ambient, non-semantic behavior: tracing and the
// optional compilation cache. It never changes decode, instantiate, or
// call semantics — those follow the bytes alone.
type RuntimeConfig struct {
	provider trace.TracerProvider
	cache    *CompilationCache
}

// defaultConfig is never mutated directly; clone() copies it so every
// With* method returns an independent value, mirroring the teacher's
// engineLessConfig/clone() pattern. provider is left nil and resolved
// lazily via otel.GetTracerProvider(), which is itself a no-op until an
// embedding application calls otel.SetTracerProvider — so tracing is off
// by default without this package depending on any particular no-op type.
var defaultConfig = &RuntimeConfig{}

// NewRuntimeConfig returns a RuntimeConfig with tracing off (the global
// otel no-op provider, until overridden) and no compilation cache.
func NewRuntimeConfig() *RuntimeConfig {
	return defaultConfig.clone()
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

func (c *RuntimeConfig) tracer() trace.Tracer {
	provider := c.provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return provider.Tracer("nanowasm")
}

// WithTracerProvider enables an OpenTelemetry span around Instantiate and
// every Runtime.Call, named after the call's exported function.
func (c *RuntimeConfig) WithTracerProvider(tp trace.TracerProvider) *RuntimeConfig {
	ret := c.clone()
	ret.provider = tp
	return ret
}

// WithCompilationCache attaches a cache consulted on Instantiate and
// populated after a successful decode, keyed by the module bytes' content
// hash (see CompilationCache).
func (c *RuntimeConfig) WithCompilationCache(cache *CompilationCache) *RuntimeConfig {
	ret := c.clone()
	ret.cache = cache
	return ret
}

// Runtime wraps an instantiated module: its store and the interpreter
// bound to it. Not safe for concurrent use (§5) — one goroutine at a time.
type Runtime struct {
	Store   *wasm.Store
	Imports *interpreter.ImportRegistry

	config *RuntimeConfig
	rt     *interpreter.Runtime
}

// Instantiate decodes and instantiates a module with no WASI handler and
// no host imports pre-registered; call AddImport before the guest's first
// Call for every function it imports, wasi_snapshot_preview1 ones included
// (InstantiateWithWASI services those through a handler instead).
func Instantiate(moduleBytes []byte) (*Runtime, error) {
	return NewRuntimeConfig().Instantiate(context.Background(), moduleBytes)
}

// InstantiateWithWASI is Instantiate plus a wasi_snapshot_preview1.Handler
// wired to service the guest's WASI imports (§4.5).
func InstantiateWithWASI(moduleBytes []byte, handler *wasi_snapshot_preview1.Handler) (*Runtime, error) {
	return NewRuntimeConfig().InstantiateWithWASI(context.Background(), moduleBytes, handler)
}

// Instantiate is the RuntimeConfig-aware form of the package-level
// Instantiate, consulting and populating the config's CompilationCache.
func (c *RuntimeConfig) Instantiate(ctx context.Context, moduleBytes []byte) (*Runtime, error) {
	return c.instantiate(ctx, moduleBytes, nil)
}

// InstantiateWithWASI is the RuntimeConfig-aware form of the package-level
// InstantiateWithWASI.
func (c *RuntimeConfig) InstantiateWithWASI(ctx context.Context, moduleBytes []byte, handler *wasi_snapshot_preview1.Handler) (*Runtime, error) {
	return c.instantiate(ctx, moduleBytes, handler)
}

func (c *RuntimeConfig) instantiate(ctx context.Context, moduleBytes []byte, handler *wasi_snapshot_preview1.Handler) (*Runtime, error) {
	_, span := c.tracer().Start(ctx, "nanowasm.Instantiate")
	defer span.End()

	m, err := c.decode(moduleBytes)
	if err != nil {
		return nil, err
	}

	store, err := wasm.Instantiate(m)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	rt := interpreter.New(store)
	rt.WASI = handler

	return &Runtime{Store: store, Imports: rt.Imports, config: c, rt: rt}, nil
}

func (c *RuntimeConfig) decode(moduleBytes []byte) (*wasm.Module, error) {
	if c.cache != nil {
		if m, ok := c.cache.get(moduleBytes); ok {
			return m, nil
		}
	}
	m, err := binary.DecodeModule(moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if c.cache != nil {
		c.cache.put(moduleBytes, m)
	}
	return m, nil
}

// AddImport registers a host function under (module, field) for the
// WASM_IMPORT resolution row of §4.3/§4.4.3. WASI imports are serviced by
// the handler passed to InstantiateWithWASI instead.
func (r *Runtime) AddImport(module, field string, fn interpreter.HostFunction) {
	r.Imports.Add(module, field, fn)
}

// Call invokes the exported function named by name with args, per §4.6.
// It returns a nil result for an exported function with no result type.
func (r *Runtime) Call(ctx context.Context, name string, args []api.Value) (*api.Value, error) {
	_, span := r.config.tracer().Start(ctx, "nanowasm.Call "+name)
	defer span.End()

	result, err := r.rt.Call(name, args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return result, nil
}
