package mergedriver

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

// wasmDriver sandboxes a compiled WASM module exposing a `merge` export.
// Each invocation gets a fresh instance so drivers cannot leak state
// across calls.
type wasmDriver struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// wasmPayload is what gets marshaled into the module's linear memory.
type wasmPayload struct {
	Base  string `json:"base"`
	Left  string `json:"left"`
	Right string `json:"right"`
	Path  string `json:"path"`
}

type wasmResult struct {
	Content     string `json:"content"`
	HasConflict bool   `json:"hasConflict"`
}

// RegisterWASM compiles module once and registers it as the driver for
// pattern. A module that fails to compile is rejected immediately; a
// module that fails at invocation time (instantiate, call, or malformed
// result) causes that single merge to fall back to the default three-way
// merge, exactly as a throwing native driver does.
func (r *Registry) RegisterWASM(ctx context.Context, pattern string, module []byte) error {
	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, module)
	if err != nil {
		rt.Close(ctx)
		return jjerrors.Newf(jjerrors.CodeInvalidArgument, "compile wasm merge driver: %v", err)
	}

	wd := &wasmDriver{runtime: rt, compiled: compiled}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := &entry{pattern: pattern, isGlob: isGlobPattern(pattern), order: r.seq, wasmImpl: wd}
	if e.isGlob {
		r.globs = append(r.globs, e)
	} else {
		r.byExact[pattern] = e
	}
	return nil
}

// invoke instantiates a fresh copy of the module, writes the payload into
// its linear memory, calls its exported `merge` function, and reads back
// the result. Any failure along the way returns an error so the caller
// falls back to the default merge.
func (w *wasmDriver) invoke(in Input) (out Output, err error) {
	ctx := context.Background()

	payload, err := json.Marshal(wasmPayload{Base: in.Base, Left: in.Left, Right: in.Right, Path: in.Path})
	if err != nil {
		return Output{}, err
	}

	cfg := wazero.NewModuleConfig()
	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, cfg)
	if err != nil {
		return Output{}, jjerrors.Newf(jjerrors.CodeMergeError, "instantiate wasm merge driver: %v", err)
	}
	defer mod.Close(ctx)

	alloc := mod.ExportedFunction("alloc")
	mergeFn := mod.ExportedFunction("merge")
	if alloc == nil || mergeFn == nil {
		return Output{}, jjerrors.New(jjerrors.CodeMergeError, "wasm merge driver missing alloc/merge exports")
	}

	results, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil || len(results) == 0 {
		return Output{}, jjerrors.Newf(jjerrors.CodeMergeError, "wasm alloc failed: %v", err)
	}
	ptr := uint32(results[0])

	mem := mod.Memory()
	if mem == nil || !mem.Write(ptr, payload) {
		return Output{}, jjerrors.New(jjerrors.CodeMergeError, "wasm memory write failed")
	}

	mergeResults, err := mergeFn.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil || len(mergeResults) == 0 {
		return Output{}, jjerrors.Newf(jjerrors.CodeMergeError, "wasm merge call failed: %v", err)
	}

	// Convention: merge returns a single u64 packing (resultPtr<<32 | resultLen).
	packed := mergeResults[0]
	resultPtr := uint32(packed >> 32)
	resultLen := uint32(packed)

	resultBytes, ok := mem.Read(resultPtr, resultLen)
	if !ok {
		return Output{}, jjerrors.New(jjerrors.CodeMergeError, "wasm memory read failed")
	}

	var r wasmResult
	if err := json.Unmarshal(resultBytes, &r); err != nil {
		return Output{}, jjerrors.Newf(jjerrors.CodeMergeError, "wasm merge result malformed: %v", err)
	}
	return Output{Content: r.Content, HasConflict: r.HasConflict}, nil
}

// Close releases the underlying wazero runtime. Callers that register
// WASM drivers should close the registry's drivers on repository close.
func (r *Registry) Close(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.byExact {
		if e.wasmImpl != nil {
			e.wasmImpl.runtime.Close(ctx)
		}
	}
	for _, e := range r.globs {
		if e.wasmImpl != nil {
			e.wasmImpl.runtime.Close(ctx)
		}
	}
}
