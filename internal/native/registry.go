// Package native implements the callback registry spec.md section 5
// describes: the host's bridge between VM bytecode (CALL/HANDLER
// instructions referencing natives by dense integer index) and Go
// functions the host provides.
package native

import (
	"fmt"
	"sort"

	"github.com/xzero/flowd/internal/value"
)

// Kind mirrors bytecode.NativeKind. Kept as a separate type (rather
// than importing bytecode's) because native is the layer bytecode's
// NativeKind was deliberately duplicated to avoid depending on — see
// bytecode/program.go's comment on NativeKind.
type Kind uint8

const (
	KindFunction Kind = iota
	KindHandler
	// KindVariable exists in spec.md section 5's native-kind enumeration
	// but the original engine never wired a VARIABLE-kind opcode path
	// (no VCONST-equivalent instruction reads one); registering one here
	// is legal but nothing in the emitter or VM currently consumes it.
	// See DESIGN.md, "native.KindVariable".
	KindVariable
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindHandler:
		return "handler"
	case KindVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Params is the argument convention every native receives (spec.md
// section 5): argv[0] is the in/out result (FUNCTION) or verdict
// (HANDLER) slot, argv[1:] are the call's remaining arguments. Runner
// is an interface rather than a concrete *vm.Runner type so this
// package never needs to import vm — vm imports native, not the other
// way around.
type Params struct {
	Argv   []value.Register
	Runner RequestRunner
}

// RequestRunner is the subset of *vm.Runner a native needs: access to
// the opaque per-request user context the host attached when it
// created the Runner (spec.md section 5: "the runner carries an opaque
// pointer the host may use to reach request-scoped state"), and the
// arena helper spec.md section 5 requires natives to go through rather
// than allocating strings of their own ("the native may read/write
// strings only through the runner's arena helpers"). NewString mirrors
// *vm.Arena's own NewString, so a native never needs to see *vm.Arena
// (or import package vm) to obey that rule.
type RequestRunner interface {
	UserContext() any
	NewString(s string) *value.StringVal
}

// Func is a registered native's implementation. It mutates
// p.Argv[0] in place and returns an error only for conditions spec.md
// section 7 calls out as native-callback faults (never for ordinary
// verdict/value results — a HANDLER returning false is not an error).
type Func func(p *Params) error

// Symbol is what the registry hands back on lookup: enough for the
// emitter to both resolve a call site and validate the caller used the
// right instruction (CALL vs HANDLER) for the native's kind. Index is
// the dense id CALL/HANDLER instructions must encode to reach this
// native at run time — the emitter is required to use it verbatim
// rather than assigning call sites its own first-use-order index (see
// emitter.go's internNative).
type Symbol struct {
	Name  string
	Kind  Kind
	Fn    Func
	Index int
}

// Registry is the dense, name-addressable, index-addressable native
// table spec.md section 5 describes. The host builds one at startup and
// hands it to both the emitter (to resolve call sites) and the VM (to
// dispatch CALL/HANDLER at run time); it owns the lifetime of every
// registered record.
type Registry struct {
	byName  map[string]int
	symbols []Symbol
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a native under name, returning its dense index.
// Registering the same name twice is a host programming error.
func (r *Registry) Register(name string, kind Kind, fn Func) (int, error) {
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("native: %q already registered", name)
	}
	idx := len(r.symbols)
	r.symbols = append(r.symbols, Symbol{Name: name, Kind: kind, Fn: fn, Index: idx})
	r.byName[name] = idx
	return idx, nil
}

// Unregister removes a native by name. Existing bytecode holding its
// index becomes invalid — callers are responsible for not unregistering
// natives a live Program still references.
func (r *Registry) Unregister(name string) {
	idx, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	r.symbols[idx] = Symbol{}
}

func (r *Registry) Lookup(name string) (Symbol, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return r.symbols[idx], true
}

// ByIndex returns the symbol at a dense index, as CALL/HANDLER
// instructions address it at run time.
func (r *Registry) ByIndex(i int) (Symbol, bool) {
	if i < 0 || i >= len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[i], true
}

func (r *Registry) Len() int { return len(r.symbols) }

// Names returns every registered native name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
