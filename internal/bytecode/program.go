package bytecode

import (
	"fmt"

	"github.com/xzero/flowd/internal/value"
)

// NativeKind mirrors native.Kind without importing the native package,
// so this package stays free of any dependency on native while keeping
// Program's native-symbol table self-describing for validation and
// disassembly.
type NativeKind uint8

const (
	NativeFunction NativeKind = iota
	NativeHandler
	NativeVariable
)

func (k NativeKind) String() string {
	switch k {
	case NativeFunction:
		return "function"
	case NativeHandler:
		return "handler"
	case NativeVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// NativeSymbol records what a Program expects to find at a given native
// index when it's loaded against a native.Registry: a name (for
// diagnostics and disassembly) and the kind CALL/HANDLER instructions
// referencing it must agree with.
type NativeSymbol struct {
	Name string
	Kind NativeKind
}

// Handler is a named executable unit: a register count and a linear
// instruction vector, per spec.md section 3.
type Handler struct {
	Name          string
	RegisterCount int
	Code          []Instruction
}

// Program is the immutable object assembled by the emitter (spec.md
// section 3): deduplicated constant pools, match tables, the
// native-symbol reference table, and the handlers. Once Finalize()
// returns a *Program it is safe to share across goroutines without
// synchronization (spec.md section 5) — nothing here is mutated again.
type Program struct {
	Numbers *value.NumberPool
	Strings *value.StringPool
	IPs     *value.IPPool
	Cidrs   *value.CidrPool
	Regexes *value.RegexPool
	Matches []*MatchTable

	Natives  []NativeSymbol
	Handlers []*Handler

	handlerIndex map[string]int
}

// NewProgram creates an empty, mutable Program under construction. The
// assembly API (spec.md section 6) is this type's exported methods;
// call Finalize when done.
func NewProgram() *Program {
	return &Program{
		Numbers:      value.NewNumberPool(),
		Strings:      value.NewStringPool(),
		IPs:          value.NewIPPool(),
		Cidrs:        value.NewCidrPool(),
		Regexes:      value.NewRegexPool(),
		handlerIndex: make(map[string]int),
	}
}

// AddMatchTable appends a match table to the pool and returns its index.
func (p *Program) AddMatchTable(m *MatchTable) int {
	p.Matches = append(p.Matches, m)
	return len(p.Matches) - 1
}

// AddNative appends a native symbol reference at the next sequential
// index and returns it. This package has no dependency on
// native.Registry (see NativeKind's comment above) and so cannot itself
// enforce that the index a caller gets back is the one a real registry
// would assign name at — the emitter is the layer responsible for that
// (emitter.go's internNative writes directly at the registry's own
// index instead of calling this method), and vm.LinkNatives is what
// actually rejects a Program whose native table disagrees with the
// registry it's about to run against. Used directly only where the
// index is known not to matter, e.g. hand-built test fixtures with a
// single native.
func (p *Program) AddNative(name string, kind NativeKind) int {
	p.Natives = append(p.Natives, NativeSymbol{Name: name, Kind: kind})
	return len(p.Natives) - 1
}

// AddHandler appends a fully-built handler and returns its index.
func (p *Program) AddHandler(h *Handler) int {
	p.Handlers = append(p.Handlers, h)
	p.handlerIndex[h.Name] = len(p.Handlers) - 1
	return len(p.Handlers) - 1
}

// HandlerByName looks up a handler by name for the host to select one
// per request (spec.md section 2's "host selects a handler").
func (p *Program) HandlerByName(name string) (*Handler, bool) {
	i, ok := p.handlerIndex[name]
	if !ok {
		return nil, false
	}
	return p.Handlers[i], true
}

// Finalize rejects a Program with no handlers and otherwise returns p
// unchanged. It does not freeze anything: AddHandler, AddMatchTable and
// the pools still accept additions afterwards, and such calls are not
// detected.
func (p *Program) Finalize() (*Program, error) {
	if len(p.Handlers) == 0 {
		return nil, fmt.Errorf("bytecode: program has no handlers")
	}
	return p, nil
}
