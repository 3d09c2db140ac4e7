// Package vm implements the threaded-dispatch bytecode interpreter
// (spec.md sections 3 and 4.5): one Runner per request, bound to a
// single compiled Handler and an opaque host-supplied user context,
// executing to a boolean verdict.
package vm

import (
	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

// Runner is scoped to exactly one (Handler, user context) pair (spec.md
// section 5). It owns its register file and arena outright and shares
// nothing mutable with any other Runner — the redesign flag in spec.md
// section 9 that eliminates the original engine's global empty-string
// sentinel is satisfied simply by there being no package-level mutable
// state anywhere in this file.
type Runner struct {
	program *bytecode.Program
	handler *bytecode.Handler
	natives *native.Registry

	regs  []value.Register
	arena *Arena

	userCtx any

	// regexResult is the explicit optional match-result slot spec.md
	// section 9 asks for in place of the original engine's ambient
	// regex-context coupling: SREGMATCH and SMATCHR populate it,
	// SREGGROUP reads it, and nothing else touches it.
	regexResult    bytecode.MatchResult
	hasRegexResult bool
}

// New creates a Runner bound to handler within program, ready to
// execute against userCtx. The caller is responsible for having
// validated program beforehand (spec.md section 7: malformed bytecode
// must never reach a Runner).
func New(program *bytecode.Program, handler *bytecode.Handler, natives *native.Registry, userCtx any) *Runner {
	return &Runner{
		program: program,
		handler: handler,
		natives: natives,
		regs:    make([]value.Register, handler.RegisterCount),
		arena:   NewArena(),
		userCtx: userCtx,
	}
}

// ForHandler looks up handlerName in program and constructs a Runner
// for it, for hosts selecting a handler by name per incoming request.
func ForHandler(program *bytecode.Program, handlerName string, natives *native.Registry, userCtx any) (*Runner, bool) {
	h, ok := program.HandlerByName(handlerName)
	if !ok {
		return nil, false
	}
	return New(program, h, natives, userCtx), true
}

func (r *Runner) UserContext() any        { return r.userCtx }
func (r *Runner) SetUserContext(v any)    { r.userCtx = v }
func (r *Runner) Arena() *Arena           { return r.arena }
func (r *Runner) Handler() *bytecode.Handler { return r.handler }

// NewString satisfies native.RequestRunner: it lets a native callback
// produce a string the same way the dispatch loop's own opcodes do,
// through the arena, rather than allocating one of its own that the
// arena never owns or frees.
func (r *Runner) NewString(s string) *value.StringVal { return r.arena.NewString(s) }

// Run executes the handler to completion and returns its verdict
// (spec.md section 2: "run() -> bool"). A non-nil error, rather than an
// ordinary false verdict, means either a fault in bytecode that
// Validate accepted — an out-of-range native index, an opcode with no
// dispatch case, code that ends without an EXIT — or an error returned
// by a native callback, which is passed through unchanged.
func (r *Runner) Run() (bool, error) {
	return dispatch(r)
}
