// Package flowerrors defines the closed error taxonomy used across the
// Flow compilation pipeline and VM, per the propagation policy in
// spec.md section 7. Every program-visible failure inside a running
// handler is a value (false verdict, empty string, zero number); this
// package only carries the diagnostics the host sees before or around a
// run, never inside one.
package flowerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of error categories a FlowError carries. Program
// validation, native linking and the VM's dispatch loop (for an opcode it
// has no case for, or code that ends without an EXIT) return
// MalformedBytecode; failures inside a running handler's own operations
// are values, not errors, per spec.md section 7.
type Kind string

const (
	KindTypeError          Kind = "TypeError"
	KindUnsupportedOp      Kind = "UnsupportedOperator"
	KindMalformedBytecode  Kind = "MalformedBytecode"
	KindResourceExhausted  Kind = "ResourceExhausted"
)

// SourceLocation pins a diagnostic to a place in the AST that produced it.
// The AST does not carry file/line information of its own (spec.md's
// component list has no lexer/parser), so Handler is the coarsest and
// Block the finest-grained location available post-lowering, with Detail
// carrying anything more specific (e.g. a pc).
type SourceLocation struct {
	Handler string
	Block   string
	Detail  string
}

func (l SourceLocation) String() string {
	if l.Handler == "" {
		return l.Detail
	}
	if l.Block == "" {
		return fmt.Sprintf("handler %q: %s", l.Handler, l.Detail)
	}
	return fmt.Sprintf("handler %q, block %q: %s", l.Handler, l.Block, l.Detail)
}

// FlowError is the diagnostic type returned by the Program validator,
// vm.LinkNatives and the VM's dispatch loop. The IR generator and emitter
// return plain fmt errors instead. It is never thrown into a running
// handler.
type FlowError struct {
	Kind     Kind
	Location SourceLocation
	cause    error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Location, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Location)
}

func (e *FlowError) Unwrap() error { return e.cause }

// New builds a FlowError, wrapping cause (if any) with a stack trace via
// github.com/pkg/errors so `flowc` can print "where" as well as "what".
func New(kind Kind, loc SourceLocation, cause error) *FlowError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &FlowError{Kind: kind, Location: loc, cause: wrapped}
}

func TypeError(loc SourceLocation, format string, args ...interface{}) *FlowError {
	return New(KindTypeError, loc, fmt.Errorf(format, args...))
}

func UnsupportedOperator(loc SourceLocation, op string) *FlowError {
	return New(KindUnsupportedOp, loc, fmt.Errorf("unsupported operator %q; this is a lowering bug, not a source-level error", op))
}

func MalformedBytecode(loc SourceLocation, format string, args ...interface{}) *FlowError {
	return New(KindMalformedBytecode, loc, fmt.Errorf(format, args...))
}

func ResourceExhausted(loc SourceLocation, format string, args ...interface{}) *FlowError {
	return New(KindResourceExhausted, loc, fmt.Errorf(format, args...))
}
