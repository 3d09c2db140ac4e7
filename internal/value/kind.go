// Package value implements the Flow value domain: the closed set of
// value kinds, the constant pools that hold reference-typed constants,
// and the register cell type the VM's register file is built from.
//
// Grounded on sentra's internal/vmregister/value.go (heap object header
// style, per-kind Obj structs) and on the original x0 sources
// (lib/flow/vm/Runner.cpp) for the exact set of convertible kinds. Unlike
// the teacher's NaN-boxed Value, a Flow Register carries no runtime type
// tag at all: spec.md section 3 makes type safety a compile-time
// obligation of the emitter, so there is nothing here to box or unbox.
package value

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed set of Flow value kinds (spec.md section 3).
type Kind uint8

const (
	VOID Kind = iota
	BOOLEAN
	NUMBER
	STRING
	IP
	CIDR
	REGEX
	HANDLER_REF
	ARRAY_STRING
	ARRAY_NUMBER
)

var kindNames = [...]string{
	VOID:         "void",
	BOOLEAN:      "bool",
	NUMBER:       "number",
	STRING:       "string",
	IP:           "ip",
	CIDR:         "cidr",
	REGEX:        "regex",
	HANDLER_REF:  "handler",
	ARRAY_STRING: "array<string>",
	ARRAY_NUMBER: "array<number>",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	return m
}()

// MarshalJSON/UnmarshalJSON render a Kind as its name rather than its
// ordinal, so flowc's JSON AST input format (internal/ast's package doc
// comment: "the AST is the assumed input to the core") reads as
// "number"/"string" rather than opaque small integers a reordered enum
// would silently invalidate.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, ok := kindByName[name]
	if !ok {
		return fmt.Errorf("value: unknown kind %q", name)
	}
	*k = v
	return nil
}

// IsReferenceType reports whether values of this kind live in a
// constant pool or an arena and are addressed from a Register via a
// borrowed pointer, rather than being stored inline as an integer.
func (k Kind) IsReferenceType() bool {
	switch k {
	case STRING, IP, CIDR, REGEX, ARRAY_STRING, ARRAY_NUMBER:
		return true
	default:
		return false
	}
}
