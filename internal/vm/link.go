package vm

import (
	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/flowerrors"
	"github.com/xzero/flowd/internal/native"
)

// LinkNatives checks a loaded Program's native-symbol table against the
// registry it is about to run against, and rejects a mismatch before
// any Runner is constructed (spec.md section 7: malformed bytecode is
// fatal at load time, not at run time). bytecode.Validate cannot do
// this itself — package bytecode deliberately has no dependency on
// native.Registry (see NativeKind's comment in program.go) — so it is a
// separate step a host must run alongside Validate, here in the one
// package that already imports both.
//
// A Program built by this repository's own emitter always has its
// native table entries positioned at the registry index the emitter
// resolved them against (emitter.go's internNative); LinkNatives exists
// for the case that matters at run time — a compiled .flowbc file
// loaded against a registry other than the one it was built with, where
// nothing has re-checked that assumption since.
func LinkNatives(prog *bytecode.Program, reg *native.Registry) error {
	for i, want := range prog.Natives {
		if want.Name == "" {
			// unreferenced slot left by internNative's index padding
			continue
		}
		got, ok := reg.ByIndex(i)
		if !ok {
			return flowerrors.MalformedBytecode(
				flowerrors.SourceLocation{Detail: "native table"},
				"native %d (%q) has no entry in the runtime registry", i, want.Name)
		}
		if got.Name != want.Name {
			return flowerrors.MalformedBytecode(
				flowerrors.SourceLocation{Detail: "native table"},
				"native %d resolves to %q in the runtime registry, program was compiled against %q", i, got.Name, want.Name)
		}
		if nativeKindOf(got.Kind) != want.Kind {
			return flowerrors.MalformedBytecode(
				flowerrors.SourceLocation{Detail: "native table"},
				"native %q is registered as %s, program was compiled expecting %s", want.Name, got.Kind, want.Kind)
		}
	}
	return nil
}

func nativeKindOf(k native.Kind) bytecode.NativeKind {
	switch k {
	case native.KindHandler:
		return bytecode.NativeHandler
	case native.KindVariable:
		return bytecode.NativeVariable
	default:
		return bytecode.NativeFunction
	}
}
