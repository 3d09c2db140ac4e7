// Package commands implements flowc's sub-commands. Grounded on
// sentra/cmd/sentra/commands' one-file-per-subcommand layout
// (BuildCommand, InitCommand, ...), trimmed to the three sub-commands
// this engine's scope actually calls for: build, run, dump.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/xzero/flowd/internal/ast"
	"github.com/xzero/flowd/internal/emitter"
	"github.com/xzero/flowd/internal/host"
	"github.com/xzero/flowd/internal/ir"
	"github.com/xzero/flowd/internal/native"
)

// BuildCommand compiles a JSON-encoded ast.Unit (spec.md's component
// list assumes a typed AST as the core's input; there is no lexer or
// parser stage in scope here — see internal/ast's package doc comment)
// into a bytecode.Program and writes it to disk in the on-disk format
// bytecode/format.go implements.
//
// Usage: flowc build <unit.json> [-o out.flowbc]
func BuildCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: flowc build <unit.json> [-o out.flowbc]")
	}
	src := args[0]
	out := src + ".flowbc"
	for i := 1; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			out = args[i+1]
			i++
		}
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	var unit ast.Unit
	if err := json.Unmarshal(data, &unit); err != nil {
		return fmt.Errorf("parsing %s as an AST unit: %w", src, err)
	}

	prog, err := ir.Generate(&unit)
	if err != nil {
		return fmt.Errorf("generating IR: %w", err)
	}

	reg, err := buildRegistry()
	if err != nil {
		return err
	}

	bc, err := emitter.Emit(prog, reg)
	if err != nil {
		return fmt.Errorf("emitting bytecode: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer f.Close()
	if err := bc.Write(f); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	info, err := f.Stat()
	if err == nil {
		fmt.Fprintf(os.Stderr, "flowc: wrote %s (%s), %d handler(s)\n",
			out, humanize.Bytes(uint64(info.Size())), len(bc.Handlers))
	}
	return nil
}

// buildRegistry constructs the native registry flowc build resolves
// CALL/HANDLER call sites against. It must register the same natives
// (by name and kind) that flowc run's host will register, or a
// compiled program's native-symbol table will disagree with the
// runtime registry it eventually loads against.
func buildRegistry() (*native.Registry, error) {
	reg := native.NewRegistry()
	if err := native.RegisterStdlib(reg); err != nil {
		return nil, err
	}
	if err := host.RegisterCallbacks(reg); err != nil {
		return nil, err
	}
	if _, err := reg.Register("db.lookup", native.KindFunction, func(*native.Params) error {
		return fmt.Errorf("db.lookup is a placeholder at build time; flowc run binds it to a real database")
	}); err != nil {
		return nil, err
	}
	return reg, nil
}
