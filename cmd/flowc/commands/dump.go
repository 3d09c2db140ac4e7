package commands

import (
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/mattn/go-isatty"

	"github.com/xzero/flowd/internal/bytecode"
)

// DumpCommand disassembles a compiled Program for debugging: pool sizes,
// the native table and each handler's instructions are printed as plain
// formatted lines, and match-table entries through kr/pretty.
//
// Usage: flowc dump <program.flowbc>
func DumpCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: flowc dump <program.flowbc>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()
	prog, err := bytecode.Read(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	color := isatty.IsTerminal(os.Stdout.Fd())
	section := func(title string) {
		if color {
			fmt.Printf("\n\033[1m%s\033[0m\n", title)
		} else {
			fmt.Printf("\n%s\n", title)
		}
	}

	section("constant pools")
	fmt.Printf("numbers=%d strings=%d ips=%d cidrs=%d regexes=%d matches=%d\n",
		prog.Numbers.Len(), prog.Strings.Len(), prog.IPs.Len(), prog.Cidrs.Len(),
		prog.Regexes.Len(), len(prog.Matches))

	section("natives")
	for i, n := range prog.Natives {
		fmt.Printf("  [%d] %s (%s)\n", i, n.Name, n.Kind)
	}

	for _, h := range prog.Handlers {
		section(fmt.Sprintf("handler %q (registers=%d)", h.Name, h.RegisterCount))
		for pc, instr := range h.Code {
			fmt.Printf("  %4d  %-10s a=%-4d b=%-4d c=%-4d\n",
				pc, instr.OpCode(), instr.A(), instr.B(), instr.C())
		}
	}

	section("match tables")
	for i, m := range prog.Matches {
		fmt.Printf("  [%d] op=%v else=%d\n", i, m.Op, m.Else)
		for _, e := range m.Entries {
			fmt.Printf("%s\n", pretty.Sprint(e))
		}
	}

	return nil
}
