// cmd/flowc/main.go
package main

import (
	"fmt"
	"os"

	"github.com/xzero/flowd/cmd/flowc/commands"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run holds main's logic separately so main_test.go's testscript harness
// can invoke it in-process as a subcommand, per the teacher pack's
// convention of keeping cmd/<name> thin and testable.
func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}

	var err error
	switch args[0] {
	case "build":
		err = commands.BuildCommand(args[1:])
	case "run":
		err = commands.RunCommand(args[1:])
	case "dump":
		err = commands.DumpCommand(args[1:])
	case "version", "--version", "-v":
		fmt.Println("flowc " + version)
		return 0
	case "help", "--help", "-h":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "flowc: unknown command %q\n", args[0])
		usage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "flowc: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `flowc — the Flow engine's compile/run/inspect CLI

Usage:
  flowc build <unit.json> [-o out.flowbc]   compile an AST unit to bytecode
  flowc run <program.flowbc> -config <toml> serve a compiled program over HTTP
  flowc dump <program.flowbc>               disassemble a compiled program
  flowc version                             print the flowc version`)
}
