package vm

import (
	"testing"

	"github.com/xzero/flowd/internal/ast"
	"github.com/xzero/flowd/internal/emitter"
	"github.com/xzero/flowd/internal/ir"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

func compile(t *testing.T, unit *ast.Unit, reg *native.Registry) *Runner {
	t.Helper()
	if reg == nil {
		reg = native.NewRegistry()
	}
	irProg, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bc, err := emitter.Emit(irProg, reg)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	r, ok := ForHandler(bc, unit.Handlers[0].Name, reg, nil)
	if !ok {
		t.Fatalf("handler %q not found", unit.Handlers[0].Name)
	}
	return r
}

func TestRunnerImplicitFalse(t *testing.T) {
	unit := &ast.Unit{Handlers: []*ast.HandlerDecl{
		{Name: "main", Body: []*ast.Node{ast.Assign("x", ast.Num(1))}},
	}}
	r := compile(t, unit, nil)
	verdict, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if verdict {
		t.Fatal("expected false verdict for a handler with no explicit exit")
	}
}

func TestRunnerIfBranchTakesThenPath(t *testing.T) {
	unit := &ast.Unit{
		Globals: []*ast.VarDecl{{Name: "n", Type: value.NUMBER, Init: ast.Num(5)}},
		Handlers: []*ast.HandlerDecl{
			{
				Name: "main",
				Body: []*ast.Node{
					ast.If(
						ast.Bin(ast.OpGt, value.BOOLEAN, ast.VarRef("n", value.NUMBER), ast.Num(0)),
						ast.HandlerCall("mark_then"),
						ast.HandlerCall("mark_else"),
					),
				},
			},
		},
	}
	reg := native.NewRegistry()
	var branch string
	reg.Register("mark_then", native.KindHandler, func(p *native.Params) error {
		branch = "then"
		p.Argv[0] = value.BoolRegister(true)
		return nil
	})
	reg.Register("mark_else", native.KindHandler, func(p *native.Params) error {
		branch = "else"
		p.Argv[0] = value.BoolRegister(true)
		return nil
	})
	r := compile(t, unit, reg)
	verdict, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !verdict {
		t.Fatal("expected true verdict from handler short-circuit")
	}
	if branch != "then" {
		t.Fatalf("expected then-branch to run, got %q", branch)
	}
}

func TestRunnerDivisionByZeroYieldsZeroNotTrap(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "main",
				Body: []*ast.Node{
					ast.HandlerCall("observe",
						ast.Bin(ast.OpDiv, value.NUMBER, ast.Num(10), ast.Num(0))),
				},
			},
		},
	}
	reg := native.NewRegistry()
	var seen int64 = -1
	reg.Register("observe", native.KindHandler, func(p *native.Params) error {
		seen = p.Argv[1].Int()
		p.Argv[0] = value.BoolRegister(false)
		return nil
	})
	r := compile(t, unit, reg)
	if _, err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 0 {
		t.Fatalf("expected division by zero to yield 0, got %d", seen)
	}
}

func TestRunnerMatchTablePrefixSelectsLongest(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "route",
				Body: []*ast.Node{
					ast.Match(
						ast.Str("/api/v2/users"),
						ast.MatchPREFIX,
						[]ast.MatchCase{
							{Label: "/api", Block: ast.HandlerCall("hit_v1")},
							{Label: "/api/v2", Block: ast.HandlerCall("hit_v2")},
						},
						ast.HandlerCall("hit_else"),
					),
				},
			},
		},
	}
	reg := native.NewRegistry()
	var hit string
	register := func(name string) {
		reg.Register(name, native.KindHandler, func(p *native.Params) error {
			hit = name
			p.Argv[0] = value.BoolRegister(true)
			return nil
		})
	}
	register("hit_v1")
	register("hit_v2")
	register("hit_else")
	r := compile(t, unit, reg)
	if _, err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hit != "hit_v2" {
		t.Fatalf("expected longest prefix hit_v2, got %q", hit)
	}
}

func TestRunnerRegexMatch(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "main",
				Body: []*ast.Node{
					ast.Assign("matched", ast.Bin(ast.OpRegexMatch, value.BOOLEAN,
						ast.Str("user-42"), ast.Regex(`user-(\d+)`))),
					ast.HandlerCall("observe", ast.VarRef("matched", value.BOOLEAN)),
				},
			},
		},
	}
	reg := native.NewRegistry()
	var seen bool
	reg.Register("observe", native.KindHandler, func(p *native.Params) error {
		seen = p.Argv[1].Bool()
		p.Argv[0] = value.BoolRegister(false)
		return nil
	})
	r := compile(t, unit, reg)
	if _, err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seen {
		t.Fatal("expected regex to match")
	}
}
