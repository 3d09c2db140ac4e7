package emitter

import (
	"testing"

	"github.com/xzero/flowd/internal/ast"
	"github.com/xzero/flowd/internal/ir"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

func TestEmitSimpleAssignReturnsFalse(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{Name: "main", Body: []*ast.Node{ast.Assign("x", ast.Num(1))}},
		},
	}
	prog, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bc, err := Emit(prog, native.NewRegistry())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(bc.Handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(bc.Handlers))
	}
	h := bc.Handlers[0]
	if h.RegisterCount < 2 { // one local + one temp for the implicit false
		t.Errorf("expected at least 2 registers, got %d", h.RegisterCount)
	}
}

func TestEmitIfRoundTripsThroughValidate(t *testing.T) {
	unit := &ast.Unit{
		Globals: []*ast.VarDecl{{Name: "limit", Type: value.NUMBER, Init: ast.Num(5)}},
		Handlers: []*ast.HandlerDecl{
			{
				Name: "route",
				Body: []*ast.Node{
					ast.If(
						ast.Bin(ast.OpGt, value.BOOLEAN, ast.VarRef("limit", value.NUMBER), ast.Num(0)),
						ast.Assign("x", ast.Num(1)),
						ast.Assign("x", ast.Num(2)),
					),
				},
			},
		},
	}
	prog, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bc, err := Emit(prog, native.NewRegistry())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := bc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEmitMatchTableBuildsResolvedTargets(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "route",
				Body: []*ast.Node{
					ast.Match(
						ast.Str("/api/v2/x"),
						ast.MatchPREFIX,
						[]ast.MatchCase{
							{Label: "/api", Block: ast.Assign("x", ast.Num(1))},
							{Label: "/api/v2", Block: ast.Assign("x", ast.Num(2))},
						},
						ast.Assign("x", ast.Num(0)),
					),
				},
			},
		},
	}
	prog, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bc, err := Emit(prog, native.NewRegistry())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(bc.Matches) != 1 {
		t.Fatalf("expected 1 match table, got %d", len(bc.Matches))
	}
	m := bc.Matches[0]
	if m.Else < 0 || m.Else >= len(bc.Handlers[0].Code) {
		t.Errorf("else target %d out of code range", m.Else)
	}
	for _, e := range m.Entries {
		if e.Target < 0 || e.Target >= len(bc.Handlers[0].Code) {
			t.Errorf("entry target %d out of code range", e.Target)
		}
	}
}

func TestEmitHandlerCallResolvesNativeAndValidates(t *testing.T) {
	reg := native.NewRegistry()
	if _, err := reg.Register("respond", native.KindHandler, func(p *native.Params) error { return nil }); err != nil {
		t.Fatal(err)
	}
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "main",
				Body: []*ast.Node{
					ast.HandlerCall("respond", ast.Num(200)),
				},
			},
		},
	}
	prog, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bc, err := Emit(prog, reg)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(bc.Natives) != 1 || bc.Natives[0].Name != "respond" {
		t.Fatalf("expected respond native registered, got %+v", bc.Natives)
	}
	if err := bc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEmitUndefinedNativeFails(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{Name: "main", Body: []*ast.Node{ast.HandlerCall("nope")}},
		},
	}
	prog, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := Emit(prog, native.NewRegistry()); err == nil {
		t.Fatal("expected error for undefined native")
	}
}
