package host

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xzero/flowd/internal/ast"
	"github.com/xzero/flowd/internal/emitter"
	"github.com/xzero/flowd/internal/ir"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Runtime.RequestTimeout = Duration{2 * time.Second}
	return cfg
}

func TestServeHTTPRespondNativeWritesStatusAndBody(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "/hello",
				Body: []*ast.Node{
					ast.HandlerCall("respond", ast.Num(201), ast.Str("created")),
				},
			},
		},
	}
	reg := native.NewRegistry()
	if err := RegisterCallbacks(reg); err != nil {
		t.Fatalf("RegisterCallbacks: %v", err)
	}
	irProg, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	prog, err := emitter.Emit(irProg, reg)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	cfg := testConfig()
	cfg.Listen.DefaultRoute = "/hello"
	srv := NewServer(cfg, prog, reg, nil, NewStdLogger())

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if rw.Code != 201 {
		t.Fatalf("expected status 201, got %d", rw.Code)
	}
	if rw.Body.String() != "created" {
		t.Fatalf("expected body %q, got %q", "created", rw.Body.String())
	}
}

func TestServeHTTPFallsThroughOnFalseVerdict(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{Name: "/nope", Body: []*ast.Node{ast.Assign("x", ast.Num(1))}},
		},
	}
	reg := native.NewRegistry()
	if err := RegisterCallbacks(reg); err != nil {
		t.Fatalf("RegisterCallbacks: %v", err)
	}
	irProg, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	prog, err := emitter.Emit(irProg, reg)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	cfg := testConfig()
	cfg.Listen.DefaultRoute = "/nope"
	fellThrough := false
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fellThrough = true
		w.WriteHeader(http.StatusTeapot)
	})
	srv := NewServer(cfg, prog, reg, fallback, NewStdLogger())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if !fellThrough {
		t.Fatal("expected fallback handler to run on false verdict")
	}
	if rw.Code != http.StatusTeapot {
		t.Fatalf("expected fallback's status, got %d", rw.Code)
	}
}

func TestServeHTTPReqPathAndHeaderNatives(t *testing.T) {
	unit := &ast.Unit{
		Handlers: []*ast.HandlerDecl{
			{
				Name: "/echo",
				Body: []*ast.Node{
					ast.Assign("path", ast.Call("req.path", value.STRING)),
					ast.Assign("ua", ast.Call("req.header", value.STRING, ast.Str("User-Agent"))),
					ast.HandlerCall("respond", ast.Num(200),
						ast.Bin(ast.OpConcat, value.STRING, ast.VarRef("path", value.STRING), ast.VarRef("ua", value.STRING))),
				},
			},
		},
	}
	reg := native.NewRegistry()
	if err := RegisterCallbacks(reg); err != nil {
		t.Fatalf("RegisterCallbacks: %v", err)
	}
	irProg, err := ir.Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	prog, err := emitter.Emit(irProg, reg)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	cfg := testConfig()
	cfg.Listen.DefaultRoute = "/echo"
	srv := NewServer(cfg, prog, reg, nil, NewStdLogger())

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set("User-Agent", "flow-test")
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if rw.Code != 200 {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw.Body.String() != "/echoflow-test" {
		t.Fatalf("expected concatenated path+header, got %q", rw.Body.String())
	}
}
