package native

import (
	"testing"
	"unsafe"

	"github.com/xzero/flowd/internal/value"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	idx, err := r.Register("len", KindFunction, func(p *Params) error { return nil })
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	sym, ok := r.Lookup("len")
	if !ok || sym.Kind != KindFunction {
		t.Fatalf("Lookup returned %+v, %v", sym, ok)
	}
	byIdx, ok := r.ByIndex(idx)
	if !ok || byIdx.Name != "len" {
		t.Fatalf("ByIndex returned %+v, %v", byIdx, ok)
	}
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("x", KindFunction, func(p *Params) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("x", KindFunction, func(p *Params) error { return nil }); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestUnregisterInvalidatesLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("x", KindFunction, func(p *Params) error { return nil })
	r.Unregister("x")
	if _, ok := r.Lookup("x"); ok {
		t.Fatal("expected lookup to fail after unregister")
	}
}

// fakeRunner satisfies RequestRunner for tests exercising a native
// directly, without a real *vm.Runner and its arena.
type fakeRunner struct{}

func (fakeRunner) UserContext() any                    { return nil }
func (fakeRunner) NewString(s string) *value.StringVal { return value.NewString(s) }

func TestStdlibStringUpperLower(t *testing.T) {
	r := NewRegistry()
	if err := RegisterStdlib(r); err != nil {
		t.Fatalf("RegisterStdlib: %v", err)
	}
	upper, _ := r.Lookup("str.upper")
	argv := []value.Register{value.RegFromInt(0), value.RegFromPtr(unsafe.Pointer(value.NewString("hi")))}
	p := &Params{Argv: argv, Runner: fakeRunner{}}
	if err := upper.Fn(p); err != nil {
		t.Fatalf("str.upper: %v", err)
	}
	got := (*value.StringVal)(p.Argv[0].Ptr())
	if got.String() != "HI" {
		t.Fatalf("got %q, want HI", got.String())
	}
}
