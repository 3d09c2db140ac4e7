package host

import (
	"net/http"
	"unsafe"

	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

// RegisterCallbacks installs the HTTP-domain natives (spec.md section
// 4.6's registry, populated here rather than in internal/native since
// these all reach into a *RequestContext the native package deliberately
// has no dependency on). Every native here follows the same
// argv[0]-is-result-or-verdict convention native/stdlib.go's pure
// natives use.
func RegisterCallbacks(r *native.Registry) error {
	fns := []struct {
		name string
		kind native.Kind
		fn   native.Func
	}{
		{"req.path", native.KindFunction, reqPath},
		{"req.method", native.KindFunction, reqMethod},
		{"req.header", native.KindFunction, reqHeader},
		{"respond", native.KindHandler, respond},
		{"log.info", native.KindHandler, logInfo},
	}
	for _, f := range fns {
		if _, err := r.Register(f.name, f.kind, f.fn); err != nil {
			return err
		}
	}
	return nil
}

func requestContext(p *native.Params) *RequestContext {
	return p.Runner.UserContext().(*RequestContext)
}

// packString hands a freshly produced string to the Runner's arena
// (spec.md section 5: a native "may read/write strings only through
// the runner's arena helpers") rather than allocating one of its own
// that the arena never owns or frees.
func packString(p *native.Params, s string) value.Register {
	return value.RegFromPtr(unsafe.Pointer(p.Runner.NewString(s)))
}

// reqPath: req.path() -> STRING, the request's URL path.
func reqPath(p *native.Params) error {
	rc := requestContext(p)
	p.Argv[0] = packString(p, rc.Request.URL.Path)
	return nil
}

// reqMethod: req.method() -> STRING, the HTTP method.
func reqMethod(p *native.Params) error {
	rc := requestContext(p)
	p.Argv[0] = packString(p, rc.Request.Method)
	return nil
}

// reqHeader: req.header(name STRING) -> STRING, empty if absent.
func reqHeader(p *native.Params) error {
	rc := requestContext(p)
	name := (*value.StringVal)(p.Argv[1].Ptr()).String()
	p.Argv[0] = packString(p, rc.Request.Header.Get(name))
	return nil
}

// respond: respond(status NUMBER, body STRING) -> HANDLER verdict true,
// staging status/body on the RequestContext for the server to write once
// the Runner returns (spec.md section 6's host-selects-verdict boundary
// stays inside the VM contract: the native never touches the
// ResponseWriter directly).
func respond(p *native.Params) error {
	rc := requestContext(p)
	status := int(p.Argv[1].Int())
	if status < 100 || status > 599 {
		status = http.StatusOK
	}
	body := (*value.StringVal)(p.Argv[2].Ptr()).String()
	rc.MarkHandled(status, body)
	p.Argv[0] = value.BoolRegister(true)
	return nil
}

// logInfo: log.info(message STRING), a HANDLER that always continues
// (verdict false) — it exists purely for its side effect, mirroring how
// spec.md section 6 lets a HANDLER native return false to mean "keep
// going".
func logInfo(p *native.Params) error {
	rc := requestContext(p)
	msg := (*value.StringVal)(p.Argv[1].Ptr()).String()
	rc.Log.Infof("%s: %s", rc.ID, msg)
	p.Argv[0] = value.BoolRegister(false)
	return nil
}
