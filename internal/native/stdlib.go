package native

import (
	"strings"
	"unsafe"

	"github.com/xzero/flowd/internal/value"
)

// RegisterStdlib installs the natives that need no host context at all:
// pure functions over values already in registers. Host-coupled natives
// (the req.*/respond/log.*/db.* family) are registered separately by
// internal/host, since they need to reach into the request-scoped
// RequestRunner.UserContext() this package deliberately knows nothing
// about.
//
// Each native here is bound to one static argument type rather than
// branching on a runtime tag: registers carry none (spec.md section 3),
// so which native a call site should use is exactly the kind of thing
// the emitter, not the callback, is responsible for deciding.
func RegisterStdlib(r *Registry) error {
	fns := []struct {
		name string
		kind Kind
		fn   Func
	}{
		{"str.upper", KindFunction, strUpper},
		{"str.lower", KindFunction, strLower},
		{"array.len.string", KindFunction, arrayLenString},
		{"array.len.number", KindFunction, arrayLenNumber},
	}
	for _, f := range fns {
		if _, err := r.Register(f.name, f.kind, f.fn); err != nil {
			return err
		}
	}
	return nil
}

func strUpper(p *Params) error {
	s := (*value.StringVal)(p.Argv[1].Ptr())
	p.Argv[0] = value.RegFromPtr(unsafe.Pointer(p.Runner.NewString(strings.ToUpper(s.String()))))
	return nil
}

func strLower(p *Params) error {
	s := (*value.StringVal)(p.Argv[1].Ptr())
	p.Argv[0] = value.RegFromPtr(unsafe.Pointer(p.Runner.NewString(strings.ToLower(s.String()))))
	return nil
}

func arrayLenString(p *Params) error {
	arr := (*value.ArrayString)(p.Argv[1].Ptr())
	p.Argv[0] = value.RegFromInt(int64(len(arr.Elements)))
	return nil
}

func arrayLenNumber(p *Params) error {
	arr := (*value.ArrayNumber)(p.Argv[1].Ptr())
	p.Argv[0] = value.RegFromInt(int64(len(arr.Elements)))
	return nil
}
