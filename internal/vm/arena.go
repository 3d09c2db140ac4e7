package vm

import "github.com/xzero/flowd/internal/value"

// Arena is the per-Runner allocator spec.md section 9's redesign flag
// calls for in place of the original engine's manual arena/heap object
// graph: a bump allocator addressed by append, not a set of individually
// freed heap nodes. Go's collector reclaims the backing slices when the
// Runner (and its Arena) become unreachable, so there is no matching
// Free — Reset exists only to let a host recycle a Runner without a
// fresh allocation per request.
type Arena struct {
	strBuf  []byte
	objects []any
}

func NewArena() *Arena { return &Arena{} }

// NewString copies s into the arena's shared byte buffer and returns a
// StringVal borrowing that slice, so a run's string churn (SADD,
// SSUBSTR, native results) shares one growing backing array instead of
// one allocation per intermediate string.
func (a *Arena) NewString(s string) *value.StringVal {
	start := len(a.strBuf)
	a.strBuf = append(a.strBuf, s...)
	sv := &value.StringVal{Bytes: a.strBuf[start:len(a.strBuf):len(a.strBuf)]}
	a.objects = append(a.objects, sv)
	return sv
}

func (a *Arena) NewArrayString(n int) *value.ArrayString {
	arr := value.NewArrayString(n)
	a.objects = append(a.objects, arr)
	return arr
}

func (a *Arena) NewArrayNumber(n int) *value.ArrayNumber {
	arr := value.NewArrayNumber(n)
	a.objects = append(a.objects, arr)
	return arr
}

// Reset drops every object the arena has handed out. Callers must not
// hold onto values obtained before Reset — the same contract the
// original arena/index redesign gives the host (spec.md section 9).
func (a *Arena) Reset() {
	a.strBuf = a.strBuf[:0]
	a.objects = a.objects[:0]
}

// Len reports how many objects the arena is currently holding, for the
// host's diagnostics (spec.md section 5's resource-exhaustion guard).
func (a *Arena) Len() int { return len(a.objects) }
