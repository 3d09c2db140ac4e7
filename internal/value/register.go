package value

import "unsafe"

// Register is the VM's opaque 64-bit cell (spec.md section 3). It holds
// either a signed 64-bit integer directly, or a pointer borrowed from a
// constant pool or a Runner arena, reinterpreted at the point of use
// according to the operand kind the emitter statically assigned to that
// cell. There is no tag bit anywhere in here: adding one would let the
// VM "notice" a type mismatch at run time, which is exactly the safety
// net spec.md section 3 says does not exist by design.
type Register uint64

// RegFromInt packs a signed 64-bit integer into a register cell.
func RegFromInt(n int64) Register { return Register(uint64(n)) }

// Int unpacks a register cell previously packed with RegFromInt, or
// interprets a boolean cell as 0/1.
func (r Register) Int() int64 { return int64(uint64(r)) }

// Bool interprets a register cell as a boolean per spec.md: booleans are
// numbers in {0,1}, and any non-zero cell is truthy for JN/JZ.
func (r Register) Bool() bool { return r != 0 }

func BoolRegister(b bool) Register {
	if b {
		return Register(1)
	}
	return Register(0)
}

// RegFromPtr packs a pointer borrowed from a constant pool or arena into
// a register cell. The pointee's lifetime is the Program (for constants)
// or the Runner (for arena values); the register never owns it.
func RegFromPtr(p unsafe.Pointer) Register { return Register(uintptr(p)) }

// Ptr unpacks a register cell previously packed with RegFromPtr.
func (r Register) Ptr() unsafe.Pointer { return unsafe.Pointer(uintptr(r)) }
