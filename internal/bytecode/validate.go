package bytecode

import (
	"fmt"

	"github.com/xzero/flowd/internal/flowerrors"
)

// Validate checks the Program invariants from spec.md section 3. A
// Program that fails validation must never be executed (spec.md section
// 7: malformed bytecode is fatal at load time, not at run time) — the
// host is expected to call this once after loading or assembling a
// Program and refuse to construct any Runner over it otherwise.
func (p *Program) Validate() error {
	for _, h := range p.Handlers {
		for pc, instr := range h.Code {
			op := instr.OpCode()
			if !op.Valid() {
				return flowerrors.MalformedBytecode(loc(h.Name, pc), "unknown opcode %d", uint16(op))
			}
			if err := validateOperands(p, h, pc, instr); err != nil {
				return err
			}
		}
	}
	return nil
}

func loc(handler string, pc int) flowerrors.SourceLocation {
	return flowerrors.SourceLocation{Handler: handler, Detail: fmt.Sprintf("pc %d", pc)}
}

func inRange(i, n int) bool { return i >= 0 && i < n }

func validateOperands(p *Program, h *Handler, pc int, instr Instruction) error {
	op := instr.OpCode()
	a, b, c := int(instr.A()), int(instr.B()), int(instr.C())
	regOK := func(r int) bool { return inRange(r, h.RegisterCount) }

	switch op {
	case OP_JMP:
		if !inRange(b, len(h.Code)) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "JMP target %d out of range", b)
		}
	case OP_JN, OP_JZ:
		if !regOK(a) || !inRange(b, len(h.Code)) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "%s operands out of range", op)
		}
	case OP_NCONST:
		if !regOK(a) || !inRange(b, p.Numbers.Len()) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "NCONST pool index %d out of range", b)
		}
	case OP_SCONST:
		if !regOK(a) || !inRange(b, p.Strings.Len()) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "SCONST pool index %d out of range", b)
		}
	case OP_PCONST:
		if !regOK(a) || !inRange(b, p.IPs.Len()) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "PCONST pool index %d out of range", b)
		}
	case OP_CCONST:
		if !regOK(a) || !inRange(b, p.Cidrs.Len()) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "CCONST pool index %d out of range", b)
		}
	case OP_SREGMATCH:
		if !regOK(a) || !regOK(b) || !inRange(c, p.Regexes.Len()) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "SREGMATCH regex pool index %d out of range", c)
		}
	case OP_SMATCHEQ, OP_SMATCHBEG, OP_SMATCHEND, OP_SMATCHR:
		if !regOK(a) || !inRange(b, len(p.Matches)) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "match table index %d out of range", b)
		}
		if err := validateMatchTargets(p.Matches[b], len(h.Code)); err != nil {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "%v", err)
		}
	case OP_CALL, OP_HANDLER:
		if !inRange(a, len(p.Natives)) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "native index %d out of range", a)
		}
		wantKind := NativeFunction
		if op == OP_HANDLER {
			wantKind = NativeHandler
		}
		if p.Natives[a].Kind != wantKind {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "native %q is a %s, not a %s", p.Natives[a].Name, p.Natives[a].Kind, wantKind)
		}
		base := c
		argc := b
		if !regOK(base) || (argc > 0 && !regOK(base+argc-1)) {
			return flowerrors.MalformedBytecode(loc(h.Name, pc), "%s argument window out of register range", op)
		}
	}
	return nil
}

func validateMatchTargets(m *MatchTable, codeLen int) error {
	if !inRange(m.Else, codeLen) {
		return flowerrors.MalformedBytecode(flowerrors.SourceLocation{Detail: "match table"}, "else target %d out of range", m.Else)
	}
	for _, e := range m.Entries {
		if !inRange(e.Target, codeLen) {
			return flowerrors.MalformedBytecode(flowerrors.SourceLocation{Detail: "match table"}, "entry target %d out of range", e.Target)
		}
	}
	return nil
}
