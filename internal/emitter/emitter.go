// Package emitter lowers ir.Program into a bytecode.Program: register
// assignment, block linearization with branch-target fixups, constant
// pool interning, and match-table construction (spec.md section 4.4).
//
// Register assignment here is deliberately not the linear-scan
// allocator with live-range coalescing a native-code backend would use.
// Flow handlers are short, loop-free (branches only, per spec.md
// section 3's "no loops beyond if/match"), and register pressure is
// bounded by the number of distinct values in one handler, so each
// local and each SSA value simply gets its own register for the
// handler's lifetime — the same "one slot per temporary, no reuse"
// shape sentra/internal/vmregister's older register compiler stub was
// aiming for before it was abandoned as unimplemented.
package emitter

import (
	"fmt"

	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/ir"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

// Emit lowers prog into a bytecode.Program, resolving native references
// against reg (spec.md section 4.4 step 4: "native call sites are
// resolved against the registry by name at emission time"). The result
// is validated before being returned, per spec.md section 4.4 step 5.
func Emit(prog *ir.Program, reg *native.Registry) (*bytecode.Program, error) {
	out := bytecode.NewProgram()
	for _, fn := range prog.Functions {
		h, err := (&funcEmitter{prog: out, reg: reg, fn: fn}).run()
		if err != nil {
			return nil, fmt.Errorf("emit handler %q: %w", fn.Name, err)
		}
		out.AddHandler(h)
	}
	if _, err := out.Finalize(); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// jumpFixup records a JMP/JZ instruction whose B operand (the branch
// target) is patched once every block's starting PC is known — every
// branch in this instruction set encodes its target in B, so there is
// only ever one field to patch.
type jumpFixup struct {
	index  int
	target ir.BlockID
}

type matchFixup struct {
	table   *bytecode.MatchTable
	entry   int // index into table.Entries, or -1 for Else
	target  ir.BlockID
}

type funcEmitter struct {
	prog *bytecode.Program
	reg  *native.Registry
	fn   *ir.Function

	code       []bytecode.Instruction
	regOf      map[ir.ValueID]int
	blockStart map[ir.BlockID]int
	nextReg    int

	jumpFixups  []jumpFixup
	matchFixups []matchFixup
}

func (e *funcEmitter) run() (*bytecode.Handler, error) {
	e.regOf = make(map[ir.ValueID]int)
	e.blockStart = make(map[ir.BlockID]int)
	e.nextReg = len(e.fn.LocalTypes) // registers [0, numLocals) are the local slots

	for _, blk := range e.fn.Blocks {
		e.blockStart[blk.ID] = len(e.code)
		for _, instr := range blk.Instrs {
			if err := e.emitInstr(instr); err != nil {
				return nil, err
			}
		}
	}

	for _, fx := range e.jumpFixups {
		target, ok := e.blockStart[fx.target]
		if !ok {
			return nil, fmt.Errorf("branch to unemitted block %d", fx.target)
		}
		e.code[fx.index] = patchB(e.code[fx.index], target)
	}
	for _, fx := range e.matchFixups {
		target, ok := e.blockStart[fx.target]
		if !ok {
			return nil, fmt.Errorf("match arm targets unemitted block %d", fx.target)
		}
		if fx.entry < 0 {
			fx.table.Else = target
		} else {
			fx.table.Entries[fx.entry].Target = target
		}
	}

	return &bytecode.Handler{
		Name:          e.fn.Name,
		RegisterCount: e.nextReg,
		Code:          e.code,
	}, nil
}

func patchB(instr bytecode.Instruction, target int) bytecode.Instruction {
	return bytecode.Encode(instr.OpCode(), instr.A(), uint16(target), instr.C())
}

func (e *funcEmitter) allocReg() int {
	r := e.nextReg
	e.nextReg++
	return r
}

func (e *funcEmitter) regFor(id ir.ValueID) (int, error) {
	r, ok := e.regOf[id]
	if !ok {
		return 0, fmt.Errorf("value %d used before it was assigned a register", id)
	}
	return r, nil
}

func (e *funcEmitter) append(instr bytecode.Instruction) int {
	e.code = append(e.code, instr)
	return len(e.code) - 1
}

func (e *funcEmitter) emitInstr(instr *ir.Instr) error {
	switch instr.Kind {
	case ir.IConstNumber:
		dst := e.allocReg()
		idx := e.prog.Numbers.Intern(instr.NumberLit)
		e.append(bytecode.Encode(bytecode.OP_NCONST, uint16(dst), uint16(idx), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IConstString:
		dst := e.allocReg()
		idx := e.prog.Strings.Intern(instr.StringLit)
		e.append(bytecode.Encode(bytecode.OP_SCONST, uint16(dst), uint16(idx), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IConstBool:
		dst := e.allocReg()
		imm := uint16(0)
		if instr.BoolLit {
			imm = 1
		}
		e.append(bytecode.Encode(bytecode.OP_IMOV, uint16(dst), imm, 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IConstIP:
		dst := e.allocReg()
		ipv, ok := value.ParseIP(instr.IPLit)
		if !ok {
			return fmt.Errorf("invalid IP literal %q", instr.IPLit)
		}
		idx := e.prog.IPs.Intern(ipv)
		e.append(bytecode.Encode(bytecode.OP_PCONST, uint16(dst), uint16(idx), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IConstCidr:
		dst := e.allocReg()
		cv, ok := value.ParseCIDR(instr.CidrLit)
		if !ok {
			return fmt.Errorf("invalid CIDR literal %q", instr.CidrLit)
		}
		idx := e.prog.Cidrs.Intern(cv)
		e.append(bytecode.Encode(bytecode.OP_CCONST, uint16(dst), uint16(idx), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IConstRegex:
		// No register-load form exists for regex values (spec.md
		// section 4.2's SREGMATCH takes a regex pool index directly in
		// its C operand). This node stays in the instruction stream so
		// FindProducer can recover its literal text from the =~ call
		// site that consumes it (emitRegexMatch below); it never
		// occupies a register itself.
		return nil

	case ir.ILoad:
		dst := e.allocReg()
		e.append(bytecode.Encode(bytecode.OP_MOV, uint16(dst), uint16(instr.Slot), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IStore:
		src, err := e.regFor(instr.Args[0])
		if err != nil {
			return err
		}
		e.append(bytecode.Encode(bytecode.OP_MOV, uint16(instr.Slot), uint16(src), 0))
		return nil

	case ir.IUnOp:
		x, err := e.regFor(instr.Args[0])
		if err != nil {
			return err
		}
		dst := e.allocReg()
		e.append(bytecode.Encode(instr.Op, uint16(dst), uint16(x), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IBinOp:
		return e.emitBinOp(instr)

	case ir.ICall, ir.IHandlerCall:
		return e.emitCall(instr)

	case ir.IHandlerRefConst:
		// No HCONST opcode exists in spec.md section 4.2; handler
		// references are only reachable today via HandlerRefExpr in the
		// original engine's inlining path, which this engine does not
		// implement (see DESIGN.md, "handler references"). Rejected
		// rather than silently emitting a meaningless immediate.
		return fmt.Errorf("loading a bare handler reference into a register is not supported")

	case ir.IArrayNew:
		dst := e.allocReg()
		op := bytecode.OP_ASNEW
		if instr.ArrayElemType == value.NUMBER {
			op = bytecode.OP_ANNEW
		}
		e.append(bytecode.Encode(op, uint16(dst), uint16(instr.ArraySize), 0))
		e.regOf[instr.ID] = dst
		return nil

	case ir.IArrayInit:
		arr, err := e.regFor(instr.Args[0])
		if err != nil {
			return err
		}
		elem, err := e.regFor(instr.Args[1])
		if err != nil {
			return err
		}
		op := bytecode.OP_ASINIT
		if newInstr := e.fn.FindProducer(instr.Args[0]); newInstr != nil && newInstr.ArrayElemType == value.NUMBER {
			op = bytecode.OP_ANINIT
		}
		e.append(bytecode.Encode(op, uint16(arr), uint16(instr.ArrayIndex), uint16(elem)))
		return nil

	case ir.IJump:
		idx := e.append(bytecode.Encode(bytecode.OP_JMP, 0, 0, 0))
		e.jumpFixups = append(e.jumpFixups, jumpFixup{index: idx, target: instr.Target})
		return nil

	case ir.ICondBranch:
		cond, err := e.regFor(instr.Cond)
		if err != nil {
			return err
		}
		idx := e.append(bytecode.Encode(bytecode.OP_JZ, uint16(cond), 0, 0))
		e.jumpFixups = append(e.jumpFixups, jumpFixup{index: idx, target: instr.ElseB})
		jidx := e.append(bytecode.Encode(bytecode.OP_JMP, 0, 0, 0))
		e.jumpFixups = append(e.jumpFixups, jumpFixup{index: jidx, target: instr.Then})
		return nil

	case ir.IMatch:
		return e.emitMatch(instr)

	case ir.IRet:
		if instr.RetValue == ir.NoValue {
			// implicit "ret false": EXIT on a fresh false-valued register
			dst := e.allocReg()
			e.append(bytecode.Encode(bytecode.OP_IMOV, uint16(dst), 0, 0))
			e.append(bytecode.Encode(bytecode.OP_EXIT, uint16(dst), 0, 0))
			return nil
		}
		r, err := e.regFor(instr.RetValue)
		if err != nil {
			return err
		}
		e.append(bytecode.Encode(bytecode.OP_EXIT, uint16(r), 0, 0))
		return nil
	}
	return fmt.Errorf("unsupported IR instruction kind %d", instr.Kind)
}

func (e *funcEmitter) emitBinOp(instr *ir.Instr) error {
	if instr.Op == bytecode.OP_SREGMATCH {
		return e.emitRegexMatch(instr)
	}
	l, err := e.regFor(instr.Args[0])
	if err != nil {
		return err
	}
	r, err := e.regFor(instr.Args[1])
	if err != nil {
		return err
	}
	dst := e.allocReg()
	e.append(bytecode.Encode(instr.Op, uint16(dst), uint16(l), uint16(r)))
	e.regOf[instr.ID] = dst
	return nil
}

// emitRegexMatch handles =~ specially: its right operand is a regex
// literal that never got a register (see IConstRegex above), so it's
// interned into the regex pool directly from the IR node rather than
// looked up in regOf.
func (e *funcEmitter) emitRegexMatch(instr *ir.Instr) error {
	subj, err := e.regFor(instr.Args[0])
	if err != nil {
		return err
	}
	regexNode := e.fn.FindProducer(instr.Args[1])
	if regexNode == nil || regexNode.Kind != ir.IConstRegex {
		return fmt.Errorf("=~ right-hand side did not lower to a regex literal")
	}
	idx, err := e.prog.Regexes.Intern(regexNode.RegexLit)
	if err != nil {
		return err
	}
	dst := e.allocReg()
	e.append(bytecode.Encode(bytecode.OP_SREGMATCH, uint16(dst), uint16(subj), uint16(idx)))
	e.regOf[instr.ID] = dst
	return nil
}

// emitCall lowers a native FUNCTION/HANDLER invocation. Per the
// native.Params convention (spec.md's callback ABI), argv occupies one
// contiguous register window with argv[0] doubling as the in/out
// result or verdict slot.
func (e *funcEmitter) emitCall(instr *ir.Instr) error {
	sym, ok := e.reg.Lookup(instr.NativeName)
	if !ok {
		return fmt.Errorf("undefined native %q", instr.NativeName)
	}
	wantKind := native.KindFunction
	if instr.Kind == ir.IHandlerCall {
		wantKind = native.KindHandler
	}
	if sym.Kind != wantKind {
		return fmt.Errorf("native %q is a %s, not a %s", instr.NativeName, sym.Kind, wantKind)
	}

	base := e.nextReg
	for _, a := range instr.Args {
		src, err := e.regFor(a)
		if err != nil {
			return err
		}
		dst := e.allocReg()
		e.append(bytecode.Encode(bytecode.OP_MOV, uint16(dst), uint16(src), 0))
	}

	nativeIdx := e.internNative(sym, nativeKindOf(sym.Kind))
	op := bytecode.OP_CALL
	if instr.Kind == ir.IHandlerCall {
		op = bytecode.OP_HANDLER
	}
	e.append(bytecode.Encode(op, uint16(nativeIdx), uint16(len(instr.Args)), uint16(base)))
	e.regOf[instr.ID] = base
	return nil
}

func nativeKindOf(k native.Kind) bytecode.NativeKind {
	switch k {
	case native.KindHandler:
		return bytecode.NativeHandler
	case native.KindVariable:
		return bytecode.NativeVariable
	default:
		return bytecode.NativeFunction
	}
}

// internNative records sym in the Program's native-symbol table at
// sym.Index — the registry's own dense id for it — rather than at the
// position a first-use-order table would otherwise assign it.
// CALL/HANDLER instructions encode this same index (emitCall, above),
// so a compiled Program's native table entry i is always the native the
// runtime registry's ByIndex(i) will resolve to, whether or not every
// registered native is actually referenced by this program.
func (e *funcEmitter) internNative(sym native.Symbol, kind bytecode.NativeKind) int {
	for len(e.prog.Natives) <= sym.Index {
		e.prog.Natives = append(e.prog.Natives, bytecode.NativeSymbol{})
	}
	e.prog.Natives[sym.Index] = bytecode.NativeSymbol{Name: sym.Name, Kind: kind}
	return sym.Index
}

func (e *funcEmitter) emitMatch(instr *ir.Instr) error {
	subj, err := e.regFor(instr.MatchSubj)
	if err != nil {
		return err
	}

	table := &bytecode.MatchTable{Op: matchOpFor(instr.MatchOp)}
	for _, c := range instr.Cases {
		entry := bytecode.MatchEntry{Target: 0} // Target patched below once block PCs are known
		if instr.MatchOp == ir.MatchREGEX {
			re, err := value.CompileRegex(c.Label)
			if err != nil {
				return err
			}
			entry.Regex = re
		} else {
			entry.Literal = value.NewString(c.Label)
		}
		table.Entries = append(table.Entries, entry)
	}
	idx := e.prog.AddMatchTable(table)

	for i, c := range instr.Cases {
		e.matchFixups = append(e.matchFixups, matchFixup{table: table, entry: i, target: c.Block})
	}
	e.matchFixups = append(e.matchFixups, matchFixup{table: table, entry: -1, target: instr.MatchElse})

	// SMATCH* is a pure control transfer (spec.md section 4.2:
	// "SMATCH*(R,M)") — it carries no destination register, only the
	// subject register and the match-table index.
	op := matchInstrFor(instr.MatchOp)
	e.append(bytecode.Encode(op, uint16(subj), uint16(idx), 0))
	return nil
}

func matchOpFor(op ir.MatchOp) bytecode.MatchOp {
	switch op {
	case ir.MatchPREFIX:
		return bytecode.MatchPREFIX
	case ir.MatchSUFFIX:
		return bytecode.MatchSUFFIX
	case ir.MatchREGEX:
		return bytecode.MatchREGEX
	default:
		return bytecode.MatchEQ
	}
}

func matchInstrFor(op ir.MatchOp) bytecode.OpCode {
	switch op {
	case ir.MatchPREFIX:
		return bytecode.OP_SMATCHBEG
	case ir.MatchSUFFIX:
		return bytecode.OP_SMATCHEND
	case ir.MatchREGEX:
		return bytecode.OP_SMATCHR
	default:
		return bytecode.OP_SMATCHEQ
	}
}
