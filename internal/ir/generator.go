package ir

import (
	"fmt"

	"github.com/xzero/flowd/internal/ast"
	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/value"
)

// Generator lowers an ast.Unit into an ir.Program. It mirrors the shape
// of IRGenerator.cpp's single Unit -> per-symbol codegen pass, adapted
// to the closed ast.Node union instead of visitor double-dispatch.
type Generator struct {
	globals map[string]*ast.Node // name -> initializer; see ir.go's Program doc comment
	fn      *Function
	cur     *Block
	locals  map[string]int
	exitTrue BlockID // lazily created per function; shared target for "handler returned true"
	hasExitTrue bool
}

func NewGenerator() *Generator {
	return &Generator{globals: map[string]*ast.Node{}}
}

// Generate lowers a whole unit. It returns an error on the first
// unsupported construct (spec.md section 7: generation aborts and
// produces no Program rather than emitting a partially-correct one).
func Generate(unit *ast.Unit) (*Program, error) {
	g := NewGenerator()
	for _, v := range unit.Globals {
		g.globals[v.Name] = v.Init
	}
	prog := &Program{}
	for _, h := range unit.Handlers {
		fn, err := g.generateHandler(h)
		if err != nil {
			return nil, fmt.Errorf("handler %q: %w", h.Name, err)
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func (g *Generator) generateHandler(h *ast.HandlerDecl) (*Function, error) {
	g.fn = NewFunction(h.Name)
	g.locals = map[string]int{}
	g.hasExitTrue = false
	entry := g.fn.NewBlock("entry")
	g.fn.Entry = entry.ID
	g.cur = entry

	for _, stmt := range h.Body {
		if err := g.genStmt(stmt); err != nil {
			return nil, err
		}
	}
	g.terminateFallthrough()
	return g.fn, nil
}

// terminateFallthrough closes the current block with the handler's
// implicit "ret false" if control reaches the end of the body without
// an explicit exit, per spec.md section 4.3.
func (g *Generator) terminateFallthrough() {
	if g.cur.Terminator() != nil {
		return
	}
	g.emitTerm(&Instr{Kind: IRet, RetValue: NoValue})
}

func (g *Generator) exitTrueBlock() BlockID {
	if g.hasExitTrue {
		return g.exitTrue
	}
	b := g.fn.NewBlock("exit_true")
	id := g.fn.NewValue()
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: IConstBool, Type: value.BOOLEAN, BoolLit: true})
	b.Instrs = append(b.Instrs, &Instr{Kind: IRet, RetValue: id})
	g.exitTrue = b.ID
	g.hasExitTrue = true
	return g.exitTrue
}

func (g *Generator) emit(instr *Instr) ValueID {
	instr.ID = g.fn.NewValue()
	g.cur.Instrs = append(g.cur.Instrs, instr)
	return instr.ID
}

func (g *Generator) emitVoid(instr *Instr) {
	instr.ID = g.fn.NewValue()
	g.cur.Instrs = append(g.cur.Instrs, instr)
}

func (g *Generator) emitTerm(instr *Instr) {
	g.cur.Instrs = append(g.cur.Instrs, instr)
}

// localSlot returns the register-independent local slot for name,
// reserving one in Function.LocalTypes (via NewLocal; there is no alloca
// instruction) the first time it's referenced — either as an explicit
// local or as an inlined global. spec.md section 4.3 describes allocas
// as an upfront pass; we reserve slots lazily at first use instead, and
// the emitter gives every slot its register for the whole handler (no
// loops means no back-edge can observe a slot before its declaration).
//
// A name already bound to a slot must be reused at the same type:
// spec.md section 4.3's assign rule ("lhs and rhs types must be
// identical") applies to reassignment too, since Register carries no
// runtime type tag to catch a later mismatch (spec.md section 3). This
// mirrors IRGenerator.cpp's AssignStmt visitor, which asserts
// lhs->type() == rhs->type() at the same point.
func (g *Generator) localSlot(name string, t value.Kind) (int, error) {
	if slot, ok := g.locals[name]; ok {
		if g.fn.LocalTypes[slot] != t {
			return 0, fmt.Errorf("%q was declared as %s, cannot assign %s", name, g.fn.LocalTypes[slot], t)
		}
		return slot, nil
	}
	slot := g.fn.NewLocal(t)
	g.locals[name] = slot
	return slot, nil
}

func (g *Generator) genStmt(n *ast.Node) error {
	switch n.Kind {
	case ast.KAssign:
		val, err := g.genExpr(n.Operand)
		if err != nil {
			return err
		}
		slot, err := g.localSlot(n.Name, n.Operand.Type)
		if err != nil {
			return err
		}
		g.emitVoid(&Instr{Kind: IStore, Slot: slot, Args: []ValueID{val}})
		return nil

	case ast.KHandlerCall:
		verdict, err := g.genCall(n, IHandlerCall)
		if err != nil {
			return err
		}
		return g.splitOnVerdict(verdict)

	case ast.KSourceHandlerCall:
		// Unimplemented in the original engine (IRGenerator.cpp leaves
		// this as "TODO: inline source handler"); spec.md sections 4.3
		// and 9 mark it reserved. Rejected here rather than silently
		// miscompiled.
		return fmt.Errorf("source handler invocation %q is not supported", n.Name)

	case ast.KCall:
		_, err := g.genCall(n, ICall)
		return err

	case ast.KIf:
		return g.genIf(n)

	case ast.KMatch:
		return g.genMatch(n)

	default:
		_, err := g.genExpr(n)
		return err
	}
}

// splitOnVerdict implements the HANDLER short-circuit rule: if the
// callback's verdict is true, execution exits the whole run with true
// immediately; otherwise it falls through to the next statement.
func (g *Generator) splitOnVerdict(verdict ValueID) error {
	cont := g.fn.NewBlock("after_handler")
	g.emitTerm(&Instr{Kind: ICondBranch, Cond: verdict, Then: g.exitTrueBlock(), ElseB: cont.ID})
	g.cur = cont
	return nil
}

func (g *Generator) genIf(n *ast.Node) error {
	cond, err := g.genExpr(n.Cond)
	if err != nil {
		return err
	}
	thenBlk := g.fn.NewBlock("if_then")
	cont := g.fn.NewBlock("if_cont")

	var elseTarget BlockID
	if n.Else != nil {
		elseBlk := g.fn.NewBlock("if_else")
		elseTarget = elseBlk.ID
		g.emitTerm(&Instr{Kind: ICondBranch, Cond: cond, Then: thenBlk.ID, ElseB: elseTarget})
		g.cur = elseBlk
		if err := g.genStmt(n.Else); err != nil {
			return err
		}
		if g.cur.Terminator() == nil {
			g.emitTerm(&Instr{Kind: IJump, Target: cont.ID})
		}
	} else {
		elseTarget = cont.ID
		g.emitTerm(&Instr{Kind: ICondBranch, Cond: cond, Then: thenBlk.ID, ElseB: elseTarget})
	}

	g.cur = thenBlk
	if err := g.genStmt(n.Then); err != nil {
		return err
	}
	if g.cur.Terminator() == nil {
		g.emitTerm(&Instr{Kind: IJump, Target: cont.ID})
	}

	g.cur = cont
	return nil
}

func (g *Generator) genMatch(n *ast.Node) error {
	subject, err := g.genExpr(n.MatchSubject)
	if err != nil {
		return err
	}
	cont := g.fn.NewBlock("match_cont")

	arms := make([]MatchArm, 0, len(n.Cases))
	for _, c := range n.Cases {
		blk := g.fn.NewBlock("match_case_" + c.Label)
		save := g.cur
		g.cur = blk
		if err := g.genStmt(c.Block); err != nil {
			return err
		}
		if g.cur.Terminator() == nil {
			g.emitTerm(&Instr{Kind: IJump, Target: cont.ID})
		}
		g.cur = save
		arms = append(arms, MatchArm{Label: c.Label, Block: blk.ID})
	}

	matchElse := cont.ID
	if n.MatchElse != nil {
		elseBlk := g.fn.NewBlock("match_else")
		save := g.cur
		g.cur = elseBlk
		if err := g.genStmt(n.MatchElse); err != nil {
			return err
		}
		if g.cur.Terminator() == nil {
			g.emitTerm(&Instr{Kind: IJump, Target: cont.ID})
		}
		g.cur = save
		matchElse = elseBlk.ID
	}

	op, err := matchOpFor(n.MatchOp)
	if err != nil {
		return err
	}
	g.emitTerm(&Instr{
		Kind:      IMatch,
		MatchSubj: subject,
		MatchOp:   op,
		Cases:     arms,
		MatchElse: matchElse,
		Cont:      cont.ID,
	})
	g.cur = cont
	return nil
}

func matchOpFor(op ast.MatchOp) (MatchOp, error) {
	switch op {
	case ast.MatchEQ:
		return MatchEQ, nil
	case ast.MatchPREFIX:
		return MatchPREFIX, nil
	case ast.MatchSUFFIX:
		return MatchSUFFIX, nil
	case ast.MatchREGEX:
		return MatchREGEX, nil
	default:
		return 0, fmt.Errorf("unsupported match operation %d", op)
	}
}

// genCall lowers a builtin FUNCTION or HANDLER invocation. Per the
// native.Params convention, argv[0] is the in/out result or verdict
// slot: Args[0] here is the seed value written into argv[0] before the
// call, and the returned ValueID is argv[0]'s value after the call
// returns.
func (g *Generator) genCall(n *ast.Node, kind InstrKind) (ValueID, error) {
	args := make([]ValueID, 0, len(n.Args)+1)
	seed := g.emit(&Instr{Kind: IConstBool, Type: value.BOOLEAN, BoolLit: false})
	args = append(args, seed)
	for _, a := range n.Args {
		v, err := g.genExpr(a)
		if err != nil {
			return NoValue, err
		}
		args = append(args, v)
	}
	return g.emit(&Instr{Kind: kind, Type: n.Type, NativeName: n.Name, Args: args}), nil
}

func (g *Generator) genExpr(n *ast.Node) (ValueID, error) {
	switch n.Kind {
	case ast.KLiteralNumber:
		return g.emit(&Instr{Kind: IConstNumber, Type: value.NUMBER, NumberLit: n.NumberLit}), nil
	case ast.KLiteralString:
		return g.emit(&Instr{Kind: IConstString, Type: value.STRING, StringLit: n.StringLit}), nil
	case ast.KLiteralBool:
		return g.emit(&Instr{Kind: IConstBool, Type: value.BOOLEAN, BoolLit: n.BoolLit}), nil
	case ast.KLiteralIP:
		return g.emit(&Instr{Kind: IConstIP, Type: value.IP, IPLit: n.IPLit}), nil
	case ast.KLiteralCidr:
		return g.emit(&Instr{Kind: IConstCidr, Type: value.CIDR, CidrLit: n.CidrLit}), nil
	case ast.KLiteralRegex:
		return g.emit(&Instr{Kind: IConstRegex, Type: value.REGEX, RegexLit: n.RegexLit}), nil

	case ast.KVarRef:
		return g.genVarRef(n)

	case ast.KBinary:
		return g.genBinary(n)

	case ast.KUnary:
		return g.genUnary(n)

	case ast.KCall:
		return g.genCall(n, ICall)

	case ast.KArrayLiteral:
		return g.genArrayLiteral(n)

	case ast.KHandlerRef:
		return g.emit(&Instr{Kind: IHandlerRefConst, Type: value.HANDLER_REF, HandlerRefName: n.Name}), nil

	default:
		return NoValue, fmt.Errorf("node kind %d is not a value-producing expression", n.Kind)
	}
}

func (g *Generator) genVarRef(n *ast.Node) (ValueID, error) {
	if _, isLocal := g.locals[n.Name]; !isLocal {
		if init, isGlobal := g.globals[n.Name]; isGlobal {
			// Inline the global's initializer at first use within this
			// handler and remember the resulting local slot, so later
			// references in the same handler reuse the same alloca
			// instead of re-evaluating the initializer.
			val, err := g.genExpr(init)
			if err != nil {
				return NoValue, fmt.Errorf("global %q: %w", n.Name, err)
			}
			slot, err := g.localSlot(n.Name, n.Type)
			if err != nil {
				return NoValue, fmt.Errorf("global %q: %w", n.Name, err)
			}
			g.emitVoid(&Instr{Kind: IStore, Slot: slot, Args: []ValueID{val}})
		} else {
			return NoValue, fmt.Errorf("reference to undeclared variable %q", n.Name)
		}
	}
	slot := g.locals[n.Name]
	return g.emit(&Instr{Kind: ILoad, Type: n.Type, Slot: slot}), nil
}

func (g *Generator) genUnary(n *ast.Node) (ValueID, error) {
	x, err := g.genExpr(n.Operand)
	if err != nil {
		return NoValue, err
	}
	var op bytecode.OpCode
	switch n.UnOp {
	case ast.OpNeg:
		op = bytecode.OP_NNEG
	case ast.OpNot:
		op = bytecode.OP_BNOT
	default:
		return NoValue, fmt.Errorf("unsupported unary operator %q", n.UnOp)
	}
	return g.emit(&Instr{Kind: IUnOp, Type: n.Type, Op: op, Args: []ValueID{x}}), nil
}

func (g *Generator) genBinary(n *ast.Node) (ValueID, error) {
	// =~ has no general register form: the regex operand must be a
	// literal so the emitter can intern it into the regex pool and
	// reference it by index directly from SREGMATCH's C operand,
	// mirroring the "regex reaches the VM only via pool index, never a
	// loaded register value" shape spec.md section 4.2 gives SREGMATCH.
	if n.BinOp == ast.OpRegexMatch {
		if n.Right.Kind != ast.KLiteralRegex {
			return NoValue, fmt.Errorf("=~ right-hand operand must be a regex literal")
		}
		subj, err := g.genExpr(n.Left)
		if err != nil {
			return NoValue, err
		}
		regexConst, err := g.genExpr(n.Right)
		if err != nil {
			return NoValue, err
		}
		return g.emit(&Instr{Kind: IBinOp, Type: value.BOOLEAN, Op: bytecode.OP_SREGMATCH, Args: []ValueID{subj, regexConst}}), nil
	}

	l, err := g.genExpr(n.Left)
	if err != nil {
		return NoValue, err
	}
	r, err := g.genExpr(n.Right)
	if err != nil {
		return NoValue, err
	}
	op, err := opcodeForBinary(n.BinOp, n.Left.Type, n.Right.Type)
	if err != nil {
		return NoValue, err
	}
	return g.emit(&Instr{Kind: IBinOp, Type: n.Type, Op: op, Args: []ValueID{l, r}}), nil
}

// opcodeForBinary maps a source operator plus its operand types to the
// single VM opcode spec.md section 4.2's static per-type table assigns
// it. An operator with no entry for its operand types is an unsupported
// operator (spec.md section 7): generation must abort, not guess.
func opcodeForBinary(op ast.BinOp, lt, rt value.Kind) (bytecode.OpCode, error) {
	switch {
	case lt == value.NUMBER && rt == value.NUMBER:
		switch op {
		case ast.OpAdd:
			return bytecode.OP_NADD, nil
		case ast.OpSub:
			return bytecode.OP_NSUB, nil
		case ast.OpMul:
			return bytecode.OP_NMUL, nil
		case ast.OpDiv:
			return bytecode.OP_NDIV, nil
		case ast.OpRem:
			return bytecode.OP_NREM, nil
		case ast.OpShl:
			return bytecode.OP_NSHL, nil
		case ast.OpShr:
			return bytecode.OP_NSHR, nil
		case ast.OpPow:
			return bytecode.OP_NPOW, nil
		case ast.OpBitAnd:
			return bytecode.OP_NAND, nil
		case ast.OpBitOr:
			return bytecode.OP_NOR, nil
		case ast.OpBitXor:
			return bytecode.OP_NXOR, nil
		case ast.OpEq:
			return bytecode.OP_NCMPEQ, nil
		case ast.OpNe:
			return bytecode.OP_NCMPNE, nil
		case ast.OpLe:
			return bytecode.OP_NCMPLE, nil
		case ast.OpGe:
			return bytecode.OP_NCMPGE, nil
		case ast.OpLt:
			return bytecode.OP_NCMPLT, nil
		case ast.OpGt:
			return bytecode.OP_NCMPGT, nil
		}

	case lt == value.BOOLEAN && rt == value.BOOLEAN:
		switch op {
		case ast.OpAnd:
			return bytecode.OP_BAND, nil
		case ast.OpOr:
			return bytecode.OP_BOR, nil
		case ast.OpXor:
			return bytecode.OP_BXOR, nil
		}

	case lt == value.STRING && rt == value.STRING:
		switch op {
		case ast.OpConcat:
			return bytecode.OP_SADD, nil
		case ast.OpEq:
			return bytecode.OP_SCMPEQ, nil
		case ast.OpNe:
			return bytecode.OP_SCMPNE, nil
		case ast.OpLe:
			return bytecode.OP_SCMPLE, nil
		case ast.OpGe:
			return bytecode.OP_SCMPGE, nil
		case ast.OpLt:
			return bytecode.OP_SCMPLT, nil
		case ast.OpGt:
			return bytecode.OP_SCMPGT, nil
		case ast.OpBeginsWith:
			return bytecode.OP_SCMPBEG, nil
		case ast.OpEndsWith:
			return bytecode.OP_SCMPEND, nil
		case ast.OpContains:
			return bytecode.OP_SCONTAINS, nil
		}

	case lt == value.IP && rt == value.IP:
		switch op {
		case ast.OpEq:
			return bytecode.OP_PCMPEQ, nil
		case ast.OpNe:
			return bytecode.OP_PCMPNE, nil
		}

	case lt == value.IP && rt == value.CIDR:
		if op == ast.OpContains {
			return bytecode.OP_PINCIDR, nil
		}
	}
	return 0, fmt.Errorf("unsupported operator %q for operand types %s/%s", op, lt, rt)
}

func (g *Generator) genArrayLiteral(n *ast.Node) (ValueID, error) {
	elemType := value.STRING
	newOp := IArrayNew
	if n.Type == value.ARRAY_NUMBER {
		elemType = value.NUMBER
	}
	arr := g.emit(&Instr{Kind: newOp, Type: n.Type, ArrayElemType: elemType, ArraySize: len(n.Args)})
	for i, el := range n.Args {
		v, err := g.genExpr(el)
		if err != nil {
			return NoValue, err
		}
		g.emitVoid(&Instr{Kind: IArrayInit, Args: []ValueID{arr, v}, ArrayIndex: i})
	}
	return arr, nil
}
