package vm

import (
	"fmt"
	"net/url"
	"unsafe"

	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/flowerrors"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

// dispatch runs r.handler.Code from pc 0 until an EXIT or a HANDLER
// short-circuit resolves the verdict. It is a plain switch over
// bytecode.OpCode — spec.md section 9's redesign flag replaces the
// original engine's computed-goto threading with "a switch/goto
// equivalent" precisely because Go has no computed goto, and a switch
// compiles to the same jump table shape under gc for a dense,
// contiguous opcode range like this one.
func dispatch(r *Runner) (bool, error) {
	code := r.handler.Code
	regs := r.regs
	pc := 0

	for pc < len(code) {
		instr := code[pc]
		op := instr.OpCode()
		a, b, c := instr.A(), instr.B(), instr.C()
		next := pc + 1

		switch op {
		case bytecode.OP_NOP:

		case bytecode.OP_EXIT:
			return regs[a].Bool(), nil

		case bytecode.OP_JMP:
			next = int(b)

		case bytecode.OP_JN:
			if regs[a].Bool() {
				next = int(b)
			}

		case bytecode.OP_JZ:
			if !regs[a].Bool() {
				next = int(b)
			}

		case bytecode.OP_MOV:
			regs[a] = regs[b]

		case bytecode.OP_IMOV:
			regs[a] = value.RegFromInt(int64(int16(b)))

		case bytecode.OP_NCONST:
			regs[a] = value.RegFromInt(r.program.Numbers.Get(int(b)))

		case bytecode.OP_NNEG:
			regs[a] = value.RegFromInt(-regs[b].Int())
		case bytecode.OP_NADD:
			regs[a] = value.RegFromInt(regs[b].Int() + regs[c].Int())
		case bytecode.OP_NSUB:
			regs[a] = value.RegFromInt(regs[b].Int() - regs[c].Int())
		case bytecode.OP_NMUL:
			regs[a] = value.RegFromInt(regs[b].Int() * regs[c].Int())
		case bytecode.OP_NDIV:
			regs[a] = value.RegFromInt(safeDiv(regs[b].Int(), regs[c].Int()))
		case bytecode.OP_NREM:
			regs[a] = value.RegFromInt(safeRem(regs[b].Int(), regs[c].Int()))
		case bytecode.OP_NSHL:
			regs[a] = value.RegFromInt(regs[b].Int() << (uint(regs[c].Int()) & 0x3f))
		case bytecode.OP_NSHR:
			regs[a] = value.RegFromInt(regs[b].Int() >> (uint(regs[c].Int()) & 0x3f))
		case bytecode.OP_NPOW:
			regs[a] = value.RegFromInt(saturatingPow(regs[b].Int(), regs[c].Int()))
		case bytecode.OP_NAND:
			regs[a] = value.RegFromInt(regs[b].Int() & regs[c].Int())
		case bytecode.OP_NOR:
			regs[a] = value.RegFromInt(regs[b].Int() | regs[c].Int())
		case bytecode.OP_NXOR:
			regs[a] = value.RegFromInt(regs[b].Int() ^ regs[c].Int())
		case bytecode.OP_NCMPZ:
			regs[a] = value.BoolRegister(regs[b].Int() == 0)
		case bytecode.OP_NCMPEQ:
			regs[a] = value.BoolRegister(regs[b].Int() == regs[c].Int())
		case bytecode.OP_NCMPNE:
			regs[a] = value.BoolRegister(regs[b].Int() != regs[c].Int())
		case bytecode.OP_NCMPLE:
			regs[a] = value.BoolRegister(regs[b].Int() <= regs[c].Int())
		case bytecode.OP_NCMPGE:
			regs[a] = value.BoolRegister(regs[b].Int() >= regs[c].Int())
		case bytecode.OP_NCMPLT:
			regs[a] = value.BoolRegister(regs[b].Int() < regs[c].Int())
		case bytecode.OP_NCMPGT:
			regs[a] = value.BoolRegister(regs[b].Int() > regs[c].Int())

		case bytecode.OP_BNOT:
			regs[a] = value.BoolRegister(!regs[b].Bool())
		case bytecode.OP_BAND:
			regs[a] = value.BoolRegister(regs[b].Bool() && regs[c].Bool())
		case bytecode.OP_BOR:
			regs[a] = value.BoolRegister(regs[b].Bool() || regs[c].Bool())
		case bytecode.OP_BXOR:
			regs[a] = value.BoolRegister(regs[b].Bool() != regs[c].Bool())

		case bytecode.OP_SCONST:
			regs[a] = ptrReg(r.program.Strings.Get(int(b)))
		case bytecode.OP_SADD:
			regs[a] = ptrReg(r.arena.NewString(value.Concat(strAt(regs[b]), strAt(regs[c])).String()))
		case bytecode.OP_SSUBSTR:
			// SSUBSTR R,B,C: register[C] and register[C+1] hold offset and
			// length (spec.md section 4.2).
			off, length := regs[c].Int(), regs[c+1].Int()
			regs[a] = ptrReg(r.arena.NewString(value.Substr(strAt(regs[b]), off, length).String()))
		case bytecode.OP_SCMPEQ:
			regs[a] = value.BoolRegister(value.CompareEqual(strAt(regs[b]), strAt(regs[c])))
		case bytecode.OP_SCMPNE:
			regs[a] = value.BoolRegister(!value.CompareEqual(strAt(regs[b]), strAt(regs[c])))
		case bytecode.OP_SCMPLE:
			regs[a] = value.BoolRegister(value.Compare(strAt(regs[b]), strAt(regs[c])) <= 0)
		case bytecode.OP_SCMPGE:
			regs[a] = value.BoolRegister(value.Compare(strAt(regs[b]), strAt(regs[c])) >= 0)
		case bytecode.OP_SCMPLT:
			regs[a] = value.BoolRegister(value.Compare(strAt(regs[b]), strAt(regs[c])) < 0)
		case bytecode.OP_SCMPGT:
			regs[a] = value.BoolRegister(value.Compare(strAt(regs[b]), strAt(regs[c])) > 0)
		case bytecode.OP_SCMPBEG:
			regs[a] = value.BoolRegister(value.HasPrefix(strAt(regs[b]), strAt(regs[c])))
		case bytecode.OP_SCMPEND:
			regs[a] = value.BoolRegister(value.HasSuffix(strAt(regs[b]), strAt(regs[c])))
		case bytecode.OP_SCONTAINS:
			regs[a] = value.BoolRegister(value.Contains(strAt(regs[b]), strAt(regs[c])))
		case bytecode.OP_SLEN:
			regs[a] = value.RegFromInt(int64(strAt(regs[b]).Len()))
		case bytecode.OP_SISEMPTY:
			regs[a] = value.BoolRegister(strAt(regs[b]).Len() == 0)
		case bytecode.OP_SPRINT:
			fmt.Println(strAt(regs[b]).String())

		case bytecode.OP_SMATCHEQ, bytecode.OP_SMATCHBEG, bytecode.OP_SMATCHEND, bytecode.OP_SMATCHR:
			// SMATCH*(R,M): a pure control transfer, spec.md section 4.2 —
			// A is the subject register, B the match-table index; there is
			// no destination register.
			table := r.program.Matches[b]
			result := table.Evaluate(strAt(regs[a]))
			if op == bytecode.OP_SMATCHR {
				r.regexResult = result
				r.hasRegexResult = true
			}
			next = result.Target

		case bytecode.OP_PCONST:
			regs[a] = ptrReg(r.program.IPs.Get(int(b)))
		case bytecode.OP_PCMPEQ:
			regs[a] = value.BoolRegister(ipAt(regs[b]).Equal(ipAt(regs[c])))
		case bytecode.OP_PCMPNE:
			regs[a] = value.BoolRegister(!ipAt(regs[b]).Equal(ipAt(regs[c])))
		case bytecode.OP_PINCIDR:
			regs[a] = value.BoolRegister(cidrAt(regs[c]).Contains(ipAt(regs[b])))
		case bytecode.OP_CCONST:
			regs[a] = ptrReg(r.program.Cidrs.Get(int(b)))

		case bytecode.OP_SREGMATCH:
			re := r.program.Regexes.Get(int(c))
			groups := re.Match(strAt(regs[b]))
			regs[a] = value.BoolRegister(groups != nil)
			r.regexResult = bytecode.MatchResult{Groups: groups}
			r.hasRegexResult = groups != nil
		case bytecode.OP_SREGGROUP:
			// SREGGROUP(R,R): B is a register holding the group index, not
			// an immediate (spec.md section 4.2). Reading past the end of
			// the captured groups, or reading when nothing has matched,
			// yields empty string rather than a fault (spec.md section 9).
			groupIdx := int(regs[b].Int())
			text := ""
			if r.hasRegexResult && groupIdx >= 0 && groupIdx < len(r.regexResult.Groups) && r.regexResult.Groups[groupIdx].Found {
				text = r.regexResult.Groups[groupIdx].Text
			}
			regs[a] = ptrReg(r.arena.NewString(text))

		case bytecode.OP_S2I:
			regs[a] = value.RegFromInt(value.ParseInt(strAt(regs[b])))
		case bytecode.OP_I2S:
			regs[a] = ptrReg(r.arena.NewString(value.FormatInt(regs[b].Int()).String()))
		case bytecode.OP_P2S:
			regs[a] = ptrReg(r.arena.NewString(ipAt(regs[b]).String()))
		case bytecode.OP_C2S:
			regs[a] = ptrReg(r.arena.NewString(cidrAt(regs[b]).String()))
		case bytecode.OP_R2S:
			regs[a] = ptrReg(r.arena.NewString((*value.RegexVal)(regs[b].Ptr()).Source))
		case bytecode.OP_SURLENC:
			regs[a] = ptrReg(r.arena.NewString(url.QueryEscape(strAt(regs[b]).String())))
		case bytecode.OP_SURLDEC:
			decoded, err := url.QueryUnescape(strAt(regs[b]).String())
			if err != nil {
				decoded = ""
			}
			regs[a] = ptrReg(r.arena.NewString(decoded))

		case bytecode.OP_ASNEW:
			regs[a] = ptrReg(r.arena.NewArrayString(int(b)))
		case bytecode.OP_ASINIT:
			strArrAt(regs[a]).Elements[b] = strAt(regs[c])
		case bytecode.OP_ANNEW:
			regs[a] = ptrReg(r.arena.NewArrayNumber(int(b)))
		case bytecode.OP_ANINIT:
			numArrAt(regs[a]).Elements[b] = regs[c].Int()
		case bytecode.OP_ANINITI:
			numArrAt(regs[a]).Elements[b] = int64(int16(c))

		case bytecode.OP_CALL, bytecode.OP_HANDLER:
			verdict, err := r.callNative(int(a), int(b), int(c))
			if err != nil {
				return false, err
			}
			if op == bytecode.OP_HANDLER && verdict {
				return true, nil
			}

		default:
			return false, flowerrors.MalformedBytecode(
				flowerrors.SourceLocation{Handler: r.handler.Name, Detail: fmt.Sprintf("pc %d", pc)},
				"opcode %s has no dispatch case", op)
		}

		pc = next
	}
	// Falling off the end of the code without an EXIT means the bytecode
	// lacks the implicit "ret false" terminator the emitter always
	// appends. Validate does not check for this, so it is reported here as
	// malformed bytecode rather than as a verdict the host should trust.
	return false, flowerrors.MalformedBytecode(
		flowerrors.SourceLocation{Handler: r.handler.Name}, "handler fell off the end without an EXIT")
}

func (r *Runner) callNative(nativeIdx, argc, base int) (bool, error) {
	sym, ok := r.natives.ByIndex(nativeIdx)
	if !ok {
		return false, fmt.Errorf("native index %d out of range", nativeIdx)
	}
	params := &native.Params{Argv: r.regs[base : base+argc], Runner: r}
	if err := sym.Fn(params); err != nil {
		return false, err
	}
	return params.Argv[0].Bool(), nil
}

func ptrReg(p any) value.Register {
	switch v := p.(type) {
	case *value.StringVal:
		return value.RegFromPtr(unsafe.Pointer(v))
	case *value.IPVal:
		return value.RegFromPtr(unsafe.Pointer(v))
	case *value.CidrVal:
		return value.RegFromPtr(unsafe.Pointer(v))
	case *value.ArrayString:
		return value.RegFromPtr(unsafe.Pointer(v))
	case *value.ArrayNumber:
		return value.RegFromPtr(unsafe.Pointer(v))
	default:
		panic(fmt.Sprintf("vm: unsupported pointer register type %T", p))
	}
}

func strAt(r value.Register) *value.StringVal    { return (*value.StringVal)(r.Ptr()) }
func ipAt(r value.Register) *value.IPVal         { return (*value.IPVal)(r.Ptr()) }
func cidrAt(r value.Register) *value.CidrVal     { return (*value.CidrVal)(r.Ptr()) }
func strArrAt(r value.Register) *value.ArrayString { return (*value.ArrayString)(r.Ptr()) }
func numArrAt(r value.Register) *value.ArrayNumber { return (*value.ArrayNumber)(r.Ptr()) }

func safeDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func safeRem(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a % b
}

// saturatingPow computes a**b for non-negative b, saturating to
// math.MaxInt64/MinInt64 on overflow rather than wrapping — the same
// convention value.ParseInt uses for S2I overflow (spec.md section 4.1).
// A negative exponent has no integer result and yields 0.
func saturatingPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		next := result * base
		if base != 0 && next/base != result {
			if (result > 0) == (base > 0) {
				return 1<<63 - 1
			}
			return -1 << 63
		}
		result = next
	}
	return result
}
