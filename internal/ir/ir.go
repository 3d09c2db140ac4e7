// Package ir implements the SSA-ish intermediate representation spec.md
// section 4.3 describes: basic blocks of typed instructions, generated
// from the AST and consumed by the emitter. Values are not pure SSA —
// locals are load/store against slots, as in the original
// IRGenerator.cpp (unoptimized LLVM-style memory SSA, not
// register-promoted SSA). Slots are reserved in Function.LocalTypes
// rather than by an alloca instruction; ILoad and IStore are the
// IR-level operations the emitter lowers.
package ir

import "github.com/xzero/flowd/internal/bytecode"
import "github.com/xzero/flowd/internal/value"

type ValueID int
type BlockID int

const NoValue ValueID = -1

// InstrKind is the closed set of IR instruction shapes. Typed
// binary/unary operators reuse bytecode.OpCode directly as their tag
// (spec.md section 4.3: "the generator embeds an opcode tag on typed
// operations that maps directly to VM opcodes"), so the emitter never
// re-derives which VM opcode a BinOp/UnOp lowers to.
type InstrKind uint8

const (
	IConstNumber InstrKind = iota
	IConstString
	IConstBool
	IConstIP
	IConstCidr
	IConstRegex
	IBinOp
	IUnOp
	ILoad
	IStore
	ICall
	IHandlerCall
	IArrayNew
	IArrayInit
	IHandlerRefConst

	// terminators — a Block ends with exactly one of these
	IJump
	ICondBranch
	IMatch
	IRet
)

// Instr is one IR instruction. Only the fields relevant to Kind are
// populated.
type Instr struct {
	ID   ValueID
	Kind InstrKind
	Type value.Kind
	Op   bytecode.OpCode // IBinOp/IUnOp: which VM opcode this operator maps to

	NumberLit int64
	StringLit string
	BoolLit   bool
	IPLit     string
	CidrLit   string
	RegexLit  string
	HandlerRefName string

	Args []ValueID // operands, meaning depends on Kind
	Slot int        // ILoad/IStore: which local slot in Function.LocalTypes

	// NativeName is resolved against the registry directly at emission
	// time (emitter.go's emitCall does the Lookup); there is no cached
	// index field here to keep in sync with it.
	NativeName string

	ArrayElemType value.Kind // IArrayNew
	ArraySize     int        // IArrayNew: literal size (arrays are fixed-size)
	ArrayIndex    int        // IArrayInit: literal index being initialized

	// terminators
	Target      BlockID   // IJump
	Then, ElseB BlockID   // ICondBranch
	Cond        ValueID   // ICondBranch
	MatchSubj   ValueID   // IMatch
	MatchOp     MatchOp   // IMatch
	Cases       []MatchArm // IMatch
	MatchElse   BlockID    // IMatch; equals Cont when the match has no else arm
	Cont        BlockID    // IMatch: shared continuation every case block branches to
	RetValue    ValueID    // IRet; NoValue means "ret false" (spec.md section 4.3 default)
}

type MatchOp uint8

const (
	MatchEQ MatchOp = iota
	MatchPREFIX
	MatchSUFFIX
	MatchREGEX
)

type MatchArm struct {
	Label string
	Block BlockID
}

// Block is a basic block: a straight-line instruction list ending in
// exactly one terminator.
type Block struct {
	ID     BlockID
	Name   string
	Instrs []*Instr
}

func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	switch last.Kind {
	case IJump, ICondBranch, IMatch, IRet:
		return last
	default:
		return nil
	}
}

// Function is one handler's lowered body: an entry block, its full
// block set, and the count/types of its local slots. Slots are reserved
// lazily as the generator meets each name; the emitter then assigns all
// of them registers up front (spec.md section 4.3: "locals are allocated
// on entry").
type Function struct {
	Name       string
	Entry      BlockID
	Blocks     []*Block
	LocalTypes []value.Kind

	nextValue ValueID
	nextBlock BlockID
}

func NewFunction(name string) *Function {
	return &Function{Name: name}
}

func (f *Function) NewValue() ValueID {
	id := f.nextValue
	f.nextValue++
	return id
}

func (f *Function) NewBlock(name string) *Block {
	b := &Block{ID: f.nextBlock, Name: name}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) Block(id BlockID) *Block { return f.Blocks[id] }

// FindProducer locates the instruction that defines id. Used by the
// emitter for values (like a regex literal) that never receive a
// register of their own and must instead be inspected at their use
// site.
func (f *Function) FindProducer(id ValueID) *Instr {
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			if instr.ID == id {
				return instr
			}
		}
	}
	return nil
}

// NewLocal allocates a new local slot of the given type and returns its
// index.
func (f *Function) NewLocal(t value.Kind) int {
	f.LocalTypes = append(f.LocalTypes, t)
	return len(f.LocalTypes) - 1
}

// Program is the whole lowered translation unit: one Function per
// handler. Top-level "global" variables have no runtime storage of
// their own in this data model — spec.md's Runner is scoped to one
// (Handler, user-context) with no shared mutable state across handlers
// (section 5) — so the generator resolves each global to a per-handler
// local slot with a store/load sequence at the point of use rather than modeling a
// separate global register file. See DESIGN.md, "top-level variables".
type Program struct {
	Functions []*Function
}
