package bytecode

import "github.com/xzero/flowd/internal/value"

// MatchOp is the match-table operation kind (spec.md section 3).
type MatchOp uint8

const (
	MatchEQ MatchOp = iota
	MatchPREFIX
	MatchSUFFIX
	MatchREGEX
)

// MatchEntry pairs a literal (or, for MatchREGEX, a compiled pattern)
// with the program counter to jump to when it matches.
type MatchEntry struct {
	Literal *value.StringVal // unused when Op == MatchREGEX
	Regex   *value.RegexVal  // unused otherwise
	Target  int
}

// MatchTable is the triple (operation, entries, else_pc) from spec.md
// section 3. SMATCH* consults the table indexed by its match-pool index
// against a string register and jumps to the resolved target.
type MatchTable struct {
	Op      MatchOp
	Entries []MatchEntry
	Else    int
}

// MatchResult is what evaluating a table against a subject yields: the
// resolved program counter, and — for a MatchREGEX table — the capture
// groups of the entry that matched, which the caller (the VM) stores in
// the Runner's regex-context slot so a subsequent SREGGROUP sees them.
type MatchResult struct {
	Target int
	Groups []value.MatchGroup
}

// Evaluate implements the match semantics from spec.md section 8:
//   - MatchEQ: exact bytewise equality, first entry wins ties (map-like,
//     but entries are searched in insertion order so behavior is
//     deterministic even with pathological duplicate literals).
//   - MatchPREFIX / MatchSUFFIX: longest match wins; ties broken by
//     insertion order.
//   - MatchREGEX: entries tested in insertion order, first match wins.
func (m *MatchTable) Evaluate(subject *value.StringVal) MatchResult {
	switch m.Op {
	case MatchEQ:
		for _, e := range m.Entries {
			if value.CompareEqual(subject, e.Literal) {
				return MatchResult{Target: e.Target}
			}
		}
	case MatchPREFIX:
		best := -1
		bestLen := -1
		for i, e := range m.Entries {
			if value.HasPrefix(subject, e.Literal) && e.Literal.Len() > bestLen {
				best = i
				bestLen = e.Literal.Len()
			}
		}
		if best >= 0 {
			return MatchResult{Target: m.Entries[best].Target}
		}
	case MatchSUFFIX:
		best := -1
		bestLen := -1
		for i, e := range m.Entries {
			if value.HasSuffix(subject, e.Literal) && e.Literal.Len() > bestLen {
				best = i
				bestLen = e.Literal.Len()
			}
		}
		if best >= 0 {
			return MatchResult{Target: m.Entries[best].Target}
		}
	case MatchREGEX:
		for _, e := range m.Entries {
			if groups := e.Regex.Match(subject); groups != nil {
				return MatchResult{Target: e.Target, Groups: groups}
			}
		}
	}
	return MatchResult{Target: m.Else}
}
