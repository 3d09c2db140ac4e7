package bytecode

// On-disk persistence for a Program, per spec.md section 6. Little
// endian throughout. None of the retrieved example repositories persist
// a custom bit-packed instruction stream to disk with an ecosystem
// serialization library (the closest, chazu/maggie, uses CBOR for a
// schema-general document format, not a fixed-layout instruction
// stream) — a raw binary layout like this is exactly what encoding/binary
// exists for, so this file uses it directly rather than pulling in a
// general-purpose codec for a self-describing format spec.md already
// pins down byte-for-byte.

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xzero/flowd/internal/value"
)

var magic = [4]byte{'F', 'L', 'O', 'W'}

const formatVersion uint32 = 1

// Write serializes p to w in the on-disk format from spec.md section 6.
func (p *Program) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, formatVersion); err != nil {
		return err
	}

	if err := writeNumbers(bw, p.Numbers); err != nil {
		return err
	}
	if err := writeStrings(bw, p.Strings); err != nil {
		return err
	}
	if err := writeIPs(bw, p.IPs); err != nil {
		return err
	}
	if err := writeCidrs(bw, p.Cidrs); err != nil {
		return err
	}
	if err := writeRegexes(bw, p.Regexes); err != nil {
		return err
	}
	if err := writeMatches(bw, p.Matches); err != nil {
		return err
	}
	if err := writeNatives(bw, p.Natives); err != nil {
		return err
	}
	if err := writeHandlers(bw, p.Handlers); err != nil {
		return err
	}
	return bw.Flush()
}

func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU16(w io.Writer, v uint16) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU8(w io.Writer, v uint8) error   { return binary.Write(w, binary.LittleEndian, v) }

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeNumbers(w io.Writer, pool *value.NumberPool) error {
	if err := writeU32(w, uint32(pool.Len())); err != nil {
		return err
	}
	for i := 0; i < pool.Len(); i++ {
		if err := binary.Write(w, binary.LittleEndian, pool.Get(i)); err != nil {
			return err
		}
	}
	return nil
}

func writeStrings(w io.Writer, pool *value.StringPool) error {
	if err := writeU32(w, uint32(pool.Len())); err != nil {
		return err
	}
	for i := 0; i < pool.Len(); i++ {
		if err := writeBytes(w, pool.Get(i).Bytes); err != nil {
			return err
		}
	}
	return nil
}

// ipBytes encodes an IP as the 17-byte on-disk form: a family byte (4 or
// 6) followed by the address, zero-padded to 16 bytes.
func ipBytes(ip *value.IPVal) [17]byte {
	var out [17]byte
	if v4 := ip.IP.To4(); v4 != nil {
		out[0] = 4
		copy(out[1:5], v4)
	} else {
		out[0] = 6
		copy(out[1:17], ip.IP.To16())
	}
	return out
}

func writeIPs(w io.Writer, pool *value.IPPool) error {
	if err := writeU32(w, uint32(pool.Len())); err != nil {
		return err
	}
	for i := 0; i < pool.Len(); i++ {
		b := ipBytes(pool.Get(i))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeCidrs(w io.Writer, pool *value.CidrPool) error {
	if err := writeU32(w, uint32(pool.Len())); err != nil {
		return err
	}
	for i := 0; i < pool.Len(); i++ {
		c := pool.Get(i)
		b := ipBytes(&value.IPVal{IP: c.IP})
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
		if err := writeU8(w, c.Prefix); err != nil {
			return err
		}
	}
	return nil
}

func writeRegexes(w io.Writer, pool *value.RegexPool) error {
	if err := writeU32(w, uint32(pool.Len())); err != nil {
		return err
	}
	for i := 0; i < pool.Len(); i++ {
		if err := writeBytes(w, []byte(pool.Get(i).Source)); err != nil {
			return err
		}
	}
	return nil
}

func writeMatches(w io.Writer, matches []*MatchTable) error {
	if err := writeU32(w, uint32(len(matches))); err != nil {
		return err
	}
	for _, m := range matches {
		if err := writeU8(w, uint8(m.Op)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(m.Entries))); err != nil {
			return err
		}
		for _, e := range m.Entries {
			var lit string
			if m.Op == MatchREGEX {
				lit = e.Regex.Source
			} else {
				lit = e.Literal.String()
			}
			if err := writeBytes(w, []byte(lit)); err != nil {
				return err
			}
			if err := writeU32(w, uint32(e.Target)); err != nil {
				return err
			}
		}
		if err := writeU32(w, uint32(m.Else)); err != nil {
			return err
		}
	}
	return nil
}

func writeNatives(w io.Writer, natives []NativeSymbol) error {
	if err := writeU32(w, uint32(len(natives))); err != nil {
		return err
	}
	for _, n := range natives {
		if err := writeU16(w, uint16(len(n.Name))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(n.Name)); err != nil {
			return err
		}
		if err := writeU8(w, uint8(n.Kind)); err != nil {
			return err
		}
	}
	return nil
}

func writeHandlers(w io.Writer, handlers []*Handler) error {
	if err := writeU32(w, uint32(len(handlers))); err != nil {
		return err
	}
	for _, h := range handlers {
		if err := writeU16(w, uint16(len(h.Name))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(h.Name)); err != nil {
			return err
		}
		if err := writeU16(w, uint16(h.RegisterCount)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(h.Code))); err != nil {
			return err
		}
		for _, instr := range h.Code {
			if err := binary.Write(w, binary.LittleEndian, uint64(instr)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read deserializes a Program previously written by Write.
func Read(r io.Reader) (*Program, error) {
	br := bufio.NewReader(r)
	var got [4]byte
	if _, err := io.ReadFull(br, got[:]); err != nil {
		return nil, err
	}
	if got != magic {
		return nil, fmt.Errorf("bytecode: bad magic %q", got)
	}
	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("bytecode: unsupported version %d", version)
	}

	p := NewProgram()
	if err := readNumbers(br, p.Numbers); err != nil {
		return nil, err
	}
	if err := readStrings(br, p.Strings); err != nil {
		return nil, err
	}
	if err := readIPs(br, p.IPs); err != nil {
		return nil, err
	}
	if err := readCidrs(br, p.Cidrs); err != nil {
		return nil, err
	}
	if err := readRegexes(br, p.Regexes); err != nil {
		return nil, err
	}
	if err := readMatches(br, p); err != nil {
		return nil, err
	}
	if err := readNatives(br, p); err != nil {
		return nil, err
	}
	if err := readHandlers(br, p); err != nil {
		return nil, err
	}
	return p, nil
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readNumbers(r io.Reader, pool *value.NumberPool) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		pool.Intern(v)
	}
	return nil
}

func readStrings(r io.Reader, pool *value.StringPool) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		b, err := readBytes(r)
		if err != nil {
			return err
		}
		pool.Intern(string(b))
	}
	return nil
}

func readIPBytes(r io.Reader) (*value.IPVal, error) {
	var b [17]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	if b[0] == 4 {
		ip, ok := value.ParseIP(fmt.Sprintf("%d.%d.%d.%d", b[1], b[2], b[3], b[4]))
		if !ok {
			return nil, fmt.Errorf("bytecode: corrupt ipv4 constant")
		}
		return ip, nil
	}
	ip := value.IPFromNetIP(append([]byte(nil), b[1:17]...))
	return ip, nil
}

func readIPs(r io.Reader, pool *value.IPPool) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		ip, err := readIPBytes(r)
		if err != nil {
			return err
		}
		pool.Intern(ip)
	}
	return nil
}

func readCidrs(r io.Reader, pool *value.CidrPool) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		ip, err := readIPBytes(r)
		if err != nil {
			return err
		}
		var prefix uint8
		if err := binary.Read(r, binary.LittleEndian, &prefix); err != nil {
			return err
		}
		pool.Intern(&value.CidrVal{IP: ip.IP, Prefix: prefix})
	}
	return nil
}

func readRegexes(r io.Reader, pool *value.RegexPool) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		b, err := readBytes(r)
		if err != nil {
			return err
		}
		if _, err := pool.Intern(string(b)); err != nil {
			return fmt.Errorf("bytecode: bad regex constant: %w", err)
		}
	}
	return nil
}

func readMatches(r io.Reader, p *Program) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var op uint8
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return err
		}
		entryCount, err := readU32(r)
		if err != nil {
			return err
		}
		m := &MatchTable{Op: MatchOp(op)}
		for j := uint32(0); j < entryCount; j++ {
			lit, err := readBytes(r)
			if err != nil {
				return err
			}
			target, err := readU32(r)
			if err != nil {
				return err
			}
			entry := MatchEntry{Target: int(target)}
			if m.Op == MatchREGEX {
				re, err := value.CompileRegex(string(lit))
				if err != nil {
					return err
				}
				entry.Regex = re
			} else {
				entry.Literal = value.NewString(string(lit))
			}
			m.Entries = append(m.Entries, entry)
		}
		elseTarget, err := readU32(r)
		if err != nil {
			return err
		}
		m.Else = int(elseTarget)
		p.Matches = append(p.Matches, m)
	}
	return nil
}

func readNatives(r io.Reader, p *Program) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
		var kind uint8
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return err
		}
		p.Natives = append(p.Natives, NativeSymbol{Name: string(name), Kind: NativeKind(kind)})
	}
	return nil
}

func readHandlers(r io.Reader, p *Program) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
		var regCount uint16
		if err := binary.Read(r, binary.LittleEndian, &regCount); err != nil {
			return err
		}
		codeLen, err := readU32(r)
		if err != nil {
			return err
		}
		code := make([]Instruction, codeLen)
		for j := uint32(0); j < codeLen; j++ {
			var word uint64
			if err := binary.Read(r, binary.LittleEndian, &word); err != nil {
				return err
			}
			code[j] = Instruction(word)
		}
		p.AddHandler(&Handler{Name: string(name), RegisterCount: int(regCount), Code: code})
	}
	return nil
}
