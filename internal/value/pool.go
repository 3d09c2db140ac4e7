package value

// The constant pools described in spec.md section 3: append-only,
// indexed, deduplication encouraged but optional. Programs hold one of
// each; a Register that addresses a pool entry is a borrowed pointer
// valid for the Program's lifetime.

// NumberPool holds the numbers[] constant pool.
type NumberPool struct {
	values []int64
	index  map[int64]int
}

func NewNumberPool() *NumberPool {
	return &NumberPool{index: make(map[int64]int)}
}

// Intern returns the index of n in the pool, adding it if not already
// present.
func (p *NumberPool) Intern(n int64) int {
	if i, ok := p.index[n]; ok {
		return i
	}
	i := len(p.values)
	p.values = append(p.values, n)
	p.index[n] = i
	return i
}

func (p *NumberPool) Get(i int) int64 { return p.values[i] }
func (p *NumberPool) Len() int        { return len(p.values) }

// StringPool holds the strings[] constant pool.
type StringPool struct {
	values []*StringVal
	index  map[string]int
}

func NewStringPool() *StringPool {
	return &StringPool{index: make(map[string]int)}
}

func (p *StringPool) Intern(s string) int {
	if i, ok := p.index[s]; ok {
		return i
	}
	i := len(p.values)
	p.values = append(p.values, NewString(s))
	p.index[s] = i
	return i
}

func (p *StringPool) Get(i int) *StringVal { return p.values[i] }
func (p *StringPool) Len() int             { return len(p.values) }

// IPPool holds the ipaddrs[] constant pool.
type IPPool struct {
	values []*IPVal
	index  map[string]int
}

func NewIPPool() *IPPool { return &IPPool{index: make(map[string]int)} }

func (p *IPPool) Intern(ip *IPVal) int {
	key := ip.IP.String()
	if i, ok := p.index[key]; ok {
		return i
	}
	i := len(p.values)
	p.values = append(p.values, ip)
	p.index[key] = i
	return i
}

func (p *IPPool) Get(i int) *IPVal { return p.values[i] }
func (p *IPPool) Len() int         { return len(p.values) }

// CidrPool holds the cidrs[] constant pool.
type CidrPool struct {
	values []*CidrVal
	index  map[string]int
}

func NewCidrPool() *CidrPool { return &CidrPool{index: make(map[string]int)} }

func (p *CidrPool) Intern(c *CidrVal) int {
	key := c.String()
	if i, ok := p.index[key]; ok {
		return i
	}
	i := len(p.values)
	p.values = append(p.values, c)
	p.index[key] = i
	return i
}

func (p *CidrPool) Get(i int) *CidrVal { return p.values[i] }
func (p *CidrPool) Len() int           { return len(p.values) }

// RegexPool holds the regexes[] constant pool.
type RegexPool struct {
	values []*RegexVal
	index  map[string]int
}

func NewRegexPool() *RegexPool { return &RegexPool{index: make(map[string]int)} }

// Intern compiles pattern if it has not been seen before and returns its
// pool index.
func (p *RegexPool) Intern(pattern string) (int, error) {
	if i, ok := p.index[pattern]; ok {
		return i, nil
	}
	re, err := CompileRegex(pattern)
	if err != nil {
		return 0, err
	}
	i := len(p.values)
	p.values = append(p.values, re)
	p.index[pattern] = i
	return i, nil
}

func (p *RegexPool) Get(i int) *RegexVal { return p.values[i] }
func (p *RegexPool) Len() int            { return len(p.values) }
