package value

// ArrayString and ArrayNumber are the only two aggregate types Flow
// programs may construct (spec.md's Non-goals rule out user-defined
// aggregates beyond homogeneous arrays of string or integer). Both live
// in a Runner's object arena once built by ASNEW/ANNEW and are addressed
// from a register via a borrowed pointer.
type ArrayString struct {
	Elements []*StringVal
}

func NewArrayString(size int) *ArrayString {
	return &ArrayString{Elements: make([]*StringVal, size)}
}

func (a *ArrayString) Len() int { return len(a.Elements) }

type ArrayNumber struct {
	Elements []int64
}

func NewArrayNumber(size int) *ArrayNumber {
	return &ArrayNumber{Elements: make([]int64, size)}
}

func (a *ArrayNumber) Len() int { return len(a.Elements) }
