package asm

import "fmt"

// Width selects the element width of a BASE operation.
type Width uint8

const (
	W32 Width = iota
	W64
)

// Bits returns the element width in bits.
func (w Width) Bits() uint { // 32 or 64
	if w == W64 {
		return 64
	}
	return 32
}

// Mask returns the architectural shift-count mask for the width.
func (w Width) Mask() int64 { return int64(w.Bits() - 1) }

func (w Width) String() string {
	if w == W64 {
		return "w64"
	}
	return "w32"
}

// Elem selects the SIMD element type.
type Elem uint8

const (
	F32 Elem = iota
	F64
	I32
)

func (e Elem) String() string {
	switch e {
	case F32:
		return "f32"
	case F64:
		return "f64"
	case I32:
		return "i32"
	}
	return fmt.Sprintf("elem(%d)", uint8(e))
}

// Cond names the comparison predicate of a fused compare-and-jump.
type Cond uint8

const (
	EQ Cond = iota
	NE
	LT // signed
	LE
	GT
	GE
	LTU // unsigned
	LEU
	GTU
	GEU
)

var condNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge", "ltu", "leu", "gtu", "geu"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

// Signed reports whether the predicate compares as signed.
func (c Cond) Signed() bool { return c >= LT && c <= GE }

// Negate returns the complementary predicate.
func (c Cond) Negate() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	case GE:
		return LT
	case LTU:
		return GEU
	case LEU:
		return GTU
	case GTU:
		return LEU
	case GEU:
		return LTU
	}
	return c
}

// Swap returns the predicate with its operand order reversed
// (a < b  ==  b > a).
func (c Cond) Swap() Cond {
	switch c {
	case LT:
		return GT
	case LE:
		return GE
	case GT:
		return LT
	case GE:
		return LE
	case LTU:
		return GTU
	case LEU:
		return GEU
	case GTU:
		return LTU
	case GEU:
		return LEU
	}
	return c
}
