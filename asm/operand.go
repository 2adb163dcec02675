package asm

import "fmt"

// Kind tags the three operand domains.
type Kind uint8

const (
	KindReg Kind = iota
	KindMem
	KindImm
)

func (k Kind) String() string {
	switch k {
	case KindReg:
		return "reg"
	case KindMem:
		return "mem"
	case KindImm:
		return "imm"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Addressing modes stored in the second slot of a memory operand.
const (
	ModeDirect   int64 = iota // [base], no displacement
	ModeDisp                  // [base+disp] inside the native window
	ModeComputed              // disp outside the window, synthesized into the address temporary
)

// Register-class markers stored in the third slot of a register operand.
const (
	markScalar int64 = iota
	markVector
)

// Signed/unsigned fit classes stored in the second and third slots of an
// immediate operand. Backends consult them to pick between a direct field
// encoding and a load-upper/load-lower synthesis.
const (
	Fit8 int64 = iota
	Fit16
	Fit32
	Fit64
)

// Operand is an immutable three-slot value. Every layer of the encoder reads
// operands only through Kind and the three positional selectors, which is
// what lets a triplet pass opaquely through nested emission helpers.
type Operand struct {
	kind    Kind
	a, b, c int64
}

func (o Operand) Kind() Kind    { return o.kind }
func (o Operand) First() int64  { return o.a }
func (o Operand) Second() int64 { return o.b }
func (o Operand) Third() int64  { return o.c }

// IsVector reports whether a register operand names a SIMD register.
func (o Operand) IsVector() bool { return o.kind == KindReg && o.c == markVector }

// Mode classifies a memory operand against an encoding window. fits reports
// whether the displacement is directly encodable; a ModeDisp operand that
// does not fit is promoted to ModeComputed, which the backend serves by
// synthesizing base+disp into the address temporary.
func (o Operand) Mode(fits bool) int64 {
	if o.b == ModeDirect {
		return ModeDirect
	}
	if fits {
		return ModeDisp
	}
	return ModeComputed
}

// R builds a register operand: (register-id, alias-id, class-marker).
func R(r Reg) Operand {
	return Operand{kind: KindReg, a: int64(r), b: int64(r), c: markScalar}
}

// V builds a SIMD register operand.
func V(v VReg) Operand {
	return Operand{kind: KindReg, a: int64(v), b: int64(v), c: markVector}
}

// M builds a memory operand: (base-register-id, mode, displacement). The mode
// recorded here is the source-form classification; a backend promotes it to
// ModeComputed when the displacement exceeds its native window.
func M(base Reg, disp int64) Operand {
	mode := ModeDisp
	if disp == 0 {
		mode = ModeDirect
	}
	return Operand{kind: KindMem, a: int64(base), b: mode, c: disp}
}

// I builds an immediate operand: (value, signed-fit, unsigned-fit).
func I(v int64) Operand {
	return Operand{kind: KindImm, a: v, b: fitSigned(v), c: fitUnsigned(v)}
}

func fitSigned(v int64) int64 {
	switch {
	case v >= -0x80 && v < 0x80:
		return Fit8
	case v >= -0x8000 && v < 0x8000:
		return Fit16
	case v >= -0x80000000 && v < 0x80000000:
		return Fit32
	}
	return Fit64
}

func fitUnsigned(v int64) int64 {
	u := uint64(v)
	switch {
	case u < 0x100:
		return Fit8
	case u < 0x10000:
		return Fit16
	case u < 0x100000000:
		return Fit32
	}
	return Fit64
}

func (o Operand) String() string {
	switch o.kind {
	case KindReg:
		if o.c == markVector {
			return VReg(o.a).String()
		}
		return Reg(o.a).String()
	case KindMem:
		return fmt.Sprintf("[%s%+d]", Reg(o.a), o.c)
	case KindImm:
		return fmt.Sprintf("#%d", o.a)
	}
	return "?"
}
