package asm

// Encoder is the BASE (integer) instruction table of one target. Every method
// appends the complete expansion of one symbolic instruction to the buffer:
// one machine word on a direct encoding, several when the target needs an
// address or immediate synthesized through a scratch register first. Methods
// return ErrUnsupported for operand-kind combinations with no defined
// encoding (an immediate destination, for example) and ErrRange for values no
// synthesis rule covers.
type Encoder interface {
	Target() Target
	Convention() Convention
	Buffer() *Buffer

	// Data movement. Forms: rr, ri, rm (load), mr (store), mi.
	Mov(w Width, dst, src Operand) error

	// Arithmetic and logic. Same forms as Mov.
	Add(w Width, dst, src Operand) error
	Sub(w Width, dst, src Operand) error
	And(w Width, dst, src Operand) error
	Orr(w Width, dst, src Operand) error
	Xor(w Width, dst, src Operand) error
	Not(w Width, dst Operand) error
	Neg(w Width, dst Operand) error

	// Shifts and rotates. Counts are masked to the element width, matching
	// the hardware: a count of 37 on W32 behaves as 5.
	Shl(w Width, dst, count Operand) error
	Shr(w Width, dst, count Operand) error
	Sar(w Width, dst, count Operand) error
	Ror(w Width, dst, count Operand) error

	// Multiply and divide. Mul keeps the low half; MulHi the upper half.
	// Rem must immediately follow the Div with the same width, signedness and
	// source operands: the divide leaves the remainder (or the quotient it is
	// recomputed from) in a scratch slot that the next emission invalidates.
	Mul(w Width, dst, src Operand) error
	MulHi(w Width, signed bool, dst, src Operand) error
	Div(w Width, signed bool, dst, src Operand) error
	Rem(w Width, signed bool, dst, src Operand) error

	// Fused compare-and-branch. Targets without persistent flags compute a
	// boolean into a scratch register and branch on it; the scratch value is
	// dead after the branch.
	CmpJump(w Width, c Cond, a, b Operand, to *Label) error
	Jump(to *Label) error

	// Stack. RestoreAll emits the word-for-word mirror of SaveAll with the
	// matching stack-pointer adjustment.
	Push(src Operand) error
	Pop(dst Operand) error
	SaveAll() error
	RestoreAll() error

	Ret() error
}

// Vector is the SIMD instruction table of one target. Destinations are
// always SIMD registers; sources are SIMD registers or memory operands.
type Vector interface {
	// VectorBytes is the active SIMD width: 16, or 32 under AVX/Pair256.
	VectorBytes() int

	VMov(e Elem, dst, src Operand) error
	VAdd(e Elem, dst, src Operand) error
	VSub(e Elem, dst, src Operand) error
	VMul(e Elem, dst, src Operand) error
	VDiv(e Elem, dst, src Operand) error
	VAnd(e Elem, dst, src Operand) error
	VOrr(e Elem, dst, src Operand) error
	VXor(e Elem, dst, src Operand) error
	VMin(e Elem, dst, src Operand) error
	VMax(e Elem, dst, src Operand) error

	// Compares produce all-ones/all-zero element masks.
	VCeq(e Elem, dst, src Operand) error
	VClt(e Elem, dst, src Operand) error
	VCgt(e Elem, dst, src Operand) error

	VSqrt(e Elem, dst, src Operand) error

	// Element shifts by immediate count, masked to the element width.
	VShl(e Elem, dst, count Operand) error
	VShr(e Elem, dst, count Operand) error

	// Conversions. VCvtI truncates float to int and is guaranteed accurate
	// only inside the signed 32-bit range regardless of element size.
	VCvtI(e Elem, dst, src Operand) error
	VCvtF(e Elem, dst, src Operand) error
}

// FullEncoder is implemented by backends that provide both tables.
type FullEncoder interface {
	Encoder
	Vector
}
