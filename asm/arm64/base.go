package arm64

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// aluOp is one shifted-register arithmetic/logical group. add and sub also
// carry the 12-bit immediate form; the logical groups stage immediates
// through x17 instead of chasing bitmask encodings.
type aluOp struct {
	name  string
	rr    uint32 // shifted-register base
	ri    uint32 // 12-bit immediate base, 0 when absent
}

var (
	add = aluOp{"add", 0x0B000000, 0x11000000}
	sub = aluOp{"sub", 0x4B000000, 0x51000000}
	and = aluOp{"and", 0x0A000000, 0}
	orr = aluOp{"orr", 0x2A000000, 0}
	xor = aluOp{"xor", 0x4A000000, 0}
)

func (op aluOp) immFits(v int64) bool {
	return op.ri != 0 && v >= 0 && v < 4096
}

func (e *Encoder) alu(op aluOp, w asm.Width, dst, src asm.Operand) error {
	if dst.IsVector() || src.IsVector() {
		return errCombo(op.name, dst, src)
	}
	apply := func(d uint32) error {
		if src.Kind() == asm.KindImm && op.immFits(src.First()) {
			e.buf.Word(sfBit(w) | op.ri | uint32(src.First())<<10 | d<<5 | d)
			return nil
		}
		s, err := e.srcReg(w, src, scratchData)
		if err != nil {
			return err
		}
		e.buf.Word(sfBit(w) | op.rr | s<<16 | d<<5 | d)
		return nil
	}
	switch dst.Kind() {
	case asm.KindReg:
		return apply(physOf(dst))
	case asm.KindMem:
		if src.Kind() == asm.KindMem {
			return errCombo(op.name, dst, src)
		}
		e.load(w, scratchCmpR, dst)
		if err := apply(scratchCmpR); err != nil {
			return err
		}
		e.store(w, scratchCmpR, dst)
		return nil
	}
	return errCombo(op.name, dst, src)
}

func (e *Encoder) Add(w asm.Width, dst, src asm.Operand) error { return e.alu(add, w, dst, src) }
func (e *Encoder) And(w asm.Width, dst, src asm.Operand) error { return e.alu(and, w, dst, src) }
func (e *Encoder) Orr(w asm.Width, dst, src asm.Operand) error { return e.alu(orr, w, dst, src) }
func (e *Encoder) Xor(w asm.Width, dst, src asm.Operand) error { return e.alu(xor, w, dst, src) }

func (e *Encoder) Sub(w asm.Width, dst, src asm.Operand) error { return e.alu(sub, w, dst, src) }

// Mov copies src into dst. Register moves are orr with the zero register.
func (e *Encoder) Mov(w asm.Width, dst, src asm.Operand) error {
	if dst.IsVector() || src.IsVector() {
		return errCombo("mov", dst, src)
	}
	switch dst.Kind() {
	case asm.KindReg:
		d := physOf(dst)
		switch src.Kind() {
		case asm.KindReg:
			e.buf.Word(sfBit(w) | 0x2A000000 | physOf(src)<<16 | regZR<<5 | d)
			return nil
		case asm.KindImm:
			e.immTo(w, d, src.First())
			return nil
		case asm.KindMem:
			e.load(w, d, src)
			return nil
		}
	case asm.KindMem:
		if src.Kind() == asm.KindMem {
			return errCombo("mov", dst, src)
		}
		s, err := e.srcReg(w, src, scratchData)
		if err != nil {
			return err
		}
		e.store(w, s, dst)
		return nil
	}
	return errCombo("mov", dst, src)
}

// Not is orn against the zero register, Neg a subtract from it.
func (e *Encoder) Not(w asm.Width, dst asm.Operand) error {
	return e.unary(w, dst, "not", func(r uint32) uint32 {
		return sfBit(w) | 0x2A200000 | r<<16 | regZR<<5 | r
	})
}

func (e *Encoder) Neg(w asm.Width, dst asm.Operand) error {
	return e.unary(w, dst, "neg", func(r uint32) uint32 {
		return sfBit(w) | 0x4B000000 | r<<16 | regZR<<5 | r
	})
}

func (e *Encoder) unary(w asm.Width, dst asm.Operand, name string, word func(uint32) uint32) error {
	if dst.IsVector() {
		return errCombo(name, dst, dst)
	}
	switch dst.Kind() {
	case asm.KindReg:
		e.buf.Word(word(physOf(dst)))
		return nil
	case asm.KindMem:
		e.load(w, scratchData, dst)
		e.buf.Word(word(scratchData))
		e.store(w, scratchData, dst)
		return nil
	}
	return errCombo(name, dst, dst)
}

// shiftOp carries the variable-form base; the hardware masks the count to
// the element width, so register counts go in unmasked and immediates are
// staged pre-masked.
type shiftOp struct {
	name string
	base uint32
}

var (
	shl = shiftOp{"shl", 0x1AC02000} // lslv
	shr = shiftOp{"shr", 0x1AC02400} // lsrv
	sar = shiftOp{"sar", 0x1AC02800} // asrv
	ror = shiftOp{"ror", 0x1AC02C00} // rorv
)

func (e *Encoder) shift(op shiftOp, w asm.Width, dst, count asm.Operand) error {
	if dst.IsVector() || count.IsVector() {
		return errCombo(op.name, dst, count)
	}
	var cnt uint32
	switch count.Kind() {
	case asm.KindReg:
		cnt = physOf(count)
	case asm.KindImm:
		e.immTo(w, scratchCmpR, count.First()&w.Mask())
		cnt = scratchCmpR
	default:
		return errCombo(op.name, dst, count)
	}
	apply := func(r uint32) {
		e.buf.Word(sfBit(w) | op.base | cnt<<16 | r<<5 | r)
	}
	switch dst.Kind() {
	case asm.KindReg:
		apply(physOf(dst))
		return nil
	case asm.KindMem:
		e.load(w, scratchData, dst)
		apply(scratchData)
		e.store(w, scratchData, dst)
		return nil
	}
	return errCombo(op.name, dst, count)
}

func (e *Encoder) Shl(w asm.Width, dst, count asm.Operand) error { return e.shift(shl, w, dst, count) }
func (e *Encoder) Shr(w asm.Width, dst, count asm.Operand) error { return e.shift(shr, w, dst, count) }
func (e *Encoder) Sar(w asm.Width, dst, count asm.Operand) error { return e.shift(sar, w, dst, count) }
func (e *Encoder) Ror(w asm.Width, dst, count asm.Operand) error { return e.shift(ror, w, dst, count) }

// Mul is madd with the zero register as addend.
func (e *Encoder) Mul(w asm.Width, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("mul", dst, src)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchData)
	if err != nil {
		return err
	}
	e.buf.Word(sfBit(w) | 0x1B000000 | s<<16 | uint32(regZR)<<10 | d<<5 | d)
	return nil
}

// MulHi uses smulh/umulh for 64-bit elements; the 32-bit form widens with
// smull/umull and shifts the high word down.
func (e *Encoder) MulHi(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("mulhi", dst, src)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchData)
	if err != nil {
		return err
	}
	if w == asm.W64 {
		base := uint32(0x9B407C00) // smulh
		if !signed {
			base = 0x9BC07C00 // umulh
		}
		e.buf.Word(base | s<<16 | d<<5 | d)
		return nil
	}
	widen := uint32(0x9B207C00) // smull
	shift := uint32(0x9360FC00) // asr #32
	if !signed {
		widen = 0x9BA07C00 // umull
		shift = 0xD360FC00 // lsr #32
	}
	e.buf.Word(widen | s<<16 | d<<5 | d)
	e.buf.Word(shift | d<<5 | d)
	return nil
}

// Div leaves the quotient in dst with the dividend parked in x9 so a Rem
// issued immediately after can recover the remainder with msub.
func (e *Encoder) Div(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("div", dst, src)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchCmpR)
	if err != nil {
		return err
	}
	e.buf.Word(sfBit(w) | 0x2A000000 | d<<16 | regZR<<5 | scratchCmpL) // mov x9, dst
	base := uint32(0x1AC00C00)                                        // sdiv
	if !signed {
		base = 0x1AC00800 // udiv
	}
	e.buf.Word(sfBit(w) | base | s<<16 | scratchCmpL<<5 | d)
	e.lastDiv = &divState{end: e.buf.Len(), w: w, signed: signed, quot: d, divisor: s, dividend: scratchCmpL}
	return nil
}

// Rem is msub on the registers the preceding Div left behind. Any
// intervening emission voids the pairing.
func (e *Encoder) Rem(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("rem", dst, src)
	}
	st := e.lastDiv
	if st == nil || st.end != e.buf.Len() || st.w != w || st.signed != signed {
		return fmt.Errorf("rem without matching div: %w", asm.ErrOrder)
	}
	e.lastDiv = nil
	d := physOf(dst)
	// msub d, quot, divisor, dividend
	e.buf.Word(sfBit(w) | 0x1B008000 | st.divisor<<16 | st.dividend<<10 | st.quot<<5 | d)
	return nil
}

// condCode maps a condition to the A64 cond field after cmp a, b.
func condCode(c asm.Cond) uint32 {
	switch c {
	case asm.EQ:
		return 0x0
	case asm.NE:
		return 0x1
	case asm.LT:
		return 0xB
	case asm.LE:
		return 0xD
	case asm.GT:
		return 0xC
	case asm.GE:
		return 0xA
	case asm.LTU:
		return 0x3 // lo
	case asm.LEU:
		return 0x9 // ls
	case asm.GTU:
		return 0x8 // hi
	}
	return 0x2 // hs
}

// CmpJump is subs into the zero register followed by b.cond.
func (e *Encoder) CmpJump(w asm.Width, c asm.Cond, a, b asm.Operand, to *asm.Label) error {
	if a.IsVector() || b.IsVector() {
		return errCombo("cmpjump", a, b)
	}
	ra, err := e.srcReg(w, a, scratchCmpL)
	if err != nil {
		return err
	}
	if b.Kind() == asm.KindImm && b.First() >= 0 && b.First() < 4096 {
		e.buf.Word(sfBit(w) | 0x7100001F | uint32(b.First())<<10 | ra<<5)
	} else {
		rb, err := e.srcReg(w, b, scratchCmpR)
		if err != nil {
			return err
		}
		e.buf.Word(sfBit(w) | 0x6B00001F | rb<<16 | ra<<5)
	}
	at := e.buf.Len()
	e.buf.Word(0x54000000 | condCode(c))
	e.buf.Refer(to, at, patchBranch19)
	return nil
}

// patchBranch19 writes the self-relative word offset into the imm19 field.
func patchBranch19(b *asm.Buffer, at, target int) {
	off := int32(target-at) / 4
	word := b.WordAt(at)
	b.SetWordAt(at, word&^0x00FFFFE0|uint32(off)<<5&0x00FFFFE0)
}

func (e *Encoder) Jump(to *asm.Label) error {
	at := e.buf.Len()
	e.buf.Word(0x14000000)
	e.buf.Refer(to, at, patchBranch26)
	return nil
}

func patchBranch26(b *asm.Buffer, at, target int) {
	off := int32(target-at) / 4
	word := b.WordAt(at)
	b.SetWordAt(at, word&^0x03FFFFFF|uint32(off)&0x03FFFFFF)
}

// Push keeps SP 16-aligned with a pre-indexed store; Pop mirrors it.
func (e *Encoder) Push(src asm.Operand) error {
	if src.IsVector() {
		return errCombo("push", src, src)
	}
	s, err := e.srcReg(asm.W64, src, scratchData)
	if err != nil {
		return err
	}
	e.buf.Word(0xF81F0C00 | regSP<<5 | s) // str s, [sp, #-16]!
	return nil
}

func (e *Encoder) Pop(dst asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("pop", dst, dst)
	}
	e.buf.Word(0xF8410400 | regSP<<5 | physOf(dst)) // ldr dst, [sp], #16
	return nil
}

// frameSize covers the save file rounded up to 16-byte alignment.
func frameSize() uint32 {
	n := (len(saveOrder) + 1) / 2 * 16
	return uint32(n)
}

// SaveAll spills the portable and scratch file with stp pairs, the odd link
// register with a plain str. RestoreAll is the word-for-word mirror.
func (e *Encoder) SaveAll() error {
	fs := frameSize()
	e.buf.Word(0xD1000000 | fs<<10 | regSP<<5 | regSP) // sub sp, sp, #fs
	for i := 0; i+1 < len(saveOrder); i += 2 {
		e.buf.Word(0xA9000000 | uint32(i)<<15 | uint32(saveOrder[i+1])<<10 | regSP<<5 | uint32(saveOrder[i]))
	}
	if len(saveOrder)%2 == 1 {
		last := uint32(saveOrder[len(saveOrder)-1])
		e.buf.Word(0xF9000000 | uint32(len(saveOrder)-1)<<10 | regSP<<5 | last)
	}
	return nil
}

func (e *Encoder) RestoreAll() error {
	if len(saveOrder)%2 == 1 {
		last := uint32(saveOrder[len(saveOrder)-1])
		e.buf.Word(0xF9400000 | uint32(len(saveOrder)-1)<<10 | regSP<<5 | last)
	}
	for i := len(saveOrder) - len(saveOrder)%2 - 2; i >= 0; i -= 2 {
		e.buf.Word(0xA9400000 | uint32(i)<<15 | uint32(saveOrder[i+1])<<10 | regSP<<5 | uint32(saveOrder[i]))
	}
	fs := frameSize()
	e.buf.Word(0x91000000 | fs<<10 | regSP<<5 | regSP) // add sp, sp, #fs
	return nil
}

func (e *Encoder) Ret() error {
	e.buf.Word(0xD65F03C0)
	return nil
}
