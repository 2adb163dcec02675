package power

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

const (
	mflrR0 = 0x7C0802A6
	mtlrR0 = 0x7C0803A6
	blr    = 0x4E800020
)

// aluOp is one arithmetic/logical group. Arithmetic words write RT and
// logical words write RA, but with destination and left source always the
// same register the packing coincides; immOp is the D-form major when the
// group has one, with zeroExt marking the ori/xori zero-extending window.
type aluOp struct {
	name    string
	xo      uint32
	immOp   uint32
	zeroExt bool
}

var (
	add = aluOp{"add", 266, 14, false} // add / addi
	sub = aluOp{"sub", 40, 0, false}   // subf
	and = aluOp{"and", 28, 28, true}   // and / andi.
	orr = aluOp{"orr", 444, 24, true}  // or / ori
	xor = aluOp{"xor", 316, 26, true}  // xor / xori
)

func (op aluOp) immFits(v int64) bool {
	if op.immOp == 0 {
		return false
	}
	if op.zeroExt {
		return fitsU16(v)
	}
	return fitsS16(v)
}

// emitImm writes the D-form immediate word for dst = dst OP imm.
func (op aluOp) emitImm(e *Encoder, d uint32, v int64) {
	e.buf.Word(dForm(op.immOp, d, d, uint16(v)))
}

// emitRR writes the register word. subf computes rb-ra, so the source lands
// in the RA slot there.
func (op aluOp) emitRR(e *Encoder, d, s uint32) {
	if op.xo == sub.xo {
		e.buf.Word(xoForm(d, s, d, op.xo))
		return
	}
	e.buf.Word(xoForm(d, d, s, op.xo))
}

func (e *Encoder) alu(op aluOp, w asm.Width, dst, src asm.Operand) error {
	if dst.IsVector() || src.IsVector() {
		return errCombo(op.name, dst, src)
	}
	switch dst.Kind() {
	case asm.KindReg:
		d := physOf(dst)
		if src.Kind() == asm.KindImm && op.immFits(src.First()) {
			op.emitImm(e, d, src.First())
			return nil
		}
		s, err := e.srcReg(w, src, scratchData)
		if err != nil {
			return err
		}
		op.emitRR(e, d, s)
		return nil
	case asm.KindMem:
		if src.Kind() == asm.KindMem {
			return errCombo(op.name, dst, src)
		}
		s, err := e.srcReg(w, src, scratchCmpR)
		if err != nil {
			return err
		}
		e.load(w, scratchData, dst)
		op.emitRR(e, scratchData, s)
		e.store(w, scratchData, dst)
		return nil
	}
	return errCombo(op.name, dst, src)
}

func (e *Encoder) Add(w asm.Width, dst, src asm.Operand) error { return e.alu(add, w, dst, src) }
func (e *Encoder) And(w asm.Width, dst, src asm.Operand) error { return e.alu(and, w, dst, src) }
func (e *Encoder) Orr(w asm.Width, dst, src asm.Operand) error { return e.alu(orr, w, dst, src) }
func (e *Encoder) Xor(w asm.Width, dst, src asm.Operand) error { return e.alu(xor, w, dst, src) }

// Sub folds small immediates into addi with the sign flipped.
func (e *Encoder) Sub(w asm.Width, dst, src asm.Operand) error {
	if src.Kind() == asm.KindImm && add.immFits(-src.First()) {
		return e.alu(add, w, dst, asm.I(-src.First()))
	}
	return e.alu(sub, w, dst, src)
}

// Mov copies src into dst. Register moves ride on or with both sources
// equal; 32-bit stores truncate, as lwz zero-extends on the way back.
func (e *Encoder) Mov(w asm.Width, dst, src asm.Operand) error {
	if dst.IsVector() || src.IsVector() {
		return errCombo("mov", dst, src)
	}
	switch dst.Kind() {
	case asm.KindReg:
		d := physOf(dst)
		switch src.Kind() {
		case asm.KindReg:
			s := physOf(src)
			e.buf.Word(xoForm(s, d, s, orr.xo))
			return nil
		case asm.KindImm:
			e.immTo(d, src.First())
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

// Not is nor with both sources equal, Neg the XO-form negate.
func (e *Encoder) Not(w asm.Width, dst asm.Operand) error {
	return e.unary(w, dst, "not", func(r uint32) uint32 { return xoForm(r, r, r, 124) })
}

func (e *Encoder) Neg(w asm.Width, dst asm.Operand) error {
	return e.unary(w, dst, "neg", func(r uint32) uint32 { return xoForm(r, r, 0, 104) })
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

// shiftOp carries the 32- and 64-bit register-form extended opcodes. All
// shifts go through the register forms with the count staged masked in r9:
// slw takes six count bits from the register, so the architectural masking
// to the element width is applied explicitly.
type shiftOp struct {
	name   string
	xo32   uint32
	xo64   uint32
	rotate bool
}

var (
	shl = shiftOp{"shl", 24, 27, false}   // slw / sld
	shr = shiftOp{"shr", 536, 539, false} // srw / srd
	sar = shiftOp{"sar", 792, 794, false} // sraw / srad
	ror = shiftOp{"ror", 0, 0, true}      // rlwnm / rldcl on the flipped count
)

// rotlw is M-form: rs, ra, rb, mb=0, me=31.
func rotlw(d, count uint32) uint32 {
	return 23<<26 | d<<21 | d<<16 | count<<11 | 31<<1
}

// rotld is rldcl with mb=0.
func rotld(d, count uint32) uint32 {
	return 30<<26 | d<<21 | d<<16 | count<<11 | 8<<1
}

func (e *Encoder) shift(op shiftOp, w asm.Width, dst, count asm.Operand) error {
	if dst.IsVector() || count.IsVector() {
		return errCombo(op.name, dst, count)
	}
	// Stage the count in r9, masked to the element width. Rotates run on
	// the rotate-left words, so a right rotate flips the count first.
	switch count.Kind() {
	case asm.KindImm:
		n := count.First() & w.Mask()
		if op.rotate {
			n = (w.Mask() + 1 - n) & w.Mask()
		}
		e.buf.Word(dForm(14, scratchCmpR, 0, uint16(n))) // addi r9, 0, n
	case asm.KindReg:
		if op.rotate {
			// subfic r9, count, width
			e.buf.Word(dForm(8, scratchCmpR, physOf(count), uint16(w.Mask()+1)))
		} else {
			// andi. r9, count, mask
			e.buf.Word(28<<26 | physOf(count)<<21 | scratchCmpR<<16 | uint32(w.Mask()))
		}
	default:
		return errCombo(op.name, dst, count)
	}
	apply := func(r uint32) {
		switch {
		case op.rotate && w == asm.W64:
			e.buf.Word(rotld(r, scratchCmpR))
		case op.rotate:
			e.buf.Word(rotlw(r, scratchCmpR))
		case w == asm.W64:
			e.buf.Word(xoForm(r, r, scratchCmpR, op.xo64))
		default:
			e.buf.Word(xoForm(r, r, scratchCmpR, op.xo32))
		}
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

func (e *Encoder) Mul(w asm.Width, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("mul", dst, src)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchData)
	if err != nil {
		return err
	}
	xo := uint32(235) // mullw
	if w == asm.W64 {
		xo = 233 // mulld
	}
	e.buf.Word(xoForm(d, d, s, xo))
	return nil
}

func mulHiXO(w asm.Width, signed bool) uint32 {
	switch {
	case w == asm.W64 && signed:
		return 73 // mulhd
	case w == asm.W64:
		return 9 // mulhdu
	case signed:
		return 75 // mulhw
	}
	return 11 // mulhwu
}

func (e *Encoder) MulHi(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("mulhi", dst, src)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchData)
	if err != nil {
		return err
	}
	e.buf.Word(xoForm(d, d, s, mulHiXO(w, signed)))
	return nil
}

func divXO(w asm.Width, signed bool) uint32 {
	switch {
	case w == asm.W64 && signed:
		return 489 // divd
	case w == asm.W64:
		return 457 // divdu
	case signed:
		return 491 // divw
	}
	return 459 // divwu
}

// Div leaves the quotient in dst with the dividend parked in r8, so a Rem
// issued immediately after can recompute the remainder.
func (e *Encoder) Div(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("div", dst, src)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchCmpR)
	if err != nil {
		return err
	}
	e.buf.Word(xoForm(d, scratchCmpL, d, orr.xo)) // mr r8, dst
	e.buf.Word(xoForm(d, scratchCmpL, s, divXO(w, signed)))
	e.lastDiv = &divState{end: e.buf.Len(), w: w, signed: signed, quot: d, divisor: s}
	return nil
}

// Rem recomputes dividend - quotient*divisor from the registers the
// preceding Div left behind. Any intervening emission voids the pairing.
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
	mulXO := uint32(235)
	if w == asm.W64 {
		mulXO = 233
	}
	e.buf.Word(xoForm(scratchData, st.quot, st.divisor, mulXO))
	e.buf.Word(xoForm(d, scratchData, scratchCmpL, sub.xo)) // subf d, r12, r8
	return nil
}

// condBits maps a condition to the CR0 bit tested and the branch-on-true
// flag; bit 0 is LT, 1 is GT, 2 is EQ.
func condBits(c asm.Cond) (bi uint32, onTrue bool) {
	switch c {
	case asm.EQ:
		return 2, true
	case asm.NE:
		return 2, false
	case asm.LT, asm.LTU:
		return 0, true
	case asm.GE, asm.GEU:
		return 0, false
	case asm.GT, asm.GTU:
		return 1, true
	}
	return 1, false // LE, LEU
}

// cmpWord packs the X-form compare into CR0; l selects 64-bit.
func cmpWord(xo, ra, rb uint32, wide bool) uint32 {
	l := uint32(0)
	if wide {
		l = 1
	}
	return 31<<26 | l<<21 | ra<<16 | rb<<11 | xo<<1
}

// CmpJump compares into CR field 0 and emits the matching conditional
// branch. Small immediates ride in cmpi/cmpli directly.
func (e *Encoder) CmpJump(w asm.Width, c asm.Cond, a, b asm.Operand, to *asm.Label) error {
	if a.IsVector() || b.IsVector() {
		return errCombo("cmpjump", a, b)
	}
	ra, err := e.srcReg(w, a, scratchCmpL)
	if err != nil {
		return err
	}
	l := uint32(0)
	if w == asm.W64 {
		l = 1
	}
	signed := c.Signed() || c == asm.EQ || c == asm.NE
	switch {
	case b.Kind() == asm.KindImm && signed && fitsS16(b.First()):
		e.buf.Word(11<<26 | l<<21 | ra<<16 | uint32(uint16(b.First()))) // cmpi
	case b.Kind() == asm.KindImm && !signed && fitsU16(b.First()):
		e.buf.Word(10<<26 | l<<21 | ra<<16 | uint32(uint16(b.First()))) // cmpli
	default:
		rb, err := e.srcReg(w, b, scratchCmpR)
		if err != nil {
			return err
		}
		if signed {
			e.buf.Word(cmpWord(0, ra, rb, w == asm.W64))
		} else {
			e.buf.Word(cmpWord(32, ra, rb, w == asm.W64))
		}
	}
	bi, onTrue := condBits(c)
	bo := uint32(4) // branch if condition false
	if onTrue {
		bo = 12
	}
	at := e.buf.Len()
	e.buf.Word(16<<26 | bo<<21 | bi<<16)
	e.buf.Refer(to, at, patchBranch14)
	return nil
}

// patchBranch14 writes a self-relative word offset into the BD field.
func patchBranch14(b *asm.Buffer, at, target int) {
	off := int32(target-at) / 4
	word := b.WordAt(at)
	b.SetWordAt(at, word&^0xFFFC|uint32(off)<<2&0xFFFC)
}

// Jump is the I-form unconditional branch with a 24-bit reach.
func (e *Encoder) Jump(to *asm.Label) error {
	at := e.buf.Len()
	e.buf.Word(18 << 26)
	e.buf.Refer(to, at, patchBranch24)
	return nil
}

func patchBranch24(b *asm.Buffer, at, target int) {
	off := int32(target-at) / 4
	word := b.WordAt(at)
	b.SetWordAt(at, word&^0x03FFFFFC|uint32(off)<<2&0x03FFFFFC)
}

// Push opens a doubleword stack slot with the update-form store.
func (e *Encoder) Push(src asm.Operand) error {
	if src.IsVector() {
		return errCombo("push", src, src)
	}
	s, err := e.srcReg(asm.W64, src, scratchData)
	if err != nil {
		return err
	}
	e.buf.Word(dForm(62, s, stackPtr, 0xFFF8) | 1) // stdu s, -8(r1)
	return nil
}

func (e *Encoder) Pop(dst asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("pop", dst, dst)
	}
	e.buf.Word(dForm(58, physOf(dst), stackPtr, 0)) // ld dst, 0(r1)
	e.buf.Word(dForm(14, stackPtr, stackPtr, 8))    // addi r1, r1, 8
	return nil
}

// SaveAll spills the link register through r0 and the whole portable and
// scratch file into one frame; RestoreAll is its word-for-word mirror.
func (e *Encoder) SaveAll() error {
	n := len(saveOrder)
	e.buf.Word(mflrR0)
	e.buf.Word(dForm(14, stackPtr, stackPtr, uint16(-8*(n+1))))
	e.buf.Word(dForm(62, 0, stackPtr, uint16(8*n)))
	for i, r := range saveOrder {
		e.buf.Word(dForm(62, uint32(r), stackPtr, uint16(8*i)))
	}
	return nil
}

func (e *Encoder) RestoreAll() error {
	n := len(saveOrder)
	for i := n - 1; i >= 0; i-- {
		e.buf.Word(dForm(58, uint32(saveOrder[i]), stackPtr, uint16(8*i)))
	}
	e.buf.Word(dForm(58, 0, stackPtr, uint16(8*n)))
	e.buf.Word(dForm(14, stackPtr, stackPtr, uint16(8*(n+1))))
	e.buf.Word(mtlrR0)
	return nil
}

func (e *Encoder) Ret() error {
	e.buf.Word(blr)
	return nil
}
