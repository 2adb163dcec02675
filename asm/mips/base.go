package mips

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// aluOp is a register-form arithmetic/logical group. The immediate opcode is
// the I-type major when the group has one, with zeroExt marking the logical
// group whose immediates zero-extend (so only unsigned 16-bit values may use
// the short form).
type aluOp struct {
	name    string
	funct   uint32 // SPECIAL funct, 32-bit form
	funct64 uint32 // SPECIAL funct, 64-bit form
	immOp   uint32 // I-type major, 0 when the group has no immediate form
	zeroExt bool
}

var (
	add = aluOp{"add", 0x21, 0x2D, 0x09, false} // addu/daddu, addiu
	sub = aluOp{"sub", 0x23, 0x2F, 0, false}    // subu/dsubu
	and = aluOp{"and", 0x24, 0x24, 0x0C, true}  // and, andi
	orr = aluOp{"orr", 0x25, 0x25, 0x0D, true}  // or, ori
	xor = aluOp{"xor", 0x26, 0x26, 0x0E, true}  // xor, xori
)

func (op aluOp) fn(w asm.Width) uint32 {
	if w == asm.W64 {
		return op.funct64
	}
	return op.funct
}

// immFits reports whether v can ride in the group's I-type immediate field.
func (op aluOp) immFits(v int64) bool {
	if op.immOp == 0 {
		return false
	}
	if op.zeroExt {
		return fitsU16(v)
	}
	return fitsS16(v)
}

// alu is the shared dst = dst OP src expansion. Register destinations take
// the R-type (or short I-type) word directly; memory destinations go through
// a load into $t7, the register op, and a store back.
func (e *Encoder) alu(op aluOp, w asm.Width, dst, src asm.Operand) error {
	if dst.IsVector() || src.IsVector() {
		return errCombo(op.name, dst, src)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 %s: 64-bit width: %w", op.name, asm.ErrUnsupported)
	}
	switch dst.Kind() {
	case asm.KindReg:
		d := physOf(dst)
		if src.Kind() == asm.KindImm && op.immFits(src.First()) {
			e.buf.Word(iType(op.immOp, d, d, uint16(src.First())))
			return nil
		}
		s, err := e.srcReg(w, src, scratchData)
		if err != nil {
			return err
		}
		e.buf.Word(rType(op.fn(w), d, d, s, 0))
		return nil
	case asm.KindMem:
		if src.Kind() == asm.KindMem {
			return errCombo(op.name, dst, src)
		}
		s, err := e.srcReg(w, src, scratchCmpR)
		if err != nil {
			return err
		}
		if err := e.load(w, scratchData, dst); err != nil {
			return err
		}
		e.buf.Word(rType(op.fn(w), scratchData, scratchData, s, 0))
		return e.store(w, scratchData, dst)
	}
	return errCombo(op.name, dst, src)
}

func (e *Encoder) Add(w asm.Width, dst, src asm.Operand) error { return e.alu(add, w, dst, src) }
func (e *Encoder) And(w asm.Width, dst, src asm.Operand) error { return e.alu(and, w, dst, src) }
func (e *Encoder) Orr(w asm.Width, dst, src asm.Operand) error { return e.alu(orr, w, dst, src) }
func (e *Encoder) Xor(w asm.Width, dst, src asm.Operand) error { return e.alu(xor, w, dst, src) }

// Sub folds small immediates into addiu with the sign flipped; subtraction
// has no I-type form of its own.
func (e *Encoder) Sub(w asm.Width, dst, src asm.Operand) error {
	if src.Kind() == asm.KindImm && add.immFits(-src.First()) {
		return e.alu(add, w, dst, asm.I(-src.First()))
	}
	return e.alu(sub, w, dst, src)
}

// Mov copies src into dst. Register-to-register moves ride on OR with $zero.
func (e *Encoder) Mov(w asm.Width, dst, src asm.Operand) error {
	if dst.IsVector() || src.IsVector() {
		return errCombo("mov", dst, src)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 mov: 64-bit width: %w", asm.ErrUnsupported)
	}
	switch dst.Kind() {
	case asm.KindReg:
		d := physOf(dst)
		switch src.Kind() {
		case asm.KindReg:
			e.buf.Word(rType(orr.funct, d, physOf(src), regZero, 0))
			return nil
		case asm.KindImm:
			return e.immTo(d, src.First())
		case asm.KindMem:
			return e.load(w, d, src)
		}
	case asm.KindMem:
		if src.Kind() == asm.KindMem {
			return errCombo("mov", dst, src)
		}
		s, err := e.srcReg(w, src, scratchData)
		if err != nil {
			return err
		}
		return e.store(w, s, dst)
	}
	return errCombo("mov", dst, src)
}

// Not is NOR with $zero, Neg is a subtract from $zero.
func (e *Encoder) Not(w asm.Width, dst asm.Operand) error {
	return e.unary(w, dst, "not", func(r uint32) uint32 {
		return rType(0x27, r, r, regZero, 0) // nor r, r, $zero
	})
}

func (e *Encoder) Neg(w asm.Width, dst asm.Operand) error {
	return e.unary(w, dst, "neg", func(r uint32) uint32 {
		return rType(sub.fn(w), r, regZero, r, 0)
	})
}

func (e *Encoder) unary(w asm.Width, dst asm.Operand, name string, word func(uint32) uint32) error {
	if dst.IsVector() {
		return errCombo(name, dst, dst)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 %s: 64-bit width: %w", name, asm.ErrUnsupported)
	}
	switch dst.Kind() {
	case asm.KindReg:
		e.buf.Word(word(physOf(dst)))
		return nil
	case asm.KindMem:
		if err := e.load(w, scratchData, dst); err != nil {
			return err
		}
		e.buf.Word(word(scratchData))
		return e.store(w, scratchData, dst)
	}
	return errCombo(name, dst, dst)
}

// shiftOp holds the immediate and variable functs for one direction, plus the
// 64-bit forms. The *32 funct covers MIPS64 shift amounts of 32 and above.
type shiftOp struct {
	name    string
	imm     uint32 // sll/srl/sra
	imm64   uint32 // dsll/dsrl/dsra
	imm64hi uint32 // dsll32/dsrl32/dsra32
	v       uint32 // sllv/srlv/srav
	v64     uint32 // dsllv/dsrlv/dsrav
	rotate  bool   // rs/sa bit 0 set selects rotr forms
}

var (
	shl = shiftOp{"shl", 0x00, 0x38, 0x3C, 0x04, 0x14, false}
	shr = shiftOp{"shr", 0x02, 0x3A, 0x3E, 0x06, 0x16, false}
	sar = shiftOp{"sar", 0x03, 0x3B, 0x3F, 0x07, 0x17, false}
	ror = shiftOp{"ror", 0x02, 0x3A, 0x3E, 0x06, 0x16, true}
)

func (e *Encoder) shift(op shiftOp, w asm.Width, dst, count asm.Operand) error {
	if dst.IsVector() || count.IsVector() {
		return errCombo(op.name, dst, count)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 %s: 64-bit width: %w", op.name, asm.ErrUnsupported)
	}
	apply := func(r uint32) error {
		switch count.Kind() {
		case asm.KindImm:
			sa := uint32(count.First()) & uint32(w.Mask())
			funct, rot := op.imm, uint32(0)
			if op.rotate {
				rot = 1
			}
			switch {
			case w == asm.W64 && sa >= 32:
				funct, sa = op.imm64hi, sa-32
			case w == asm.W64:
				funct = op.imm64
			}
			// Immediate rotates carry the rotr marker in rs.
			e.buf.Word(rType(funct, r, rot, r, sa))
			return nil
		case asm.KindReg:
			funct := op.v
			if w == asm.W64 {
				funct = op.v64
			}
			sa := uint32(0)
			if op.rotate {
				sa = 1 // rotrv/drotrv marker
			}
			e.buf.Word(rType(funct, r, physOf(count), r, sa))
			return nil
		}
		return errCombo(op.name, dst, count)
	}
	switch dst.Kind() {
	case asm.KindReg:
		return apply(physOf(dst))
	case asm.KindMem:
		if err := e.load(w, scratchData, dst); err != nil {
			return err
		}
		if err := apply(scratchData); err != nil {
			return err
		}
		return e.store(w, scratchData, dst)
	}
	return errCombo(op.name, dst, count)
}

func (e *Encoder) Shl(w asm.Width, dst, count asm.Operand) error { return e.shift(shl, w, dst, count) }
func (e *Encoder) Shr(w asm.Width, dst, count asm.Operand) error { return e.shift(shr, w, dst, count) }
func (e *Encoder) Sar(w asm.Width, dst, count asm.Operand) error { return e.shift(sar, w, dst, count) }
func (e *Encoder) Ror(w asm.Width, dst, count asm.Operand) error { return e.shift(ror, w, dst, count) }

// mulFunct returns the narrow and wide multiply functs for the r5 HI/LO unit.
func mulFunct(w asm.Width, signed bool) uint32 {
	base := uint32(0x18) // mult
	if !signed {
		base = 0x19 // multu
	}
	if w == asm.W64 {
		base += 4 // dmult/dmultu
	}
	return base
}

// Mul keeps only the low half of the product, so the signed forms serve both
// signednesses. r6 has a true three-operand mul; r5 goes through LO.
func (e *Encoder) Mul(w asm.Width, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("mul", dst, src)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 mul: 64-bit width: %w", asm.ErrUnsupported)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchCmpR)
	if err != nil {
		return err
	}
	if e.r6() {
		e.buf.Word(rType(mulFunct(w, true), d, d, s, 2)) // mul/dmul
		return nil
	}
	e.buf.Word(rType(mulFunct(w, true), 0, d, s, 0))
	e.buf.Word(rType(0x12, d, 0, 0, 0)) // mflo
	return nil
}

// MulHi leaves the high half of the full product in dst.
func (e *Encoder) MulHi(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("mulhi", dst, src)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 mulhi: 64-bit width: %w", asm.ErrUnsupported)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchCmpR)
	if err != nil {
		return err
	}
	if e.r6() {
		e.buf.Word(rType(mulFunct(w, signed), d, d, s, 3)) // muh/muhu/dmuh/dmuhu
		return nil
	}
	e.buf.Word(rType(mulFunct(w, signed), 0, d, s, 0))
	e.buf.Word(rType(0x10, d, 0, 0, 0)) // mfhi
	return nil
}

func divFunct(w asm.Width, signed bool) uint32 {
	base := uint32(0x1A) // div
	if !signed {
		base = 0x1B // divu
	}
	if w == asm.W64 {
		base += 4 // ddiv/ddivu
	}
	return base
}

// Div leaves the quotient in dst. On r5 the remainder stays behind in HI; on
// r6 the original dividend is parked in $t8 so a following Rem can re-run the
// division through mod. Either way the remainder is only reachable by a Rem
// issued immediately after.
func (e *Encoder) Div(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("div", dst, src)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 div: 64-bit width: %w", asm.ErrUnsupported)
	}
	d := physOf(dst)
	s, err := e.srcReg(w, src, scratchCmpR)
	if err != nil {
		return err
	}
	if e.r6() {
		e.buf.Word(rType(orr.funct, scratchCmpL, d, regZero, 0))
		e.buf.Word(rType(divFunct(w, signed), d, scratchCmpL, s, 2))
	} else {
		e.buf.Word(rType(divFunct(w, signed), 0, d, s, 0))
		e.buf.Word(rType(0x12, d, 0, 0, 0)) // mflo
	}
	e.lastDiv = &divState{
		end:      e.buf.Len(),
		w:        w,
		signed:   signed,
		dividend: scratchCmpL,
		divisor:  s,
	}
	return nil
}

// Rem places the remainder of the immediately preceding Div into dst. Any
// intervening instruction voids the pairing.
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
	if e.r6() {
		e.buf.Word(rType(divFunct(w, signed), d, st.dividend, st.divisor, 3)) // mod
		return nil
	}
	e.buf.Word(rType(0x10, d, 0, 0, 0)) // mfhi
	return nil
}

// branchOp computes the beq/bne major and whether the slt boolean branches on
// set or clear, with operands optionally swapped.
func condPlan(c asm.Cond) (useSlt bool, branchSet bool, swap bool) {
	switch c {
	case asm.EQ, asm.NE:
		return false, c == asm.NE, false
	case asm.LT, asm.LTU:
		return true, true, false
	case asm.GE, asm.GEU:
		return true, false, false
	case asm.GT, asm.GTU:
		return true, true, true
	case asm.LE, asm.LEU:
		return true, false, true
	}
	return false, false, false
}

// CmpJump compares a against b and branches to label when the condition
// holds. Non-equality conditions set a boolean in $t8 with slt/sltu and
// branch on it against $zero. Every branch carries its delay-slot nop.
func (e *Encoder) CmpJump(w asm.Width, c asm.Cond, a, b asm.Operand, label *asm.Label) error {
	if a.IsVector() || b.IsVector() {
		return errCombo("cmpjump", a, b)
	}
	if w == asm.W64 && !e.wide() {
		return fmt.Errorf("mips32 cmpjump: 64-bit width: %w", asm.ErrUnsupported)
	}
	ra, err := e.srcReg(w, a, scratchCmpL)
	if err != nil {
		return err
	}
	rb, err := e.srcReg(w, b, scratchCmpR)
	if err != nil {
		return err
	}
	useSlt, branchSet, swap := condPlan(c)
	if swap {
		ra, rb = rb, ra
	}
	var op uint32
	if useSlt {
		funct := uint32(0x2A) // slt
		if !c.Signed() {
			funct = 0x2B // sltu
		}
		e.buf.Word(rType(funct, scratchCmpL, ra, rb, 0))
		ra, rb = scratchCmpL, regZero
		op = 0x04 // beq (boolean clear)
		if branchSet {
			op = 0x05 // bne
		}
	} else {
		op = 0x04
		if branchSet {
			op = 0x05
		}
	}
	e.emitBranch(op, ra, rb, label)
	return nil
}

// emitBranch writes the branch word with a zero offset, registers the fixup,
// and fills the delay slot.
func (e *Encoder) emitBranch(op, rs, rt uint32, label *asm.Label) {
	at := e.buf.Len()
	e.buf.Word(iType(op, rt, rs, 0))
	e.buf.Refer(label, at, patchBranch16)
	e.buf.Word(nop)
}

// patchBranch16 drops the word-scaled delay-slot-relative offset into the low
// 16 bits of the branch at `at`.
func patchBranch16(b *asm.Buffer, at, target int) {
	off := int32(target-(at+4)) / 4
	word := b.WordAt(at)
	b.SetWordAt(at, word&^0xFFFF|uint32(off)&0xFFFF)
}

// Jump is an unconditional branch, encoded beq $zero, $zero.
func (e *Encoder) Jump(label *asm.Label) error {
	e.emitBranch(0x04, regZero, regZero, label)
	return nil
}

// spAdjust moves the stack pointer by delta using the pointer-width addiu.
func (e *Encoder) spAdjust(delta int64) {
	op := uint32(0x09) // addiu
	if e.wide() {
		op = 0x19 // daddiu
	}
	e.buf.Word(iType(op, stackPtr, stackPtr, uint16(delta)))
}

// Push stores src at a freshly opened pointer-width stack slot.
func (e *Encoder) Push(src asm.Operand) error {
	if src.IsVector() {
		return errCombo("push", src, src)
	}
	w := e.target.PtrWidth
	s, err := e.srcReg(w, src, scratchData)
	if err != nil {
		return err
	}
	e.spAdjust(-e.ptrSz())
	e.buf.Word(iType(e.storeOp(w), s, stackPtr, 0))
	return nil
}

func (e *Encoder) Pop(dst asm.Operand) error {
	if dst.Kind() != asm.KindReg || dst.IsVector() {
		return errCombo("pop", dst, dst)
	}
	w := e.target.PtrWidth
	e.buf.Word(iType(e.loadOp(w), physOf(dst), stackPtr, 0))
	e.spAdjust(e.ptrSz())
	return nil
}

// SaveAll spills the portable file, the scratch registers, and the link
// register in one frame. RestoreAll reloads them in exact mirror order.
func (e *Encoder) SaveAll() error {
	w := e.target.PtrWidth
	sz := e.ptrSz()
	e.spAdjust(-sz * int64(len(saveOrder)))
	for i, r := range saveOrder {
		e.buf.Word(iType(e.storeOp(w), uint32(r), stackPtr, uint16(int64(i)*sz)))
	}
	return nil
}

func (e *Encoder) RestoreAll() error {
	w := e.target.PtrWidth
	sz := e.ptrSz()
	for i := len(saveOrder) - 1; i >= 0; i-- {
		e.buf.Word(iType(e.loadOp(w), uint32(saveOrder[i]), stackPtr, uint16(int64(i)*sz)))
	}
	e.spAdjust(sz * int64(len(saveOrder)))
	return nil
}

// Ret returns through the link register. jalr with a $zero link destination
// decodes on both r5 and r6.
func (e *Encoder) Ret() error {
	e.buf.Word(rType(0x09, regZero, linkReg, 0, 0))
	e.buf.Word(nop)
	return nil
}
