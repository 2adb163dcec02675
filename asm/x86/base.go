package x86

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// One row per ALU family: opcode for the r/m,r form, the r,r/m form, and the
// 0x81 /ext immediate extension.
type aluOp struct {
	name string
	mr   byte
	rm   byte
	ext  byte
}

var (
	opAdd = aluOp{"add", 0x01, 0x03, 0}
	opOrr = aluOp{"orr", 0x09, 0x0B, 1}
	opAnd = aluOp{"and", 0x21, 0x23, 4}
	opSub = aluOp{"sub", 0x29, 0x2B, 5}
	opXor = aluOp{"xor", 0x31, 0x33, 6}
	opCmp = aluOp{"cmp", 0x39, 0x3B, 7}
)

func immFits32(src asm.Operand) bool { return src.Second() <= asm.Fit32 }

// alu dispatches one ALU mnemonic over the (dst-kind, src-kind) table.
func (e *Encoder) alu(w asm.Width, op aluOp, dst, src asm.Operand) error {
	switch {
	case dst.Kind() == asm.KindReg && src.Kind() == asm.KindReg:
		e.opRR(w, []byte{op.mr}, physOf(src), physOf(dst))
	case dst.Kind() == asm.KindReg && src.Kind() == asm.KindImm:
		if immFits32(src) {
			e.rexFor(w, 0, physOf(dst))
			e.buf.Byte(0x81, modRM(3, op.ext, physOf(dst)))
			e.buf.Word(uint32(src.First()))
		} else {
			e.movImm(asm.W64, scratchData, src.First())
			e.opRR(w, []byte{op.mr}, scratchData, physOf(dst))
		}
	case dst.Kind() == asm.KindReg && src.Kind() == asm.KindMem:
		base, disp := e.memArgs(src)
		e.opRM(w, []byte{op.rm}, physOf(dst), base, disp)
	case dst.Kind() == asm.KindMem && src.Kind() == asm.KindReg:
		base, disp := e.memArgs(dst)
		e.opRM(w, []byte{op.mr}, physOf(src), base, disp)
	case dst.Kind() == asm.KindMem && src.Kind() == asm.KindImm:
		if immFits32(src) {
			base, disp := e.memArgs(dst)
			e.opRM(w, []byte{0x81}, op.ext, base, disp)
			e.buf.Word(uint32(src.First()))
		} else {
			e.movImm(asm.W64, scratchData, src.First())
			base, disp := e.memArgs(dst)
			e.opRM(w, []byte{op.mr}, scratchData, base, disp)
		}
	default:
		return errCombo(op.name, dst, src)
	}
	return nil
}

func (e *Encoder) Mov(w asm.Width, dst, src asm.Operand) error {
	switch {
	case dst.Kind() == asm.KindReg && src.Kind() == asm.KindReg:
		e.opRR(w, []byte{0x8B}, physOf(dst), physOf(src))
	case dst.Kind() == asm.KindReg && src.Kind() == asm.KindImm:
		e.movImm(w, physOf(dst), src.First())
	case dst.Kind() == asm.KindReg && src.Kind() == asm.KindMem:
		base, disp := e.memArgs(src)
		e.opRM(w, []byte{0x8B}, physOf(dst), base, disp)
	case dst.Kind() == asm.KindMem && src.Kind() == asm.KindReg:
		base, disp := e.memArgs(dst)
		e.opRM(w, []byte{0x89}, physOf(src), base, disp)
	case dst.Kind() == asm.KindMem && src.Kind() == asm.KindImm:
		if immFits32(src) {
			base, disp := e.memArgs(dst)
			e.opRM(w, []byte{0xC7}, 0, base, disp)
			e.buf.Word(uint32(src.First()))
		} else {
			e.movImm(asm.W64, scratchData, src.First())
			base, disp := e.memArgs(dst)
			e.opRM(w, []byte{0x89}, scratchData, base, disp)
		}
	default:
		return errCombo("mov", dst, src)
	}
	return nil
}

func (e *Encoder) Add(w asm.Width, dst, src asm.Operand) error { return e.alu(w, opAdd, dst, src) }
func (e *Encoder) Sub(w asm.Width, dst, src asm.Operand) error { return e.alu(w, opSub, dst, src) }
func (e *Encoder) And(w asm.Width, dst, src asm.Operand) error { return e.alu(w, opAnd, dst, src) }
func (e *Encoder) Orr(w asm.Width, dst, src asm.Operand) error { return e.alu(w, opOrr, dst, src) }
func (e *Encoder) Xor(w asm.Width, dst, src asm.Operand) error { return e.alu(w, opXor, dst, src) }

// unary emits an F7-group instruction (not /2, neg /3).
func (e *Encoder) unary(w asm.Width, name string, ext byte, dst asm.Operand) error {
	switch dst.Kind() {
	case asm.KindReg:
		e.opRR(w, []byte{0xF7}, ext, physOf(dst))
	case asm.KindMem:
		base, disp := e.memArgs(dst)
		e.opRM(w, []byte{0xF7}, ext, base, disp)
	default:
		return fmt.Errorf("x86 %s %s: %w", name, dst, asm.ErrUnsupported)
	}
	return nil
}

func (e *Encoder) Not(w asm.Width, dst asm.Operand) error { return e.unary(w, "not", 2, dst) }
func (e *Encoder) Neg(w asm.Width, dst asm.Operand) error { return e.unary(w, "neg", 3, dst) }

// shift emits the C1 (imm count) or D3 (cl count) group. Immediate counts are
// masked to the element width, exactly as the hardware masks cl.
func (e *Encoder) shift(w asm.Width, name string, ext byte, dst, count asm.Operand) error {
	if dst.Kind() == asm.KindImm {
		return errCombo(name, dst, count)
	}
	switch count.Kind() {
	case asm.KindImm:
		n := byte(count.First() & w.Mask())
		switch dst.Kind() {
		case asm.KindReg:
			e.opRR(w, []byte{0xC1}, ext, physOf(dst))
		case asm.KindMem:
			base, disp := e.memArgs(dst)
			e.opRM(w, []byte{0xC1}, ext, base, disp)
		}
		e.buf.Byte(n)
	case asm.KindReg:
		// counts run through cl
		e.opRR(asm.W64, []byte{0x8B}, scratchCmpL, physOf(count))
		switch dst.Kind() {
		case asm.KindReg:
			e.opRR(w, []byte{0xD3}, ext, physOf(dst))
		case asm.KindMem:
			base, disp := e.memArgs(dst)
			e.opRM(w, []byte{0xD3}, ext, base, disp)
		}
	default:
		return errCombo(name, dst, count)
	}
	return nil
}

func (e *Encoder) Shl(w asm.Width, dst, count asm.Operand) error { return e.shift(w, "shl", 4, dst, count) }
func (e *Encoder) Shr(w asm.Width, dst, count asm.Operand) error { return e.shift(w, "shr", 5, dst, count) }
func (e *Encoder) Sar(w asm.Width, dst, count asm.Operand) error { return e.shift(w, "sar", 7, dst, count) }
func (e *Encoder) Ror(w asm.Width, dst, count asm.Operand) error { return e.shift(w, "ror", 1, dst, count) }

func (e *Encoder) Mul(w asm.Width, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg {
		return errCombo("mul", dst, src)
	}
	switch src.Kind() {
	case asm.KindReg:
		e.opRR(w, []byte{0x0F, 0xAF}, physOf(dst), physOf(src))
	case asm.KindMem:
		base, disp := e.memArgs(src)
		e.opRM(w, []byte{0x0F, 0xAF}, physOf(dst), base, disp)
	case asm.KindImm:
		if immFits32(src) {
			// imul r, r/m, imm32
			e.rexFor(w, physOf(dst), physOf(dst))
			e.buf.Byte(0x69, modRM(3, physOf(dst), physOf(dst)))
			e.buf.Word(uint32(src.First()))
		} else {
			e.movImm(asm.W64, scratchData, src.First())
			e.opRR(w, []byte{0x0F, 0xAF}, physOf(dst), scratchData)
		}
	default:
		return errCombo("mul", dst, src)
	}
	return nil
}

// wideMulSrc stages the multiplier/divisor for the one-operand F7 group.
func (e *Encoder) wideMulSrc(w asm.Width, ext byte, src asm.Operand) error {
	switch src.Kind() {
	case asm.KindReg:
		e.opRR(w, []byte{0xF7}, ext, physOf(src))
	case asm.KindMem:
		base, disp := e.memArgs(src)
		e.opRM(w, []byte{0xF7}, ext, base, disp)
	case asm.KindImm:
		e.movImm(asm.W64, scratchCmpL, src.First())
		e.opRR(w, []byte{0xF7}, ext, scratchCmpL)
	default:
		return asm.ErrUnsupported
	}
	return nil
}

func (e *Encoder) MulHi(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg {
		return errCombo("mulhi", dst, src)
	}
	ext := byte(4) // mul
	if signed {
		ext = 5 // imul
	}
	e.opRR(asm.W64, []byte{0x8B}, scratchData, physOf(dst)) // mov rax, dst
	if err := e.wideMulSrc(w, ext, src); err != nil {
		return errCombo("mulhi", dst, src)
	}
	e.opRR(w, []byte{0x8B}, physOf(dst), scratchCmpR) // mov dst, rdx
	return nil
}

// Div primes rax/rdx with the dividend, divides, and moves the quotient into
// dst. The remainder stays in rdx for an immediately-following Rem.
func (e *Encoder) Div(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg {
		return errCombo("div", dst, src)
	}
	ext := byte(6) // div
	e.opRR(asm.W64, []byte{0x8B}, scratchData, physOf(dst)) // mov rax, dst
	if signed {
		ext = 7 // idiv
		if w == asm.W64 {
			e.buf.Byte(0x48, 0x99) // cqo
		} else {
			e.buf.Byte(0x99) // cdq
		}
	} else {
		e.buf.Byte(0x31, 0xD2) // xor edx, edx
	}
	if err := e.wideMulSrc(w, ext, src); err != nil {
		return errCombo("div", dst, src)
	}
	e.opRR(w, []byte{0x8B}, physOf(dst), scratchData) // mov dst, rax
	e.lastDiv = &divState{end: e.buf.Len(), w: w, signed: signed, src: src}
	return nil
}

// Rem extracts the remainder left in rdx by the divide that must directly
// precede it.
func (e *Encoder) Rem(w asm.Width, signed bool, dst, src asm.Operand) error {
	if dst.Kind() != asm.KindReg {
		return errCombo("rem", dst, src)
	}
	d := e.lastDiv
	if d == nil || d.end != e.buf.Len() || d.w != w || d.signed != signed {
		return fmt.Errorf("x86 rem without matching div: %w", asm.ErrOrder)
	}
	e.lastDiv = nil
	e.opRR(w, []byte{0x8B}, physOf(dst), scratchCmpR) // mov dst, rdx
	return nil
}

var ccBytes = map[asm.Cond]byte{
	asm.EQ: 0x84, asm.NE: 0x85,
	asm.LT: 0x8C, asm.LE: 0x8E, asm.GT: 0x8F, asm.GE: 0x8D,
	asm.LTU: 0x82, asm.LEU: 0x86, asm.GTU: 0x87, asm.GEU: 0x83,
}

func patchRel32(b *asm.Buffer, at, target int) {
	b.SetWordAt(at, uint32(int32(target-(at+4))))
}

// CmpJump emits cmp then the matching jcc rel32. x86 has persistent flags, so
// no scratch boolean is needed.
func (e *Encoder) CmpJump(w asm.Width, c asm.Cond, a, b asm.Operand, to *asm.Label) error {
	if err := e.alu(w, opCmp, a, b); err != nil {
		return fmt.Errorf("x86 cmpjump %s: %w", c, err)
	}
	e.buf.Byte(0x0F, ccBytes[c])
	at := e.buf.Len()
	e.buf.Word(0)
	e.buf.Refer(to, at, patchRel32)
	return nil
}

func (e *Encoder) Jump(to *asm.Label) error {
	e.buf.Byte(0xE9)
	at := e.buf.Len()
	e.buf.Word(0)
	e.buf.Refer(to, at, patchRel32)
	return nil
}

func (e *Encoder) pushPhys(p uint8) {
	if p >= 8 {
		e.buf.Byte(rex | rexB)
	}
	e.buf.Byte(0x50 + p&7)
}

func (e *Encoder) popPhys(p uint8) {
	if p >= 8 {
		e.buf.Byte(rex | rexB)
	}
	e.buf.Byte(0x58 + p&7)
}

func (e *Encoder) Push(src asm.Operand) error {
	switch src.Kind() {
	case asm.KindReg:
		e.pushPhys(physOf(src))
	case asm.KindMem:
		base, disp := e.memArgs(src)
		e.opRM(asm.W32, []byte{0xFF}, 6, base, disp) // push defaults to 64-bit
	case asm.KindImm:
		if !immFits32(src) {
			return fmt.Errorf("x86 push %s: %w", src, asm.ErrRange)
		}
		e.buf.Byte(0x68)
		e.buf.Word(uint32(src.First()))
	default:
		return errCombo("push", src, src)
	}
	return nil
}

func (e *Encoder) Pop(dst asm.Operand) error {
	switch dst.Kind() {
	case asm.KindReg:
		e.popPhys(physOf(dst))
	case asm.KindMem:
		base, disp := e.memArgs(dst)
		e.opRM(asm.W32, []byte{0x8F}, 0, base, disp)
	default:
		return errCombo("pop", dst, dst)
	}
	return nil
}

// SaveAll spills every general-purpose register except rsp in the fixed
// convention order.
func (e *Encoder) SaveAll() error {
	for _, p := range e.conv.SaveOrder {
		e.pushPhys(p)
	}
	return nil
}

// RestoreAll is the exact mirror of SaveAll.
func (e *Encoder) RestoreAll() error {
	for i := len(e.conv.SaveOrder) - 1; i >= 0; i-- {
		e.popPhys(e.conv.SaveOrder[i])
	}
	return nil
}

func (e *Encoder) Ret() error {
	e.buf.Byte(0xC3)
	return nil
}
