package x86

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// Opcode maps after the VEX mmmmm field / legacy escape bytes.
const (
	map0F   = 1
	map0F38 = 2
)

// vecForm is one concrete SIMD encoding: legacy prefix (0, 0x66, 0xF3),
// opcode map, opcode byte, and an optional trailing immediate (cmpps
// predicates) with imm >= 0.
type vecForm struct {
	pfx  byte
	mmap byte
	op   byte
	imm  int
}

func form(pfx, op byte) vecForm          { return vecForm{pfx: pfx, mmap: map0F, op: op, imm: -1} }
func form38(pfx, op byte) vecForm        { return vecForm{pfx: pfx, mmap: map0F38, op: op, imm: -1} }
func formImm(pfx, op byte, imm int) vecForm { return vecForm{pfx: pfx, mmap: map0F, op: op, imm: imm} }

func (e *Encoder) VectorBytes() int { return e.target.VectorBytes() }

func (e *Encoder) avx() bool { return e.target.Features.AVXLevel > 0 }

// wide256 reports whether the active vector width is 256 bits, and whether
// the feature level supports it for the element class.
func (e *Encoder) wide256(el asm.Elem) error {
	if e.VectorBytes() != 32 {
		return nil
	}
	if el == asm.I32 && e.target.Features.AVXLevel < 2 {
		return fmt.Errorf("x86 256-bit integer SIMD needs AVX2: %w", asm.ErrFeature)
	}
	return nil
}

// sse emits pfx? REX? 0F [38?] op modrm. reg/rm are xmm or gp numbers.
func (e *Encoder) sse(f vecForm, reg, rm uint8, mem *asm.Operand) {
	if f.pfx != 0 {
		e.buf.Byte(f.pfx)
	}
	var base uint8
	var disp int64
	if mem != nil {
		base, disp = e.memArgs(*mem)
		rm = base
	}
	p := byte(0)
	p |= (reg >> 3) << 2
	p |= rm >> 3
	if p != 0 {
		e.buf.Byte(rex | p)
	}
	e.buf.Byte(0x0F)
	if f.mmap == map0F38 {
		e.buf.Byte(0x38)
	}
	e.buf.Byte(f.op)
	if mem != nil {
		e.modRMMem(reg, base, disp)
	} else {
		e.buf.Byte(modRM(3, reg, rm))
	}
	if f.imm >= 0 {
		e.buf.Byte(byte(f.imm))
	}
}

// modRMMem writes ModRM(+SIB)+disp for [base+disp]; REX and opcode are
// already out.
func (e *Encoder) modRMMem(reg, base uint8, disp int64) {
	needSIB := base&7 == 4
	switch {
	case disp == 0 && base&7 != 5:
		e.buf.Byte(modRM(0, reg, base))
		if needSIB {
			e.buf.Byte(0x24)
		}
	case disp >= -0x80 && disp < 0x80:
		e.buf.Byte(modRM(1, reg, base))
		if needSIB {
			e.buf.Byte(0x24)
		}
		e.buf.Byte(byte(disp))
	default:
		e.buf.Byte(modRM(2, reg, base))
		if needSIB {
			e.buf.Byte(0x24)
		}
		e.buf.Word(uint32(disp))
	}
}

// vex emits the VEX prefix + opcode + modrm. vvvv is the first source.
func (e *Encoder) vex(f vecForm, reg, vvvv, rm uint8, mem *asm.Operand, l256 bool) {
	var base uint8
	var disp int64
	if mem != nil {
		base, disp = e.memArgs(*mem)
		rm = base
	}
	pp := byte(0)
	switch f.pfx {
	case 0x66:
		pp = 1
	case 0xF3:
		pp = 2
	case 0xF2:
		pp = 3
	}
	l := byte(0)
	if l256 {
		l = 4
	}
	if f.mmap == map0F && rm < 8 {
		// 2-byte VEX
		e.buf.Byte(0xC5, (^reg>>3&1)<<7|(^vvvv&0xF)<<3|l|pp)
	} else {
		e.buf.Byte(0xC4,
			(^reg>>3&1)<<7|0x40|(^rm>>3&1)<<5|f.mmap,
			(^vvvv&0xF)<<3|l|pp)
	}
	e.buf.Byte(f.op)
	if mem != nil {
		e.modRMMem(reg, base, disp)
	} else {
		e.buf.Byte(modRM(3, reg, rm))
	}
	if f.imm >= 0 {
		e.buf.Byte(byte(f.imm))
	}
}

// vecBin dispatches dst = dst OP src for one element class.
func (e *Encoder) vecBin(name string, forms map[asm.Elem]vecForm, el asm.Elem, dst, src asm.Operand) error {
	f, ok := forms[el]
	if !ok {
		return fmt.Errorf("x86 %s.%s: %w", name, el, asm.ErrUnsupported)
	}
	if err := e.wide256(el); err != nil {
		return err
	}
	if dst.Kind() != asm.KindReg || !dst.IsVector() {
		return fmt.Errorf("x86 %s %s, %s: %w", name, dst, src, asm.ErrUnsupported)
	}
	d := uint8(dst.First())
	switch {
	case src.Kind() == asm.KindReg && src.IsVector():
		if e.avx() {
			e.vex(f, d, d, uint8(src.First()), nil, e.VectorBytes() == 32)
		} else {
			e.sse(f, d, uint8(src.First()), nil)
		}
	case src.Kind() == asm.KindMem:
		if e.avx() {
			e.vex(f, d, d, 0, &src, e.VectorBytes() == 32)
		} else {
			e.sse(f, d, 0, &src)
		}
	default:
		return fmt.Errorf("x86 %s %s, %s: %w", name, dst, src, asm.ErrUnsupported)
	}
	return nil
}

var (
	vmovLd = map[asm.Elem]vecForm{asm.F32: form(0, 0x10), asm.F64: form(0x66, 0x10), asm.I32: form(0xF3, 0x6F)}
	vmovSt = map[asm.Elem]vecForm{asm.F32: form(0, 0x11), asm.F64: form(0x66, 0x11), asm.I32: form(0xF3, 0x7F)}
	vadd   = map[asm.Elem]vecForm{asm.F32: form(0, 0x58), asm.F64: form(0x66, 0x58), asm.I32: form(0x66, 0xFE)}
	vsub   = map[asm.Elem]vecForm{asm.F32: form(0, 0x5C), asm.F64: form(0x66, 0x5C), asm.I32: form(0x66, 0xFA)}
	vmul   = map[asm.Elem]vecForm{asm.F32: form(0, 0x59), asm.F64: form(0x66, 0x59), asm.I32: form38(0x66, 0x40)}
	vdiv   = map[asm.Elem]vecForm{asm.F32: form(0, 0x5E), asm.F64: form(0x66, 0x5E)}
	vand   = map[asm.Elem]vecForm{asm.F32: form(0, 0x54), asm.F64: form(0x66, 0x54), asm.I32: form(0x66, 0xDB)}
	vorr   = map[asm.Elem]vecForm{asm.F32: form(0, 0x56), asm.F64: form(0x66, 0x56), asm.I32: form(0x66, 0xEB)}
	vxor   = map[asm.Elem]vecForm{asm.F32: form(0, 0x57), asm.F64: form(0x66, 0x57), asm.I32: form(0x66, 0xEF)}
	vmin   = map[asm.Elem]vecForm{asm.F32: form(0, 0x5D), asm.F64: form(0x66, 0x5D), asm.I32: form38(0x66, 0x39)}
	vmax   = map[asm.Elem]vecForm{asm.F32: form(0, 0x5F), asm.F64: form(0x66, 0x5F), asm.I32: form38(0x66, 0x3D)}
	vceq   = map[asm.Elem]vecForm{asm.F32: formImm(0, 0xC2, 0), asm.F64: formImm(0x66, 0xC2, 0), asm.I32: form(0x66, 0x76)}
	vclt   = map[asm.Elem]vecForm{asm.F32: formImm(0, 0xC2, 1), asm.F64: formImm(0x66, 0xC2, 1)}
	vcgt   = map[asm.Elem]vecForm{asm.F32: formImm(0, 0xC2, 6), asm.F64: formImm(0x66, 0xC2, 6), asm.I32: form(0x66, 0x66)}
	vsqrt  = map[asm.Elem]vecForm{asm.F32: form(0, 0x51), asm.F64: form(0x66, 0x51)}
)

func (e *Encoder) VAdd(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vadd", vadd, el, dst, src) }
func (e *Encoder) VSub(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vsub", vsub, el, dst, src) }
func (e *Encoder) VMul(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vmul", vmul, el, dst, src) }
func (e *Encoder) VDiv(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vdiv", vdiv, el, dst, src) }
func (e *Encoder) VAnd(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vand", vand, el, dst, src) }
func (e *Encoder) VOrr(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vorr", vorr, el, dst, src) }
func (e *Encoder) VXor(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vxor", vxor, el, dst, src) }
func (e *Encoder) VMin(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vmin", vmin, el, dst, src) }
func (e *Encoder) VMax(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vmax", vmax, el, dst, src) }
func (e *Encoder) VCeq(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vceq", vceq, el, dst, src) }
func (e *Encoder) VCgt(el asm.Elem, dst, src asm.Operand) error { return e.vecBin("vcgt", vcgt, el, dst, src) }

// VClt has no direct integer form; pcmpgtd runs with swapped operands through
// the scratch vector register (xmm15 is clobbered).
func (e *Encoder) VClt(el asm.Elem, dst, src asm.Operand) error {
	if el != asm.I32 {
		return e.vecBin("vclt", vclt, el, dst, src)
	}
	if err := e.wide256(el); err != nil {
		return err
	}
	if dst.Kind() != asm.KindReg || !dst.IsVector() {
		return fmt.Errorf("x86 vclt %s, %s: %w", dst, src, asm.ErrUnsupported)
	}
	d := uint8(dst.First())
	mov := vmovLd[asm.I32]
	gt := vcgt[asm.I32]
	var stage func(f vecForm, reg, rm uint8, mem *asm.Operand)
	if e.avx() {
		stage = func(f vecForm, reg, rm uint8, mem *asm.Operand) {
			vvvv := reg
			if f.op == mov.op {
				vvvv = 0 // plain moves take no vvvv source
			}
			e.vex(f, reg, vvvv, rm, mem, e.VectorBytes() == 32)
		}
	} else {
		stage = func(f vecForm, reg, rm uint8, mem *asm.Operand) { e.sse(f, reg, rm, mem) }
	}
	// xmm15 = src; xmm15 = xmm15 > dst; dst = xmm15
	switch {
	case src.Kind() == asm.KindReg && src.IsVector():
		stage(mov, scratchVec, uint8(src.First()), nil)
	case src.Kind() == asm.KindMem:
		stage(mov, scratchVec, 0, &src)
	default:
		return fmt.Errorf("x86 vclt %s, %s: %w", dst, src, asm.ErrUnsupported)
	}
	stage(gt, scratchVec, d, nil)
	stage(mov, d, scratchVec, nil)
	return nil
}

func (e *Encoder) VSqrt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vsqrt", vsqrt, el, dst, src)
}

func (e *Encoder) VMov(el asm.Elem, dst, src asm.Operand) error {
	ld := vmovLd[el]
	st := vmovSt[el]
	if err := e.wide256(el); err != nil {
		return err
	}
	switch {
	case dst.Kind() == asm.KindReg && dst.IsVector() &&
		src.Kind() == asm.KindReg && src.IsVector():
		if e.avx() {
			e.vex(ld, uint8(dst.First()), 0, uint8(src.First()), nil, e.VectorBytes() == 32)
		} else {
			e.sse(ld, uint8(dst.First()), uint8(src.First()), nil)
		}
	case dst.Kind() == asm.KindReg && dst.IsVector() && src.Kind() == asm.KindMem:
		if e.avx() {
			e.vex(ld, uint8(dst.First()), 0, 0, &src, e.VectorBytes() == 32)
		} else {
			e.sse(ld, uint8(dst.First()), 0, &src)
		}
	case dst.Kind() == asm.KindMem && src.Kind() == asm.KindReg && src.IsVector():
		if e.avx() {
			e.vex(st, uint8(src.First()), 0, 0, &dst, e.VectorBytes() == 32)
		} else {
			e.sse(st, uint8(src.First()), 0, &dst)
		}
	default:
		return fmt.Errorf("x86 vmov %s, %s: %w", dst, src, asm.ErrUnsupported)
	}
	return nil
}

// VShl/VShr encode the pslld/psrld immediate group (ext 6 and 2). Counts are
// masked to the element width.
func (e *Encoder) vecShift(name string, ext byte, el asm.Elem, dst, count asm.Operand) error {
	if el != asm.I32 {
		return fmt.Errorf("x86 %s.%s: %w", name, el, asm.ErrUnsupported)
	}
	if err := e.wide256(el); err != nil {
		return err
	}
	if dst.Kind() != asm.KindReg || !dst.IsVector() || count.Kind() != asm.KindImm {
		return fmt.Errorf("x86 %s %s, %s: %w", name, dst, count, asm.ErrUnsupported)
	}
	d := uint8(dst.First())
	n := byte(count.First() & 31)
	f := formImm(0x66, 0x72, int(n))
	if e.avx() {
		// VEX shifts write through vvvv
		e.vex(f, ext, d, d, nil, e.VectorBytes() == 32)
	} else {
		e.sse(f, ext, d, nil)
	}
	return nil
}

func (e *Encoder) VShl(el asm.Elem, dst, count asm.Operand) error {
	return e.vecShift("vshl", 6, el, dst, count)
}

func (e *Encoder) VShr(el asm.Elem, dst, count asm.Operand) error {
	return e.vecShift("vshr", 2, el, dst, count)
}

var (
	vcvtTrunc = map[asm.Elem]vecForm{asm.F32: form(0xF3, 0x5B), asm.F64: form(0x66, 0xE6)}
	vcvtRound = map[asm.Elem]vecForm{asm.F32: form(0x66, 0x5B)}
	vcvtInt   = map[asm.Elem]vecForm{asm.F32: form(0, 0x5B), asm.F64: form(0xF3, 0xE6)}
)

// VCvtI converts float elements to int, truncating. Without FastFCTRL the
// legacy path brackets a round-mode conversion with an MXCSR switch to
// round-toward-zero, which is how pre-SSE2 rounding control worked; the
// bracket clobbers rax and 8 bytes below the stack pointer.
func (e *Encoder) VCvtI(el asm.Elem, dst, src asm.Operand) error {
	if el == asm.F32 && !e.target.Features.FastFCTRL && !e.avx() {
		if dst.Kind() != asm.KindReg || !dst.IsVector() {
			return fmt.Errorf("x86 vcvti %s, %s: %w", dst, src, asm.ErrUnsupported)
		}
		e.buf.Byte(0x48, 0x83, 0xEC, 0x08) // sub rsp, 8
		e.buf.Byte(0x0F, 0xAE, 0x1C, 0x24) // stmxcsr [rsp]
		e.buf.Byte(0x8B, 0x04, 0x24)       // mov eax, [rsp]
		e.buf.Byte(0x0D)                   // or eax, 0x6000 (RC = toward zero)
		e.buf.Word(0x6000)
		e.buf.Byte(0x89, 0x44, 0x24, 0x04) // mov [rsp+4], eax
		e.buf.Byte(0x0F, 0xAE, 0x54, 0x24, 0x04) // ldmxcsr [rsp+4]
		if err := e.vecBin("vcvti", vcvtRound, el, dst, src); err != nil {
			return err
		}
		e.buf.Byte(0x0F, 0xAE, 0x14, 0x24) // ldmxcsr [rsp]
		e.buf.Byte(0x48, 0x83, 0xC4, 0x08) // add rsp, 8
		return nil
	}
	return e.vecBin("vcvti", vcvtTrunc, el, dst, src)
}

// VCvtF converts int elements to float.
func (e *Encoder) VCvtF(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vcvtf", vcvtInt, el, dst, src)
}
