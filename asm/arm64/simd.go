package arm64

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// The portable vector file V0..V7 sits on v0..v7; v31 stages memory sources.
// All operations run on the full 128-bit quad form, 4s or 2d by element.

// vecForm is one three-same NEON base word per element kind.
type vecForm map[asm.Elem]uint32

var (
	nadd  = vecForm{asm.F32: 0x4E20D400, asm.F64: 0x4E60D400, asm.I32: 0x4EA08400}
	nsub  = vecForm{asm.F32: 0x4EA0D400, asm.F64: 0x4EE0D400, asm.I32: 0x6EA08400}
	nmul  = vecForm{asm.F32: 0x6E20DC00, asm.F64: 0x6E60DC00, asm.I32: 0x4EA09C00}
	ndiv  = vecForm{asm.F32: 0x6E20FC00, asm.F64: 0x6E60FC00}
	nmin  = vecForm{asm.F32: 0x4EA0F400, asm.F64: 0x4EE0F400, asm.I32: 0x4EA06C00}
	nmax  = vecForm{asm.F32: 0x4E20F400, asm.F64: 0x4E60F400, asm.I32: 0x4EA06400}
	nceq  = vecForm{asm.F32: 0x4E20E400, asm.F64: 0x4E60E400, asm.I32: 0x6EA08C00}
	ncgt  = vecForm{asm.F32: 0x6EA0E400, asm.F64: 0x6EE0E400, asm.I32: 0x4EA03400}
	nand  = vecForm{asm.F32: 0x4E201C00, asm.F64: 0x4E201C00, asm.I32: 0x4E201C00}
	norr  = vecForm{asm.F32: 0x4EA01C00, asm.F64: 0x4EA01C00, asm.I32: 0x4EA01C00}
	nxor  = vecForm{asm.F32: 0x6E201C00, asm.F64: 0x6E201C00, asm.I32: 0x6E201C00}
	nsqrt = vecForm{asm.F32: 0x6EA1F800, asm.F64: 0x6EE1F800}
	ncvti = vecForm{asm.F32: 0x4EA1B800, asm.F64: 0x4EE1B800} // fcvtzs
	ncvtf = vecForm{asm.F32: 0x4E21D800, asm.F64: 0x4E61D800} // scvtf
)

func (e *Encoder) VectorBytes() int { return 16 }

func errVec(op string, el asm.Elem, dst, src asm.Operand) error {
	return fmt.Errorf("arm64 %s.%s %s, %s: %w", op, el, dst, src, asm.ErrUnsupported)
}

// vecMemWord emits a 128-bit ldr/str. The scaled unsigned offset covers
// quad-aligned displacements; anything else synthesizes through x16.
func (e *Encoder) vecMemWord(vd uint32, m asm.Operand, store bool) {
	base, off := e.memBase(m, 16)
	word := uint32(0x3DC00000)
	if store {
		word = 0x3D800000
	}
	e.buf.Word(word | off<<10 | base<<5 | vd)
}

// vecSrc resolves a vector source to a register number, staging memory
// operands in v31.
func (e *Encoder) vecSrc(src asm.Operand) (uint32, bool) {
	switch {
	case src.Kind() == asm.KindReg && src.IsVector():
		return uint32(src.First()), true
	case src.Kind() == asm.KindMem && !src.IsVector():
		e.vecMemWord(vecScratch, src, false)
		return vecScratch, true
	}
	return 0, false
}

func (e *Encoder) vecBin(name string, tab vecForm, el asm.Elem, dst, src asm.Operand, swap bool) error {
	base, ok := tab[el]
	if !ok || dst.Kind() != asm.KindReg || !dst.IsVector() {
		return errVec(name, el, dst, src)
	}
	d := uint32(dst.First())
	s, ok := e.vecSrc(src)
	if !ok {
		return errVec(name, el, dst, src)
	}
	n, m := d, s
	if swap {
		n, m = s, d
	}
	e.buf.Word(base | m<<16 | n<<5 | d)
	return nil
}

// VMov moves between vector registers and memory. Register moves ride on
// orr with both sources the same.
func (e *Encoder) VMov(el asm.Elem, dst, src asm.Operand) error {
	switch {
	case dst.Kind() == asm.KindReg && dst.IsVector():
		if src.Kind() == asm.KindReg && src.IsVector() {
			s := uint32(src.First())
			e.buf.Word(0x4EA01C00 | s<<16 | s<<5 | uint32(dst.First()))
			return nil
		}
		if src.Kind() == asm.KindMem && !src.IsVector() {
			e.vecMemWord(uint32(dst.First()), src, false)
			return nil
		}
	case dst.Kind() == asm.KindMem && !dst.IsVector():
		if src.Kind() == asm.KindReg && src.IsVector() {
			e.vecMemWord(uint32(src.First()), dst, true)
			return nil
		}
	}
	return errVec("vmov", el, dst, src)
}

func (e *Encoder) VAdd(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vadd", nadd, el, dst, src, false)
}

func (e *Encoder) VSub(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vsub", nsub, el, dst, src, false)
}

func (e *Encoder) VMul(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vmul", nmul, el, dst, src, false)
}

func (e *Encoder) VDiv(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vdiv", ndiv, el, dst, src, false)
}

func (e *Encoder) VAnd(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vand", nand, el, dst, src, false)
}

func (e *Encoder) VOrr(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vorr", norr, el, dst, src, false)
}

func (e *Encoder) VXor(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vxor", nxor, el, dst, src, false)
}

func (e *Encoder) VMin(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vmin", nmin, el, dst, src, false)
}

func (e *Encoder) VMax(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vmax", nmax, el, dst, src, false)
}

func (e *Encoder) VCeq(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vceq", nceq, el, dst, src, false)
}

// VCgt maps straight onto the greater-than compares; VClt reuses them with
// the operands swapped.
func (e *Encoder) VCgt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vcgt", ncgt, el, dst, src, false)
}

func (e *Encoder) VClt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vclt", ncgt, el, dst, src, true)
}

// VSqrt and the conversions are two-register forms sharing the binary
// dispatch shape without the rm field.
func (e *Encoder) VSqrt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecUnary("vsqrt", nsqrt, el, dst, src)
}

func (e *Encoder) VCvtI(el asm.Elem, dst, src asm.Operand) error {
	return e.vecUnary("vcvti", ncvti, el, dst, src)
}

func (e *Encoder) VCvtF(el asm.Elem, dst, src asm.Operand) error {
	return e.vecUnary("vcvtf", ncvtf, el, dst, src)
}

func (e *Encoder) vecUnary(name string, tab vecForm, el asm.Elem, dst, src asm.Operand) error {
	base, ok := tab[el]
	if !ok || dst.Kind() != asm.KindReg || !dst.IsVector() {
		return errVec(name, el, dst, src)
	}
	s, ok := e.vecSrc(src)
	if !ok {
		return errVec(name, el, dst, src)
	}
	e.buf.Word(base | s<<5 | uint32(dst.First()))
	return nil
}

// VShl encodes the immediate form directly; VShr flips to the ushr
// complement field, falling back to a plain move for a zero count since
// ushr has no zero-shift encoding.
func (e *Encoder) VShl(el asm.Elem, dst, count asm.Operand) error {
	n, d, err := e.vecShiftArgs("vshl", el, dst, count)
	if err != nil {
		return err
	}
	e.buf.Word(0x4F005400 | (32+n)<<16 | d<<5 | d)
	return nil
}

func (e *Encoder) VShr(el asm.Elem, dst, count asm.Operand) error {
	n, d, err := e.vecShiftArgs("vshr", el, dst, count)
	if err != nil {
		return err
	}
	if n == 0 {
		e.buf.Word(0x4EA01C00 | d<<16 | d<<5 | d)
		return nil
	}
	e.buf.Word(0x6F000400 | (64-n)<<16 | d<<5 | d)
	return nil
}

func (e *Encoder) vecShiftArgs(name string, el asm.Elem, dst, count asm.Operand) (uint32, uint32, error) {
	if el != asm.I32 || dst.Kind() != asm.KindReg || !dst.IsVector() || count.Kind() != asm.KindImm {
		return 0, 0, errVec(name, el, dst, count)
	}
	return uint32(count.First()) & 31, uint32(dst.First()), nil
}
