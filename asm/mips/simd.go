package mips

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// MSA vector words. The portable vector file V0..V7 sits on w0..w7; the MSA
// major opcode is 0b011110 and every format below packs into one word.
const msaMajor = uint32(0x1E) << 26

// dfOf maps an element kind to the MSA data-format code (w=2, d=3).
func dfOf(el asm.Elem) uint32 {
	if el == asm.F64 {
		return 3
	}
	return 2
}

// msa3R packs the integer three-register format: op[25:23] df[22:21].
func msa3R(op, df, wd, ws, wt, minor uint32) uint32 {
	return msaMajor | op<<23 | df<<21 | wt<<16 | ws<<11 | wd<<6 | minor
}

// msa3RF packs the float three-register format: op[25:22], df in bit 21
// (0 = word, 1 = doubleword).
func msa3RF(op, df, wd, ws, wt, minor uint32) uint32 {
	return msaMajor | op<<22 | (df&1)<<21 | wt<<16 | ws<<11 | wd<<6 | minor
}

// msa2RF packs the float two-register format: op[25:17], df in bit 16
// (0 = word, 1 = doubleword).
func msa2RF(op, df, wd, ws uint32) uint32 {
	return msaMajor | op<<17 | (df&1)<<16 | ws<<11 | wd<<6 | 0x1E
}

// msaVEC packs the untyped bitwise format: op[25:21].
func msaVEC(op, wd, ws, wt uint32) uint32 {
	return msaMajor | op<<21 | wt<<16 | ws<<11 | wd<<6 | 0x1E
}

// msaMI10 packs a vector load/store: scaled s10[25:16], base rs[15:11],
// minor 0b10e0df where e selects ld/st.
func msaMI10(s10 int32, rs, wd, minor uint32) uint32 {
	return msaMajor | uint32(s10&0x3FF)<<16 | rs<<11 | wd<<6 | minor
}

// msaBIT packs an immediate element shift: op[25:23], df/m[22:16].
func msaBIT(op, dfm, wd, ws uint32) uint32 {
	return msaMajor | op<<23 | dfm<<16 | ws<<11 | wd<<6 | 0x09
}

// vecForm is one MSA operation per element kind.
type vecForm struct {
	fmt   uint8 // which packer
	op    uint32
	minor uint32
}

const (
	fmt3R = iota
	fmt3RF
	fmtVEC
)

func f3r(op uint32) vecForm  { return vecForm{fmt3R, op, 0x0E} }
func f3rm(op uint32) vecForm { return vecForm{fmt3R, op, 0x12} }
func fcmp(op uint32) vecForm { return vecForm{fmt3R, op, 0x0F} }
func f3rf(op uint32) vecForm { return vecForm{fmt3RF, op, 0x1B} }
func ffc(op uint32) vecForm  { return vecForm{fmt3RF, op, 0x1A} }
func fvec(op uint32) vecForm { return vecForm{fmtVEC, op, 0} }

var (
	vadd = map[asm.Elem]vecForm{asm.F32: f3rf(0x0), asm.F64: f3rf(0x0), asm.I32: f3r(0x0)}
	vsub = map[asm.Elem]vecForm{asm.F32: f3rf(0x1), asm.F64: f3rf(0x1), asm.I32: f3r(0x1)}
	vmul = map[asm.Elem]vecForm{asm.F32: f3rf(0x2), asm.F64: f3rf(0x2), asm.I32: f3rm(0x0)}
	vdiv = map[asm.Elem]vecForm{asm.F32: f3rf(0x3), asm.F64: f3rf(0x3), asm.I32: f3rm(0x4)}
	vmin = map[asm.Elem]vecForm{asm.F32: f3rf(0xC), asm.F64: f3rf(0xC), asm.I32: f3r(0x4)}
	vmax = map[asm.Elem]vecForm{asm.F32: f3rf(0xE), asm.F64: f3rf(0xE), asm.I32: f3r(0x2)}
	vceq = map[asm.Elem]vecForm{asm.F32: ffc(0x2), asm.F64: ffc(0x2), asm.I32: fcmp(0x0)}
	vclt = map[asm.Elem]vecForm{asm.F32: ffc(0x4), asm.F64: ffc(0x4), asm.I32: fcmp(0x2)}
	vand = map[asm.Elem]vecForm{asm.F32: fvec(0x0), asm.F64: fvec(0x0), asm.I32: fvec(0x0)}
	vorr = map[asm.Elem]vecForm{asm.F32: fvec(0x1), asm.F64: fvec(0x1), asm.I32: fvec(0x1)}
	vxor = map[asm.Elem]vecForm{asm.F32: fvec(0x3), asm.F64: fvec(0x3), asm.I32: fvec(0x3)}
)

// VectorBytes reports the MSA register width. MSA is 128-bit only.
func (e *Encoder) VectorBytes() int { return 16 }

func errVec(op string, dst, src asm.Operand) error {
	return fmt.Errorf("msa %s %s, %s: %w", op, dst, src, asm.ErrUnsupported)
}

// emitForm writes one MSA word for wd = ws OP wt.
func (e *Encoder) emitForm(f vecForm, el asm.Elem, wd, ws, wt uint32) {
	switch f.fmt {
	case fmt3RF:
		e.buf.Word(msa3RF(f.op, dfOf(el)-2, wd, ws, wt, f.minor))
	case fmtVEC:
		e.buf.Word(msaVEC(f.op, wd, ws, wt))
	default:
		e.buf.Word(msa3R(f.op, dfOf(el), wd, ws, wt, f.minor))
	}
}

// vecMemWord emits a ld/st word. Displacements are scaled by element size
// and must fit the signed 10-bit field; anything else goes through $t6.
func (e *Encoder) vecMemWord(el asm.Elem, wd uint32, m asm.Operand, store bool) error {
	scale := int64(4)
	df := dfOf(el)
	if el == asm.F64 {
		scale = 8
	}
	minor := uint32(0x20) | df // ld
	if store {
		minor = 0x24 | df // st
	}
	base := regMap[m.First()]
	disp := m.Third()
	if m.Mode(disp%scale == 0 && disp/scale >= -512 && disp/scale < 512) == asm.ModeComputed {
		if err := e.immTo(scratchAddr, disp); err != nil {
			return err
		}
		e.buf.Word(rType(e.addFunct(), scratchAddr, scratchAddr, base, 0))
		base, disp = scratchAddr, 0
	}
	e.buf.Word(msaMI10(int32(disp/scale), base, wd, minor))
	return nil
}

// vecBin is the shared vector dst = dst OP src dispatch: register sources
// apply directly, memory sources load into w31 first.
func (e *Encoder) vecBin(name string, tab map[asm.Elem]vecForm, el asm.Elem, dst, src asm.Operand, swap bool) error {
	f, ok := tab[el]
	if !ok || dst.Kind() != asm.KindReg || !dst.IsVector() {
		return errVec(name, dst, src)
	}
	d := uint32(dst.First())
	var s uint32
	switch {
	case src.Kind() == asm.KindReg && src.IsVector():
		s = uint32(src.First())
	case src.Kind() == asm.KindMem && !src.IsVector():
		if err := e.vecMemWord(el, 31, src, false); err != nil {
			return err
		}
		s = 31
	default:
		return errVec(name, dst, src)
	}
	ws, wt := d, s
	if swap {
		ws, wt = s, d
	}
	e.emitForm(f, el, d, ws, wt)
	return nil
}

// VMov moves between vector registers and memory. Register moves ride on
// or.v with both sources equal.
func (e *Encoder) VMov(el asm.Elem, dst, src asm.Operand) error {
	switch {
	case dst.Kind() == asm.KindReg && dst.IsVector():
		if src.Kind() == asm.KindReg && src.IsVector() {
			s := uint32(src.First())
			e.buf.Word(msaVEC(vorr[el].op, uint32(dst.First()), s, s))
			return nil
		}
		if src.Kind() == asm.KindMem && !src.IsVector() {
			return e.vecMemWord(el, uint32(dst.First()), src, false)
		}
	case dst.Kind() == asm.KindMem && !dst.IsVector():
		if src.Kind() == asm.KindReg && src.IsVector() {
			return e.vecMemWord(el, uint32(src.First()), dst, true)
		}
	}
	return errVec("vmov", dst, src)
}

func (e *Encoder) VAdd(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vadd", vadd, el, dst, src, false)
}

func (e *Encoder) VSub(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vsub", vsub, el, dst, src, false)
}

func (e *Encoder) VMul(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vmul", vmul, el, dst, src, false)
}

func (e *Encoder) VDiv(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vdiv", vdiv, el, dst, src, false)
}

func (e *Encoder) VAnd(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vand", vand, el, dst, src, false)
}

func (e *Encoder) VOrr(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vorr", vorr, el, dst, src, false)
}

func (e *Encoder) VXor(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vxor", vxor, el, dst, src, false)
}

func (e *Encoder) VMin(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vmin", vmin, el, dst, src, false)
}

func (e *Encoder) VMax(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vmax", vmax, el, dst, src, false)
}

func (e *Encoder) VCeq(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vceq", vceq, el, dst, src, false)
}

func (e *Encoder) VClt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vclt", vclt, el, dst, src, false)
}

// VCgt reuses the less-than compare with the source operands swapped; the
// three-operand MSA forms make that a single word.
func (e *Encoder) VCgt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecBin("vcgt", vclt, el, dst, src, true)
}

// vecUnary is the shared wd = OP(ws) dispatch for the float two-register
// forms. Integer lanes have no encoding here.
func (e *Encoder) vecUnary(name string, op uint32, el asm.Elem, dst, src asm.Operand) error {
	if el == asm.I32 || dst.Kind() != asm.KindReg || !dst.IsVector() {
		return errVec(name, dst, src)
	}
	d := uint32(dst.First())
	var s uint32
	switch {
	case src.Kind() == asm.KindReg && src.IsVector():
		s = uint32(src.First())
	case src.Kind() == asm.KindMem && !src.IsVector():
		if err := e.vecMemWord(el, 31, src, false); err != nil {
			return err
		}
		s = 31
	default:
		return errVec(name, dst, src)
	}
	e.buf.Word(msa2RF(op, dfOf(el)-2, d, s))
	return nil
}

func (e *Encoder) VSqrt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecUnary("vsqrt", 0x193, el, dst, src) // fsqrt.df
}

// VShl shifts each 32-bit lane left by an immediate count.
func (e *Encoder) VShl(el asm.Elem, dst, count asm.Operand) error {
	return e.vecShift("vshl", 0x0, el, dst, count)
}

func (e *Encoder) VShr(el asm.Elem, dst, count asm.Operand) error {
	return e.vecShift("vshr", 0x2, el, dst, count)
}

func (e *Encoder) vecShift(name string, op uint32, el asm.Elem, dst, count asm.Operand) error {
	if el != asm.I32 || dst.Kind() != asm.KindReg || !dst.IsVector() || count.Kind() != asm.KindImm {
		return errVec(name, dst, count)
	}
	d := uint32(dst.First())
	sa := uint32(count.First()) & 31
	e.buf.Word(msaBIT(op, 0x40|sa, d, d)) // df/m = 01 m5, word format
	return nil
}

// VCvtI truncates float lanes toward zero into signed integers.
func (e *Encoder) VCvtI(el asm.Elem, dst, src asm.Operand) error {
	return e.vecUnary("vcvti", 0x191, el, dst, src) // ftrunc_s.df
}

func (e *Encoder) VCvtF(el asm.Elem, dst, src asm.Operand) error {
	return e.vecUnary("vcvtf", 0x19C, el, dst, src) // ffint_s.df
}
